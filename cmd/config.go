// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the top-level configuration document every trustdir binary
// loads. Each field carries an `envconfig` tag spelling out the exact
// key named in spec §6's configuration table, so LoadConfigFromEnv can
// populate it straight from the process environment; ReadConfigFile
// remains available for the JSON-file style the teacher's own services
// use. Only the tuning knobs carry a `default` tag (LDAP timeout,
// reconcile batch size and schedule, portal poll interval, SMTP port);
// connection endpoints, credentials and the base DN have no default.
type Config struct {
	DB         DBConfig
	LDAP       LDAPConfig
	Reconciler ReconcilerConfig
	PortalSync PortalSyncConfig
	Notify     NotifyConfig
	Archive    ArchiveConfig

	Syslog SyslogConfig
	Statsd StatsdConfig
}

// DBConfig names the relational store connection (spec §6 DB_* keys).
type DBConfig struct {
	Host     string       `envconfig:"DB_HOST"`
	Port     int          `envconfig:"DB_PORT"`
	Name     string       `envconfig:"DB_NAME"`
	User     string       `envconfig:"DB_USER"`
	Password ConfigSecret `envconfig:"DB_PASSWORD"`

	// PoolMin/PoolMax bound the connection pool (DB_POOL_MIN/MAX).
	PoolMin int `envconfig:"DB_POOL_MIN"`
	PoolMax int `envconfig:"DB_POOL_MAX"`
}

// DSN renders the MySQL data-source name go-sql-driver/mysql expects.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.User, string(c.Password), c.Host, c.Port, c.Name)
}

// LDAPConfig names the directory read/write endpoints and credentials
// (spec §6 LDAP_* keys).
type LDAPConfig struct {
	Host string `envconfig:"LDAP_HOST"`
	Port int    `envconfig:"LDAP_PORT"`

	WriteHost string `envconfig:"LDAP_WRITE_HOST"`
	WritePort int    `envconfig:"LDAP_WRITE_PORT"`

	BindDN   string       `envconfig:"LDAP_BIND_DN"`
	Password ConfigSecret `envconfig:"LDAP_BIND_PASSWORD"`

	// BaseDN is the directory root under which csca/dsc/dsc_nc/crl
	// entries are placed (spec §6 LDAP_BASE_DN, §4.7 DN construction).
	BaseDN string `envconfig:"LDAP_BASE_DN"`

	// Timeout bounds one LDAP operation; spec §5 default is 2s.
	Timeout ConfigDuration `envconfig:"LDAP_TIMEOUT" default:"2s"`
}

// ReconcilerConfig drives C8 (spec §6 AUTO_RECONCILE, MAX_RECONCILE_
// BATCH_SIZE, DAILY_SYNC_*, REVALIDATE_CERTS_ON_SYNC).
type ReconcilerConfig struct {
	AutoReconcile         bool `envconfig:"AUTO_RECONCILE"`
	MaxReconcileBatchSize int  `envconfig:"MAX_RECONCILE_BATCH_SIZE" default:"500"`
	DailySyncEnabled      bool `envconfig:"DAILY_SYNC_ENABLED"`
	DailySyncHour         int  `envconfig:"DAILY_SYNC_HOUR" default:"2"`
	DailySyncMinute       int  `envconfig:"DAILY_SYNC_MINUTE" default:"0"`
	RevalidateCertsOnSync bool `envconfig:"REVALIDATE_CERTS_ON_SYNC"`

	// RedisAddr is the single-flight lock backend guarding concurrent
	// reconciliation passes across replicas (spec §4.8, §5).
	RedisAddr string `envconfig:"RECONCILER_REDIS_ADDR"`
}

// PortalSyncConfig drives C9 (spec §6 ICAO_PORTAL_URL and the polling
// cadence named in spec §4.9).
type PortalSyncConfig struct {
	PortalURL    string         `envconfig:"ICAO_PORTAL_URL"`
	PollInterval ConfigDuration `envconfig:"ICAO_PORTAL_POLL_INTERVAL" default:"1h"`
	AutoNotify   bool           `envconfig:"ICAO_PORTAL_AUTO_NOTIFY" default:"true"`
}

// NotifyConfig names the operator notification transport (spec §6
// NOTIFY_EMAIL, and the Design Notes open question on SMTP transport).
// When Server is empty, callers fall back to notify.LogNotifier.
type NotifyConfig struct {
	Server   string       `envconfig:"NOTIFY_SMTP_SERVER"`
	Port     string       `envconfig:"NOTIFY_SMTP_PORT" default:"587"`
	Username string       `envconfig:"NOTIFY_SMTP_USERNAME"`
	Password ConfigSecret `envconfig:"NOTIFY_SMTP_PASSWORD"`
	From     string       `envconfig:"NOTIFY_SMTP_FROM"`
	To       []string     `envconfig:"NOTIFY_EMAIL"`
}

// ArchiveConfig names the optional object-storage bucket C3 archives raw
// uploaded bytes into (sa.BlobStore). It is not part of spec §6's core
// table since archiving is an operational nicety, not a required
// behavior; an empty Bucket disables archiving entirely and ingest runs
// without an archiver, same as a Boulder service run without its own
// optional CT-submission step configured.
type ArchiveConfig struct {
	Region string `envconfig:"ARCHIVE_S3_REGION"`
	Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`
}

// SyslogConfig defines the config for syslogging.
type SyslogConfig struct {
	Network     string
	Server      string
	StdoutLevel *int
	SyslogLevel int
}

// StatsdConfig defines the config for Statsd.
type StatsdConfig struct {
	Server string
	Prefix string
}

// ConfigDuration is just an alias for time.Duration that allows
// serialization to YAML as well as JSON.
type ConfigDuration struct {
	time.Duration
}

// ErrDurationMustBeString is returned when a non-string value is
// presented to be deserialized as a ConfigDuration
var ErrDurationMustBeString = errors.New("cannot JSON unmarshal something other than a string into a ConfigDuration")

// UnmarshalJSON parses a string into a ConfigDuration using
// time.ParseDuration.  If the input does not unmarshal as a
// string, then UnmarshalJSON returns ErrDurationMustBeString.
func (d *ConfigDuration) UnmarshalJSON(b []byte) error {
	s := ""
	err := json.Unmarshal(b, &s)
	if err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return ErrDurationMustBeString
		}
		return err
	}
	dd, err := time.ParseDuration(s)
	d.Duration = dd
	return err
}

// MarshalJSON returns the string form of the duration, as a byte array.
func (d ConfigDuration) MarshalJSON() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML uses the same format as JSON, but is called by the YAML
// parser (vs. the JSON parser).
func (d *ConfigDuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	d.Duration = dur
	return nil
}

// Decode satisfies envconfig.Decoder so LoadConfigFromEnv can populate a
// ConfigDuration straight from an environment variable's raw string.
func (d *ConfigDuration) Decode(value string) error {
	dur, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value, err)
	}
	d.Duration = dur
	return nil
}

// A ConfigSecret represents a string-valued config field. It may be specified
// directly in the config or, if it starts with the string "secret:", its
// contents are read from the filename that comes after "secret:", with
// trailing newlines removed.
type ConfigSecret string

var errSecretMustBeString = errors.New("cannot JSON unmarshal something other than a string into a ConfigSecret")

const secretPrefix = "secret:"

// UnmarshalJSON unmarshals a ConfigSecret
func (d *ConfigSecret) UnmarshalJSON(b []byte) error {
	s := ""
	err := json.Unmarshal(b, &s)
	if err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return errSecretMustBeString
		}
		return err
	}
	if !strings.HasPrefix(s, secretPrefix) {
		*d = ConfigSecret(s)
		return nil
	}
	contents, err := ioutil.ReadFile(s[len(secretPrefix):])
	if err != nil {
		return err
	}
	*d = ConfigSecret(strings.TrimRight(string(contents), "\n"))
	return nil
}

// Decode satisfies envconfig.Decoder, applying the same secret:<path>
// indirection rule LoadConfigFromEnv's callers get from a JSON file.
func (d *ConfigSecret) Decode(value string) error {
	if !strings.HasPrefix(value, secretPrefix) {
		*d = ConfigSecret(value)
		return nil
	}
	contents, err := ioutil.ReadFile(value[len(secretPrefix):])
	if err != nil {
		return err
	}
	*d = ConfigSecret(strings.TrimRight(string(contents), "\n"))
	return nil
}

// LoadConfigFromEnv populates a Config directly from the process
// environment using the envconfig tags above, which spell out the exact
// keys spec §6 recognises (DB_HOST, LDAP_BASE_DN, AUTO_RECONCILE, ...).
// This is the primary configuration path for trustdir's service
// binaries; ReadConfigFile remains available for tooling that prefers a
// JSON file.
func LoadConfigFromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("loading configuration from environment: %w", err)
	}
	return c, nil
}
