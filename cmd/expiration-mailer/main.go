// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// expiration-mailer scans the Trust Store for certificates whose
// notAfter falls within a configurable window and sends one digest
// notification naming them, through the same Notifier port C9 uses
// (spec §6 NOTIFY_EMAIL). It is the operator-facing complement to the
// Reconciler's optional revalidation pass (spec §4.8 step 5): that pass
// re-runs chain validation on soon-to-expire certificates, this one
// tells a human about them.
package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/notify"
	"github.com/icao-pkd/trustdir/sa"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	window := flag.Duration("window", 30*24*time.Hour, "How far ahead of now to look for expiring certificates")
	flag.Parse()

	var c cmd.Config
	var err error
	if *configFile != "" {
		err = cmd.ReadConfigFile(*configFile, &c)
		cmd.FailOnError(err, "Reading config file")
	} else {
		c, err = cmd.LoadConfigFromEnv()
		cmd.FailOnError(err, "Loading configuration from environment")
	}

	_, logger := cmd.StatsAndLogging(c.Syslog)

	dbMap, err := sa.NewDbMap(c.DB.DSN(), c.DB.PoolMax)
	cmd.FailOnError(err, "Connecting to trust store database")
	store := sa.NewSQLTrustStore(dbMap, logger)

	now := time.Now()
	expiring, err := store.ExpiringWithin(context.Background(), *window, now)
	cmd.FailOnError(err, "Querying expiring certificates")

	if len(expiring) == 0 {
		logger.Info("no certificates expiring within the configured window")
		return
	}

	var notifier core.Notifier
	if c.Notify.Server != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Server: c.Notify.Server, Port: c.Notify.Port,
			Username: c.Notify.Username, Password: string(c.Notify.Password),
			From: c.Notify.From, To: c.Notify.To,
		}, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	subject := fmt.Sprintf("%d certificate(s) expiring within %s", len(expiring), window.String())
	body := digest(expiring, now)

	err = notifier.Notify(context.Background(), subject, body)
	cmd.FailOnError(err, "Sending expiration notification")
}

// digest renders one line per certificate, soonest-expiring first.
func digest(certs []core.Certificate, now time.Time) string {
	sort.Slice(certs, func(i, j int) bool { return certs[i].NotAfter.Before(certs[j].NotAfter) })

	var b strings.Builder
	for _, cert := range certs {
		daysLeft := int(cert.NotAfter.Sub(now).Hours() / 24)
		fmt.Fprintf(&b, "%s  %s  country=%s  type=%s  subject=%q  expires=%s (%d days)\n",
			cert.Fingerprint, cert.Serial, cert.Country, cert.Type, cert.SubjectDN,
			cert.NotAfter.Format(time.RFC3339), daysLeft)
	}
	return b.String()
}
