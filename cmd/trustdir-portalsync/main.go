// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// trustdir-portalsync runs the ICAO Portal Sync (C9) as a daemon:
// poll the configured portal URL on PollInterval, detect new LDIF
// collection versions, persist them, and notify operators when
// AutoNotify is enabled (spec §4.9). Pass -once to run a single poll
// and exit.
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/notify"
	"github.com/icao-pkd/trustdir/portalsync"
	"github.com/icao-pkd/trustdir/sa"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single poll and exit")
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

	stats, logger := cmd.StatsAndLogging(c.Syslog)

	dbMap, err := sa.NewDbMap(c.DB.DSN(), c.DB.PoolMax)
	cmd.FailOnError(err, "Connecting to trust store database")
	store := sa.NewSQLTrustStore(dbMap, logger)

	fetcher := portalsync.NewHTTPFetcher(&http.Client{Timeout: 10 * time.Second}, c.PortalSync.PortalURL)

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

	syncer := portalsync.New(fetcher, store, notifier, time.Now, logger, stats, c.PortalSync.AutoNotify)

	runOnce := func() {
		detected, err := syncer.Sync(context.Background())
		if err != nil {
			logger.AuditErr(err)
			return
		}
		logger.WithValues("newVersions", len(detected)).Info("portal sync pass complete")
	}

	if *once {
		runOnce()
		return
	}

	interval := c.PortalSync.PollInterval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		runOnce()
		for {
			select {
			case <-ticker.C:
				runOnce()
			case <-done:
				return
			}
		}
	}()

	cmd.CatchSignals(logger, func() { close(done) })
}
