// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// trustdir-reconciler runs the Reconciler / Scheduler (C8) as a daemon:
// it sleeps until the next configured wall-clock hour/minute, runs one
// gather/repair/persist pass, and loops. A SIGTERM/SIGINT/SIGHUP lets
// the current pass finish before the process exits, per spec §5's
// resource-cleanup rule. Pass -once to run a single pass and exit,
// which is how the daily cron entry in spec §4.8 invokes it.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/redis/go-redis/v9"

	"github.com/icao-pkd/trustdir/chainval"
	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/directory"
	"github.com/icao-pkd/trustdir/reconciler"
	"github.com/icao-pkd/trustdir/sa"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	once := flag.Bool("once", false, "Run a single reconciliation pass and exit")
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
	shutdownTracing := cmd.InitTracing("trustdir-reconciler")
	defer shutdownTracing(context.Background())

	dbMap, err := sa.NewDbMap(c.DB.DSN(), c.DB.PoolMax)
	cmd.FailOnError(err, "Connecting to trust store database")
	store := sa.NewSQLTrustStore(dbMap, logger)

	ldapConn, err := ldap.DialURL(fmt.Sprintf("ldap://%s:%d", c.LDAP.WriteHost, c.LDAP.WritePort))
	cmd.FailOnError(err, "Connecting to directory write endpoint")
	defer ldapConn.Close()
	if c.LDAP.BindDN != "" {
		err = ldapConn.Bind(c.LDAP.BindDN, string(c.LDAP.Password))
		cmd.FailOnError(err, "Binding to directory")
	}
	publisher := directory.New(ldapConn, c.LDAP.BaseDN, logger)

	validator := chainval.New(store, time.Now)

	redisClient := redis.NewClient(&redis.Options{Addr: c.Reconciler.RedisAddr})
	defer redisClient.Close()

	recon := reconciler.New(store, publisher, validator, redisClient, time.Now, logger, stats,
		c.Reconciler.MaxReconcileBatchSize, c.Reconciler.AutoReconcile, c.Reconciler.RevalidateCertsOnSync)

	// passMu is held for the length of a pass; the signal callback takes
	// it too, so shutdown waits for a running pass to finish.
	var passMu sync.Mutex
	runOnce := func() {
		passMu.Lock()
		defer passMu.Unlock()
		result := recon.Run(context.Background())
		logger.WithValues("state", string(result.State), "syncRequired", result.Status.SyncRequired,
			"totalDiscrepancy", result.Status.TotalDiscrepancy, "failures", len(result.Failures)).Info("reconciliation pass complete")
		if result.Message != "" {
			logger.Warning(result.Message)
		}
	}

	if *once {
		runOnce()
		return
	}

	if !c.Reconciler.DailySyncEnabled {
		logger.Info("daily sync disabled; exiting (use -once for an ad-hoc pass)")
		return
	}

	done := make(chan struct{})
	go func() {
		for {
			sleepUntilNextRun(c.Reconciler.DailySyncHour, c.Reconciler.DailySyncMinute)
			select {
			case <-done:
				return
			default:
			}
			runOnce()
		}
	}()

	cmd.CatchSignals(logger, func() {
		passMu.Lock()
		close(done)
	})
}

// sleepUntilNextRun blocks until the next occurrence of hour:minute in
// local time, today if it hasn't passed yet, tomorrow otherwise.
func sleepUntilNextRun(hour, minute int) {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	time.Sleep(next.Sub(now))
}
