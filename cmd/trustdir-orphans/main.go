// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// trustdir-orphans is the mirror image of the Reconciler's DB->directory
// repair pass (C8): it lists directory entries that have no
// corresponding Trust Store row, and reports them without deleting
// anything. Modeled on the teacher's orphan-finder, which recovered
// issued-but-unpersisted certificates by replaying an issuance log; this
// tool has no issuance log to replay, so it finds its orphans by
// diffing the directory against the database directly.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/directory"
	"github.com/icao-pkd/trustdir/sa"
)

var scannedTypes = []core.CertType{core.CertTypeCSCA, core.CertTypeDSC, core.CertTypeDSCNC}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
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

	ldapConn, err := ldap.DialURL(fmt.Sprintf("ldap://%s:%d", c.LDAP.Host, c.LDAP.Port))
	cmd.FailOnError(err, "Connecting to directory")
	defer ldapConn.Close()
	publisher := directory.New(ldapConn, c.LDAP.BaseDN, logger)

	ctx := context.Background()
	var orphans int
	for _, t := range scannedTypes {
		fingerprints, err := publisher.ListFingerprintsByType(ctx, t)
		cmd.FailOnError(err, fmt.Sprintf("Listing directory entries for %s", t))

		for _, fp := range fingerprints {
			if _, err := store.FindByFingerprint(ctx, fp); err != nil {
				fmt.Printf("orphan type=%s fingerprint=%s\n", t, fp)
				orphans++
			}
		}
	}

	if orphans == 0 {
		fmt.Println("no orphaned directory entries found")
	}
}
