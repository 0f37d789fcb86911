// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// trustdir-export dumps the Trust Store's contents as CSV for offline
// audit, modeled on the teacher's account-contact export tool but over
// certificates instead of subscriber contacts: one row per certificate,
// (fingerprint, type, country, subject, notAfter).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"

	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/sa"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	certType := flag.String("type", "", "Restrict the export to one certificate type (CSCA, DSC, DSC_NC, MLSC, LINK, DVL_SIGNER); empty means all")
	country := flag.String("country", "", "Restrict the export to one country code; empty means all")
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

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	cmd.FailOnError(w.Write([]string{"fingerprint", "type", "country", "subject", "notAfter"}), "Writing CSV header")

	ctx := context.Background()
	filter := core.CertificateFilter{Type: core.CertType(*certType), Country: *country, Limit: 1000}
	for {
		page, err := store.Paginate(ctx, filter)
		cmd.FailOnError(err, "Querying trust store")
		if len(page) == 0 {
			break
		}
		for _, cert := range page {
			row := []string{
				cert.Fingerprint,
				string(cert.Type),
				cert.Country,
				cert.SubjectDN,
				cert.NotAfter.Format("2006-01-02T15:04:05Z07:00"),
			}
			cmd.FailOnError(w.Write(row), "Writing CSV row")
		}
		filter.Offset += len(page)
	}
}
