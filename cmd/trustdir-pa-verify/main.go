// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// trustdir-pa-verify runs one Passive Authentication request (C6) against
// the Trust Store: it reads an SOD file and a directory of per-DG files
// named dg1, dg2, ... dg16, and prints the resulting verdict. This is the
// PA engine's only exposed entry point -- spec §1 excludes a network API
// layer, so this CLI plus the internal Go call (pa.Engine.Verify) are the
// whole surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"

	"github.com/icao-pkd/trustdir/chainval"
	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/pa"
	"github.com/icao-pkd/trustdir/sa"
)

var dgFilePattern = regexp.MustCompile(`^dg(\d+)$`)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	sodPath := flag.String("sod", "", "Path to the SOD (Security Object of the Document) file")
	dgDir := flag.String("dg-dir", "", "Directory containing one file per presented Data Group, named dg1, dg2, ...")
	issuingCountry := flag.String("country", "", "Issuing country hint (ICAO 3-letter code)")
	documentNumber := flag.String("document", "", "Document number hint")
	autoRegister := flag.Bool("auto-register", false, "Register an unknown DSC discovered via this SOD into the Trust Store")
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
	shutdownTracing := cmd.InitTracing("trustdir-pa-verify")
	defer shutdownTracing(context.Background())

	if *sodPath == "" {
		cmd.FailOnError(fmt.Errorf("no SOD file named"), "usage: trustdir-pa-verify -sod path/to.sod -dg-dir path/to/dgs")
	}

	sodBytes, err := ioutil.ReadFile(*sodPath)
	cmd.FailOnError(err, "Reading SOD file")

	dataGroups := map[int][]byte{}
	if *dgDir != "" {
		entries, err := ioutil.ReadDir(*dgDir)
		cmd.FailOnError(err, "Reading Data Group directory")
		for _, entry := range entries {
			m := dgFilePattern.FindStringSubmatch(entry.Name())
			if m == nil {
				continue
			}
			var dgNumber int
			fmt.Sscanf(m[1], "%d", &dgNumber)
			data, err := ioutil.ReadFile(filepath.Join(*dgDir, entry.Name()))
			cmd.FailOnError(err, fmt.Sprintf("Reading %s", entry.Name()))
			dataGroups[dgNumber] = data
		}
	}

	dbMap, err := sa.NewDbMap(c.DB.DSN(), c.DB.PoolMax)
	cmd.FailOnError(err, "Connecting to trust store database")
	store := sa.NewSQLTrustStore(dbMap, logger)

	validator := chainval.New(store, nil)
	engine := pa.New(store, validator, nil, logger, *autoRegister)

	result := engine.Verify(context.Background(), sodBytes, dataGroups, *issuingCountry, *documentNumber)

	fmt.Printf("status=%s message=%q\n", result.Status, result.Message)
	fmt.Printf("dsc.subject=%q dsc.fingerprint=%s\n", result.DSC.Subject, result.DSC.Fingerprint)
	fmt.Printf("csca.subject=%q csca.fingerprint=%s\n", result.CSCA.Subject, result.CSCA.Fingerprint)
	fmt.Printf("trustChainValid=%t sodSignatureValid=%t dgHashesValid=%t notRevoked=%t crlAvailable=%t\n",
		result.TrustChainValid, result.SODSignatureValid, result.DGHashesValid, result.NotRevoked, result.CRLAvailable)
	for _, dg := range result.DGResults {
		fmt.Printf("dg%d present=%t valid=%t\n", dg.DGNumber, dg.Present, dg.Valid)
	}

	if result.Status != "VALID" {
		os.Exit(1)
	}
}
