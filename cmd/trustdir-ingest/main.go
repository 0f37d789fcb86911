// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// trustdir-ingest drives the File Ingest Pipeline (C3) over one or more
// files named on the command line: LDIF bundles, Master Lists,
// Deviation Lists, or individual X.509/CRL files, as described in spec
// §4.3. Each file becomes one UploadedFile row; per-type counters are
// printed as they complete.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmhodges/clock"

	"github.com/icao-pkd/trustdir/classify"
	"github.com/icao-pkd/trustdir/cmd"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/ingest"
	"github.com/icao-pkd/trustdir/sa"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	nonConformant := flag.Bool("nc", false, "Treat every input file as a non-conformant (Deviation List / DSC_NC) collection")
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
	shutdownTracing := cmd.InitTracing("trustdir-ingest")
	defer shutdownTracing(context.Background())

	if flag.NArg() == 0 {
		logger.AuditErr(fmt.Errorf("no input files named"))
		fmt.Fprintln(os.Stderr, "usage: trustdir-ingest -config trustdir.json file [file ...]")
		os.Exit(1)
	}

	dbMap, err := sa.NewDbMap(c.DB.DSN(), c.DB.PoolMax)
	cmd.FailOnError(err, "Connecting to trust store database")
	store := sa.NewSQLTrustStore(dbMap, logger)

	var archiver ingest.BlobArchiver
	if c.Archive.Bucket != "" {
		s3Client, err := sa.NewS3Client(context.Background(), c.Archive.Region)
		cmd.FailOnError(err, "Configuring object storage archive")
		archiver = sa.NewBlobStore(s3Client, c.Archive.Bucket)
	}

	pipeline := ingest.New(store, clock.Default(), logger, archiver)

	hint := classify.ContainerConformant
	if *nonConformant {
		hint = classify.ContainerNonConformant
	}

	ctx := context.Background()
	var failed bool
	for _, path := range flag.Args() {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			logger.AuditErr(fmt.Errorf("reading %s: %w", path, err))
			failed = true
			continue
		}
		if strings.Contains(strings.ToLower(filepath.Base(path)), "nc") || strings.Contains(strings.ToLower(filepath.Base(path)), "dvl") {
			hint = classify.ContainerNonConformant
		}

		file, err := pipeline.Ingest(ctx, filepath.Base(path), data, hint)
		if err != nil {
			logger.AuditErr(fmt.Errorf("ingesting %s: %w", path, err))
			failed = true
			continue
		}
		printResult(path, file)
		if file.Status == core.UploadFailed {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func printResult(path string, file core.UploadedFile) {
	fmt.Printf("%s: status=%s csca=%d dsc=%d dsc_nc=%d crl=%d ml=%d duplicates=%d errors=%d\n",
		path, file.Status,
		file.Counters.CSCA, file.Counters.DSC, file.Counters.DSCNC,
		file.Counters.CRL, file.Counters.ML,
		file.Counters.Duplicate, len(file.ParsingErrors))
	if file.ErrorText != "" {
		fmt.Printf("%s: error: %s\n", path, file.ErrorText)
	}
}
