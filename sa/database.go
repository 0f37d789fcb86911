// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sa

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	gorp "gopkg.in/go-gorp/gorp.v2"

	"github.com/icao-pkd/trustdir/log"
)

// sqlOpen and setMaxOpenConns are indirected through package vars so
// tests can substitute a fake driver without a live MySQL instance.
var sqlOpen = sql.Open
var setMaxOpenConns = func(db *sql.DB, m int) { db.SetMaxOpenConns(m) }

// NewDbMap opens dsn with the mysql driver and wraps it in a gorp DbMap
// with the trust store's tables registered. maxOpenConns of 0 leaves the
// database/sql default in place.
func NewDbMap(dsn string, maxOpenConns int) (*gorp.DbMap, error) {
	db, err := sqlOpen("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sa: opening database: %w", err)
	}
	if maxOpenConns > 0 {
		setMaxOpenConns(db, maxOpenConns)
	}

	dbMap := &gorp.DbMap{Db: db, Dialect: gorp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8MB4"}}
	initTables(dbMap)
	return dbMap, nil
}

// initTables constructs the table map for the trust store's gorp ORM.
func initTables(dbMap *gorp.DbMap) {
	dbMap.AddTableWithName(certificateRow{}, "certificate").SetKeys(false, "Fingerprint")
	dbMap.AddTableWithName(crlRow{}, "crl").SetKeys(false, "Fingerprint")
	dbMap.AddTableWithName(uploadedFileRow{}, "uploaded_file").SetKeys(false, "ID")
	dbMap.AddTableWithName(syncStatusRow{}, "sync_status").SetKeys(false, "ID")
	dbMap.AddTableWithName(paVerificationRow{}, "pa_verification").SetKeys(false, "ID")
	dbMap.AddTableWithName(icaoVersionRow{}, "icao_pkd_version").SetKeys(false, "ID")
}

// SetSQLDebug toggles gorp's verbose statement logging, wired to the
// audit logger so it lands in the same sink as everything else.
func SetSQLDebug(dbMap *gorp.DbMap, logger log.Logger) {
	dbMap.TraceOn("[sa]", sqlLogAdapter{logger})
}

type sqlLogAdapter struct {
	log log.Logger
}

func (a sqlLogAdapter) Printf(format string, v ...interface{}) {
	a.log.Debug(fmt.Sprintf(format, v...))
}
