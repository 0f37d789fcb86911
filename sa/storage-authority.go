// Copyright 2014 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/db"
	pkderrors "github.com/icao-pkd/trustdir/errors"
	"github.com/icao-pkd/trustdir/log"
)

// SQLTrustStore is the Trust Store (C4): the relational backing for
// every certificate, CRL, upload, sync-status, PA-verification, and
// ICAO-version record the rest of the system reads and writes. It
// implements core.TrustStore against a gorp DbMap, narrowed to
// db.DatabaseMap so tests can substitute an in-memory fake.
type SQLTrustStore struct {
	dbMap db.DatabaseMap
	log   log.Logger
}

// NewSQLTrustStore constructs a Trust Store over an already-initialized
// DbMap (see NewDbMap).
func NewSQLTrustStore(dbMap db.DatabaseMap, logger log.Logger) *SQLTrustStore {
	return &SQLTrustStore{dbMap: dbMap, log: logger}
}

// isDuplicate reports whether err is a MySQL unique-constraint
// violation (error 1062), the only database failure spec §7 treats as
// idempotent rather than propagating.
func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// FindByFingerprint implements core.TrustStoreReader.
func (s *SQLTrustStore) FindByFingerprint(ctx context.Context, fingerprint string) (core.Certificate, error) {
	var row certificateRow
	err := s.dbMap.SelectOne(&row, "SELECT * FROM certificate WHERE fingerprint = ?", fingerprint)
	if err == sql.ErrNoRows {
		return core.Certificate{}, pkderrors.NotFoundError("certificate %s not found", fingerprint)
	}
	if err != nil {
		return core.Certificate{}, pkderrors.StoreError("selecting certificate %s: %s", fingerprint, err)
	}
	return rowToCert(row), nil
}

// FindBySubjectDN implements core.TrustStoreReader.
func (s *SQLTrustStore) FindBySubjectDN(ctx context.Context, subjectDN string) ([]core.Certificate, error) {
	var rows []certificateRow
	_, err := s.dbMap.Select(&rows, "SELECT * FROM certificate WHERE subject_dn = ?", subjectDN)
	if err != nil {
		return nil, pkderrors.StoreError("selecting certificates for subject %q: %s", subjectDN, err)
	}
	out := make([]core.Certificate, len(rows))
	for i, r := range rows {
		out[i] = rowToCert(r)
	}
	return out, nil
}

// FindIssuerOf implements core.TrustStoreReader: candidates are CA
// certificates whose subject matches cert's issuer, per the chain
// validator's buildChain step.
func (s *SQLTrustStore) FindIssuerOf(ctx context.Context, cert core.Certificate) ([]core.Certificate, error) {
	var rows []certificateRow
	_, err := s.dbMap.Select(&rows, "SELECT * FROM certificate WHERE subject_dn = ? AND is_ca = 1", cert.IssuerDN)
	if err != nil {
		return nil, pkderrors.StoreError("selecting issuers of %s: %s", cert.Fingerprint, err)
	}
	out := make([]core.Certificate, len(rows))
	for i, r := range rows {
		out[i] = rowToCert(r)
	}
	return out, nil
}

// FindCRLFor implements core.TrustStoreReader, returning the
// most-recently-issued CRL for the given issuer and country.
func (s *SQLTrustStore) FindCRLFor(ctx context.Context, issuerDN, country string) (core.CRL, error) {
	var row crlRow
	err := s.dbMap.SelectOne(&row,
		"SELECT * FROM crl WHERE issuer_dn = ? AND country = ? ORDER BY this_update DESC LIMIT 1",
		issuerDN, country)
	if err == sql.ErrNoRows {
		return core.CRL{}, pkderrors.NotFoundError("no crl for issuer %q country %s", issuerDN, country)
	}
	if err != nil {
		return core.CRL{}, pkderrors.StoreError("selecting crl for issuer %q: %s", issuerDN, err)
	}
	return rowToCRL(row)
}

// CountByType implements core.TrustStoreReader.
func (s *SQLTrustStore) CountByType(ctx context.Context) (map[core.CertType]int, error) {
	var rows []struct {
		Type  string `db:"type"`
		Count int    `db:"n"`
	}
	_, err := s.dbMap.Select(&rows, "SELECT type, COUNT(*) AS n FROM certificate GROUP BY type")
	if err != nil {
		return nil, pkderrors.StoreError("counting certificates by type: %s", err)
	}
	out := map[core.CertType]int{}
	for _, r := range rows {
		out[core.CertType(r.Type)] = r.Count
	}
	return out, nil
}

// CountByCountry implements core.TrustStoreReader.
func (s *SQLTrustStore) CountByCountry(ctx context.Context) (map[string]map[core.CertType]int, error) {
	var rows []struct {
		Country string `db:"country"`
		Type    string `db:"type"`
		Count   int    `db:"n"`
	}
	_, err := s.dbMap.Select(&rows, "SELECT country, type, COUNT(*) AS n FROM certificate GROUP BY country, type")
	if err != nil {
		return nil, pkderrors.StoreError("counting certificates by country: %s", err)
	}
	out := map[string]map[core.CertType]int{}
	for _, r := range rows {
		if out[r.Country] == nil {
			out[r.Country] = map[core.CertType]int{}
		}
		out[r.Country][core.CertType(r.Type)] = r.Count
	}
	return out, nil
}

// Paginate implements core.TrustStoreReader, used by the reconciler
// (C8) to walk the DB side of a discrepancy in bounded batches.
func (s *SQLTrustStore) Paginate(ctx context.Context, filter core.CertificateFilter) ([]core.Certificate, error) {
	query := "SELECT * FROM certificate WHERE type = ?"
	args := []interface{}{string(filter.Type)}
	if filter.Country != "" {
		query += " AND country = ?"
		args = append(args, filter.Country)
	}
	if filter.StoredInDirectory != nil {
		query += " AND stored_in_directory = ?"
		args = append(args, *filter.StoredInDirectory)
	}
	query += " ORDER BY fingerprint"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []certificateRow
	_, err := s.dbMap.Select(&rows, query, args...)
	if err != nil {
		return nil, pkderrors.StoreError("paginating certificates: %s", err)
	}
	out := make([]core.Certificate, len(rows))
	for i, r := range rows {
		out[i] = rowToCert(r)
	}
	return out, nil
}

// ExpiringWithin implements core.TrustStoreReader, used by the
// reconciler's revalidate-on-sync pass (spec §4.8 step 6).
func (s *SQLTrustStore) ExpiringWithin(ctx context.Context, window time.Duration, now time.Time) ([]core.Certificate, error) {
	var rows []certificateRow
	_, err := s.dbMap.Select(&rows,
		"SELECT * FROM certificate WHERE not_after BETWEEN ? AND ?",
		now, now.Add(window))
	if err != nil {
		return nil, pkderrors.StoreError("selecting expiring certificates: %s", err)
	}
	out := make([]core.Certificate, len(rows))
	for i, r := range rows {
		out[i] = rowToCert(r)
	}
	return out, nil
}

// GetUploadedFile implements core.TrustStoreReader.
func (s *SQLTrustStore) GetUploadedFile(ctx context.Context, id string) (core.UploadedFile, error) {
	var row uploadedFileRow
	err := s.dbMap.SelectOne(&row, "SELECT * FROM uploaded_file WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return core.UploadedFile{}, pkderrors.NotFoundError("uploaded file %s not found", id)
	}
	if err != nil {
		return core.UploadedFile{}, pkderrors.StoreError("selecting uploaded file %s: %s", id, err)
	}
	return rowToUploadedFile(row)
}

// FindIcaoVersion implements core.TrustStoreReader.
func (s *SQLTrustStore) FindIcaoVersion(ctx context.Context, collection core.Collection, version int) (core.IcaoVersion, bool, error) {
	var row icaoVersionRow
	err := s.dbMap.SelectOne(&row,
		"SELECT * FROM icao_pkd_version WHERE collection = ? AND version = ?",
		string(collection), version)
	if err == sql.ErrNoRows {
		return core.IcaoVersion{}, false, nil
	}
	if err != nil {
		return core.IcaoVersion{}, false, pkderrors.StoreError("selecting icao version %s/%d: %s", collection, version, err)
	}
	return rowToIcaoVersion(row), true, nil
}

// CountCRLs implements core.TrustStoreReader.
func (s *SQLTrustStore) CountCRLs(ctx context.Context) (int, error) {
	var rows []struct {
		N int `db:"n"`
	}
	_, err := s.dbMap.Select(&rows, "SELECT COUNT(*) AS n FROM crl")
	if err != nil {
		return 0, pkderrors.StoreError("counting crls: %s", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].N, nil
}

// InsertCertificateIfAbsent implements core.TrustStoreWriter, the
// fingerprint-uniqueness invariant from spec §3/§8.
func (s *SQLTrustStore) InsertCertificateIfAbsent(ctx context.Context, cert core.Certificate) (core.InsertResult, error) {
	existing, err := s.FindByFingerprint(ctx, cert.Fingerprint)
	if err == nil {
		return core.InsertResult{Inserted: false, ExistingID: existing.Fingerprint}, nil
	}
	if !pkderrors.Is(err, pkderrors.NotFound) {
		return core.InsertResult{}, err
	}

	row := certToRow(cert)
	if err := s.dbMap.Insert(&row); err != nil {
		if isDuplicate(err) {
			return core.InsertResult{Inserted: false, ExistingID: cert.Fingerprint}, nil
		}
		return core.InsertResult{}, pkderrors.StoreError("inserting certificate %s: %s", cert.Fingerprint, err)
	}
	return core.InsertResult{Inserted: true}, nil
}

// InsertCRLIfAbsent implements core.TrustStoreWriter.
func (s *SQLTrustStore) InsertCRLIfAbsent(ctx context.Context, crl core.CRL) (core.InsertResult, error) {
	var existing crlRow
	err := s.dbMap.SelectOne(&existing, "SELECT * FROM crl WHERE fingerprint = ?", crl.Fingerprint)
	if err == nil {
		return core.InsertResult{Inserted: false, ExistingID: existing.Fingerprint}, nil
	}
	if err != sql.ErrNoRows {
		return core.InsertResult{}, pkderrors.StoreError("looking up crl %s: %s", crl.Fingerprint, err)
	}

	row := crlToRow(crl)
	if err := s.dbMap.Insert(&row); err != nil {
		if isDuplicate(err) {
			return core.InsertResult{Inserted: false, ExistingID: crl.Fingerprint}, nil
		}
		return core.InsertResult{}, pkderrors.StoreError("inserting crl %s: %s", crl.Fingerprint, err)
	}
	return core.InsertResult{Inserted: true}, nil
}

// MarkStoredInDirectory implements core.TrustStoreWriter, flipped by the
// reconciler once a publish or delete succeeds.
func (s *SQLTrustStore) MarkStoredInDirectory(ctx context.Context, fingerprint string, stored bool) error {
	_, err := s.dbMap.Exec("UPDATE certificate SET stored_in_directory = ? WHERE fingerprint = ?", stored, fingerprint)
	if err != nil {
		return pkderrors.StoreError("updating stored_in_directory for %s: %s", fingerprint, err)
	}
	return nil
}

// CreateUploadedFile implements core.TrustStoreWriter.
func (s *SQLTrustStore) CreateUploadedFile(ctx context.Context, f core.UploadedFile) (core.UploadedFile, error) {
	row := uploadedFileToRow(f)
	if err := s.dbMap.Insert(&row); err != nil {
		return core.UploadedFile{}, pkderrors.StoreError("inserting uploaded file %s: %s", f.ID, err)
	}
	return f, nil
}

// UpdateUploadedFile implements core.TrustStoreWriter, called as the
// ingest pipeline advances an upload through PENDING -> PROCESSING ->
// COMPLETED/FAILED.
func (s *SQLTrustStore) UpdateUploadedFile(ctx context.Context, f core.UploadedFile) error {
	row := uploadedFileToRow(f)
	_, err := s.dbMap.Exec(
		`UPDATE uploaded_file SET status = ?, counters_json = ?, collection_number = ?,
		 parsing_errors_json = ?, error_text = ?, blob_key = ?, started_at = ?, finished_at = ?
		 WHERE id = ?`,
		row.Status, row.CountersJSON, row.CollectionNumber, row.ParsingErrorsJSON,
		row.ErrorText, row.BlobKey, row.StartedAt, row.FinishedAt, row.ID)
	if err != nil {
		return pkderrors.StoreError("updating uploaded file %s: %s", f.ID, err)
	}
	return nil
}

// SaveSyncStatus implements core.TrustStoreWriter. sync_status is an
// append-only audit trail (one row per reconciliation pass), so this is
// always an insert.
func (s *SQLTrustStore) SaveSyncStatus(ctx context.Context, status core.SyncStatus) error {
	row := syncStatusToRow(status)
	if err := s.dbMap.Insert(&row); err != nil {
		return pkderrors.StoreError("inserting sync status %s: %s", status.ID, err)
	}
	return nil
}

// SavePaVerification implements core.TrustStoreWriter.
func (s *SQLTrustStore) SavePaVerification(ctx context.Context, v core.PaVerification) error {
	row := paVerificationToRow(v)
	if err := s.dbMap.Insert(&row); err != nil {
		return pkderrors.StoreError("inserting pa verification %s: %s", v.ID, err)
	}
	return nil
}

// InsertIcaoVersion implements core.TrustStoreWriter; (collection,
// version) is the uniqueness key per spec §3.
func (s *SQLTrustStore) InsertIcaoVersion(ctx context.Context, v core.IcaoVersion) (core.InsertResult, error) {
	existing, found, err := s.FindIcaoVersion(ctx, v.Collection, v.Version)
	if err != nil {
		return core.InsertResult{}, err
	}
	if found {
		return core.InsertResult{Inserted: false, ExistingID: existing.ID}, nil
	}

	row := icaoVersionToRow(v)
	if err := s.dbMap.Insert(&row); err != nil {
		if isDuplicate(err) {
			existing, _, ferr := s.FindIcaoVersion(ctx, v.Collection, v.Version)
			if ferr != nil {
				return core.InsertResult{}, ferr
			}
			return core.InsertResult{Inserted: false, ExistingID: existing.ID}, nil
		}
		return core.InsertResult{}, pkderrors.StoreError("inserting icao version %s/%d: %s", v.Collection, v.Version, err)
	}
	return core.InsertResult{Inserted: true}, nil
}

// MarkIcaoVersionNotified implements core.TrustStoreWriter.
func (s *SQLTrustStore) MarkIcaoVersionNotified(ctx context.Context, id string) error {
	_, err := s.dbMap.Exec(
		fmt.Sprintf("UPDATE icao_pkd_version SET notified = 1, status = %q WHERE id = ?", string(core.VersionNotified)),
		id)
	if err != nil {
		return pkderrors.StoreError("marking icao version %s notified: %s", id, err)
	}
	return nil
}

var _ core.TrustStore = (*SQLTrustStore)(nil)
