// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sa

import (
	"time"

	"github.com/icao-pkd/trustdir/core"
)

// certificateRow is the gorp-mapped shape of the `certificate` table.
// KeyUsage, ExtKeyUsage, and CRLDistribution round-trip through
// joinCSV/splitCSV as comma-joined text columns, since gorp has no
// native string-slice column type.
type certificateRow struct {
	Fingerprint        string    `db:"fingerprint"`
	DER                []byte    `db:"der"`
	Type               string    `db:"type"`
	Country            string    `db:"country"`
	SubjectDN          string    `db:"subject_dn"`
	IssuerDN           string    `db:"issuer_dn"`
	Serial             string    `db:"serial"`
	NotBefore          time.Time `db:"not_before"`
	NotAfter           time.Time `db:"not_after"`
	SignatureAlgorithm string    `db:"signature_algorithm"`
	SignatureHashAlg   string    `db:"signature_hash_algorithm"`
	PublicKeyAlgorithm string    `db:"public_key_algorithm"`
	PublicKeySize      int       `db:"public_key_size"`
	PublicKeyCurve     string    `db:"public_key_curve"`
	SubjectKeyID       string    `db:"subject_key_id"`
	AuthorityKeyID     string    `db:"authority_key_id"`
	IsCA               bool      `db:"is_ca"`
	PathLen            int       `db:"path_len"`
	HasPathLen         bool      `db:"has_path_len"`
	KeyUsage           string    `db:"key_usage"`
	ExtKeyUsage        string    `db:"ext_key_usage"`
	CRLDistribution    string    `db:"crl_distribution"`
	OCSPURL            string    `db:"ocsp_url"`
	IsSelfSigned       bool      `db:"is_self_signed"`
	SourceVerified     bool      `db:"source_verified"`
	WeakKeyWarning     bool      `db:"weak_key_warning"`
	FirstIngestedAt    time.Time `db:"first_ingested_at"`
	SourceUploadID     string    `db:"source_upload_id"`
	StoredInDirectory  bool      `db:"stored_in_directory"`
}

func certToRow(c core.Certificate) certificateRow {
	return certificateRow{
		Fingerprint:        c.Fingerprint,
		DER:                c.DER,
		Type:               string(c.Type),
		Country:            c.Country,
		SubjectDN:          c.SubjectDN,
		IssuerDN:           c.IssuerDN,
		Serial:             c.Serial,
		NotBefore:          c.NotBefore,
		NotAfter:           c.NotAfter,
		SignatureAlgorithm: c.SignatureAlgorithm,
		SignatureHashAlg:   c.SignatureHashAlg,
		PublicKeyAlgorithm: c.PublicKeyAlgorithm,
		PublicKeySize:      c.PublicKeySize,
		PublicKeyCurve:     c.PublicKeyCurve,
		SubjectKeyID:       c.SubjectKeyID,
		AuthorityKeyID:     c.AuthorityKeyID,
		IsCA:               c.IsCA,
		PathLen:            c.PathLen,
		HasPathLen:         c.HasPathLen,
		KeyUsage:           joinCSV(c.KeyUsage),
		ExtKeyUsage:        joinCSV(c.ExtKeyUsage),
		CRLDistribution:    joinCSV(c.CRLDistribution),
		OCSPURL:            c.OCSPURL,
		IsSelfSigned:       c.IsSelfSigned,
		SourceVerified:     c.SourceVerified,
		WeakKeyWarning:     c.WeakKeyWarning,
		FirstIngestedAt:    c.FirstIngestedAt,
		SourceUploadID:     c.SourceUploadID,
		StoredInDirectory:  c.StoredInDirectory,
	}
}

func rowToCert(r certificateRow) core.Certificate {
	return core.Certificate{
		Fingerprint:        r.Fingerprint,
		DER:                r.DER,
		Type:               core.CertType(r.Type),
		Country:            r.Country,
		SubjectDN:          r.SubjectDN,
		IssuerDN:           r.IssuerDN,
		Serial:             r.Serial,
		NotBefore:          r.NotBefore,
		NotAfter:           r.NotAfter,
		SignatureAlgorithm: r.SignatureAlgorithm,
		SignatureHashAlg:   r.SignatureHashAlg,
		PublicKeyAlgorithm: r.PublicKeyAlgorithm,
		PublicKeySize:      r.PublicKeySize,
		PublicKeyCurve:     r.PublicKeyCurve,
		SubjectKeyID:       r.SubjectKeyID,
		AuthorityKeyID:     r.AuthorityKeyID,
		IsCA:               r.IsCA,
		PathLen:            r.PathLen,
		HasPathLen:         r.HasPathLen,
		KeyUsage:           splitCSV(r.KeyUsage),
		ExtKeyUsage:        splitCSV(r.ExtKeyUsage),
		CRLDistribution:    splitCSV(r.CRLDistribution),
		OCSPURL:            r.OCSPURL,
		IsSelfSigned:       r.IsSelfSigned,
		SourceVerified:     r.SourceVerified,
		WeakKeyWarning:     r.WeakKeyWarning,
		FirstIngestedAt:    r.FirstIngestedAt,
		SourceUploadID:     r.SourceUploadID,
		StoredInDirectory:  r.StoredInDirectory,
	}
}

// crlRow is the gorp-mapped shape of the `crl` table. RevokedSerials is
// stored as a JSON blob (type-converter.go): the revoked list is always
// read and written as a whole, never filtered by a single serial at the
// SQL layer.
type crlRow struct {
	Fingerprint        string    `db:"fingerprint"`
	DER                []byte    `db:"der"`
	IssuerDN           string    `db:"issuer_dn"`
	Country            string    `db:"country"`
	ThisUpdate         time.Time `db:"this_update"`
	NextUpdate         time.Time `db:"next_update"`
	CRLNumber          string    `db:"crl_number"`
	RevokedSerialsJSON []byte    `db:"revoked_serials_json"`
	FirstIngestedAt    time.Time `db:"first_ingested_at"`
}

// uploadedFileRow is the gorp-mapped shape of the `uploaded_file` table.
// Counters and parsing errors are write-once ingest summaries, so they
// round-trip as JSON blobs rather than normalized child tables.
type uploadedFileRow struct {
	ID                string     `db:"id"`
	OriginalFilename  string     `db:"original_filename"`
	CanonicalName     string     `db:"canonical_filename"`
	ContentHash       string     `db:"content_hash"`
	Size              int64      `db:"size"`
	Format            string     `db:"detected_format"`
	Status            string     `db:"status"`
	CountersJSON      []byte     `db:"counters_json"`
	CollectionNumber  int        `db:"collection_number"`
	ParsingErrorsJSON []byte     `db:"parsing_errors_json"`
	ErrorText         string     `db:"error_text"`
	BlobKey           string     `db:"blob_key"`
	CreatedAt         time.Time  `db:"created_at"`
	StartedAt         *time.Time `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
}

// syncStatusRow is the gorp-mapped shape of the `sync_status` table. The
// per-type/per-country breakdowns and discrepancy map round-trip as JSON
// blobs: this is an append-only audit trail, read back whole.
type syncStatusRow struct {
	ID                string    `db:"id"`
	CheckedAt         time.Time `db:"checked_at"`
	ByTypeJSON        []byte    `db:"by_type_json"`
	ByCountryJSON     []byte    `db:"by_country_json"`
	CRLDB             int       `db:"crl_db"`
	CRLLDAP           int       `db:"crl_ldap"`
	DiscrepanciesJSON []byte    `db:"discrepancies_json"`
	CRLDiscrepancy    int       `db:"crl_discrepancy"`
	TotalDiscrepancy  int       `db:"total_discrepancy"`
	SyncRequired      bool      `db:"sync_required"`
}

// paVerificationRow is the gorp-mapped shape of the `pa_verification`
// table. DSC/CSCA descriptors and the per-DG results are write-once audit
// detail and round-trip as JSON blobs.
type paVerificationRow struct {
	ID                string    `db:"id"`
	IssuingCountry    string    `db:"issuing_country"`
	DocumentNumber    string    `db:"document_number"`
	SODHash           string    `db:"sod_hash"`
	DSCJSON           []byte    `db:"dsc_json"`
	CSCAJSON          []byte    `db:"csca_json"`
	TrustChainValid   bool      `db:"trust_chain_valid"`
	SODSignatureValid bool      `db:"sod_signature_valid"`
	DGHashesValid     bool      `db:"dg_hashes_valid"`
	NotRevoked        bool      `db:"not_revoked"`
	CRLAvailable      bool      `db:"crl_available"`
	DGResultsJSON     []byte    `db:"dg_results_json"`
	Status            string    `db:"status"`
	Message           string    `db:"message"`
	ClientIP          string    `db:"client_ip"`
	UserAgent         string    `db:"user_agent"`
	RequestedAt       time.Time `db:"requested_at"`
	CompletedAt       time.Time `db:"completed_at"`
}

// icaoVersionRow is the gorp-mapped shape of the `icao_pkd_version`
// table. (collection, version) is unique, per spec §3.
type icaoVersionRow struct {
	ID             string    `db:"id"`
	Collection     string    `db:"collection"`
	Filename       string    `db:"filename"`
	Version        int       `db:"version"`
	Status         string    `db:"status"`
	DetectedAt     time.Time `db:"detected_at"`
	Notified       bool      `db:"notified"`
	ImportedFileID string    `db:"imported_file_id"`
}

func joinCSV(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
