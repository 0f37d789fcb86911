// Copyright 2015 ISRG.  All rights reserved
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sa

import (
	"encoding/json"

	"github.com/icao-pkd/trustdir/core"
)

// The JSON-blob columns (revoked serials, ingest counters, per-DG
// results, per-type/per-country breakdowns) have no native SQL
// representation gorp can map directly, so each row<->core conversion
// marshals/unmarshals them by hand here rather than through a gorp
// TypeConverter, since every field that does map natively (string, bool,
// int, time.Time, []byte) already round-trips without one.

func crlToRow(c core.CRL) crlRow {
	return crlRow{
		Fingerprint:        c.Fingerprint,
		DER:                c.DER,
		IssuerDN:           c.IssuerDN,
		Country:            c.Country,
		ThisUpdate:         c.ThisUpdate,
		NextUpdate:         c.NextUpdate,
		CRLNumber:          c.CRLNumber,
		RevokedSerialsJSON: marshalJSON(c.Revoked),
		FirstIngestedAt:    c.FirstIngestedAt,
	}
}

func rowToCRL(r crlRow) (core.CRL, error) {
	var revoked []core.RevokedCertificate
	if err := unmarshalJSON(r.RevokedSerialsJSON, &revoked); err != nil {
		return core.CRL{}, err
	}
	return core.CRL{
		Fingerprint:     r.Fingerprint,
		DER:             r.DER,
		IssuerDN:        r.IssuerDN,
		Country:         r.Country,
		ThisUpdate:      r.ThisUpdate,
		NextUpdate:      r.NextUpdate,
		CRLNumber:       r.CRLNumber,
		Revoked:         revoked,
		FirstIngestedAt: r.FirstIngestedAt,
	}, nil
}

func uploadedFileToRow(f core.UploadedFile) uploadedFileRow {
	return uploadedFileRow{
		ID:                f.ID,
		OriginalFilename:  f.OriginalFilename,
		CanonicalName:     f.CanonicalName,
		ContentHash:       f.ContentHash,
		Size:              f.Size,
		Format:            string(f.Format),
		Status:            string(f.Status),
		CountersJSON:      marshalJSON(f.Counters),
		CollectionNumber:  f.CollectionNumber,
		ParsingErrorsJSON: marshalJSON(f.ParsingErrors),
		ErrorText:         f.ErrorText,
		BlobKey:           f.BlobKey,
		CreatedAt:         f.CreatedAt,
		StartedAt:         f.StartedAt,
		FinishedAt:        f.FinishedAt,
	}
}

func rowToUploadedFile(r uploadedFileRow) (core.UploadedFile, error) {
	var counters core.TypeCounters
	if err := unmarshalJSON(r.CountersJSON, &counters); err != nil {
		return core.UploadedFile{}, err
	}
	var parsingErrors []core.ParsingError
	if err := unmarshalJSON(r.ParsingErrorsJSON, &parsingErrors); err != nil {
		return core.UploadedFile{}, err
	}
	return core.UploadedFile{
		ID:               r.ID,
		OriginalFilename: r.OriginalFilename,
		CanonicalName:    r.CanonicalName,
		ContentHash:      r.ContentHash,
		Size:             r.Size,
		Format:           core.UploadFormat(r.Format),
		Status:           core.UploadStatus(r.Status),
		Counters:         counters,
		CollectionNumber: r.CollectionNumber,
		ParsingErrors:    parsingErrors,
		ErrorText:        r.ErrorText,
		BlobKey:          r.BlobKey,
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
	}, nil
}

func syncStatusToRow(s core.SyncStatus) syncStatusRow {
	return syncStatusRow{
		ID:                s.ID,
		CheckedAt:         s.CheckedAt,
		ByTypeJSON:        marshalJSON(s.ByType),
		ByCountryJSON:     marshalJSON(s.ByCountry),
		CRLDB:             s.CRL.DB,
		CRLLDAP:           s.CRL.LDAP,
		DiscrepanciesJSON: marshalJSON(s.Discrepancies),
		CRLDiscrepancy:    s.CRLDiscrepancy,
		TotalDiscrepancy:  s.TotalDiscrepancy,
		SyncRequired:      s.SyncRequired,
	}
}

func rowToSyncStatus(r syncStatusRow) (core.SyncStatus, error) {
	var byType map[core.CertType]core.CountBreakdown
	if err := unmarshalJSON(r.ByTypeJSON, &byType); err != nil {
		return core.SyncStatus{}, err
	}
	var byCountry map[string]core.CountBreakdown
	if err := unmarshalJSON(r.ByCountryJSON, &byCountry); err != nil {
		return core.SyncStatus{}, err
	}
	var discrepancies map[core.CertType]int
	if err := unmarshalJSON(r.DiscrepanciesJSON, &discrepancies); err != nil {
		return core.SyncStatus{}, err
	}
	return core.SyncStatus{
		ID:               r.ID,
		CheckedAt:        r.CheckedAt,
		ByType:           byType,
		CRL:              core.CountBreakdown{DB: r.CRLDB, LDAP: r.CRLLDAP},
		Discrepancies:    discrepancies,
		CRLDiscrepancy:   r.CRLDiscrepancy,
		TotalDiscrepancy: r.TotalDiscrepancy,
		SyncRequired:     r.SyncRequired,
		ByCountry:        byCountry,
	}, nil
}

func paVerificationToRow(v core.PaVerification) paVerificationRow {
	return paVerificationRow{
		ID:                v.ID,
		IssuingCountry:    v.IssuingCountry,
		DocumentNumber:    v.DocumentNumber,
		SODHash:           v.SODHash,
		DSCJSON:           marshalJSON(v.DSC),
		CSCAJSON:          marshalJSON(v.CSCA),
		TrustChainValid:   v.TrustChainValid,
		SODSignatureValid: v.SODSignatureValid,
		DGHashesValid:     v.DGHashesValid,
		NotRevoked:        v.NotRevoked,
		CRLAvailable:      v.CRLAvailable,
		DGResultsJSON:     marshalJSON(v.DGResults),
		Status:            string(v.Status),
		Message:           v.Message,
		ClientIP:          v.ClientIP,
		UserAgent:         v.UserAgent,
		RequestedAt:       v.RequestedAt,
		CompletedAt:       v.CompletedAt,
	}
}

func icaoVersionToRow(v core.IcaoVersion) icaoVersionRow {
	return icaoVersionRow{
		ID:             v.ID,
		Collection:     string(v.Collection),
		Filename:       v.Filename,
		Version:        v.Version,
		Status:         string(v.Status),
		DetectedAt:     v.DetectedAt,
		Notified:       v.Notified,
		ImportedFileID: v.ImportedFileID,
	}
}

func rowToIcaoVersion(r icaoVersionRow) core.IcaoVersion {
	return core.IcaoVersion{
		ID:             r.ID,
		Collection:     core.Collection(r.Collection),
		Filename:       r.Filename,
		Version:        r.Version,
		Status:         core.VersionStatus(r.Status),
		DetectedAt:     r.DetectedAt,
		Notified:       r.Notified,
		ImportedFileID: r.ImportedFileID,
	}
}

func marshalJSON(v interface{}) []byte {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalJSON(data []byte, target interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
