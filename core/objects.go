// Package core holds the domain objects shared by every PKD mirror
// component: the canonical record shapes persisted by the Trust Store
// (C4) and passed between the ingest pipeline, the chain validator, the
// PA engine, the directory publisher, and the reconciler.
package core

import "time"

// CertType is the result of certificate classification (C2).
type CertType string

const (
	CertTypeCSCA      CertType = "CSCA"
	CertTypeDSC       CertType = "DSC"
	CertTypeDSCNC     CertType = "DSC_NC"
	CertTypeMLSC      CertType = "MLSC"
	CertTypeLink      CertType = "LINK"
	CertTypeDVLSigner CertType = "DVL_SIGNER"
)

// Certificate is one parsed X.509, keyed by the SHA-256 fingerprint of
// its DER body. Certificate rows are immutable once inserted; only
// StoredInDirectory is ever flipped, by the reconciler.
type Certificate struct {
	Fingerprint string   `json:"fingerprint" db:"fingerprint"`
	DER         []byte   `json:"-" db:"der"`
	Type        CertType `json:"type" db:"type"`
	Country     string   `json:"country" db:"country"`

	SubjectDN string `json:"subjectDn" db:"subject_dn"`
	IssuerDN  string `json:"issuerDn" db:"issuer_dn"`
	Serial    string `json:"serial" db:"serial"`

	NotBefore time.Time `json:"notBefore" db:"not_before"`
	NotAfter  time.Time `json:"notAfter" db:"not_after"`

	SignatureAlgorithm string `json:"signatureAlgorithm" db:"signature_algorithm"`
	SignatureHashAlg   string `json:"signatureHashAlgorithm" db:"signature_hash_algorithm"`
	PublicKeyAlgorithm string `json:"publicKeyAlgorithm" db:"public_key_algorithm"`
	PublicKeySize      int    `json:"publicKeySize,omitempty" db:"public_key_size"`
	PublicKeyCurve     string `json:"publicKeyCurve,omitempty" db:"public_key_curve"`

	SubjectKeyID   string `json:"subjectKeyId,omitempty" db:"subject_key_id"`
	AuthorityKeyID string `json:"authorityKeyId,omitempty" db:"authority_key_id"`

	IsCA       bool `json:"isCa" db:"is_ca"`
	PathLen    int  `json:"pathLen,omitempty" db:"path_len"`
	HasPathLen bool `json:"hasPathLen" db:"has_path_len"`

	KeyUsage          []string `json:"keyUsage" db:"-"`
	ExtKeyUsage       []string `json:"extKeyUsage,omitempty" db:"-"`
	CRLDistribution   []string `json:"crlDistributionPoints,omitempty" db:"-"`
	OCSPURL           string   `json:"ocspUrl,omitempty" db:"ocsp_url"`
	IsSelfSigned      bool     `json:"isSelfSigned" db:"is_self_signed"`
	SourceVerified     bool    `json:"sourceVerified" db:"source_verified"`
	WeakKeyWarning     bool    `json:"weakKeyWarning,omitempty" db:"weak_key_warning"`

	FirstIngestedAt time.Time `json:"firstIngestedAt" db:"first_ingested_at"`
	SourceUploadID  string    `json:"sourceUploadId,omitempty" db:"source_upload_id"`

	StoredInDirectory bool `json:"storedInDirectory" db:"stored_in_directory"`
}

// RevokedCertificate is one entry in a CRL's revoked-serial list.
type RevokedCertificate struct {
	Serial           string    `json:"serial" db:"serial"`
	RevocationDate   time.Time `json:"revocationDate" db:"revocation_date"`
	ReasonCode       int       `json:"reasonCode,omitempty" db:"reason_code"`
	HasReasonCode    bool      `json:"-" db:"has_reason_code"`
}

// CRL is one X.509 certificate revocation list, keyed by the SHA-256
// fingerprint of its DER body. Immutable once stored.
type CRL struct {
	Fingerprint string `json:"fingerprint" db:"fingerprint"`
	DER         []byte `json:"-" db:"der"`
	IssuerDN    string `json:"issuerDn" db:"issuer_dn"`
	Country     string `json:"country" db:"country"`

	ThisUpdate time.Time `json:"thisUpdate" db:"this_update"`
	NextUpdate time.Time `json:"nextUpdate" db:"next_update"`
	CRLNumber  string    `json:"crlNumber,omitempty" db:"crl_number"`

	Revoked []RevokedCertificate `json:"revoked" db:"-"`

	FirstIngestedAt time.Time `json:"firstIngestedAt" db:"first_ingested_at"`
}

// IsRevoked reports whether serial appears in the CRL's revoked list.
func (c *CRL) IsRevoked(serial string) bool {
	for _, r := range c.Revoked {
		if r.Serial == serial {
			return true
		}
	}
	return false
}

// CoversNow reports whether now falls within [ThisUpdate, NextUpdate].
func (c *CRL) CoversNow(now time.Time) bool {
	if now.Before(c.ThisUpdate) {
		return false
	}
	if !c.NextUpdate.IsZero() && now.After(c.NextUpdate) {
		return false
	}
	return true
}

// UploadFormat is the auto-detected format of an ingested file (C3).
type UploadFormat string

const (
	FormatPEM  UploadFormat = "PEM"
	FormatDER  UploadFormat = "DER"
	FormatCER  UploadFormat = "CER"
	FormatBIN  UploadFormat = "BIN"
	FormatLDIF UploadFormat = "LDIF"
	FormatML   UploadFormat = "ML"
	FormatDVL  UploadFormat = "DVL"
)

// UploadStatus is the lifecycle state of an UploadedFile.
type UploadStatus string

const (
	UploadPending    UploadStatus = "PENDING"
	UploadProcessing UploadStatus = "PROCESSING"
	UploadCompleted  UploadStatus = "COMPLETED"
	UploadFailed     UploadStatus = "FAILED"
)

// TypeCounters tallies ingest results per certificate/CRL type.
type TypeCounters struct {
	CSCA      int `json:"csca"`
	DSC       int `json:"dsc"`
	DSCNC     int `json:"dscNc"`
	CRL       int `json:"crl"`
	ML        int `json:"ml"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// ParsingError records one recoverable failure within an UploadedFile.
type ParsingError struct {
	EntryDN   string `json:"entryDn,omitempty"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// UploadedFile records one ingest event.
type UploadedFile struct {
	ID               string       `json:"id" db:"id"`
	OriginalFilename string       `json:"originalFilename" db:"original_filename"`
	CanonicalName    string       `json:"canonicalFilename" db:"canonical_filename"`
	ContentHash      string       `json:"contentHash" db:"content_hash"`
	Size             int64        `json:"size" db:"size"`
	Format           UploadFormat `json:"detectedFormat" db:"detected_format"`
	Status           UploadStatus `json:"status" db:"status"`
	Counters         TypeCounters `json:"counters" db:"-"`
	CollectionNumber int          `json:"collectionNumber,omitempty" db:"collection_number"`
	ParsingErrors    []ParsingError `json:"parsingErrors,omitempty" db:"-"`
	ErrorText        string       `json:"errorText,omitempty" db:"error_text"`
	BlobKey          string       `json:"blobKey,omitempty" db:"blob_key"`

	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	StartedAt  *time.Time `json:"startedAt,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
}

// EntriesSeen returns the total number of entries the ingest pipeline
// accounted for, used to check the invariant in spec §8:
// inserted + duplicate + errors == entries_in_file.
func (u *UploadedFile) EntriesSeen() int {
	return u.Counters.CSCA + u.Counters.DSC + u.Counters.DSCNC +
		u.Counters.CRL + u.Counters.ML + u.Counters.Duplicate + u.Counters.Errors
}

// CountBreakdown is the per-type (db, ldap) pair in a SyncStatus.
type CountBreakdown struct {
	DB   int `json:"db"`
	LDAP int `json:"ldap"`
}

// SyncStatus is an immutable snapshot of one reconciliation pass.
type SyncStatus struct {
	ID             string                     `json:"id" db:"id"`
	CheckedAt      time.Time                  `json:"checkedAt" db:"checked_at"`
	ByType         map[CertType]CountBreakdown `json:"byType" db:"-"`
	CRL            CountBreakdown             `json:"crl" db:"-"`
	Discrepancies  map[CertType]int           `json:"discrepancies" db:"-"`
	CRLDiscrepancy int                        `json:"crlDiscrepancy" db:"crl_discrepancy"`
	TotalDiscrepancy int                      `json:"totalDiscrepancy" db:"total_discrepancy"`
	SyncRequired   bool                       `json:"syncRequired" db:"sync_required"`
	ByCountry      map[string]CountBreakdown  `json:"byCountry" db:"-"`
}

// PAStatus is the overall verdict of a Passive Authentication request.
type PAStatus string

const (
	PAValid   PAStatus = "VALID"
	PAInvalid PAStatus = "INVALID"
	PAError   PAStatus = "ERROR"
)

// DGHashResult is the comparison outcome for one Data Group.
type DGHashResult struct {
	DGNumber int    `json:"dgNumber"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Present  bool   `json:"present"`
	Valid    bool   `json:"valid"`
}

// CertDescriptor is a lightweight reference to a Certificate used inside
// a PaVerification record, so the record doesn't carry a full DER body.
type CertDescriptor struct {
	Subject     string `json:"subject"`
	Serial      string `json:"serial"`
	Issuer      string `json:"issuer"`
	Fingerprint string `json:"fingerprint"`
}

// PaVerification is the result of one PA request.
type PaVerification struct {
	ID              string   `json:"id" db:"id"`
	IssuingCountry  string   `json:"issuingCountry,omitempty" db:"issuing_country"`
	DocumentNumber  string   `json:"documentNumber,omitempty" db:"document_number"`
	SODHash         string   `json:"sodHash" db:"sod_hash"`
	DSC             CertDescriptor `json:"dsc" db:"-"`
	CSCA            CertDescriptor `json:"csca" db:"-"`

	TrustChainValid bool `json:"trustChainValid" db:"trust_chain_valid"`
	SODSignatureValid bool `json:"sodSignatureValid" db:"sod_signature_valid"`
	DGHashesValid   bool `json:"dgHashesValid" db:"dg_hashes_valid"`
	NotRevoked      bool `json:"notRevoked" db:"not_revoked"`
	CRLAvailable    bool `json:"crlAvailable" db:"crl_available"`

	DGResults []DGHashResult `json:"dgResults" db:"-"`

	Status    PAStatus `json:"status" db:"status"`
	Message   string   `json:"message,omitempty" db:"message"`

	ClientIP  string `json:"clientIp,omitempty" db:"client_ip"`
	UserAgent string `json:"userAgent,omitempty" db:"user_agent"`

	RequestedAt time.Time `json:"requestedAt" db:"requested_at"`
	CompletedAt time.Time `json:"completedAt" db:"completed_at"`
}

// Collection is one of the three ICAO PKD download collections.
type Collection string

const (
	CollectionDSCCRL     Collection = "DSC_CRL"
	CollectionMasterList Collection = "MASTERLIST"
	CollectionDSCNC      Collection = "DSC_NC"
)

// VersionStatus is the lifecycle of a detected IcaoVersion.
type VersionStatus string

const (
	VersionDetected   VersionStatus = "DETECTED"
	VersionNotified   VersionStatus = "NOTIFIED"
	VersionDownloaded VersionStatus = "DOWNLOADED"
	VersionImported   VersionStatus = "IMPORTED"
	VersionFailed     VersionStatus = "FAILED"
)

// IcaoVersion is a detected ICAO portal file.
type IcaoVersion struct {
	ID             string        `json:"id" db:"id"`
	Collection     Collection    `json:"collection" db:"collection"`
	Filename       string        `json:"filename" db:"filename"`
	Version        int           `json:"version" db:"version"`
	Status         VersionStatus `json:"status" db:"status"`
	DetectedAt     time.Time     `json:"detectedAt" db:"detected_at"`
	Notified       bool          `json:"notified" db:"notified"`
	ImportedFileID string        `json:"importedFileId,omitempty" db:"imported_file_id"`
}

// ReconciliationFailure is one failed repair operation within a pass.
type ReconciliationFailure struct {
	CertType  CertType `json:"certType"`
	Operation string   `json:"operation"`
	Country   string   `json:"country"`
	Subject   string   `json:"subject"`
	Error     string   `json:"error"`
}
