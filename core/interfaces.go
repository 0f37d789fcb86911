package core

import (
	"context"
	"time"
)

// CertificateFilter narrows a TrustStoreReader.Paginate call.
type CertificateFilter struct {
	Type            CertType
	Country         string
	StoredInDirectory *bool
	Offset          int
	Limit           int
}

// InsertResult reports whether an insert-if-absent actually inserted a
// new row, satisfying the fingerprint-uniqueness invariant in spec §3/§8.
type InsertResult struct {
	Inserted   bool
	ExistingID string
}

// TrustStoreReader are the Trust Store's (C4) read-only methods.
type TrustStoreReader interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (Certificate, error)
	FindBySubjectDN(ctx context.Context, subjectDN string) ([]Certificate, error)
	FindIssuerOf(ctx context.Context, cert Certificate) ([]Certificate, error)
	FindCRLFor(ctx context.Context, issuerDN, country string) (CRL, error)
	CountByType(ctx context.Context) (map[CertType]int, error)
	CountByCountry(ctx context.Context) (map[string]map[CertType]int, error)
	Paginate(ctx context.Context, filter CertificateFilter) ([]Certificate, error)
	ExpiringWithin(ctx context.Context, window time.Duration, now time.Time) ([]Certificate, error)
	GetUploadedFile(ctx context.Context, id string) (UploadedFile, error)
	FindIcaoVersion(ctx context.Context, collection Collection, version int) (IcaoVersion, bool, error)
	CountCRLs(ctx context.Context) (int, error)
}

// TrustStoreWriter are the Trust Store's (C4) write methods.
type TrustStoreWriter interface {
	InsertCertificateIfAbsent(ctx context.Context, cert Certificate) (InsertResult, error)
	InsertCRLIfAbsent(ctx context.Context, crl CRL) (InsertResult, error)
	MarkStoredInDirectory(ctx context.Context, fingerprint string, stored bool) error
	CreateUploadedFile(ctx context.Context, f UploadedFile) (UploadedFile, error)
	UpdateUploadedFile(ctx context.Context, f UploadedFile) error
	SaveSyncStatus(ctx context.Context, s SyncStatus) error
	SavePaVerification(ctx context.Context, v PaVerification) error
	InsertIcaoVersion(ctx context.Context, v IcaoVersion) (InsertResult, error)
	MarkIcaoVersionNotified(ctx context.Context, id string) error
}

// TrustStore is the full Trust Store (C4) contract.
type TrustStore interface {
	TrustStoreReader
	TrustStoreWriter
}

// DirectoryEntry is what the publisher (C7) writes to the LDAP tree for
// one certificate or CRL.
type DirectoryEntry struct {
	DN          string
	ObjectClass []string
	Attribute   string // "userCertificate;binary" or "certificateRevocationList;binary"
	DER         []byte
}

// DirectoryPublisher is the Directory Publisher (C7) contract.
type DirectoryPublisher interface {
	BuildDN(certType CertType, country, fingerprint string) string
	BuildCRLDN(country, fingerprint string) string
	AddCertificate(ctx context.Context, cert Certificate) error
	AddCRL(ctx context.Context, crl CRL) error
	DeleteCertificate(ctx context.Context, dn string) error
	EnsureParentDNExists(ctx context.Context, certType CertType, country string) error
	CountByType(ctx context.Context) (map[CertType]int, error)
	CountByCountry(ctx context.Context) (map[string]map[CertType]int, error)
	CountCRLs(ctx context.Context) (int, error)
}

// Notifier is the outbound notification port named in spec Design Notes:
// "SMTP is stubbed in the source; a production implementation must
// choose a notification transport; the spec requires only that the port
// is honoured." Any transport (SMTP, log-only stub) satisfies this.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// PortalFetcher retrieves the ICAO download portal's HTML (C9). Split
// out from portalsync so it can be faked in tests without a real HTTP
// round trip.
type PortalFetcher interface {
	FetchPortalHTML(ctx context.Context) (string, error)
}
