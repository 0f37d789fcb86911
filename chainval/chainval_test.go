package chainval

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/icao-pkd/trustdir/classify"
	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
	"github.com/icao-pkd/trustdir/x509util"
)

type fakeReader struct {
	byFingerprint map[string]core.Certificate
	bySubject     map[string][]core.Certificate
	crls          map[string]core.CRL
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		byFingerprint: map[string]core.Certificate{},
		bySubject:     map[string][]core.Certificate{},
		crls:          map[string]core.CRL{},
	}
}

func (f *fakeReader) add(c core.Certificate) {
	f.byFingerprint[c.Fingerprint] = c
	f.bySubject[c.SubjectDN] = append(f.bySubject[c.SubjectDN], c)
}

func (f *fakeReader) FindByFingerprint(ctx context.Context, fingerprint string) (core.Certificate, error) {
	c, ok := f.byFingerprint[fingerprint]
	if !ok {
		return core.Certificate{}, pkderrors.NotFoundError("not found")
	}
	return c, nil
}

func (f *fakeReader) FindBySubjectDN(ctx context.Context, subjectDN string) ([]core.Certificate, error) {
	return f.bySubject[subjectDN], nil
}

func (f *fakeReader) FindIssuerOf(ctx context.Context, cert core.Certificate) ([]core.Certificate, error) {
	return f.bySubject[cert.IssuerDN], nil
}

func (f *fakeReader) FindCRLFor(ctx context.Context, issuerDN, country string) (core.CRL, error) {
	crl, ok := f.crls[issuerDN]
	if !ok {
		return core.CRL{}, pkderrors.NotFoundError("not found")
	}
	return crl, nil
}

func (f *fakeReader) CountByType(ctx context.Context) (map[core.CertType]int, error) { return nil, nil }
func (f *fakeReader) CountByCountry(ctx context.Context) (map[string]map[core.CertType]int, error) {
	return nil, nil
}
func (f *fakeReader) Paginate(ctx context.Context, filter core.CertificateFilter) ([]core.Certificate, error) {
	return nil, nil
}
func (f *fakeReader) ExpiringWithin(ctx context.Context, window time.Duration, now time.Time) ([]core.Certificate, error) {
	return nil, nil
}
func (f *fakeReader) GetUploadedFile(ctx context.Context, id string) (core.UploadedFile, error) {
	return core.UploadedFile{}, pkderrors.NotFoundError("not found")
}
func (f *fakeReader) FindIcaoVersion(ctx context.Context, collection core.Collection, version int) (core.IcaoVersion, bool, error) {
	return core.IcaoVersion{}, false, nil
}

func (f *fakeReader) CountCRLs(ctx context.Context) (int, error) { return len(f.crls), nil }

func buildCSCAAndDSC(t *testing.T) (csca core.Certificate, dsc core.Certificate, cscaKey *rsa.PrivateKey) {
	t.Helper()
	cscaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	cscaTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "CSCA-ZZ", Country: []string{"ZZ"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(48 * time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	cscaDER, err := x509.CreateCertificate(rand.Reader, cscaTmpl, cscaTmpl, &cscaKey.PublicKey, cscaKey)
	if err != nil {
		t.Fatal(err)
	}
	cscaX509, err := x509.ParseCertificate(cscaDER)
	if err != nil {
		t.Fatal(err)
	}
	cscaResult, err := classify.Classify(cscaX509, classify.ContainerConformant)
	if err != nil {
		t.Fatal(err)
	}
	csca = classify.Apply(x509util.ExtractMetadata(cscaX509), cscaResult)

	dscKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	dscTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "DSC-ZZ", Country: []string{"ZZ"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	dscDER, err := x509.CreateCertificate(rand.Reader, dscTmpl, cscaTmpl, &dscKey.PublicKey, cscaKey)
	if err != nil {
		t.Fatal(err)
	}
	dscX509, err := x509.ParseCertificate(dscDER)
	if err != nil {
		t.Fatal(err)
	}
	dscResult, err := classify.Classify(dscX509, classify.ContainerConformant)
	if err != nil {
		t.Fatal(err)
	}
	dsc = classify.Apply(x509util.ExtractMetadata(dscX509), dscResult)

	return csca, dsc, cscaKey
}

func TestValidateValidChain(t *testing.T) {
	reader := newFakeReader()
	csca, dsc, _ := buildCSCAAndDSC(t)
	reader.add(csca)
	reader.add(dsc)

	v := New(reader, nil)
	verdict := v.Validate(context.Background(), dsc, "")
	if verdict.Status != StatusValid {
		t.Fatalf("expected VALID, got %s (errors=%v)", verdict.Status, verdict.Errors)
	}
	// No CRL was seeded: CRL_UNAVAILABLE must surface as a warning, not
	// fail an otherwise-valid chain.
	if verdict.CRLAvailable {
		t.Fatal("expected CRLAvailable to be false with no CRL seeded")
	}
}

func TestValidateMissingIssuer(t *testing.T) {
	reader := newFakeReader()
	_, dsc, _ := buildCSCAAndDSC(t)
	// CSCA deliberately not added to the store.
	v := New(reader, nil)
	verdict := v.Validate(context.Background(), dsc, "")
	if verdict.Status != StatusInvalid {
		t.Fatalf("expected INVALID for a broken chain, got %s", verdict.Status)
	}
}

func TestValidateRevoked(t *testing.T) {
	reader := newFakeReader()
	csca, dsc, cscaKey := buildCSCAAndDSC(t)
	reader.add(csca)
	reader.add(dsc)

	cscaX509, err := x509.ParseCertificate(csca.DER)
	if err != nil {
		t.Fatal(err)
	}
	crlTmpl := &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now().Add(-time.Hour),
		NextUpdate: time.Now().Add(time.Hour),
		RevokedCertificateEntries: []x509.RevocationListEntry{
			{SerialNumber: mustParseSerial(dsc.Serial), RevocationTime: time.Now()},
		},
	}
	crlDER, err := x509.CreateRevocationList(rand.Reader, crlTmpl, cscaX509, cscaKey)
	if err != nil {
		t.Fatal(err)
	}
	crlX509, err := x509.ParseRevocationList(crlDER)
	if err != nil {
		t.Fatal(err)
	}
	reader.crls[csca.SubjectDN] = core.CRL{
		Fingerprint: x509util.Fingerprint(crlDER),
		DER:         crlDER,
		IssuerDN:    csca.SubjectDN,
		Country:     csca.Country,
		ThisUpdate:  crlX509.ThisUpdate,
		NextUpdate:  crlX509.NextUpdate,
		Revoked:     []core.RevokedCertificate{{Serial: dsc.Serial}},
	}

	v := New(reader, nil)
	verdict := v.Validate(context.Background(), dsc, "")
	if verdict.Status != StatusRevoked {
		t.Fatalf("expected REVOKED, got %s (errors=%v)", verdict.Status, verdict.Errors)
	}
}

func TestValidateExpired(t *testing.T) {
	reader := newFakeReader()
	cscaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	cscaTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "CSCA-ZZ", Country: []string{"ZZ"}},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     time.Now().Add(48 * time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	cscaDER, err := x509.CreateCertificate(rand.Reader, cscaTmpl, cscaTmpl, &cscaKey.PublicKey, cscaKey)
	if err != nil {
		t.Fatal(err)
	}
	cscaX509, err := x509.ParseCertificate(cscaDER)
	if err != nil {
		t.Fatal(err)
	}
	cscaResult, err := classify.Classify(cscaX509, classify.ContainerConformant)
	if err != nil {
		t.Fatal(err)
	}
	csca := classify.Apply(x509util.ExtractMetadata(cscaX509), cscaResult)

	dscKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	dscTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "DSC-ZZ", Country: []string{"ZZ"}},
		NotBefore:    time.Now().Add(-48 * time.Hour),
		NotAfter:     time.Now().Add(-time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	dscDER, err := x509.CreateCertificate(rand.Reader, dscTmpl, cscaTmpl, &dscKey.PublicKey, cscaKey)
	if err != nil {
		t.Fatal(err)
	}
	dscX509, err := x509.ParseCertificate(dscDER)
	if err != nil {
		t.Fatal(err)
	}
	dscResult, err := classify.Classify(dscX509, classify.ContainerConformant)
	if err != nil {
		t.Fatal(err)
	}
	dsc := classify.Apply(x509util.ExtractMetadata(dscX509), dscResult)

	reader.add(csca)
	reader.add(dsc)

	v := New(reader, nil)
	verdict := v.Validate(context.Background(), dsc, "")
	if verdict.Status != StatusExpired {
		t.Fatalf("expected EXPIRED for a chain with a lapsed DSC, got %s (errors=%v)", verdict.Status, verdict.Errors)
	}
	if verdict.ValidityValid {
		t.Fatal("expected ValidityValid=false")
	}
	if !verdict.ChainValid || !verdict.SignatureValid {
		t.Fatal("expiry alone must not fail ChainValid or SignatureValid")
	}
}

func mustParseSerial(hexSerial string) *big.Int {
	n := new(big.Int)
	n.SetString(hexSerial, 16)
	return n
}
