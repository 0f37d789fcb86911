package ingest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"github.com/icao-pkd/trustdir/classify"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/x509util"
)

func selfSignedCSCAPEM(t *testing.T, cn, country string, serial int64) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn, Country: []string{country}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestIngestSingleCertificate(t *testing.T) {
	store := newFakeStore()
	p := New(store, clock.NewFake(), log.NewMock(), nil)

	data := selfSignedCSCAPEM(t, "CSCA-ZZ", "ZZ", 1)
	file, err := p.Ingest(context.Background(), "csca.pem", data, classify.ContainerConformant)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if file.Status != core.UploadCompleted {
		t.Fatalf("expected COMPLETED, got %s (errText=%s)", file.Status, file.ErrorText)
	}
	if file.Counters.CSCA != 1 {
		t.Fatalf("expected 1 CSCA, got %+v", file.Counters)
	}
	if got, want := file.EntriesSeen(), 1; got != want {
		t.Fatalf("EntriesSeen = %d, want %d", got, want)
	}
	if len(store.certsByFP) != 1 {
		t.Fatalf("expected 1 stored certificate, got %d", len(store.certsByFP))
	}
}

func TestIngestDuplicateAcrossUploads(t *testing.T) {
	store := newFakeStore()
	p := New(store, clock.NewFake(), log.NewMock(), nil)
	certPEM := selfSignedCSCAPEM(t, "CSCA-ZZ", "ZZ", 1)

	first, err := p.Ingest(context.Background(), "csca.pem", certPEM, classify.ContainerConformant)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if first.Counters.CSCA != 1 {
		t.Fatalf("expected the first upload to insert a fresh CSCA, got %+v", first.Counters)
	}

	second, err := p.Ingest(context.Background(), "csca-again.pem", certPEM, classify.ContainerConformant)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if second.Counters.Duplicate != 1 {
		t.Fatalf("expected the second identical upload to be recorded as a duplicate, got %+v", second.Counters)
	}
	if len(store.certsByFP) != 1 {
		t.Fatalf("expected exactly one stored certificate across both uploads, got %d", len(store.certsByFP))
	}
}

func TestIngestMissingCountryIsParseErrorNotCrash(t *testing.T) {
	store := newFakeStore()
	p := New(store, clock.NewFake(), log.NewMock(), nil)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(9),
		Subject:      pkix.Name{CommonName: "DSC-NOCOUNTRY"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	file, err := p.Ingest(context.Background(), "bad.pem", data, classify.ContainerConformant)
	if err != nil {
		t.Fatalf("Ingest should not return a catastrophic error for a per-entry failure: %v", err)
	}
	if file.Counters.Errors != 1 {
		t.Fatalf("expected 1 recorded parse error, got %+v", file.Counters)
	}
	if len(file.ParsingErrors) != 1 {
		t.Fatalf("expected 1 ParsingError entry, got %d", len(file.ParsingErrors))
	}
}

func TestDetectFormatLDIF(t *testing.T) {
	ldif := []byte("version: 1\ndn: c=ZZ,dc=data\nobjectClass: top\n")
	if got := DetectFormat(ldif, "export.ldif"); got != core.FormatLDIF {
		t.Fatalf("expected LDIF, got %s", got)
	}
}

func TestDetectFormatPEM(t *testing.T) {
	data := selfSignedCSCAPEM(t, "x", "ZZ", 1)
	if got := DetectFormat(data, "x.pem"); got != core.FormatPEM {
		t.Fatalf("expected PEM, got %s", got)
	}
}

func TestLdifIngestCertificateEntry(t *testing.T) {
	store := newFakeStore()
	p := New(store, clock.NewFake(), log.NewMock(), nil)

	certPEM := selfSignedCSCAPEM(t, "CSCA-ZZ", "ZZ", 1)
	block, _ := pem.Decode(certPEM)
	b64 := base64.StdEncoding.EncodeToString(block.Bytes)
	fp := x509util.Fingerprint(block.Bytes)

	ldif := fmt.Sprintf(
		"version: 1\n# collectionNumber: 42\ndn: cn=%s,o=csca,c=ZZ,dc=data,dc=pkd\nobjectClass: pkdDownload\nuserCertificate;binary:: %s\n\n",
		fp, b64,
	)

	file, err := p.Ingest(context.Background(), "export.ldif", []byte(ldif), classify.ContainerConformant)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if file.Counters.CSCA != 1 {
		t.Fatalf("expected 1 CSCA from LDIF, got %+v (errs=%v)", file.Counters, file.ParsingErrors)
	}
	if file.CollectionNumber != 42 {
		t.Fatalf("expected collection number 42, got %d", file.CollectionNumber)
	}
}
