package x509util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/icao-pkd/trustdir/core"
)

func selfSignedDER(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn, Country: []string{"ZZ"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

func TestParseCertificateDER(t *testing.T) {
	der := selfSignedDER(t, "csca.zz")
	cert, err := ParseCertificate(der, core.FormatDER)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if cert.Subject.CommonName != "csca.zz" {
		t.Fatalf("unexpected subject: %+v", cert.Subject)
	}
}

func TestParseCertificatePEM(t *testing.T) {
	der := selfSignedDER(t, "csca.zz")
	buf := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	cert, err := ParseCertificate(buf, core.FormatPEM)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if cert.Subject.CommonName != "csca.zz" {
		t.Fatalf("unexpected subject: %+v", cert.Subject)
	}
}

func TestParseCertificateRejectsGarbage(t *testing.T) {
	if _, err := ParseCertificate([]byte("not a cert"), core.FormatDER); err == nil {
		t.Fatal("expected an error for non-DER garbage")
	}
}

func TestParseCertificatesPEMMultiBlock(t *testing.T) {
	der1 := selfSignedDER(t, "one.zz")
	der2 := selfSignedDER(t, "two.zz")
	var buf []byte
	buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der1})...)
	buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der2})...)

	certs, err := ParseCertificatesPEM(buf)
	if err != nil {
		t.Fatalf("ParseCertificatesPEM: %v", err)
	}
	if len(certs) != 2 {
		t.Fatalf("expected 2 certs, got %d", len(certs))
	}
	if certs[0].Subject.CommonName != "one.zz" || certs[1].Subject.CommonName != "two.zz" {
		t.Fatalf("unexpected order/subjects: %v", certs)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	der := selfSignedDER(t, "csca.zz")
	fp1 := Fingerprint(der)
	fp2 := Fingerprint(der)
	if fp1 != fp2 {
		t.Fatalf("fingerprint not deterministic: %s != %s", fp1, fp2)
	}
	if len(fp1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(fp1))
	}
}
