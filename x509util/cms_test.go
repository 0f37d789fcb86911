package x509util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"
)

func signedCms(t *testing.T, content []byte) (signed []byte, signer *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "DSC-ZZ"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatal(err)
	}
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatal(err)
	}
	signed, err = sd.Finish()
	if err != nil {
		t.Fatal(err)
	}
	return signed, cert
}

func TestParseCmsAndVerify(t *testing.T) {
	content := []byte("master list contents")
	signed, signer := signedCms(t, content)

	cms, err := ParseCms(signed)
	if err != nil {
		t.Fatalf("ParseCms: %v", err)
	}
	if string(cms.SignedContent) != string(content) {
		t.Fatalf("unexpected signed content: %q", cms.SignedContent)
	}
	if !VerifyCmsSignedData(cms, signer) {
		t.Fatal("expected CMS SignedData to verify against its own signer")
	}
}

func TestParseCmsUnwrapsSODTagIdempotently(t *testing.T) {
	content := []byte("sod contents")
	signed, signer := signedCms(t, content)

	wrapped, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        sodApplicationTag,
		IsCompound: true,
		Bytes:      signed,
	})
	if err != nil {
		t.Fatal(err)
	}

	cms, err := ParseCms(wrapped)
	if err != nil {
		t.Fatalf("ParseCms of tagged SOD: %v", err)
	}
	if !VerifyCmsSignedData(cms, signer) {
		t.Fatal("expected tagged SOD to verify after unwrap")
	}

	// Calling unwrap again on already-bare CMS must be a no-op.
	if got := unwrapSODTag(signed); string(got) != string(signed) {
		t.Fatal("expected unwrapSODTag to be idempotent on bare CMS input")
	}
}

func TestVerifyCmsSignedDataRejectsWrongSigner(t *testing.T) {
	content := []byte("content")
	signed, _ := signedCms(t, content)
	_, otherSigner := signedCms(t, []byte("other"))

	cms, err := ParseCms(signed)
	if err != nil {
		t.Fatalf("ParseCms: %v", err)
	}
	if VerifyCmsSignedData(cms, otherSigner) {
		t.Fatal("did not expect verification to succeed against an unrelated signer")
	}
}
