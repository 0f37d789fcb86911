package x509util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func issueChain(t *testing.T) (issuer *x509.Certificate, issuerKey *rsa.PrivateKey, child *x509.Certificate) {
	t.Helper()
	issuerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	issuerTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "CSCA-ZZ"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	issuerDER, err := x509.CreateCertificate(rand.Reader, issuerTmpl, issuerTmpl, &issuerKey.PublicKey, issuerKey)
	if err != nil {
		t.Fatal(err)
	}
	issuer, err = x509.ParseCertificate(issuerDER)
	if err != nil {
		t.Fatal(err)
	}

	childKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	childTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "DSC-ZZ"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	childDER, err := x509.CreateCertificate(rand.Reader, childTmpl, issuerTmpl, &childKey.PublicKey, issuerKey)
	if err != nil {
		t.Fatal(err)
	}
	child, err = x509.ParseCertificate(childDER)
	if err != nil {
		t.Fatal(err)
	}
	return issuer, issuerKey, child
}

func TestVerifySignatureCert(t *testing.T) {
	issuer, _, child := issueChain(t)
	if !VerifySignatureCert(child, issuer) {
		t.Fatal("expected child's signature to verify against issuer")
	}
	if VerifySignatureCert(child, child) {
		t.Fatal("did not expect child to verify against itself")
	}
}

func TestVerifySignatureBarePublicKey(t *testing.T) {
	issuer, _, child := issueChain(t)
	if !VerifySignature(child, issuer.PublicKey) {
		t.Fatal("expected child's signature to verify against the bare issuer public key")
	}

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	if VerifySignature(child, &otherKey.PublicKey) {
		t.Fatal("did not expect verification to succeed against an unrelated public key")
	}
}

func TestIsSelfSignedOnRoot(t *testing.T) {
	issuer, _, _ := issueChain(t)
	if !IsSelfSigned(issuer) {
		t.Fatal("expected the self-issued CSCA to be detected as self-signed")
	}
}

func TestIsSelfSignedOnLeaf(t *testing.T) {
	_, _, child := issueChain(t)
	if IsSelfSigned(child) {
		t.Fatal("did not expect a CA-issued DSC to be self-signed")
	}
}
