package x509util

import (
	"crypto/x509/pkix"
	"testing"
)

func TestNormalizeDNOrderAndCaseInsensitive(t *testing.T) {
	a := pkix.Name{CommonName: "CSCA-ZZ", Country: []string{"ZZ"}, Organization: []string{"Gov"}}
	b := pkix.Name{CommonName: "csca-zz", Country: []string{"zz"}, Organization: []string{"gov"}}
	if NormalizeDN(a) != NormalizeDN(b) {
		t.Fatalf("expected case-insensitive equality: %q != %q", NormalizeDN(a), NormalizeDN(b))
	}
}

func TestDNEqualRawBytesFastPath(t *testing.T) {
	raw := []byte{0x30, 0x03, 0x01, 0x01, 0xFF}
	a := pkix.Name{CommonName: "same"}
	b := pkix.Name{CommonName: "same"}
	if !DNEqual(raw, raw, a, b) {
		t.Fatal("expected identical raw DER to short-circuit as equal")
	}
}

func TestDNEqualFallsBackToNormalized(t *testing.T) {
	a := pkix.Name{CommonName: "CSCA-ZZ", Country: []string{"ZZ"}}
	b := pkix.Name{CommonName: "csca-zz", Country: []string{"zz"}}
	// Different raw bytes (simulating different ASN.1 string types), but
	// semantically the same DN once normalized.
	if !DNEqual([]byte{0x30, 0x01}, []byte{0x30, 0x02}, a, b) {
		t.Fatal("expected normalized fallback to treat these as equal")
	}
}

func TestDNEqualRejectsDifferentDNs(t *testing.T) {
	a := pkix.Name{CommonName: "CSCA-ZZ"}
	b := pkix.Name{CommonName: "CSCA-YY"}
	if DNEqual(nil, nil, a, b) {
		t.Fatal("expected different CommonNames to compare unequal")
	}
}

func TestCountryFromDN(t *testing.T) {
	if got := CountryFromDN(pkix.Name{Country: []string{"zz"}}); got != "ZZ" {
		t.Fatalf("expected uppercased ZZ, got %q", got)
	}
	if got := CountryFromDN(pkix.Name{}); got != "" {
		t.Fatalf("expected empty country, got %q", got)
	}
}
