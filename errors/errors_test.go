package errors

import "testing"

func TestIs(t *testing.T) {
	err := RevocationError("CRL for %s is stale", "C=KR,O=MOFA,CN=CSCA KOREA")
	if !Is(err, Revocation) {
		t.Fatalf("expected Revocation kind, got %v", err)
	}
	if Is(err, Store) {
		t.Fatalf("did not expect Store kind for %v", err)
	}
	if Is(err, Validation) {
		t.Fatalf("did not expect Validation kind for %v", err)
	}
}

func TestWithCode(t *testing.T) {
	err := WithCode(Validation, "ISSUER_NOT_FOUND", "no CSCA for issuer %s", "C=ZZ")
	pe, ok := err.(*PKDError)
	if !ok {
		t.Fatalf("expected *PKDError, got %T", err)
	}
	if pe.Code != "ISSUER_NOT_FOUND" {
		t.Fatalf("expected code ISSUER_NOT_FOUND, got %s", pe.Code)
	}
}

func TestInternalServerErrorIsInternalServerKind(t *testing.T) {
	err := New(InternalServer, "boom")
	if !Is(err, InternalServer) {
		t.Fatalf("expected InternalServer kind")
	}
}
