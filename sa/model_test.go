package sa

import (
	"reflect"
	"testing"
	"time"

	"github.com/icao-pkd/trustdir/core"
)

func TestJoinSplitCSVRoundTrip(t *testing.T) {
	cases := [][]string{
		nil,
		{},
		{"digitalSignature"},
		{"digitalSignature", "keyCertSign", "cRLSign"},
	}
	for _, in := range cases {
		joined := joinCSV(in)
		out := splitCSV(joined)
		if len(in) == 0 && len(out) != 0 {
			t.Fatalf("expected empty input to split back to nothing, got %v", out)
		}
		if len(in) > 0 && !reflect.DeepEqual(in, out) {
			t.Fatalf("expected %v to round-trip, got %v", in, out)
		}
	}
}

func TestCertToRowRowToCertRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	cert := core.Certificate{
		Fingerprint:        "fp1",
		DER:                []byte{1, 2, 3},
		Type:               core.CertTypeDSC,
		Country:            "ZZ",
		SubjectDN:          "CN=DSC-ZZ",
		IssuerDN:           "CN=CSCA-ZZ",
		Serial:             "01",
		NotBefore:          now,
		NotAfter:           now.Add(24 * time.Hour),
		SignatureAlgorithm: "SHA256-RSA",
		PublicKeyAlgorithm: "RSA",
		PublicKeySize:      2048,
		IsCA:               false,
		PathLen:            0,
		HasPathLen:         false,
		KeyUsage:           []string{"digitalSignature"},
		ExtKeyUsage:        []string{"documentSigning"},
		CRLDistribution:    []string{"ldap://pkd.example/crl"},
		IsSelfSigned:       false,
		SourceVerified:     true,
		FirstIngestedAt:    now,
	}

	row := certToRow(cert)
	got := rowToCert(row)

	if !reflect.DeepEqual(cert, got) {
		t.Fatalf("expected certificate to round-trip through its row unchanged:\nwant %+v\ngot  %+v", cert, got)
	}
}

func TestCRLToRowRowToCRLRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	crl := core.CRL{
		Fingerprint: "crlfp1",
		DER:         []byte{4, 5, 6},
		IssuerDN:    "CN=CSCA-ZZ",
		Country:     "ZZ",
		ThisUpdate:  now,
		NextUpdate:  now.Add(7 * 24 * time.Hour),
		CRLNumber:   "7",
		Revoked: []core.RevokedCertificate{
			{Serial: "01", RevocationDate: now},
		},
		FirstIngestedAt: now,
	}

	row := crlToRow(crl)
	got, err := rowToCRL(row)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(crl, got) {
		t.Fatalf("expected crl to round-trip through its row unchanged:\nwant %+v\ngot  %+v", crl, got)
	}
}

func TestUploadedFileToRowRowToUploadedFileRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	f := core.UploadedFile{
		ID:               "up1",
		OriginalFilename: "dsccsca.ldif",
		CanonicalName:    "dsccsca.ldif",
		ContentHash:      "abc123",
		Size:             1024,
		Format:           core.FormatLDIF,
		Status:           core.UploadCompleted,
		Counters: core.TypeCounters{
			CSCA: 1,
			DSC:  2,
		},
		CollectionNumber: 42,
		ParsingErrors: []core.ParsingError{
			{EntryDN: "cn=bad-entry", ErrorCode: "PARSE_ERROR", Message: "unparseable entry"},
		},
		BlobKey:    "uploads/ab/abc123",
		CreatedAt:  now,
		StartedAt:  &now,
		FinishedAt: &now,
	}

	row := uploadedFileToRow(f)
	got, err := rowToUploadedFile(row)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f, got) {
		t.Fatalf("expected uploaded file to round-trip through its row unchanged:\nwant %+v\ngot  %+v", f, got)
	}
}

func TestIcaoVersionToRowRowToIcaoVersion(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	v := core.IcaoVersion{
		ID:             "v1",
		Collection:     core.CollectionMasterList,
		Filename:       "dsccscamasterlist.ldif",
		Version:        42,
		Status:         core.VersionDetected,
		DetectedAt:     now,
		Notified:       false,
		ImportedFileID: "up1",
	}

	row := icaoVersionToRow(v)
	got := rowToIcaoVersion(row)
	if !reflect.DeepEqual(v, got) {
		t.Fatalf("expected icao version to round-trip through its row unchanged:\nwant %+v\ngot  %+v", v, got)
	}
}
