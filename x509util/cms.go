package x509util

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"

	"go.mozilla.org/pkcs7"

	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// sodApplicationTag is the ASN.1 [APPLICATION 23] tag ICAO 9303 wraps
// the Document Security Object's CMS ContentInfo in. Not every CMS blob
// this package sees carries it: Master Lists and DVLs are bare
// ContentInfo, only the SOD itself is tagged.
const sodApplicationTag = 23

// CmsMessage is the result of parsing a CMS SignedData structure: the
// (possibly detached) signed content plus whatever certificates were
// embedded in it.
type CmsMessage struct {
	SignedContent []byte
	EmbeddedCerts []*x509.Certificate

	raw *pkcs7.PKCS7
}

// ParseCms parses a CMS SignedData blob, transparently unwrapping the
// ICAO SOD's [APPLICATION 23] outer tag if present. Calling it twice on
// already-unwrapped input is a no-op: the second call sees a bare
// SEQUENCE (universal class) and skips the unwrap.
func ParseCms(data []byte) (*CmsMessage, error) {
	p7, err := pkcs7.Parse(unwrapSODTag(data))
	if err != nil {
		return nil, pkderrors.New(pkderrors.Parse, "not a valid CMS SignedData: %s", err)
	}
	return &CmsMessage{
		SignedContent: p7.Content,
		EmbeddedCerts: p7.Certificates,
		raw:           p7,
	}, nil
}

// unwrapSODTag strips the ICAO [APPLICATION 23] wrapper around a CMS
// ContentInfo, returning the inner DER unchanged if the wrapper isn't
// present.
func unwrapSODTag(data []byte) []byte {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(data, &raw); err != nil {
		return data
	}
	if raw.Class == asn1.ClassApplication && raw.Tag == sodApplicationTag {
		return raw.Bytes
	}
	return data
}

// VerifyCmsSignedData verifies that cms was signed by signerCert. The
// DSC embedded in the SOD is usually already present among cms's own
// certificates, but ParseCms doesn't require it to be, so signerCert is
// added to the verification set if missing.
func VerifyCmsSignedData(cms *CmsMessage, signerCert *x509.Certificate) bool {
	if cms == nil || cms.raw == nil || signerCert == nil {
		return false
	}
	present := false
	for _, c := range cms.raw.Certificates {
		if bytes.Equal(c.Raw, signerCert.Raw) {
			present = true
			break
		}
	}
	if !present {
		cms.raw.Certificates = append(cms.raw.Certificates, signerCert)
	}
	return cms.raw.Verify() == nil
}
