package pa

import (
	"crypto/x509/pkix"
	"encoding/asn1"

	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// ldsSecurityObject is the ASN.1 shape of the content signed inside an
// ICAO 9303 SOD: a version, the declared hash algorithm, and one hash
// per Data Group the document carries.
type ldsSecurityObject struct {
	Version             int
	HashAlgorithm       pkix.AlgorithmIdentifier
	DataGroupHashValues []dataGroupHash
}

type dataGroupHash struct {
	Number int
	Hash   []byte
}

// decodeLDSSecurityObject parses the SOD's signed content.
func decodeLDSSecurityObject(signedContent []byte) (ldsSecurityObject, error) {
	var obj ldsSecurityObject
	if _, err := asn1.Unmarshal(signedContent, &obj); err != nil {
		return obj, pkderrors.New(pkderrors.Parse, "SOD content is not a well-formed LDSSecurityObject: %s", err)
	}
	return obj, nil
}

// Well-known hash algorithm OIDs the LDS Security Object declares.
var (
	oidSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

// hashAlgorithmName renders the declared hash OID as a readable name
// for diagnostics, per spec §4.6 ("Diagnostics include cryptographic
// algorithm names").
func hashAlgorithmName(oid asn1.ObjectIdentifier) string {
	switch {
	case oid.Equal(oidSHA1):
		return "SHA-1"
	case oid.Equal(oidSHA256):
		return "SHA-256"
	case oid.Equal(oidSHA384):
		return "SHA-384"
	case oid.Equal(oidSHA512):
		return "SHA-512"
	default:
		return oid.String()
	}
}
