package x509util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/icao-pkd/trustdir/core"
)

// Well-known ICAO extended-key-usage OIDs used by the classifier (C2).
var (
	OIDExtKeyUsageMLSC      = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 9}
	OIDExtKeyUsageDVLSigner = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 10}
)

// ExtKeyUsageOIDs returns every extended-key-usage OID on cert, both the
// ones crypto/x509 recognizes and the raw unknown ones (ICAO's MLSC and
// DVL-Signer OIDs fall in the latter bucket, since they are not part of
// RFC 5280's registered set).
func ExtKeyUsageOIDs(cert *x509.Certificate) []asn1.ObjectIdentifier {
	oids := make([]asn1.ObjectIdentifier, 0, len(cert.ExtKeyUsage)+len(cert.UnknownExtKeyUsage))
	for _, eku := range cert.ExtKeyUsage {
		if oid, ok := extKeyUsageOID(eku); ok {
			oids = append(oids, oid)
		}
	}
	oids = append(oids, cert.UnknownExtKeyUsage...)
	return oids
}

func extKeyUsageOID(eku x509.ExtKeyUsage) (asn1.ObjectIdentifier, bool) {
	switch eku {
	case x509.ExtKeyUsageServerAuth:
		return asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}, true
	case x509.ExtKeyUsageClientAuth:
		return asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}, true
	case x509.ExtKeyUsageCodeSigning:
		return asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 3}, true
	case x509.ExtKeyUsageEmailProtection:
		return asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 4}, true
	case x509.ExtKeyUsageOCSPSigning:
		return asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 9}, true
	default:
		return nil, false
	}
}

// HasExtKeyUsage reports whether cert carries the given EKU OID, known or
// unknown to crypto/x509.
func HasExtKeyUsage(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	for _, got := range ExtKeyUsageOIDs(cert) {
		if got.Equal(oid) {
			return true
		}
	}
	return false
}

var keyUsageBits = []struct {
	bit  x509.KeyUsage
	name string
}{
	{x509.KeyUsageDigitalSignature, "digitalSignature"},
	{x509.KeyUsageContentCommitment, "contentCommitment"},
	{x509.KeyUsageKeyEncipherment, "keyEncipherment"},
	{x509.KeyUsageDataEncipherment, "dataEncipherment"},
	{x509.KeyUsageKeyAgreement, "keyAgreement"},
	{x509.KeyUsageCertSign, "keyCertSign"},
	{x509.KeyUsageCRLSign, "cRLSign"},
	{x509.KeyUsageEncipherOnly, "encipherOnly"},
	{x509.KeyUsageDecipherOnly, "decipherOnly"},
}

// KeyUsageNames renders a x509.KeyUsage bitmask as RFC 5280 names.
func KeyUsageNames(ku x509.KeyUsage) []string {
	var names []string
	for _, b := range keyUsageBits {
		if ku&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	return names
}

// HasKeyUsage reports whether cert's key usage includes bit.
func HasKeyUsage(cert *x509.Certificate, bit x509.KeyUsage) bool {
	return cert.KeyUsage&bit != 0
}

func publicKeyAlgoAndSize(cert *x509.Certificate) (algo string, size int, curve string) {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return "RSA", pub.N.BitLen(), ""
	case *ecdsa.PublicKey:
		return "ECDSA", pub.Curve.Params().BitSize, pub.Curve.Params().Name
	default:
		return cert.PublicKeyAlgorithm.String(), 0, ""
	}
}

// IsSelfSigned verifies that cert was signed by its own public key and
// that subject equals issuer (ASN.1-aware, via DNEqual).
func IsSelfSigned(cert *x509.Certificate) bool {
	if !DNEqual(cert.RawSubject, cert.RawIssuer, cert.Subject, cert.Issuer) {
		return false
	}
	return VerifySignatureCert(cert, cert)
}

// ExtractMetadata extracts the complete metadata record described in
// spec §4.1 and §3, filling every field of core.Certificate except Type
// and Country, which the classifier sets, and FirstIngestedAt,
// SourceUploadID, SourceVerified, WeakKeyWarning and StoredInDirectory,
// which the ingest pipeline and later stages set.
func ExtractMetadata(cert *x509.Certificate) core.Certificate {
	algo, size, curve := publicKeyAlgoAndSize(cert)

	var crlDPs []string
	crlDPs = append(crlDPs, cert.CRLDistributionPoints...)

	ekuOIDs := ExtKeyUsageOIDs(cert)
	ekuStrings := make([]string, 0, len(ekuOIDs))
	for _, oid := range ekuOIDs {
		ekuStrings = append(ekuStrings, oid.String())
	}

	var ocspURL string
	if len(cert.OCSPServer) > 0 {
		ocspURL = cert.OCSPServer[0]
	}

	rec := core.Certificate{
		Fingerprint:        Fingerprint(cert.Raw),
		DER:                cert.Raw,
		SubjectDN:          DNToRFC2253(cert.Subject),
		IssuerDN:           DNToRFC2253(cert.Issuer),
		Serial:             SerialToHex(cert),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		SignatureHashAlg:   sigHashAlg(cert.SignatureAlgorithm),
		PublicKeyAlgorithm: algo,
		PublicKeySize:      size,
		PublicKeyCurve:     curve,
		SubjectKeyID:       hexOrEmpty(cert.SubjectKeyId),
		AuthorityKeyID:     hexOrEmpty(cert.AuthorityKeyId),
		IsCA:               cert.IsCA,
		HasPathLen:         cert.MaxPathLenZero || cert.MaxPathLen > 0,
		PathLen:            cert.MaxPathLen,
		KeyUsage:           KeyUsageNames(cert.KeyUsage),
		ExtKeyUsage:        ekuStrings,
		CRLDistribution:    crlDPs,
		OCSPURL:            ocspURL,
	}
	rec.IsSelfSigned = IsSelfSigned(cert)
	return rec
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", b)
}

// SerialToHex renders a certificate serial number as uppercase hex, per
// spec §3.
func SerialToHex(cert *x509.Certificate) string {
	return fmt.Sprintf("%X", cert.SerialNumber)
}

func sigHashAlg(alg x509.SignatureAlgorithm) string {
	switch alg {
	case x509.SHA256WithRSA, x509.ECDSAWithSHA256, x509.SHA256WithRSAPSS:
		return "SHA-256"
	case x509.SHA384WithRSA, x509.ECDSAWithSHA384, x509.SHA384WithRSAPSS:
		return "SHA-384"
	case x509.SHA512WithRSA, x509.ECDSAWithSHA512, x509.SHA512WithRSAPSS:
		return "SHA-512"
	case x509.SHA1WithRSA, x509.ECDSAWithSHA1, x509.DSAWithSHA1:
		return "SHA-1"
	case x509.MD5WithRSA:
		return "MD5"
	case x509.MD2WithRSA:
		return "MD2"
	default:
		return alg.String()
	}
}

// ValidityWellFormed checks the invariant in spec §3(d): notBefore must
// not be after notAfter.
func ValidityWellFormed(cert core.Certificate) bool {
	return !cert.NotBefore.After(cert.NotAfter)
}

// ContainsNow reports whether now falls within [notBefore, notAfter].
func ContainsNow(cert core.Certificate, now time.Time) bool {
	return !now.Before(cert.NotBefore) && !now.After(cert.NotAfter)
}
