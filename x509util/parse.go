// Package x509util implements C1: the purely functional X.509/CMS
// primitives every other component builds on — parsing, fingerprinting,
// metadata extraction, DN comparison, and signature verification.
package x509util

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// ParseError carries the structured {what, offset} shape spec §4.1
// requires from every extractor.
type ParseError struct {
	What   string
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (offset %d)", e.What, e.Offset)
}

// ParseCertificate parses a single X.509 certificate from either a naked
// DER blob or a PEM envelope. Only the first PEM block in the buffer is
// parsed; any further blocks are ignored, not rejected. Callers that
// expect several (LDIF, Master List) use ParseCertificatesPEM or the CMS
// path instead.
func ParseCertificate(data []byte, format core.UploadFormat) (*x509.Certificate, error) {
	der, err := toDER(data, format)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, pkderrors.New(pkderrors.Parse, "not a valid X.509 certificate: %s", err)
	}
	return cert, nil
}

// ParseCRL parses a single X.509 CRL from DER or PEM.
func ParseCRL(data []byte, format core.UploadFormat) (*x509.RevocationList, error) {
	der, err := toDER(data, format)
	if err != nil {
		return nil, err
	}
	crl, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, pkderrors.New(pkderrors.Parse, "not a valid X.509 CRL: %s", err)
	}
	return crl, nil
}

// toDER normalizes a PEM-or-DER buffer down to a raw DER body.
func toDER(data []byte, format core.UploadFormat) ([]byte, error) {
	if looksLikePEM(data) {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, pkderrors.New(pkderrors.Parse, "PEM envelope with no decodable block")
		}
		return block.Bytes, nil
	}
	if len(data) == 0 || data[0] != 0x30 {
		return nil, pkderrors.New(pkderrors.Parse, "not ASN.1 DER (expected leading SEQUENCE tag 0x30)")
	}
	return data, nil
}

// looksLikePEM implements the cheap-first detection rule from spec §4.3:
// a buffer starting with "-----BEGIN " is treated as PEM.
func looksLikePEM(data []byte) bool {
	const prefix = "-----BEGIN "
	return len(data) >= len(prefix) && string(data[:len(prefix)]) == prefix
}

// ParseCertificatesPEM decodes every CERTIFICATE block in a multi-block
// PEM buffer, in file order.
func ParseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return certs, pkderrors.New(pkderrors.Parse, "malformed certificate in PEM bundle: %s", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// Fingerprint computes the canonical identity of a certificate or CRL:
// the lowercase hex SHA-256 over its DER body.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}
