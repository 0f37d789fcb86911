package x509util

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"

	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// VerifySignatureCert verifies that child was signed by issuer's public
// key, returning false (never an error) on any failure — callers that
// need the failure reason should call child.CheckSignatureFrom directly.
func VerifySignatureCert(child, issuer *x509.Certificate) bool {
	return child.CheckSignatureFrom(issuer) == nil
}

// VerifySignature verifies child against a bare issuer public key
// rather than a full issuer certificate, for the cases (CMS signer
// checks, CSCA renewal tie-breaks) where only the key is on hand and
// crypto/x509's own CheckSignature is unavailable without a Certificate
// receiver.
func VerifySignature(child *x509.Certificate, issuerPubKey interface{}) bool {
	return checkSignature(child.SignatureAlgorithm, child.RawTBSCertificate, child.Signature, issuerPubKey) == nil
}

// VerifyCRLSignature verifies a parsed CRL against its issuer's
// certificate.
func VerifyCRLSignature(crl *x509.RevocationList, issuer *x509.Certificate) bool {
	return crl.CheckSignatureFrom(issuer) == nil
}

// checkSignature verifies a signed blob against a bare public key,
// dispatching on the X.509 signature algorithm the same way
// crypto/x509's own certificate verification does. RSA PKCS#1v1.5, RSA-
// PSS, ECDSA, and Ed25519 cover every signature scheme ICAO 9303 DSCs
// and CSCAs use in practice.
func checkSignature(algo x509.SignatureAlgorithm, signed, signature []byte, pubKey interface{}) error {
	hashType, isRSAPSS := signatureHash(algo)
	if hashType == 0 && !isRSAPSS && algo != x509.PureEd25519 {
		return pkderrors.New(pkderrors.Validation, "unsupported signature algorithm %s", algo)
	}

	var digest []byte
	var hashFunc crypto.Hash
	if algo != x509.PureEd25519 {
		hashFunc = hashType
		h := hashFunc.New()
		h.Write(signed)
		digest = h.Sum(nil)
	}

	switch pub := pubKey.(type) {
	case *rsa.PublicKey:
		if isRSAPSS {
			return rsa.VerifyPSS(pub, hashFunc, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: hashFunc})
		}
		return rsa.VerifyPKCS1v15(pub, hashFunc, digest, signature)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, signature) {
			return pkderrors.New(pkderrors.Validation, "ECDSA signature verification failed")
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(pub, signed, signature) {
			return pkderrors.New(pkderrors.Validation, "Ed25519 signature verification failed")
		}
		return nil
	default:
		return pkderrors.New(pkderrors.Validation, "unsupported public key type %T", pubKey)
	}
}

// signatureHash maps an x509.SignatureAlgorithm to the crypto.Hash it
// uses, and reports whether it is an RSA-PSS variant.
func signatureHash(algo x509.SignatureAlgorithm) (crypto.Hash, bool) {
	switch algo {
	case x509.SHA256WithRSA, x509.ECDSAWithSHA256:
		return crypto.SHA256, false
	case x509.SHA384WithRSA, x509.ECDSAWithSHA384:
		return crypto.SHA384, false
	case x509.SHA512WithRSA, x509.ECDSAWithSHA512:
		return crypto.SHA512, false
	case x509.SHA1WithRSA, x509.ECDSAWithSHA1:
		return crypto.SHA1, false
	case x509.SHA256WithRSAPSS:
		return crypto.SHA256, true
	case x509.SHA384WithRSAPSS:
		return crypto.SHA384, true
	case x509.SHA512WithRSAPSS:
		return crypto.SHA512, true
	default:
		return 0, false
	}
}
