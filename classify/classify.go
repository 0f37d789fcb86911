// Package classify implements C2: assigning a certificate its role in
// the ICAO trust hierarchy (CSCA, DSC, DSC_NC, MLSC, LINK, DVL_SIGNER)
// from its own extensions and, where cert-level signal runs out, a
// caller-supplied container hint.
package classify

import (
	"crypto/x509"

	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/x509util"
)

// ContainerHint tells the classifier what kind of collection the
// certificate was ingested from, for the one case (DSC vs DSC_NC) the
// certificate's own bytes cannot decide.
type ContainerHint int

const (
	// ContainerConformant is the default: DSC/CRL or Master List input.
	ContainerConformant ContainerHint = iota
	// ContainerNonConformant marks ingestion from a Deviation List /
	// non-conformant DSC collection.
	ContainerNonConformant
)

// Result is the classifier's verdict for one certificate.
type Result struct {
	Type         core.CertType
	Country      string
	Fingerprint  string
	IsCA         bool
	IsSelfSigned bool
}

// Classify runs the ordered-rule algorithm: MLSC EKU, then DVL-Signer
// EKU, then CA/self-signed combinations, falling back to DSC (or
// DSC_NC under a non-conformant container hint). Country comes from the
// Subject DN's C= RDN; its absence is a hard error for CSCA/DSC and a
// logged warning for MLSC/DVL_SIGNER.
func Classify(cert *x509.Certificate, hint ContainerHint) (Result, error) {
	country := x509util.CountryFromDN(cert.Subject)
	fp := x509util.Fingerprint(cert.Raw)
	isCA := cert.IsCA
	selfSigned := x509util.IsSelfSigned(cert)

	var certType core.CertType
	switch {
	case x509util.HasExtKeyUsage(cert, x509util.OIDExtKeyUsageMLSC):
		certType = core.CertTypeMLSC
	case x509util.HasExtKeyUsage(cert, x509util.OIDExtKeyUsageDVLSigner):
		certType = core.CertTypeDVLSigner
	case isCA && selfSigned:
		certType = core.CertTypeCSCA
	case isCA && !selfSigned:
		certType = core.CertTypeLink
	case hint == ContainerNonConformant:
		certType = core.CertTypeDSCNC
	default:
		certType = core.CertTypeDSC
	}

	if country == "" {
		switch certType {
		case core.CertTypeMLSC, core.CertTypeDVLSigner:
			log.Get().WithValues("fingerprint", fp, "type", string(certType)).
				Warning("certificate missing Subject DN country code")
		default:
			return Result{}, pkderrors.ValidationError("certificate of type %s has no Subject DN country code (fingerprint %s)", certType, fp)
		}
	}

	return Result{
		Type:         certType,
		Country:      country,
		Fingerprint:  fp,
		IsCA:         isCA,
		IsSelfSigned: selfSigned,
	}, nil
}

// Apply merges a Classify result into the metadata already extracted by
// C1, producing the full core.Certificate record ready for the Trust
// Store.
func Apply(meta core.Certificate, result Result) core.Certificate {
	meta.Type = result.Type
	meta.Country = result.Country
	meta.Fingerprint = result.Fingerprint
	meta.IsCA = result.IsCA
	meta.IsSelfSigned = result.IsSelfSigned
	return meta
}
