// Package chainval implements C5: building and validating a leaf
// certificate's trust chain up to a CSCA, including revocation.
package chainval

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/x509util"
)

var tracer = otel.Tracer("github.com/icao-pkd/trustdir/chainval")

// maxDepth bounds chain walking, per spec §4.5.
const maxDepth = 10

// Status is the chain validator's overall verdict.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
	StatusInvalid Status = "INVALID"
)

// Verdict is the full result shape spec §4.5 requires.
type Verdict struct {
	Status           Status
	SignatureValid   bool
	ChainValid       bool
	NotRevoked       bool
	ValidityValid    bool
	ConstraintsValid bool
	CRLAvailable     bool
	DurationMS       int64
	Errors           []string
	Chain            []core.Certificate
}

func (v *Verdict) addError(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validator is C5, backed by the Trust Store for issuer and CRL lookup.
type Validator struct {
	store core.TrustStoreReader
	now   func() time.Time
}

// New constructs a Validator. now defaults to time.Now when nil.
func New(store core.TrustStoreReader, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{store: store, now: now}
}

// Validate builds and checks the chain from leaf up to a CSCA. If
// anchorFingerprint is non-empty, that certificate is used directly as
// the trust anchor instead of searching the store by issuer DN.
func (v *Validator) Validate(ctx context.Context, leaf core.Certificate, anchorFingerprint string) (verdict Verdict) {
	ctx, span := tracer.Start(ctx, "chainval.Validate", trace.WithAttributes(
		attribute.String("trustdir.fingerprint", leaf.Fingerprint),
	))
	defer func() {
		span.SetAttributes(attribute.String("trustdir.chain_status", string(verdict.Status)))
		span.End()
	}()

	start := v.now()
	verdict = Verdict{SignatureValid: true, ChainValid: true, NotRevoked: true, ValidityValid: true, ConstraintsValid: true}

	chain, err := v.buildChain(ctx, leaf, anchorFingerprint)
	verdict.Chain = chain
	if err != nil {
		verdict.Status = StatusInvalid
		verdict.ChainValid = false
		verdict.addError("%s", err)
		verdict.DurationMS = v.now().Sub(start).Milliseconds()
		return verdict
	}

	anchor := chain[len(chain)-1]
	if !v.validateCSCA(anchor, &verdict) {
		verdict.Status = StatusInvalid
		verdict.DurationMS = v.now().Sub(start).Milliseconds()
		return verdict
	}

	revoked := false
	for i := 0; i < len(chain)-1; i++ {
		child := chain[i]
		parent := chain[i+1]
		if !v.validateHop(ctx, child, parent, &verdict) {
			verdict.Status = StatusInvalid
			verdict.DurationMS = v.now().Sub(start).Milliseconds()
			return verdict
		}
		if v.checkRevocation(ctx, child, parent, &verdict) {
			revoked = true
		}
	}

	switch {
	case revoked:
		verdict.Status = StatusRevoked
		verdict.NotRevoked = false
	case !verdict.ValidityValid:
		verdict.Status = StatusExpired
	default:
		verdict.Status = StatusValid
	}
	verdict.DurationMS = v.now().Sub(start).Milliseconds()
	return verdict
}

// buildChain follows issuer-DN → subject-DN lookups from leaf up to a
// self-signed certificate, per spec §4.5 step 1.
func (v *Validator) buildChain(ctx context.Context, leaf core.Certificate, anchorFingerprint string) ([]core.Certificate, error) {
	chain := []core.Certificate{leaf}
	current := leaf

	for depth := 0; depth < maxDepth; depth++ {
		if current.IsSelfSigned {
			return chain, nil
		}
		if anchorFingerprint != "" && depth == 0 {
			anchor, err := v.store.FindByFingerprint(ctx, anchorFingerprint)
			if err == nil {
				chain = append(chain, anchor)
				return chain, nil
			}
		}

		candidates, err := v.store.FindBySubjectDN(ctx, current.IssuerDN)
		if err != nil || len(candidates) == 0 {
			return nil, fmt.Errorf("ISSUER_NOT_FOUND: no certificate found with subject DN %q", current.IssuerDN)
		}
		next := pickIssuer(candidates, v.now())
		chain = append(chain, next)
		current = next
	}
	return nil, fmt.Errorf("ISSUER_NOT_FOUND: chain exceeded max depth %d without reaching a self-signed anchor", maxDepth)
}

// pickIssuer applies the tie-break rule from spec §4.5 when several
// CSCAs share a subject DN (e.g. after a CSCA renewal): prefer the one
// whose validity interval currently contains now, else the one with the
// highest notBefore.
func pickIssuer(candidates []core.Certificate, now time.Time) core.Certificate {
	if len(candidates) == 1 {
		return candidates[0]
	}
	for _, c := range candidates {
		if x509util.ContainsNow(c, now) {
			return c
		}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.NotBefore.After(best.NotBefore) {
			best = c
		}
	}
	return best
}

// validateCSCA checks the anchor per spec §4.5 step 2.
func (v *Validator) validateCSCA(anchor core.Certificate, verdict *Verdict) bool {
	ok := true
	if !anchor.IsSelfSigned {
		verdict.addError("trust anchor %s is not self-signed", anchor.Fingerprint)
		ok = false
	}
	if !anchor.IsCA {
		verdict.addError("trust anchor %s does not carry basicConstraints.cA", anchor.Fingerprint)
		verdict.ConstraintsValid = false
		ok = false
	}
	if !hasKeyUsage(anchor, "keyCertSign") {
		verdict.addError("trust anchor %s lacks keyCertSign", anchor.Fingerprint)
		verdict.ConstraintsValid = false
		ok = false
	}
	cert, err := x509.ParseCertificate(anchor.DER)
	if err != nil || !x509util.VerifySignatureCert(cert, cert) {
		verdict.addError("trust anchor %s self-signature does not verify", anchor.Fingerprint)
		verdict.SignatureValid = false
		ok = false
	}
	now := v.now()
	if now.Before(anchor.NotBefore) || now.After(anchor.NotAfter) {
		// Expiry alone does not disqualify the chain outright -- it is
		// reported as a distinct EXPIRED verdict, not folded into ok,
		// so a chain that is expired but otherwise intact can still
		// reach the terminal status switch in Validate.
		verdict.addError("trust anchor %s validity does not contain now", anchor.Fingerprint)
		verdict.ValidityValid = false
	}
	return ok
}

// validateHop checks child against parent per spec §4.5 step 3.
func (v *Validator) validateHop(ctx context.Context, child, parent core.Certificate, verdict *Verdict) bool {
	ok := true
	parentCert, perr := x509.ParseCertificate(parent.DER)
	childCert, cerr := x509.ParseCertificate(child.DER)
	if perr != nil || cerr != nil {
		verdict.addError("malformed DER for hop %s -> %s", child.Fingerprint, parent.Fingerprint)
		return false
	}

	if !x509util.DNEqual(childCert.RawIssuer, parentCert.RawSubject, childCert.Issuer, parentCert.Subject) {
		verdict.addError("issuer DN of %s does not match subject DN of %s", child.Fingerprint, parent.Fingerprint)
		verdict.ChainValid = false
		ok = false
	}
	if !x509util.VerifySignatureCert(childCert, parentCert) {
		verdict.addError("signature of %s does not verify under %s", child.Fingerprint, parent.Fingerprint)
		verdict.SignatureValid = false
		ok = false
	}
	now := v.now()
	if now.Before(child.NotBefore) || now.After(child.NotAfter) {
		// See validateCSCA: expiry is tracked separately from ok so it
		// can surface as EXPIRED rather than forcing an early INVALID.
		verdict.addError("validity of %s does not contain now", child.Fingerprint)
		verdict.ValidityValid = false
	}
	if child.Type == core.CertTypeDSC && !hasKeyUsage(child, "digitalSignature") {
		verdict.addError("DSC %s lacks digitalSignature key usage", child.Fingerprint)
		verdict.ConstraintsValid = false
		ok = false
	}
	return ok
}

// checkRevocation implements spec §4.5 step 4. It returns true only
// when the certificate is confirmed revoked; a missing CRL is recorded
// as a warning, not a failure.
func (v *Validator) checkRevocation(ctx context.Context, child, parent core.Certificate, verdict *Verdict) bool {
	crl, err := v.store.FindCRLFor(ctx, parent.SubjectDN, parent.Country)
	if err != nil {
		verdict.addError("CRL_UNAVAILABLE: no CRL found for issuer %q", parent.SubjectDN)
		return false
	}
	verdict.CRLAvailable = true

	now := v.now()
	if !crl.CoversNow(now) {
		verdict.addError("CRL_UNAVAILABLE: CRL for issuer %q is outside its validity window", parent.SubjectDN)
		return false
	}
	parentCert, err := x509.ParseCertificate(parent.DER)
	if err != nil {
		verdict.addError("malformed parent DER while checking CRL signature")
		return false
	}
	x509CRL, err := x509.ParseRevocationList(crl.DER)
	if err == nil && !x509util.VerifyCRLSignature(x509CRL, parentCert) {
		verdict.addError("CRL signature for issuer %q does not verify", parent.SubjectDN)
	}
	return crl.IsRevoked(child.Serial)
}

func hasKeyUsage(cert core.Certificate, name string) bool {
	for _, ku := range cert.KeyUsage {
		if ku == name {
			return true
		}
	}
	return false
}
