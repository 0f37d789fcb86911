// Package pa implements C6: Passive Authentication of one ePassport's
// Document Security Object against the Trust Store and Chain Validator.
package pa

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/icao-pkd/trustdir/chainval"
	"github.com/icao-pkd/trustdir/classify"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/x509util"
)

var tracer = otel.Tracer("github.com/icao-pkd/trustdir/pa")

// Engine is C6.
type Engine struct {
	store        core.TrustStore
	validator    *chainval.Validator
	now          func() time.Time
	log          log.Logger
	autoRegister bool
}

// New constructs an Engine. autoRegister controls whether a DSC not
// already present in the Trust Store is inserted using the SOD as its
// provenance (spec §4.6 step 4: "subject to policy").
func New(store core.TrustStore, validator *chainval.Validator, now func() time.Time, logger log.Logger, autoRegister bool) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, validator: validator, now: now, log: logger, autoRegister: autoRegister}
}

// Verify runs the full PA sequence: unwrap & parse SOD, hash comparison,
// SOD signature verification, DSC chain validation, and CRL check. It
// fails fast on structural ERROR conditions but otherwise accumulates
// diagnostics across all of steps 2-5 before producing a verdict.
func (e *Engine) Verify(ctx context.Context, sodBytes []byte, dataGroups map[int][]byte, issuingCountry, documentNumber string) (v core.PaVerification) {
	ctx, span := tracer.Start(ctx, "pa.Verify", trace.WithAttributes(
		attribute.String("icao.issuing_country", issuingCountry),
	))
	defer func() {
		span.SetAttributes(attribute.String("icao.pa_status", string(v.Status)))
		span.End()
	}()

	requestedAt := e.now()
	v = core.PaVerification{
		ID:             uuid.NewString(),
		IssuingCountry: issuingCountry,
		DocumentNumber: documentNumber,
		SODHash:        x509util.Fingerprint(sodBytes),
		RequestedAt:    requestedAt,
	}

	cms, err := x509util.ParseCms(sodBytes)
	if err != nil {
		return e.errorVerdict(v, fmt.Sprintf("unparseable SOD: %s", err))
	}
	if len(cms.EmbeddedCerts) == 0 {
		return e.errorVerdict(v, "SOD carries no embedded DSC")
	}
	dscX509 := cms.EmbeddedCerts[0]

	lds, err := decodeLDSSecurityObject(cms.SignedContent)
	if err != nil {
		return e.errorVerdict(v, fmt.Sprintf("unparseable LDSSecurityObject: %s", err))
	}

	v.DSC = descriptorOf(dscX509)

	// Step 2: hash presented DGs with the SOD's declared hash algorithm.
	v.DGResults, v.DGHashesValid = compareDataGroups(lds, dataGroups)

	// Step 3: SOD signature verification.
	v.SODSignatureValid = x509util.VerifyCmsSignedData(cms, dscX509)

	// Step 4: DSC chain validation, auto-registering an unknown DSC.
	dscRecord, chainVerdict := e.validateChain(ctx, dscX509)
	v.CSCA = csesaDescriptorFrom(chainVerdict)
	v.TrustChainValid = chainVerdict.Status == chainval.StatusValid
	v.NotRevoked = chainVerdict.NotRevoked
	v.CRLAvailable = chainVerdict.CRLAvailable
	_ = dscRecord

	v.CompletedAt = e.now()

	if v.DGHashesValid && v.SODSignatureValid && v.TrustChainValid && v.NotRevoked {
		v.Status = core.PAValid
		v.Message = "passive authentication succeeded"
	} else {
		v.Status = core.PAInvalid
		v.Message = invalidReason(v, chainVerdict)
	}
	return v
}

func (e *Engine) errorVerdict(v core.PaVerification, message string) core.PaVerification {
	v.Status = core.PAError
	v.Message = message
	v.CompletedAt = e.now()
	return v
}

// validateChain looks up the DSC in the Trust Store by fingerprint,
// auto-registering it (subject to policy) if absent, then runs C5.
func (e *Engine) validateChain(ctx context.Context, dscX509 *x509.Certificate) (core.Certificate, chainval.Verdict) {
	fp := x509util.Fingerprint(dscX509.Raw)
	dsc, err := e.store.FindByFingerprint(ctx, fp)
	if err != nil {
		result, cerr := classify.Classify(dscX509, classify.ContainerConformant)
		if cerr != nil {
			return core.Certificate{}, chainval.Verdict{Status: chainval.StatusInvalid, Errors: []string{cerr.Error()}}
		}
		dsc = classify.Apply(x509util.ExtractMetadata(dscX509), result)
		dsc.SourceVerified = false
		dsc.FirstIngestedAt = e.now()
		if e.autoRegister {
			if _, ierr := e.store.InsertCertificateIfAbsent(ctx, dsc); ierr != nil {
				e.log.WithValues("fingerprint", fp).Warning("failed to auto-register DSC discovered via PA request")
			}
		}
	}
	return dsc, e.validator.Validate(ctx, dsc, "")
}

func descriptorOf(cert *x509.Certificate) core.CertDescriptor {
	return core.CertDescriptor{
		Subject:     x509util.DNToRFC2253(cert.Subject),
		Serial:      x509util.SerialToHex(cert),
		Issuer:      x509util.DNToRFC2253(cert.Issuer),
		Fingerprint: x509util.Fingerprint(cert.Raw),
	}
}

func csesaDescriptorFrom(verdict chainval.Verdict) core.CertDescriptor {
	if len(verdict.Chain) == 0 {
		return core.CertDescriptor{}
	}
	anchor := verdict.Chain[len(verdict.Chain)-1]
	return core.CertDescriptor{
		Subject:     anchor.SubjectDN,
		Serial:      anchor.Serial,
		Issuer:      anchor.IssuerDN,
		Fingerprint: anchor.Fingerprint,
	}
}

// compareDataGroups hashes every presented DG with the SOD's declared
// algorithm and compares it to the expected value. Missing DGs are
// flagged present=false but never fail the overall comparison; a
// presented DG that fails to hash-match does.
func compareDataGroups(lds ldsSecurityObject, presented map[int][]byte) ([]core.DGHashResult, bool) {
	valid := true
	results := make([]core.DGHashResult, 0, len(lds.DataGroupHashValues))
	for _, dg := range lds.DataGroupHashValues {
		res := core.DGHashResult{
			DGNumber: dg.Number,
			Expected: hexString(dg.Hash),
		}
		raw, present := presented[dg.Number]
		res.Present = present
		if !present {
			results = append(results, res)
			continue
		}
		actual, ok := hashDG(lds.HashAlgorithm.Algorithm, raw)
		if !ok {
			res.Valid = false
			valid = false
			results = append(results, res)
			continue
		}
		res.Actual = actual
		res.Valid = actual == res.Expected
		if !res.Valid {
			valid = false
		}
		results = append(results, res)
	}
	return results, valid
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func invalidReason(v core.PaVerification, chainVerdict chainval.Verdict) string {
	switch {
	case !v.SODSignatureValid:
		return "SOD signature does not verify against the embedded DSC"
	case !v.DGHashesValid:
		return "one or more presented Data Group hashes do not match the SOD"
	case !v.TrustChainValid:
		if len(chainVerdict.Errors) > 0 {
			return "DSC trust chain invalid: " + chainVerdict.Errors[0]
		}
		return "DSC trust chain invalid"
	case !v.NotRevoked:
		return "DSC is revoked"
	default:
		return "passive authentication failed"
	}
}
