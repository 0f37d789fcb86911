package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/icao-pkd/trustdir/classify"
	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
	"github.com/icao-pkd/trustdir/goodkey"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/x509util"
)

var tracer = otel.Tracer("github.com/icao-pkd/trustdir/ingest")

// BlobArchiver archives the raw bytes of an accepted upload, keyed by
// its content hash. Satisfied by *sa.BlobStore; split out so ingest
// doesn't import sa directly.
type BlobArchiver interface {
	Put(ctx context.Context, contentHash string, data []byte) (string, error)
}

// Pipeline is C3: it turns one uploaded blob into Certificate/CRL rows
// in the Trust Store, tallying an UploadedFile's counters as it goes.
type Pipeline struct {
	store    core.TrustStore
	clk      clock.Clock
	log      log.Logger
	archiver BlobArchiver
	keys     *goodkey.Policy
}

// New constructs a Pipeline backed by store. archiver may be nil, in
// which case uploads are not archived to object storage.
func New(store core.TrustStore, clk clock.Clock, logger log.Logger, archiver BlobArchiver) *Pipeline {
	return &Pipeline{store: store, clk: clk, log: logger, archiver: archiver, keys: goodkey.NewPolicy()}
}

// Ingest detects data's format and processes it end to end, returning
// the finished UploadedFile record. A catastrophic format error (the
// top-level structure itself cannot be parsed at all) marks the whole
// file FAILED; per-entry failures are recorded as ParsingErrors and do
// not abort the pass.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte, hint classify.ContainerHint) (core.UploadedFile, error) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest", trace.WithAttributes(
		attribute.String("trustdir.filename", filename),
	))
	defer span.End()

	sum := sha256.Sum256(data)
	file := core.UploadedFile{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		ContentHash:      hex.EncodeToString(sum[:]),
		Size:             int64(len(data)),
		Format:           DetectFormat(data, filename),
		Status:           core.UploadProcessing,
		CreatedAt:        p.clk.Now(),
	}
	started := p.clk.Now()
	file.StartedAt = &started

	if p.archiver != nil {
		key, err := p.archiver.Put(ctx, file.ContentHash, data)
		if err != nil {
			p.log.Warning(fmt.Sprintf("failed to archive upload %s: %s", file.ContentHash, err))
		} else {
			file.BlobKey = key
		}
	}

	file, err := p.store.CreateUploadedFile(ctx, file)
	if err != nil {
		return file, pkderrors.StoreError("failed to record uploaded file: %s", err)
	}

	seen := map[string]bool{}
	counters, parseErrs, failErr := p.process(ctx, &file, data, hint, seen)

	finished := p.clk.Now()
	file.FinishedAt = &finished
	file.Counters = counters
	file.ParsingErrors = parseErrs

	if failErr != nil {
		file.Status = core.UploadFailed
		file.ErrorText = failErr.Error()
	} else {
		file.Status = core.UploadCompleted
	}

	if uerr := p.store.UpdateUploadedFile(ctx, file); uerr != nil {
		p.log.Err(fmt.Sprintf("failed to persist final upload status for %s: %s", file.ID, uerr))
	}

	return file, failErr
}

// process dispatches on the detected format and returns the final
// counters, the accumulated per-entry parsing errors, and a non-nil
// error only for a catastrophic (whole-file) failure.
func (p *Pipeline) process(ctx context.Context, file *core.UploadedFile, data []byte, hint classify.ContainerHint, seen map[string]bool) (core.TypeCounters, []core.ParsingError, error) {
	var counters core.TypeCounters
	var parseErrs []core.ParsingError

	switch file.Format {
	case core.FormatPEM, core.FormatDER, core.FormatCER, core.FormatBIN:
		p.ingestSingleBlob(ctx, data, file.Format, hint, seen, &counters, &parseErrs)
		return counters, parseErrs, nil

	case core.FormatLDIF:
		if err := p.ingestLDIF(ctx, file, data, hint, seen, &counters, &parseErrs); err != nil {
			return counters, parseErrs, err
		}
		return counters, parseErrs, nil

	case core.FormatML, core.FormatDVL:
		if err := p.ingestCMSContainer(ctx, file.Format, data, hint, seen, &counters, &parseErrs); err != nil {
			return counters, parseErrs, err
		}
		return counters, parseErrs, nil

	default:
		return counters, parseErrs, pkderrors.New(pkderrors.Parse, "unrecognized upload format")
	}
}

// ingestSingleBlob handles a PEM/DER/CER/BIN upload holding exactly one
// certificate or CRL.
func (p *Pipeline) ingestSingleBlob(ctx context.Context, data []byte, format core.UploadFormat, hint classify.ContainerHint, seen map[string]bool, counters *core.TypeCounters, parseErrs *[]core.ParsingError) {
	if cert, err := x509util.ParseCertificate(data, format); err == nil {
		p.insertCertificate(ctx, cert, hint, true, seen, counters, parseErrs)
		return
	}
	if crl, err := x509util.ParseCRL(data, format); err == nil {
		p.insertCRL(ctx, crl, seen, counters, parseErrs)
		return
	}
	*parseErrs = append(*parseErrs, core.ParsingError{
		ErrorCode: "UNPARSEABLE",
		Message:   "data is neither a valid certificate nor a valid CRL",
	})
	counters.Errors++
}

// ingestLDIF streams entries out of an LDIF buffer, classifying each by
// objectClass per spec §4.3.
func (p *Pipeline) ingestLDIF(ctx context.Context, file *core.UploadedFile, data []byte, hint classify.ContainerHint, seen map[string]bool, counters *core.TypeCounters, parseErrs *[]core.ParsingError) error {
	reader := newLdifReader(bytes.NewReader(data))
	entryCount := 0
	for {
		entry, err := reader.Next()
		if err != nil {
			break
		}
		entryCount++

		switch {
		case entry.hasObjectClass("pkdDownload"):
			for _, der := range entry.certificateAttrValues() {
				cert, perr := x509util.ParseCertificate(der, core.FormatDER)
				if perr != nil {
					recordEntryError(parseErrs, counters, entry.DN, "BAD_CERT", perr)
					continue
				}
				p.insertCertificate(ctx, cert, hint, true, seen, counters, parseErrs)
			}
		case entry.hasObjectClass("cRLDistributionPoint"):
			for _, der := range entry.crlAttrValues() {
				crl, perr := x509util.ParseCRL(der, core.FormatDER)
				if perr != nil {
					recordEntryError(parseErrs, counters, entry.DN, "BAD_CRL", perr)
					continue
				}
				p.insertCRL(ctx, crl, seen, counters, parseErrs)
			}
		default:
			// Entries that are neither pkdDownload nor cRLDistributionPoint
			// (e.g. the directory's own structural containers) carry no
			// binary payload for C1/C2 and are silently skipped.
		}
	}
	if entryCount == 0 {
		return pkderrors.New(pkderrors.Parse, "LDIF stream contained no entries")
	}
	file.CollectionNumber = reader.collectionNumber
	return nil
}

// ingestCMSContainer handles a Master List or Deviation List: parses
// the outer CMS SignedData, verifies its signature against the embedded
// signer certificate, and re-classifies every embedded certificate. A
// failed CMS signature does not abort ingest; the contained
// certificates are persisted with sourceVerified = false.
func (p *Pipeline) ingestCMSContainer(ctx context.Context, format core.UploadFormat, data []byte, hint classify.ContainerHint, seen map[string]bool, counters *core.TypeCounters, parseErrs *[]core.ParsingError) error {
	cms, err := x509util.ParseCms(data)
	if err != nil {
		return pkderrors.New(pkderrors.Parse, "master list / DVL is not valid CMS SignedData: %s", err)
	}

	sourceVerified := false
	if len(cms.EmbeddedCerts) > 0 {
		signerX509 := cms.EmbeddedCerts[0]
		sourceVerified = x509util.VerifyCmsSignedData(cms, signerX509)
		signerHint := hint
		if format == core.FormatDVL {
			signerHint = classify.ContainerNonConformant
		}
		p.insertCertificate(ctx, signerX509, signerHint, sourceVerified, seen, counters, parseErrs)
	}

	certDERs, err := extractMasterListCerts(cms.SignedContent)
	if err != nil {
		return err
	}
	for _, der := range certDERs {
		cert, perr := x509util.ParseCertificate(der, core.FormatDER)
		if perr != nil {
			recordEntryError(parseErrs, counters, "", "BAD_MASTERLIST_ENTRY", perr)
			continue
		}
		p.insertCertificateVerified(ctx, cert, hint, sourceVerified, seen, counters, parseErrs)
	}
	return nil
}

func recordEntryError(parseErrs *[]core.ParsingError, counters *core.TypeCounters, dn, code string, err error) {
	*parseErrs = append(*parseErrs, core.ParsingError{EntryDN: dn, ErrorCode: code, Message: err.Error()})
	counters.Errors++
}

// insertCertificate classifies and inserts cert, recording the
// caller-supplied sourceVerified flag on the stored row.
func (p *Pipeline) insertCertificate(ctx context.Context, cert *x509.Certificate, hint classify.ContainerHint, sourceVerified bool, seen map[string]bool, counters *core.TypeCounters, parseErrs *[]core.ParsingError) {
	p.insertCertificateVerified(ctx, cert, hint, sourceVerified, seen, counters, parseErrs)
}

func (p *Pipeline) insertCertificateVerified(ctx context.Context, cert *x509.Certificate, hint classify.ContainerHint, sourceVerified bool, seen map[string]bool, counters *core.TypeCounters, parseErrs *[]core.ParsingError) {
	result, err := classify.Classify(cert, hint)
	if err != nil {
		recordEntryError(parseErrs, counters, "", "CLASSIFY_FAILED", err)
		return
	}

	if seen[result.Fingerprint] {
		counters.Duplicate++
		return
	}
	seen[result.Fingerprint] = true

	rec := classify.Apply(x509util.ExtractMetadata(cert), result)
	rec.SourceVerified = sourceVerified
	rec.FirstIngestedAt = p.clk.Now()

	if flagged, _ := p.keys.Check(cert.PublicKey); flagged {
		rec.WeakKeyWarning = true
	}

	insertResult, err := p.store.InsertCertificateIfAbsent(ctx, rec)
	if err != nil {
		recordEntryError(parseErrs, counters, rec.SubjectDN, "STORE_FAILED", err)
		return
	}
	if !insertResult.Inserted {
		counters.Duplicate++
		return
	}
	incrementTypeCounter(counters, result.Type)

	*parseErrs = append(*parseErrs, lintCertificate(result.Fingerprint, cert.Raw)...)
}

func (p *Pipeline) insertCRL(ctx context.Context, crl *x509.RevocationList, seen map[string]bool, counters *core.TypeCounters, parseErrs *[]core.ParsingError) {
	fp := x509util.Fingerprint(crl.Raw)
	if seen[fp] {
		counters.Duplicate++
		return
	}
	seen[fp] = true

	rec := core.CRL{
		Fingerprint: fp,
		DER:         crl.Raw,
		IssuerDN:    x509util.DNToRFC2253(crl.Issuer),
		Country:     x509util.CountryFromDN(crl.Issuer),
		ThisUpdate:  crl.ThisUpdate,
		NextUpdate:  crl.NextUpdate,
	}
	if crl.Number != nil {
		rec.CRLNumber = crl.Number.String()
	}
	for _, rc := range crl.RevokedCertificateEntries {
		revoked := core.RevokedCertificate{
			Serial:         fmt.Sprintf("%X", rc.SerialNumber),
			RevocationDate: rc.RevocationTime,
		}
		rec.Revoked = append(rec.Revoked, revoked)
	}
	rec.FirstIngestedAt = p.clk.Now()

	insertResult, err := p.store.InsertCRLIfAbsent(ctx, rec)
	if err != nil {
		recordEntryError(parseErrs, counters, rec.IssuerDN, "STORE_FAILED", err)
		return
	}
	if !insertResult.Inserted {
		counters.Duplicate++
		return
	}
	counters.CRL++
}

func incrementTypeCounter(counters *core.TypeCounters, t core.CertType) {
	switch t {
	case core.CertTypeCSCA:
		counters.CSCA++
	case core.CertTypeDSC:
		counters.DSC++
	case core.CertTypeDSCNC:
		counters.DSCNC++
	default:
		// MLSC, LINK, and DVL_SIGNER certificates share the ML bucket:
		// TypeCounters has no dedicated field for them.
		counters.ML++
	}
}
