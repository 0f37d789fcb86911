package ingest

import (
	"fmt"

	zcryptox509 "github.com/zmap/zcrypto/x509"
	"github.com/zmap/zlint/v3"
	"github.com/zmap/zlint/v3/lint"

	"github.com/icao-pkd/trustdir/core"
)

// lintRegistry is the global zlint rule set, built once per process.
var lintRegistry = lint.GlobalRegistry()

// lintCertificate re-parses der with zcrypto's x509 (zlint operates on
// its richer parse tree, not the stdlib one) and runs every registered
// lint against it. It never fails ingest: a lint-engine error or an
// ERROR-level finding both come back as non-fatal ParsingErrors, the
// same diagnostic channel spec §4.3 uses for per-entry failures,
// because RFC 5280 conformance issues are exactly the kind of signal
// that should be recorded and not block the rest of the file.
func lintCertificate(fingerprint string, der []byte) []core.ParsingError {
	cert, err := zcryptox509.ParseCertificate(der)
	if err != nil {
		return []core.ParsingError{{
			EntryDN:   fingerprint,
			ErrorCode: "LINT_PARSE_ERROR",
			Message:   fmt.Sprintf("zlint re-parse failed: %s", err),
		}}
	}

	result := zlint.LintCertificateEx(cert, lintRegistry)
	if result == nil {
		return nil
	}

	var findings []core.ParsingError
	for name, lr := range result.Results {
		if lr == nil || lr.Status != lint.Error {
			continue
		}
		findings = append(findings, core.ParsingError{
			EntryDN:   fingerprint,
			ErrorCode: "LINT_" + name,
			Message:   fmt.Sprintf("zlint %s: %s", name, lr.Status.String()),
		})
	}
	return findings
}
