// Package ingest implements C3: the file ingest pipeline that turns an
// uploaded blob of any supported format into certificate and CRL
// records, persisted through the Trust Store and tallied into an
// UploadedFile's counters.
package ingest

import (
	"bytes"

	"github.com/icao-pkd/trustdir/core"
)

// DetectFormat applies the cheap-first rules from spec §4.3. The
// filename extension is consulted only as a last-resort hint; it is
// never authoritative.
func DetectFormat(data []byte, filenameHint string) core.UploadFormat {
	if bytes.HasPrefix(data, []byte("-----BEGIN ")) {
		return core.FormatPEM
	}
	if looksLikeLDIF(data) {
		return core.FormatLDIF
	}
	if len(data) > 0 && data[0] == 0x30 {
		return detectDERKind(data, filenameHint)
	}
	return formatFromExtension(filenameHint)
}

// looksLikeLDIF checks for an RFC 2849 "version: 1" header followed, at
// some point, by a "dn:" attribute line.
func looksLikeLDIF(data []byte) bool {
	lines := bytes.SplitN(data, []byte("\n"), 8)
	sawVersion := false
	for _, line := range lines {
		trimmed := bytes.TrimRight(line, "\r")
		switch {
		case bytes.HasPrefix(trimmed, []byte("version:")):
			sawVersion = true
		case bytes.HasPrefix(trimmed, []byte("dn:")):
			return sawVersion
		case len(bytes.TrimSpace(trimmed)) == 0 || bytes.HasPrefix(trimmed, []byte("#")):
			continue
		}
	}
	return false
}

// detectDERKind distinguishes an X.509 certificate, CRL, or CMS
// SignedData (Master List / DVL) by structural shape: a CMS
// ContentInfo's outer SEQUENCE is followed by the signedData OID
// (1.2.840.113549.1.7.2); a bare certificate/CRL is not. The precise
// distinction between certificate and CRL, and between Master List and
// DVL, is left to the caller's parse attempts (cheapest-first), since
// both share the same outer DER shape at this level of inspection.
func detectDERKind(data []byte, filenameHint string) core.UploadFormat {
	if looksLikeCMS(data) {
		if isDVLFilename(filenameHint) {
			return core.FormatDVL
		}
		return core.FormatML
	}
	return core.FormatDER
}

// signedDataOIDDER is the DER encoding of OID 1.2.840.113549.1.7.2
// (signedData), as it appears inside a ContentInfo's contentType field.
var signedDataOIDDER = []byte{0x06, 0x09, 0x2A, 0x86, 0x48, 0x86, 0xF7, 0x0D, 0x01, 0x07, 0x02}

func looksLikeCMS(data []byte) bool {
	window := data
	if len(window) > 32 {
		window = window[:32]
	}
	return bytes.Contains(window, signedDataOIDDER)
}

func isDVLFilename(filenameHint string) bool {
	return bytes.Contains([]byte(filenameHint), []byte("icaopkd-003"))
}

func formatFromExtension(filenameHint string) core.UploadFormat {
	switch {
	case hasSuffixFold(filenameHint, ".pem"):
		return core.FormatPEM
	case hasSuffixFold(filenameHint, ".cer"):
		return core.FormatCER
	case hasSuffixFold(filenameHint, ".ldif"):
		return core.FormatLDIF
	case hasSuffixFold(filenameHint, ".ml"):
		return core.FormatML
	default:
		return core.FormatBIN
	}
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	return bytes.EqualFold([]byte(tail), []byte(suffix))
}
