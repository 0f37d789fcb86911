package x509util

import (
	"bytes"
	"crypto/x509/pkix"
	"sort"
	"strings"
)

// DNToRFC2253 renders a parsed Name in RFC 2253 form. crypto/x509/pkix's
// own Name.String() already produces RFC 2253-ordered RDNs (most
// specific first), which is what every other component expects to
// persist and compare.
func DNToRFC2253(name pkix.Name) string {
	return name.String()
}

// DNEqual implements the ASN.1-aware DN comparison spec §4.1 calls for.
// The primary check compares the raw DER encodings byte-for-byte — this
// is exact and handles the common case where both names were encoded by
// the same issuer. When the raw bytes are available but differ (e.g. one
// side re-encoded under a different string type, PrintableString vs
// UTF8String) it falls back to the normalized form, which is
// encoding-insensitive by construction.
func DNEqual(rawA, rawB []byte, a, b pkix.Name) bool {
	if len(rawA) > 0 && len(rawB) > 0 && bytes.Equal(rawA, rawB) {
		return true
	}
	return NormalizeDN(a) == NormalizeDN(b)
}

// rdnKeys is the set of RDN attributes considered for cross-store
// matching, per spec §4.1/§9.
var rdnKeys = []string{"C", "O", "OU", "CN", "serialNumber"}

// NormalizeDN strips whitespace, lowercases, and joins the RDN values for
// {C, O, OU, CN, serialNumber} with "|", sorted by attribute name. It is
// used only for cross-store searches where the two sides may have
// encoded the same DN under different ASN.1 string types; it is never
// the primary identity comparison.
func NormalizeDN(name pkix.Name) string {
	values := map[string]string{
		"C":            strings.Join(name.Country, ","),
		"O":            strings.Join(name.Organization, ","),
		"OU":           strings.Join(name.OrganizationalUnit, ","),
		"CN":           name.CommonName,
		"serialNumber": name.SerialNumber,
	}
	keys := append([]string(nil), rdnKeys...)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ToLower(strings.TrimSpace(values[k]))
		if v == "" {
			continue
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "|")
}

// CountryFromDN extracts the ISO-3166 alpha-2 country code from a
// Subject DN's C= RDN, or "" if absent.
func CountryFromDN(name pkix.Name) string {
	if len(name.Country) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(name.Country[0]))
}
