package pa

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"encoding/hex"
)

// hashDG hashes raw DG bytes with the algorithm named by oid. An
// unrecognized OID is reported by the caller as a diagnostic rather
// than crashing the engine.
func hashDG(oid asn1.ObjectIdentifier, raw []byte) (string, bool) {
	switch {
	case oid.Equal(oidSHA1):
		sum := sha1.Sum(raw)
		return hex.EncodeToString(sum[:]), true
	case oid.Equal(oidSHA256):
		sum := sha256.Sum256(raw)
		return hex.EncodeToString(sum[:]), true
	case oid.Equal(oidSHA384):
		sum := sha512.Sum384(raw)
		return hex.EncodeToString(sum[:]), true
	case oid.Equal(oidSHA512):
		sum := sha512.Sum512(raw)
		return hex.EncodeToString(sum[:]), true
	default:
		return "", false
	}
}
