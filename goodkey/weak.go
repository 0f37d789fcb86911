// Package goodkey implements the weak-key checks the ingest pipeline
// (C3) runs on every RSA public key it sees: a denylist of known-weak
// moduli (identified by the trailing bytes of the modulus' SHA-1 digest,
// per the teacher's own weakKeys suffix scheme) and a ROCA (Infineon
// RSALib) check. Neither
// check rejects a certificate outright — spec §3/§7 only asks for a
// non-fatal WeakKeyWarning on the stored row — so GoodKey never
// prevents ingest, it only annotates it.
package goodkey

import (
	"bufio"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505 -- matches the denylist's own key fingerprint, not used for security
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/titanous/rocacheck"
)

// suffixLen is the number of trailing bytes of a modulus' SHA-1 digest
// the denylist is keyed on, matching the teacher's own weak-key database
// format (one suffix per line, comments start with '#').
const suffixLen = 10

// weakKeys holds a set of known-weak RSA modulus suffixes.
type weakKeys struct {
	mu       sync.RWMutex
	suffixes map[[suffixLen]byte]struct{}
}

// newWeakKeys constructs an empty denylist.
func newWeakKeys() *weakKeys {
	return &weakKeys{suffixes: make(map[[suffixLen]byte]struct{})}
}

// addSuffix registers one hex-encoded modulus suffix.
func (wk *weakKeys) addSuffix(hexSuffix string) error {
	if len(hexSuffix) != suffixLen*2 {
		return fmt.Errorf("goodkey: weak-key suffix %q is not %d hex chars", hexSuffix, suffixLen*2)
	}
	decoded, err := hex.DecodeString(hexSuffix)
	if err != nil {
		return fmt.Errorf("goodkey: malformed weak-key suffix %q: %w", hexSuffix, err)
	}
	var raw [suffixLen]byte
	copy(raw[:], decoded)
	wk.mu.Lock()
	wk.suffixes[raw] = struct{}{}
	wk.mu.Unlock()
	return nil
}

// Known reports whether data (typically a modulus' raw bytes) hashes to
// a suffix on the denylist. The denylist is keyed on the trailing 10
// bytes of the SHA-1 digest, matching the known-weak-key database
// format the teacher's weak_test.go exercises.
func (wk *weakKeys) Known(data []byte) bool {
	sum := sha1.Sum(data)
	var suffix [suffixLen]byte
	copy(suffix[:], sum[len(sum)-suffixLen:])
	wk.mu.RLock()
	defer wk.mu.RUnlock()
	_, ok := wk.suffixes[suffix]
	return ok
}

// loadSuffixes reads every file in dir as a newline-delimited list of
// hex-encoded modulus suffixes, skipping blank lines and '#' comments.
func loadSuffixes(dir string) (*weakKeys, error) {
	wk := newWeakKeys()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("goodkey: reading weak-key directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := wk.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}
	return wk, nil
}

func (wk *weakKeys) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("goodkey: opening weak-key file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := wk.addSuffix(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Policy evaluates an ingested certificate's RSA public key against the
// known-weak-modulus denylist and the ROCA fingerprint, the two
// non-fatal key checks spec §3/§7 asks for (WeakKeyWarning).
type Policy struct {
	weak *weakKeys
}

// NewPolicy constructs a Policy with an empty denylist; LoadWeakKeys
// populates it from a directory of suffix files.
func NewPolicy() *Policy {
	return &Policy{weak: newWeakKeys()}
}

// LoadWeakKeys replaces the policy's denylist with the suffixes found
// in dir.
func (p *Policy) LoadWeakKeys(dir string) error {
	wk, err := loadSuffixes(dir)
	if err != nil {
		return err
	}
	p.weak = wk
	return nil
}

// Check reports whether pub is flagged by either check. It never
// returns an error: an unsupported key type (anything but RSA) simply
// isn't flagged, since the denylist and ROCA check are RSA-specific.
func (p *Policy) Check(pub interface{}) (flagged bool, reason string) {
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false, ""
	}
	if rocacheck.IsWeak(rsaKey) {
		return true, "ROCA: modulus pattern consistent with Infineon RSALib key generation defect"
	}
	if p.weak != nil && p.weak.Known(rsaKey.N.Bytes()) {
		return true, "modulus suffix matches a known-weak key database entry"
	}
	return false, ""
}
