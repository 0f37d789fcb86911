package goodkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakKeysKnown(t *testing.T) {
	wk := newWeakKeys()
	require.NoError(t, wk.addSuffix("200352313bc059445190"))

	assert.True(t, wk.Known([]byte("asd")))
	assert.False(t, wk.Known([]byte("ASD")))
}

func TestLoadSuffixes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("# comment\n200352313bc059445190"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("# comment\ndc47cdf6b45d89e8b2a0"), 0o644))

	wk, err := loadSuffixes(dir)
	require.NoError(t, err)

	assert.True(t, wk.Known([]byte("asd")))
	assert.True(t, wk.Known([]byte("dsa")))
}

func TestPolicyCheckIgnoresNonRSA(t *testing.T) {
	p := NewPolicy()
	flagged, reason := p.Check("not a key")
	assert.False(t, flagged)
	assert.Empty(t, reason)
}
