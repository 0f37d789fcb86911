package portalsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/metrics"
)

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) FetchPortalHTML(ctx context.Context) (string, error) {
	return f.html, f.err
}

type fakeStore struct {
	rows map[string]core.IcaoVersion
}

func newFakeStore(existing ...core.IcaoVersion) *fakeStore {
	s := &fakeStore{rows: map[string]core.IcaoVersion{}}
	for _, v := range existing {
		s.rows[key(v.Collection, v.Version)] = v
	}
	return s
}

func key(c core.Collection, v int) string { return fmt.Sprintf("%s|%d", c, v) }

func (s *fakeStore) FindIcaoVersion(ctx context.Context, collection core.Collection, version int) (core.IcaoVersion, bool, error) {
	v, ok := s.rows[key(collection, version)]
	return v, ok, nil
}

func (s *fakeStore) InsertIcaoVersion(ctx context.Context, v core.IcaoVersion) (core.InsertResult, error) {
	k := key(v.Collection, v.Version)
	if existing, ok := s.rows[k]; ok {
		return core.InsertResult{Inserted: false, ExistingID: existing.ID}, nil
	}
	s.rows[k] = v
	return core.InsertResult{Inserted: true}, nil
}

func (s *fakeStore) MarkIcaoVersionNotified(ctx context.Context, id string) error {
	for k, v := range s.rows {
		if v.ID == id {
			v.Notified = true
			v.Status = core.VersionNotified
			s.rows[k] = v
		}
	}
	return nil
}

type fakeNotifier struct {
	sent []string
}

func (n *fakeNotifier) Notify(ctx context.Context, subject, body string) error {
	n.sent = append(n.sent, subject)
	return nil
}

func fixedNow() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) }

func newScope() metrics.Scope {
	return metrics.NewPromScope(prometheus.NewRegistry())
}

func TestSyncDetectsNewVersionsAndSkipsKnown(t *testing.T) {
	html := `<a href="icaopkd-001-complete-005973.ldif">DSC/CRL</a>
	<a href="icaopkd-002-complete-000350.ldif">Master List</a>`

	store := newFakeStore(core.IcaoVersion{Collection: core.CollectionMasterList, Version: 350, ID: "existing"})
	notifier := &fakeNotifier{}
	s := New(&fakeFetcher{html: html}, store, notifier, fixedNow, log.NewMock(), newScope(), true)

	detected, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, core.CollectionDSCCRL, detected[0].Collection)
	assert.Equal(t, 5973, detected[0].Version)
	assert.Equal(t, "icaopkd-001-complete-005973.ldif", detected[0].Filename)

	row, found, _ := store.FindIcaoVersion(context.Background(), core.CollectionDSCCRL, 5973)
	require.True(t, found)
	assert.Equal(t, core.VersionNotified, row.Status)
	assert.Len(t, notifier.sent, 1)
}

func TestSyncSkipsUnparseableFilenameWithoutAborting(t *testing.T) {
	html := `icaopkd-004-complete-000001.ldif icaopkd-001-complete-000001.ldif`
	store := newFakeStore()
	s := New(&fakeFetcher{html: html}, store, &fakeNotifier{}, fixedNow, log.NewMock(), newScope(), false)

	detected, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, core.CollectionDSCCRL, detected[0].Collection)
}

func TestSyncPropagatesFetchFailureAfterRetries(t *testing.T) {
	store := newFakeStore()
	s := New(&fakeFetcher{err: assertErr{}}, store, &fakeNotifier{}, fixedNow, log.NewMock(), newScope(), false)
	s.sleep = func(time.Duration) {}

	_, err := s.Sync(context.Background())
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "connection refused" }
