package sa

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/log"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type countingStore struct {
	core.TrustStore
	certInserts int
	crlInserts  int
}

func (c *countingStore) InsertCertificateIfAbsent(ctx context.Context, cert core.Certificate) (core.InsertResult, error) {
	c.certInserts++
	return core.InsertResult{Inserted: true}, nil
}

func (c *countingStore) InsertCRLIfAbsent(ctx context.Context, crl core.CRL) (core.InsertResult, error) {
	c.crlInserts++
	return core.InsertResult{Inserted: true}, nil
}

func TestDedupStoreInsertCertificateIfAbsentSkipsCacheHit(t *testing.T) {
	inner := &countingStore{}
	d := NewDedupStore(inner, newTestRedis(t), log.NewMock())
	cert := core.Certificate{Fingerprint: "fp1"}

	if _, err := d.InsertCertificateIfAbsent(context.Background(), cert); err != nil {
		t.Fatal(err)
	}
	if inner.certInserts != 1 {
		t.Fatalf("expected the first insert to reach the underlying store, got %d calls", inner.certInserts)
	}

	result, err := d.InsertCertificateIfAbsent(context.Background(), cert)
	if err != nil {
		t.Fatal(err)
	}
	if result.Inserted {
		t.Fatal("expected a cache hit to report the fingerprint as already present")
	}
	if inner.certInserts != 1 {
		t.Fatalf("expected the second insert to be served entirely from cache, got %d calls", inner.certInserts)
	}
}

func TestDedupStoreInsertCRLIfAbsentSkipsCacheHit(t *testing.T) {
	inner := &countingStore{}
	d := NewDedupStore(inner, newTestRedis(t), log.NewMock())
	crl := core.CRL{Fingerprint: "crl1"}

	if _, err := d.InsertCRLIfAbsent(context.Background(), crl); err != nil {
		t.Fatal(err)
	}
	if _, err := d.InsertCRLIfAbsent(context.Background(), crl); err != nil {
		t.Fatal(err)
	}
	if inner.crlInserts != 1 {
		t.Fatalf("expected the second crl insert to be served entirely from cache, got %d calls", inner.crlInserts)
	}
}

func TestDedupStoreDistinctFingerprintsBothReachStore(t *testing.T) {
	inner := &countingStore{}
	d := NewDedupStore(inner, newTestRedis(t), log.NewMock())

	if _, err := d.InsertCertificateIfAbsent(context.Background(), core.Certificate{Fingerprint: "fp1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.InsertCertificateIfAbsent(context.Background(), core.Certificate{Fingerprint: "fp2"}); err != nil {
		t.Fatal(err)
	}
	if inner.certInserts != 2 {
		t.Fatalf("expected two distinct fingerprints to both reach the store, got %d calls", inner.certInserts)
	}
}
