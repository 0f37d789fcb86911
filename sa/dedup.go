package sa

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/log"
)

// dedupTTL bounds how long a fingerprint's presence is cached before the
// next insert falls through to the database again, keeping the cache
// from drifting from the source of truth indefinitely.
const dedupTTL = 24 * time.Hour

// DedupStore wraps a core.TrustStore with a Redis-backed fingerprint
// cache in front of InsertCertificateIfAbsent/InsertCRLIfAbsent, so a
// bulk master-list ingest (spec §4.3, tens of thousands of entries) can
// skip a DB round trip for fingerprints already cached in Redis within
// dedupTTL, instead of relying solely on the unique-constraint check.
type DedupStore struct {
	core.TrustStore
	redis *redis.Client
	log   log.Logger
}

// NewDedupStore wraps store with a fingerprint cache backed by rc.
func NewDedupStore(store core.TrustStore, rc *redis.Client, logger log.Logger) *DedupStore {
	return &DedupStore{TrustStore: store, redis: rc, log: logger}
}

func certCacheKey(fingerprint string) string { return "trustdir:dedup:cert:" + fingerprint }
func crlCacheKey(fingerprint string) string   { return "trustdir:dedup:crl:" + fingerprint }

// InsertCertificateIfAbsent overrides the embedded TrustStore: a cache
// hit short-circuits to "already present" without touching the
// database; a cache miss falls through to the real insert and populates
// the cache on success either way (inserted or found-to-be-a-duplicate).
func (d *DedupStore) InsertCertificateIfAbsent(ctx context.Context, cert core.Certificate) (core.InsertResult, error) {
	if seen, err := d.redis.Exists(ctx, certCacheKey(cert.Fingerprint)).Result(); err == nil && seen == 1 {
		return core.InsertResult{Inserted: false, ExistingID: cert.Fingerprint}, nil
	}

	result, err := d.TrustStore.InsertCertificateIfAbsent(ctx, cert)
	if err != nil {
		return result, err
	}
	if err := d.redis.Set(ctx, certCacheKey(cert.Fingerprint), "1", dedupTTL).Err(); err != nil {
		d.log.Warning("dedup cache write failed for certificate " + cert.Fingerprint + ": " + err.Error())
	}
	return result, nil
}

// InsertCRLIfAbsent overrides the embedded TrustStore with the same
// cache-then-fallthrough behavior as InsertCertificateIfAbsent.
func (d *DedupStore) InsertCRLIfAbsent(ctx context.Context, crl core.CRL) (core.InsertResult, error) {
	if seen, err := d.redis.Exists(ctx, crlCacheKey(crl.Fingerprint)).Result(); err == nil && seen == 1 {
		return core.InsertResult{Inserted: false, ExistingID: crl.Fingerprint}, nil
	}

	result, err := d.TrustStore.InsertCRLIfAbsent(ctx, crl)
	if err != nil {
		return result, err
	}
	if err := d.redis.Set(ctx, crlCacheKey(crl.Fingerprint), "1", dedupTTL).Err(); err != nil {
		d.log.Warning("dedup cache write failed for crl " + crl.Fingerprint + ": " + err.Error())
	}
	return result, nil
}

var _ core.TrustStore = (*DedupStore)(nil)
