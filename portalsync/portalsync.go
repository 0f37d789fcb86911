// Package portalsync implements C9: polling the public ICAO PKD
// download portal, extracting newly published LDIF collection
// versions, persisting them as core.IcaoVersion rows, and notifying
// operators.
package portalsync

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/metrics"
)

// filenamePattern matches the three ICAO download-page filename shapes
// named in spec §4.9 step 2: icaopkd-00{1,2,3}-complete-<N>.ldif.
var filenamePattern = regexp.MustCompile(`icaopkd-00([123])-complete-(\d+)\.ldif`)

// collectionForPrefix maps the 001/002/003 prefix to its Collection, per
// spec §4.9 step 2.
var collectionForPrefix = map[string]core.Collection{
	"1": core.CollectionDSCCRL,
	"2": core.CollectionMasterList,
	"3": core.CollectionDSCNC,
}

// retrySchedule is the bounded jittered-backoff plan from spec §7's
// NetworkError policy: an initial 30s wait, then five retries at a
// 5-minute cadence.
var retrySchedule = []time.Duration{
	30 * time.Second,
	5 * time.Minute,
	5 * time.Minute,
	5 * time.Minute,
	5 * time.Minute,
	5 * time.Minute,
}

// fetchTimeout bounds a single portal GET, per spec §4.9 step 1.
const fetchTimeout = 10 * time.Second

// Store is the subset of the Trust Store (C4) the syncer reads and
// writes.
type Store interface {
	FindIcaoVersion(ctx context.Context, collection core.Collection, version int) (core.IcaoVersion, bool, error)
	InsertIcaoVersion(ctx context.Context, v core.IcaoVersion) (core.InsertResult, error)
	MarkIcaoVersionNotified(ctx context.Context, id string) error
}

// DetectedVersion is one newly-found filename, returned from Sync for
// logging/testing visibility beyond the persisted rows.
type DetectedVersion struct {
	Collection core.Collection
	Filename   string
	Version    int
}

// Syncer is C9.
type Syncer struct {
	fetcher    core.PortalFetcher
	store      Store
	notifier   core.Notifier
	now        func() time.Time
	log        log.Logger
	stats      metrics.Scope
	autoNotify bool
	sleep      func(time.Duration)
}

// New constructs a Syncer. autoNotify controls whether a successful
// pass composes and sends a notification for newly detected versions
// (spec §4.9 step 5); when false, rows are left in DETECTED and never
// advance to NOTIFIED.
func New(fetcher core.PortalFetcher, store Store, notifier core.Notifier, now func() time.Time, logger log.Logger, stats metrics.Scope, autoNotify bool) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		fetcher: fetcher, store: store, notifier: notifier,
		now: now, log: logger, stats: stats, autoNotify: autoNotify,
		sleep: time.Sleep,
	}
}

// Sync runs one poll pass: fetch, extract, diff, insert, notify. A
// network error leaves state unchanged (after exhausting the retry
// schedule) and is logged, not propagated as a process failure; a parse
// error on a single filename skips that filename but does not abort the
// pass, per spec §4.9's failure model.
func (s *Syncer) Sync(ctx context.Context) ([]DetectedVersion, error) {
	html, err := s.fetchWithRetry(ctx)
	if err != nil {
		s.stats.Inc("PortalSync.FetchFailures", 1)
		s.log.AuditErr(fmt.Errorf("icao portal fetch failed after retries: %w", err))
		return nil, err
	}

	candidates := extractFilenames(html)
	var detected []DetectedVersion

	for _, c := range candidates {
		_, found, err := s.store.FindIcaoVersion(ctx, c.Collection, c.Version)
		if err != nil {
			s.log.AuditErr(fmt.Errorf("icao version lookup failed for %s: %w", c.Filename, err))
			continue
		}
		if found {
			continue
		}

		row := core.IcaoVersion{
			ID:         uuid.NewString(),
			Collection: c.Collection,
			Filename:   c.Filename,
			Version:    c.Version,
			Status:     core.VersionDetected,
			DetectedAt: s.now(),
		}
		result, err := s.store.InsertIcaoVersion(ctx, row)
		if err != nil {
			s.log.AuditErr(fmt.Errorf("failed to persist detected version %s: %w", c.Filename, err))
			continue
		}
		if !result.Inserted {
			// Lost a race with another poller instance; not a new version.
			continue
		}
		detected = append(detected, c)
		s.stats.Inc("PortalSync.VersionsDetected", 1)

		if s.autoNotify {
			s.notifyOne(ctx, row)
		}
	}

	return detected, nil
}

func (s *Syncer) notifyOne(ctx context.Context, v core.IcaoVersion) {
	subject := fmt.Sprintf("ICAO PKD: new %s version detected", v.Collection)
	body := fmt.Sprintf("A new %s collection file was published on the ICAO PKD download portal:\n\n  %s (version %d)\n",
		v.Collection, v.Filename, v.Version)
	if err := s.notifier.Notify(ctx, subject, body); err != nil {
		s.log.AuditErr(fmt.Errorf("notification failed for %s: %w", v.Filename, err))
		return
	}
	if err := s.store.MarkIcaoVersionNotified(ctx, v.ID); err != nil {
		s.log.AuditErr(fmt.Errorf("failed to mark %s notified: %w", v.Filename, err))
	}
}

// fetchWithRetry applies the bounded jittered-backoff schedule from
// spec §7 to a single portal fetch.
func (s *Syncer) fetchWithRetry(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(retrySchedule); attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		html, err := s.fetcher.FetchPortalHTML(fetchCtx)
		cancel()
		if err == nil {
			return html, nil
		}
		lastErr = err
		if attempt == len(retrySchedule) {
			break
		}
		wait := jitter(retrySchedule[attempt])
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			s.sleep(wait)
		}
	}
	return "", pkderrors.NetworkError("icao portal unreachable after %d attempts: %s", len(retrySchedule)+1, lastErr)
}

// jitter returns a duration within +/-20% of d, so that many poller
// instances retrying at once don't synchronize their backoff.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

// extractFilenames applies filenamePattern to html and maps
// each match to its Collection, per spec §4.9 step 2. A filename whose
// version number doesn't parse is skipped, not fatal to the pass.
func extractFilenames(html string) []DetectedVersion {
	var out []DetectedVersion
	seen := map[string]bool{}
	for _, match := range filenamePattern.FindAllStringSubmatch(html, -1) {
		filename := match[0]
		if seen[filename] {
			continue
		}
		seen[filename] = true

		collection, ok := collectionForPrefix[match[1]]
		if !ok {
			continue
		}
		version, err := strconv.Atoi(strings.TrimLeft(match[2], "0"))
		if err != nil {
			if match[2] == strings.Repeat("0", len(match[2])) {
				version = 0
			} else {
				continue
			}
		}
		out = append(out, DetectedVersion{Collection: collection, Filename: filename, Version: version})
	}
	return out
}
