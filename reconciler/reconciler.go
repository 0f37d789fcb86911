// Package reconciler implements C8: the periodic gather/repair pass
// that keeps the LDAP mirror in sync with the Trust Store, plus
// optional revalidation of soon-to-expire certificates.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/icao-pkd/trustdir/chainval"
	"github.com/icao-pkd/trustdir/core"
	"github.com/icao-pkd/trustdir/log"
	"github.com/icao-pkd/trustdir/metrics"
)

// State is one reconciliation pass's lifecycle phase.
type State string

const (
	StateIdle       State = "IDLE"
	StateCounting   State = "COUNTING"
	StateRepairing  State = "REPAIRING"
	StatePersisting State = "PERSISTING"
	StateFailed     State = "FAILED"
)

// lockKey is the Redis single-flight key guarding concurrent passes
// across process instances; an in-process mutex alone wouldn't stop two
// replicas from reconciling at once.
const lockKey = "pkd:reconciler:lock"
const lockTTL = 10 * time.Minute

// revalidationWindow is how far ahead of now C8 step 5 looks for
// certificates due for re-validation, per spec §4.8.
const revalidationWindow = 30 * 24 * time.Hour

// Reconciler is C8.
type Reconciler struct {
	store     core.TrustStore
	directory core.DirectoryPublisher
	validator *chainval.Validator
	redis     *redis.Client
	clk       func() time.Time
	log       log.Logger
	stats     metrics.Scope

	maxBatchSize        int
	revalidateOnSync    bool
	repairEnabled       bool
}

// New constructs a Reconciler.
func New(store core.TrustStore, directory core.DirectoryPublisher, validator *chainval.Validator, redisClient *redis.Client, clk func() time.Time, logger log.Logger, stats metrics.Scope, maxBatchSize int, repairEnabled, revalidateOnSync bool) *Reconciler {
	if clk == nil {
		clk = time.Now
	}
	return &Reconciler{
		store: store, directory: directory, validator: validator, redis: redisClient,
		clk: clk, log: logger, stats: stats,
		maxBatchSize: maxBatchSize, repairEnabled: repairEnabled, revalidateOnSync: revalidateOnSync,
	}
}

// RunResult is what one Run call reports.
type RunResult struct {
	State    State
	Status   core.SyncStatus
	Failures []core.ReconciliationFailure
	Message  string
}

// Run executes one full reconciliation pass: gather, compute, repair,
// persist, and optionally revalidate. Only one pass runs at a time
// across the whole deployment; a concurrent request short-circuits with
// RECONCILIATION_IN_PROGRESS instead of blocking.
func (r *Reconciler) Run(ctx context.Context) RunResult {
	token := uuid.NewString()
	acquired, err := r.redis.SetNX(ctx, lockKey, token, lockTTL).Result()
	if err != nil {
		r.log.AuditErr(fmt.Errorf("reconciler lock acquisition failed: %w", err))
		return RunResult{State: StateFailed, Message: "RECONCILIATION_IN_PROGRESS: lock backend unavailable"}
	}
	if !acquired {
		return RunResult{State: StateFailed, Message: "RECONCILIATION_IN_PROGRESS"}
	}
	defer r.releaseLock(ctx, token)

	state := StateCounting
	r.stats.Inc("Reconciler.Passes", 1)

	byType, byCountry, crlCounts, err := r.gather(ctx)
	if err != nil {
		r.stats.Inc("Reconciler.GatherFailures", 1)
		return RunResult{State: StateFailed, Message: err.Error()}
	}

	discrepancies, crlDiscrepancy, total := computeDiscrepancies(byType, crlCounts)

	var failures []core.ReconciliationFailure
	if r.repairEnabled && total > 0 {
		state = StateRepairing
		failures = r.repair(ctx, discrepancies)
	}

	state = StatePersisting
	status := core.SyncStatus{
		ID:               uuid.NewString(),
		CheckedAt:        r.clk(),
		ByType:           byType,
		CRL:              crlCounts,
		Discrepancies:    discrepancies,
		CRLDiscrepancy:   crlDiscrepancy,
		TotalDiscrepancy: total + crlDiscrepancy,
		SyncRequired:     total+crlDiscrepancy > 0,
		ByCountry:        byCountry,
	}
	if err := r.store.SaveSyncStatus(ctx, status); err != nil {
		return RunResult{State: StateFailed, Message: fmt.Sprintf("failed to persist sync status: %s", err)}
	}

	if r.revalidateOnSync {
		r.revalidate(ctx)
	}

	state = StateIdle
	return RunResult{State: state, Status: status, Failures: failures}
}

func (r *Reconciler) releaseLock(ctx context.Context, token string) {
	cur, err := r.redis.Get(ctx, lockKey).Result()
	if err == nil && cur == token {
		r.redis.Del(ctx, lockKey)
	}
}

// gather collects per-type counts from both stores, per spec §4.8 step 1.
func (r *Reconciler) gather(ctx context.Context) (map[core.CertType]core.CountBreakdown, map[string]core.CountBreakdown, core.CountBreakdown, error) {
	dbByType, err := r.store.CountByType(ctx)
	if err != nil {
		return nil, nil, core.CountBreakdown{}, fmt.Errorf("gather: DB count by type: %w", err)
	}
	ldapByType, err := r.directory.CountByType(ctx)
	if err != nil {
		return nil, nil, core.CountBreakdown{}, fmt.Errorf("gather: LDAP count by type: %w", err)
	}
	dbByCountry, err := r.store.CountByCountry(ctx)
	if err != nil {
		return nil, nil, core.CountBreakdown{}, fmt.Errorf("gather: DB count by country: %w", err)
	}
	ldapByCountry, err := r.directory.CountByCountry(ctx)
	if err != nil {
		return nil, nil, core.CountBreakdown{}, fmt.Errorf("gather: LDAP count by country: %w", err)
	}

	byType := map[core.CertType]core.CountBreakdown{}
	for t, n := range dbByType {
		byType[t] = core.CountBreakdown{DB: n, LDAP: ldapByType[t]}
	}
	for t, n := range ldapByType {
		if _, ok := byType[t]; !ok {
			byType[t] = core.CountBreakdown{DB: 0, LDAP: n}
		}
	}

	byCountry := map[string]core.CountBreakdown{}
	for country, counts := range dbByCountry {
		var dbTotal, ldapTotal int
		for _, n := range counts {
			dbTotal += n
		}
		if lc, ok := ldapByCountry[country]; ok {
			for _, n := range lc {
				ldapTotal += n
			}
		}
		byCountry[country] = core.CountBreakdown{DB: dbTotal, LDAP: ldapTotal}
	}

	dbCRLs, err := r.store.CountCRLs(ctx)
	if err != nil {
		return nil, nil, core.CountBreakdown{}, fmt.Errorf("gather: DB count CRLs: %w", err)
	}
	ldapCRLs, err := r.directory.CountCRLs(ctx)
	if err != nil {
		return nil, nil, core.CountBreakdown{}, fmt.Errorf("gather: LDAP count CRLs: %w", err)
	}
	crlCounts := core.CountBreakdown{DB: dbCRLs, LDAP: ldapCRLs}
	return byType, byCountry, crlCounts, nil
}

func computeDiscrepancies(byType map[core.CertType]core.CountBreakdown, crl core.CountBreakdown) (map[core.CertType]int, int, int) {
	discrepancies := map[core.CertType]int{}
	total := 0
	for t, c := range byType {
		d := c.DB - c.LDAP
		if d < 0 {
			d = -d
		}
		discrepancies[t] = d
		total += d
	}
	crlDiscrepancy := crl.DB - crl.LDAP
	if crlDiscrepancy < 0 {
		crlDiscrepancy = -crlDiscrepancy
	}
	return discrepancies, crlDiscrepancy, total
}

// repair streams un-mirrored rows type by type and publishes each via
// C7, per spec §4.8 step 3. maxBatchSize caps the rows repaired in the
// whole pass, across all types together.
func (r *Reconciler) repair(ctx context.Context, discrepancies map[core.CertType]int) []core.ReconciliationFailure {
	var failures []core.ReconciliationFailure
	repaired := 0
	for certType := range discrepancies {
		if repaired >= r.maxBatchSize {
			break
		}
		pending, err := r.store.Paginate(ctx, core.CertificateFilter{
			Type: certType, StoredInDirectory: boolPtr(false), Limit: r.maxBatchSize - repaired,
		})
		if err != nil {
			failures = append(failures, core.ReconciliationFailure{CertType: certType, Operation: "list", Error: err.Error()})
			continue
		}
		for _, cert := range pending {
			if repaired >= r.maxBatchSize {
				break
			}
			if err := r.directory.AddCertificate(ctx, cert); err != nil {
				failures = append(failures, core.ReconciliationFailure{
					CertType: certType, Operation: "addCertificate", Country: cert.Country, Subject: cert.SubjectDN, Error: err.Error(),
				})
				continue
			}
			if err := r.store.MarkStoredInDirectory(ctx, cert.Fingerprint, true); err != nil {
				failures = append(failures, core.ReconciliationFailure{
					CertType: certType, Operation: "markStoredInDirectory", Country: cert.Country, Subject: cert.SubjectDN, Error: err.Error(),
				})
				continue
			}
			repaired++
		}
	}
	r.stats.Inc("Reconciler.Repaired", int64(repaired))
	r.stats.Inc("Reconciler.RepairFailures", int64(len(failures)))
	return failures
}

// revalidate re-runs C5 on every certificate expiring within the next
// 30 days, per spec §4.8 step 5. Failures here are logged, not fatal to
// the overall pass.
func (r *Reconciler) revalidate(ctx context.Context) {
	expiring, err := r.store.ExpiringWithin(ctx, revalidationWindow, r.clk())
	if err != nil {
		r.log.AuditErr(fmt.Errorf("revalidation gather failed: %w", err))
		return
	}
	for _, cert := range expiring {
		verdict := r.validator.Validate(ctx, cert, "")
		if verdict.Status != chainval.StatusValid {
			r.log.WithValues("fingerprint", cert.Fingerprint, "status", string(verdict.Status)).Warning("certificate failed revalidation ahead of expiry")
		}
	}
	r.stats.Gauge("Reconciler.RevalidatedCount", int64(len(expiring)))
}

func boolPtr(b bool) *bool { return &b }
