package workflow

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rankhive/seofix_backend/models"
)

// NOTE: These tests are intentionally DB-free. They validate the intended lifecycle semantics:
// - at-least-once job delivery is safe via durable idempotency + pending-only transitions
// - the stale-precondition comparison is per-field and authoritative
// - retryability is a property of the error code, never of the call site
//
// Full DB+PubSub integration tests should be added in an environment that can run MySQL + Pub/Sub emulator.

func TestDetectStaleFields(t *testing.T) {
	before := map[string]string{"metaTitle": "Old Title", "metaDescription": ""}

	if stale := DetectStaleFields(before, map[string]string{"metaTitle": "Old Title", "metaDescription": ""}); len(stale) != 0 {
		t.Fatalf("unchanged resource reported stale fields: %v", stale)
	}

	stale := DetectStaleFields(before, map[string]string{"metaTitle": "Merchant Edited", "metaDescription": ""})
	if len(stale) != 1 || stale[0] != "metaTitle" {
		t.Fatalf("expected [metaTitle], got %v", stale)
	}

	// A field absent from the live read counts as changed unless the
	// snapshot also recorded it empty.
	if stale := DetectStaleFields(map[string]string{"altText": "a chair"}, map[string]string{}); len(stale) != 1 {
		t.Fatalf("missing live field must be stale, got %v", stale)
	}
}

func TestStateRoundTripAndCorruptInput(t *testing.T) {
	state := map[string]string{"metaDescription": "A very blue shirt."}
	got := DecodeState(EncodeState(state))
	if got["metaDescription"] != state["metaDescription"] {
		t.Fatalf("round trip lost data: %v", got)
	}
	if got := DecodeState([]byte("{not json")); len(got) != 0 {
		t.Fatalf("corrupt state must decode to empty, got %v", got)
	}
	if got := DecodeState(nil); len(got) != 0 {
		t.Fatalf("nil state must decode to empty, got %v", got)
	}
}

func TestErrorTaxonomyRetryability(t *testing.T) {
	retryable := []ErrorCode{CodeAdapterUnavailable}
	terminal := []ErrorCode{
		CodeStalePrecondition, CodeQuotaExceeded, CodeRollbackExpired,
		CodeConflictingFix, CodeFixNotPending, CodeFixNotApplied,
		CodePlanNotPending, CodePlanNotApproved,
	}
	for _, code := range retryable {
		if !IsRetryable(NewError(code, "x")) {
			t.Fatalf("%s must be retryable", code)
		}
	}
	for _, code := range terminal {
		if IsRetryable(NewError(code, "x")) {
			t.Fatalf("%s must be terminal", code)
		}
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("non-domain errors are terminal for the job processor")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := WrapError(CodeAdapterUnavailable, errors.New("dial tcp: timeout"))
	if !errors.Is(err, NewError(CodeAdapterUnavailable, "")) {
		t.Fatalf("errors.Is must match on code")
	}
	if errors.Is(err, NewError(CodeQuotaExceeded, "")) {
		t.Fatalf("errors.Is must not match a different code")
	}
	code, ok := CodeOf(err)
	if !ok || code != CodeAdapterUnavailable {
		t.Fatalf("CodeOf = %v, %v", code, ok)
	}
}

func TestExecutionPolicyTable(t *testing.T) {
	auto := policyFor(models.ExecutionModeAutomatic)
	if !auto.ChargeAtCreation || !auto.AutoApply || auto.GroupIntoPlan {
		t.Fatalf("AUTOMATIC policy = %+v", auto)
	}
	plan := policyFor(models.ExecutionModePlan)
	if plan.ChargeAtCreation || plan.AutoApply || !plan.GroupIntoPlan {
		t.Fatalf("PLAN policy = %+v", plan)
	}
	approve := policyFor(models.ExecutionModeApprove)
	if approve.ChargeAtCreation || approve.AutoApply || approve.GroupIntoPlan {
		t.Fatalf("APPROVE policy = %+v", approve)
	}
}

func TestFieldForIssueType(t *testing.T) {
	cases := map[string]string{
		"missing_meta_description": "metaDescription",
		"meta_title_too_long":      "metaTitle",
		"missing_alt_text":         "altText",
		"duplicate_h1":             "h1",
	}
	for issueType, want := range cases {
		got, ok := FieldForIssueType(issueType)
		if !ok || got != want {
			t.Fatalf("FieldForIssueType(%s) = %q, %v", issueType, got, ok)
		}
	}
	if _, ok := FieldForIssueType("broken_internal_link"); ok {
		t.Fatalf("unsupported issue types must not map to a field")
	}
}

func TestApplyGate(t *testing.T) {
	planId := 9

	proceed, err := applyGate(&models.Fix{Status: models.FixStatusPending}, nil)
	if err != nil || !proceed {
		t.Fatalf("pending standalone fix must proceed, got %v %v", proceed, err)
	}

	proceed, err = applyGate(&models.Fix{Status: models.FixStatusApplied}, nil)
	if err != nil || proceed {
		t.Fatalf("already-applied fix must be a silent no-op, got %v %v", proceed, err)
	}

	for _, st := range []models.FixStatus{models.FixStatusFailed, models.FixStatusRolledBack} {
		_, err = applyGate(&models.Fix{Status: st}, nil)
		if code, ok := CodeOf(err); !ok || code != CodeFixNotPending {
			t.Fatalf("%s fix: want FIX_NOT_PENDING, got %v", st, err)
		}
	}

	for _, st := range []models.PlanStatus{models.PlanStatusApproved, models.PlanStatusExecuting} {
		proceed, err = applyGate(&models.Fix{Status: models.FixStatusPending, PlanId: &planId}, &models.Plan{Status: st})
		if err != nil || !proceed {
			t.Fatalf("member of %s plan must proceed, got %v %v", st, proceed, err)
		}
	}
	for _, st := range []models.PlanStatus{models.PlanStatusPending, models.PlanStatusAbandoned, models.PlanStatusCompleted} {
		_, err = applyGate(&models.Fix{Status: models.FixStatusPending, PlanId: &planId}, &models.Plan{Status: st})
		if code, ok := CodeOf(err); !ok || code != CodePlanNotApproved {
			t.Fatalf("member of %s plan: want PLAN_NOT_APPROVED, got %v", st, err)
		}
	}

	_, err = applyGate(&models.Fix{Status: models.FixStatusPending, PlanId: &planId}, nil)
	if code, ok := CodeOf(err); !ok || code != CodePlanNotApproved {
		t.Fatalf("member with missing plan row: want PLAN_NOT_APPROVED, got %v", err)
	}
}

func TestRollbackGate(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(24 * time.Hour)
	snapshot := EncodeState(map[string]string{"metaTitle": "Old"})

	applied := &models.Fix{Status: models.FixStatusApplied, RollbackDeadline: &deadline, BeforeState: snapshot}
	if err := rollbackGate(applied, now); err != nil {
		t.Fatalf("applied fix inside its window must pass, got %v", err)
	}

	// One day past the deadline.
	if err := rollbackGate(applied, deadline.Add(24*time.Hour)); err == nil || !errors.Is(err, NewError(CodeRollbackExpired, "")) {
		t.Fatalf("past-deadline rollback: want ROLLBACK_EXPIRED, got %v", err)
	}

	noDeadline := &models.Fix{Status: models.FixStatusApplied, BeforeState: snapshot}
	if err := rollbackGate(noDeadline, now); err == nil || !errors.Is(err, NewError(CodeRollbackExpired, "")) {
		t.Fatalf("missing deadline: want ROLLBACK_EXPIRED, got %v", err)
	}

	purged := &models.Fix{Status: models.FixStatusApplied, RollbackDeadline: &deadline}
	if err := rollbackGate(purged, now); err == nil || !errors.Is(err, NewError(CodeRollbackExpired, "")) {
		t.Fatalf("purged snapshot: want ROLLBACK_EXPIRED, got %v", err)
	}

	// Second rollback of the same fix.
	rolledBack := &models.Fix{Status: models.FixStatusRolledBack, RollbackDeadline: &deadline, BeforeState: snapshot}
	if err := rollbackGate(rolledBack, now); err == nil || !errors.Is(err, NewError(CodeFixNotApplied, "")) {
		t.Fatalf("rolled-back fix: want FIX_NOT_APPLIED, got %v", err)
	}
	if err := rollbackGate(&models.Fix{Status: models.FixStatusPending}, now); err == nil || !errors.Is(err, NewError(CodeFixNotApplied, "")) {
		t.Fatalf("pending fix: want FIX_NOT_APPLIED, got %v", err)
	}
}

func TestAdmissionFor(t *testing.T) {
	cases := []struct {
		applied   int
		limit     int
		requested int
		want      UsageAdmission
	}{
		{applied: 10, limit: 50, requested: 5, want: UsageAdmission{Allowed: 5, Current: 10, Limit: 50, Remaining: 40}},
		{applied: 48, limit: 50, requested: 5, want: UsageAdmission{Allowed: 2, Current: 48, Limit: 50, Remaining: 2}},
		{applied: 50, limit: 50, requested: 5, want: UsageAdmission{Allowed: 0, Current: 50, Limit: 50, Remaining: 0}},
		// Manual correction can push applied past the limit; remaining clamps.
		{applied: 53, limit: 50, requested: 1, want: UsageAdmission{Allowed: 0, Current: 53, Limit: 50, Remaining: 0}},
		{applied: 0, limit: 50, requested: 0, want: UsageAdmission{Allowed: 0, Current: 0, Limit: 50, Remaining: 50}},
	}
	for _, tc := range cases {
		usage := &models.UsageRecord{FixesApplied: tc.applied, MonthlyLimit: tc.limit}
		got := admissionFor(usage, tc.requested)
		if got != tc.want {
			t.Fatalf("admissionFor(applied=%d limit=%d requested=%d) = %+v, want %+v",
				tc.applied, tc.limit, tc.requested, got, tc.want)
		}
	}
}

// fakeApplier mimics the durable pipeline around ApplyFix: per-resource
// serialization, dedup by job id, and a pending-only transition.
type fakeApplier struct {
	muByRes map[string]*sync.Mutex
	mu      sync.Mutex
	seen    map[string]bool
	status  map[int]models.FixStatus
	applies int
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{
		muByRes: map[string]*sync.Mutex{},
		seen:    map[string]bool{},
		status:  map[int]models.FixStatus{},
	}
}

func (p *fakeApplier) apply(resourceKey, jobId string, fixId int) {
	p.mu.Lock()
	rm := p.muByRes[resourceKey]
	if rm == nil {
		rm = &sync.Mutex{}
		p.muByRes[resourceKey] = rm
	}
	p.mu.Unlock()

	rm.Lock()
	defer rm.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[jobId] {
		return
	}
	p.seen[jobId] = true
	if p.status[fixId] != models.FixStatusPending {
		return
	}
	p.status[fixId] = models.FixStatusApplied
	p.applies++
}

func TestDuplicateJobDelivery_AppliesOnce(t *testing.T) {
	p := newFakeApplier()
	p.status[1] = models.FixStatusPending

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.apply("1:product:42", "job-1", 1)
		}()
	}
	wg.Wait()

	if p.applies != 1 {
		t.Fatalf("expected exactly 1 application, got %d", p.applies)
	}
}

func TestTwoFixesSameResource_SecondSeesNonPending(t *testing.T) {
	for run := 0; run < 100; run++ {
		p := newFakeApplier()
		p.status[1] = models.FixStatusPending
		p.status[2] = models.FixStatusApplied // already applied by another path

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p.apply("1:product:42", "job-1", 1)
				p.apply("1:product:42", "job-2", 2)
				p.apply("1:product:42", "job-1", 1) // duplicate
			}(i)
		}
		wg.Wait()

		if p.applies != 1 {
			t.Fatalf("run=%d expected 1 application (fix 2 was not pending), got %d", run, p.applies)
		}
	}
}
