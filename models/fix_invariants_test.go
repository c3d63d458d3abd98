package models

import (
	"testing"
	"time"

	"github.com/rankhive/seofix_backend/config"
)

func TestComputeRollbackDeadline(t *testing.T) {
	appliedAt := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	deadline := ComputeRollbackDeadline(appliedAt)

	want := appliedAt.Add(90 * 24 * time.Hour)
	if !deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", deadline, want)
	}
	if deadline.Sub(appliedAt) != RollbackWindow {
		t.Fatalf("deadline window = %v, want %v", deadline.Sub(appliedAt), RollbackWindow)
	}
}

func TestMonthKeyUsesUTC(t *testing.T) {
	// 2026-02-01 03:00 in UTC+7 is still January in UTC.
	loc := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2026, 2, 1, 3, 0, 0, 0, loc)

	if got := MonthKey(local); got != "2026-01" {
		t.Fatalf("MonthKey = %q, want %q", got, "2026-01")
	}
	if got := MonthKey(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)); got != "2026-02" {
		t.Fatalf("MonthKey = %q, want %q", got, "2026-02")
	}
}

func TestPartitionKeys(t *testing.T) {
	if got := ApplyPartitionKey(7, "product", "gid-123"); got != "7:product:gid-123" {
		t.Fatalf("ApplyPartitionKey = %q", got)
	}
	if got := PlanPartitionKey(7, 42); got != "7:plan:42" {
		t.Fatalf("PlanPartitionKey = %q", got)
	}
}

func TestConvertToFixJobMessage(t *testing.T) {
	rec := FixJobRecord{
		ID:            11,
		AccountId:     "acct-1",
		ConnectionId:  7,
		Kind:          FixJobKindApplyFix,
		FixId:         99,
		PartitionKey:  "7:product:gid-123",
		CorrelationId: "corr-1",
	}

	msg := ConvertToFixJobMessage(rec)
	want := config.FixJobMessage{
		ID:            11,
		AccountId:     "acct-1",
		ConnectionId:  7,
		Kind:          FixJobKindApplyFix,
		FixId:         99,
		PartitionKey:  "7:product:gid-123",
		CorrelationId: "corr-1",
	}
	if msg != want {
		t.Fatalf("ConvertToFixJobMessage = %+v, want %+v", msg, want)
	}
}
