package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/store"
)

var ctx = context.Background()

// ─── Save / Get ───────────────────────────────────────────────────────────────

func TestMemory_Save_And_Get(t *testing.T) {
	s := store.NewMemory()
	if err := s.Save(ctx, newAssessment("req-001", "cust-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "req-001")
	if err != nil {
		t.Fatalf("expected to find req-001: %v", err)
	}
	if got.Response.AssessmentID != "a-req-001" {
		t.Errorf("expected assessment a-req-001, got %s", got.Response.AssessmentID)
	}
	if got.Request.Customer.CustomerID != "cust-1" {
		t.Errorf("expected customer cust-1, got %s", got.Request.Customer.CustomerID)
	}
}

func TestMemory_Save_DuplicateRequest_ReturnsError(t *testing.T) {
	s := store.NewMemory()
	_ = s.Save(ctx, newAssessment("dup-001", "cust-1"))

	second := newAssessment("dup-001", "cust-1")
	second.Response.AssessmentID = "other"
	err := s.Save(ctx, second)
	if !errors.Is(err, store.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	got, _ := s.Get(ctx, "dup-001")
	if got.Response.AssessmentID != "a-dup-001" {
		t.Errorf("first write must win, got %s", got.Response.AssessmentID)
	}
}

func TestMemory_Get_Missing_ReturnsNotFound(t *testing.T) {
	s := store.NewMemory()
	if _, err := s.Get(ctx, "nonexistent"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_Get_ReturnsCopy(t *testing.T) {
	s := store.NewMemory()
	_ = s.Save(ctx, newAssessment("copy-001", "cust-1"))

	got, _ := s.Get(ctx, "copy-001")
	got.Response.TotalScore = -99

	again, _ := s.Get(ctx, "copy-001")
	if again.Response.TotalScore != 31.5 {
		t.Errorf("stored assessment was mutated through Get: %v", again.Response.TotalScore)
	}
}

func TestMemory_SliceAndPointerFieldsAreNotShared(t *testing.T) {
	s := store.NewMemory()
	a := newAssessment("copy-002", "cust-1")
	a.Response.BusinessRuleOverrides = []domain.BusinessRuleOverride{{RuleCode: "BR-08"}}
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the saved value must not reach the store.
	a.Response.FactorScores[0].BinLabel = "mutated"
	a.Response.BusinessRuleOverrides[0].RuleCode = "mutated"
	*a.Request.Customer.CRIFScore = 1
	*a.Response.LegacyScore = 1

	got, _ := s.Get(ctx, "copy-002")
	if got.Response.FactorScores[0].BinLabel != "<75%" {
		t.Errorf("factor scores shared with caller: %q", got.Response.FactorScores[0].BinLabel)
	}
	if got.Response.BusinessRuleOverrides[0].RuleCode != "BR-08" {
		t.Errorf("rule overrides shared with caller: %q", got.Response.BusinessRuleOverrides[0].RuleCode)
	}
	if *got.Request.Customer.CRIFScore != 710 || *got.Response.LegacyScore != 461 {
		t.Errorf("pointer fields shared with caller")
	}

	// Nor must mutating what Get or ListByCustomer returned.
	got.Response.FactorScores[0].RawScore = -1
	listed, _ := s.ListByCustomer(ctx, "cust-1")
	listed[0].Response.BusinessRuleOverrides[0].RuleCode = "mutated"

	again, _ := s.Get(ctx, "copy-002")
	if again.Response.FactorScores[0].RawScore != 8 {
		t.Errorf("factor scores mutated through Get: %v", again.Response.FactorScores[0].RawScore)
	}
	if again.Response.BusinessRuleOverrides[0].RuleCode != "BR-08" {
		t.Errorf("rule overrides mutated through ListByCustomer: %q", again.Response.BusinessRuleOverrides[0].RuleCode)
	}
}

// ─── Secondary index ──────────────────────────────────────────────────────────

func TestMemory_ListByCustomer_InSaveOrder(t *testing.T) {
	s := store.NewMemory()
	_ = s.Save(ctx, newAssessment("c-1", "cust-A"))
	_ = s.Save(ctx, newAssessment("c-2", "cust-B"))
	_ = s.Save(ctx, newAssessment("c-3", "cust-A"))

	got, err := s.ListByCustomer(ctx, "cust-A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assessments, got %d", len(got))
	}
	if got[0].Request.RequestID != "c-1" || got[1].Request.RequestID != "c-3" {
		t.Errorf("unexpected order: %s, %s", got[0].Request.RequestID, got[1].Request.RequestID)
	}

	none, _ := s.ListByCustomer(ctx, "cust-Z")
	if len(none) != 0 {
		t.Errorf("expected no assessments for unknown customer, got %d", len(none))
	}
}

// ─── Concurrency ──────────────────────────────────────────────────────────────

func TestMemory_ConcurrentSaves_OneWinner(t *testing.T) {
	s := store.NewMemory()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Save(ctx, newAssessment("race-001", "cust-1")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful save, got %d", wins)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 stored assessment, got %d", s.Len())
	}
}
