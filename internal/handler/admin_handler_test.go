package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/shopspring/decimal"
)

func sweepRequest(f *apiFixture, kind string) (*AdminHandler, func(t *testing.T) (int, service.SweepReport)) {
	h := NewAdminHandler(f.sweepRunner)
	return h, func(t *testing.T) (int, service.SweepReport) {
		t.Helper()
		c, rec := f.request(http.MethodPost, "/api/v1/admin/sweeps/"+kind, "")
		c.SetParamNames("kind")
		c.SetParamValues(kind)
		if err := h.RunSweep(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		var report service.SweepReport
		if rec.Code == http.StatusOK {
			decodeJSON(t, rec, &report)
		} else {
			expectFieldError(t, rec, "kind")
		}
		return rec.Code, report
	}
}

func TestRunSweep_UnknownKind(t *testing.T) {
	f := newAPIFixture()
	_, run := sweepRequest(f, "defrag")

	if code, _ := run(t); code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", code)
	}
}

func TestRunSweep_RenewsEndedBudget(t *testing.T) {
	f := newAPIFixture()
	now := time.Now().UTC()
	f.budgets.AddBudget(&domain.Budget{
		UserID:    f.userID,
		Name:      "Last month",
		Scope:     domain.PerCategory(domain.CategoryUtilities),
		Amount:    decimal.NewFromInt(150),
		Currency:  "USD",
		StartDate: domain.TruncateDay(now.AddDate(0, 0, -40)),
		EndDate:   domain.TruncateDay(now.AddDate(0, 0, -11)),
		Alerts:    []domain.AlertThreshold{{Percentage: 80}},
		AutoRenew: true,
		IsActive:  true,
	})
	_, run := sweepRequest(f, string(service.SweepRenewal))

	code, report := run(t)
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", code)
	}
	if report.Kind != service.SweepRenewal || report.Processed != 1 || report.Failed != 0 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if f.budgets.Get(1).RenewedAt == nil {
		t.Error("Expected source budget to be marked renewed")
	}
	successor := f.budgets.Get(2)
	if successor == nil || !successor.AutoRenew {
		t.Fatalf("Expected auto-renewing successor, got %+v", successor)
	}

	// A second run finds nothing left to renew for the source
	_, report = run(t)
	if report.Processed != 0 {
		t.Errorf("Expected no budgets due on rerun, got %d", report.Processed)
	}
}
