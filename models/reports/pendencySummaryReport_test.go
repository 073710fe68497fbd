package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/models/reports"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/shopspring/decimal"
)

func seedBrokerScope(t *testing.T, name, email, cnpj string) (context.Context, *models.TaxRegistration) {
	t.Helper()

	ctx := context.Background()
	broker, err := models.CreateBroker(ctx, &models.NewBroker{Name: name, Email: email})
	if err != nil {
		t.Fatalf("CreateBroker: %v", err)
	}
	ctx = utils.SetBrokerIdInContext(ctx, broker.ID)

	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: name + " Co"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	registration, err := models.CreateTaxRegistration(ctx, &models.NewTaxRegistration{
		CompanyId:          company.ID,
		RegistrationNumber: cnpj,
		LegalName:          name + " Matriz",
	})
	if err != nil {
		t.Fatalf("CreateTaxRegistration: %v", err)
	}
	return ctx, registration
}

func TestGetPendencySummary(t *testing.T) {
	setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Summary Broker", "summary@test.local", "11222333000181")

	now := time.Now()
	overdue := now.AddDate(0, 0, -2)
	soon := now.AddDate(0, 0, 2)
	later := now.AddDate(0, 0, 10)
	far := now.AddDate(0, 0, 30)

	seeds := []struct {
		pendencyType models.PendencyType
		dueDate      time.Time
	}{
		{models.PendencyTypeDocumentation, overdue},
		{models.PendencyTypeDocumentation, later},
		{models.PendencyTypeActivation, soon},
		{models.PendencyTypeAlteration, far},
	}
	for i, seed := range seeds {
		dueDate := seed.dueDate
		if _, _, err := models.CreatePendency(ctx, nil, &models.NewPendency{
			Type:              seed.pendencyType,
			TaxRegistrationId: registration.ID,
			Description:       "Summary seed",
			DueDate:           &dueDate,
		}); err != nil {
			t.Fatalf("CreatePendency %d: %v", i, err)
		}
	}

	summary, err := reports.GetPendencySummary(ctx, nil, nil)
	if err != nil {
		t.Fatalf("GetPendencySummary: %v", err)
	}

	if summary.TotalOpen != 4 {
		t.Fatalf("expected 4 open pendencies, got %d", summary.TotalOpen)
	}

	wantByType := map[models.PendencyType]struct {
		count   int
		percent string
	}{
		models.PendencyTypeDocumentation: {2, "50"},
		models.PendencyTypeActivation:    {1, "25"},
		models.PendencyTypeAlteration:    {1, "25"},
		models.PendencyTypeCancellation:  {0, "0"},
	}
	if len(summary.ByType) != len(wantByType) {
		t.Fatalf("expected %d type buckets, got %d", len(wantByType), len(summary.ByType))
	}
	for _, bucket := range summary.ByType {
		want := wantByType[bucket.Type]
		if bucket.Count != want.count {
			t.Errorf("type %s: expected count %d, got %d", bucket.Type, want.count, bucket.Count)
		}
		if !bucket.Percent.Equal(decimal.RequireFromString(want.percent)) {
			t.Errorf("type %s: expected percent %s, got %s", bucket.Type, want.percent, bucket.Percent)
		}
	}

	// Overdue is critical, due in 2 days falls inside the urgent window, the
	// rest is normal.
	wantByTier := map[models.PendencyTier]struct {
		count   int
		percent string
	}{
		models.PendencyTierCritical: {1, "25"},
		models.PendencyTierUrgent:   {1, "25"},
		models.PendencyTierNormal:   {2, "50"},
	}
	if len(summary.ByTier) != len(wantByTier) {
		t.Fatalf("expected %d tier buckets, got %d", len(wantByTier), len(summary.ByTier))
	}
	for _, bucket := range summary.ByTier {
		want := wantByTier[bucket.Tier]
		if bucket.Count != want.count {
			t.Errorf("tier %s: expected count %d, got %d", bucket.Tier, want.count, bucket.Count)
		}
		if !bucket.Percent.Equal(decimal.RequireFromString(want.percent)) {
			t.Errorf("tier %s: expected percent %s, got %s", bucket.Tier, want.percent, bucket.Percent)
		}
	}

	if len(summary.ByRegistration) != 1 {
		t.Fatalf("expected 1 registration rollup, got %d", len(summary.ByRegistration))
	}
	reg := summary.ByRegistration[0]
	if reg.TaxRegistrationId != registration.ID || reg.PendencyCount != 4 {
		t.Fatalf("unexpected registration rollup: %+v", reg)
	}
	if reg.LegalName == "" {
		t.Fatal("expected the legal name on the rollup")
	}
	if !reg.MonthlyCost.IsZero() || len(reg.Errors) != 0 {
		t.Fatalf("registration without plans: cost %s, errors %v", reg.MonthlyCost, reg.Errors)
	}
}

func TestGetPendencySummarySurfacesCostAllocationFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Degraded Broker", "degraded@test.local", "11444777000161")

	if _, _, err := models.CreatePendency(ctx, nil, &models.NewPendency{
		Type:              models.PendencyTypeDocumentation,
		TaxRegistrationId: registration.ID,
		Description:       "Send signed contract",
	}); err != nil {
		t.Fatalf("CreatePendency: %v", err)
	}

	// Break the cost side only; the pendency rollup must still render and the
	// failure must be visible, never a silent zero.
	if err := db.Exec("DROP TABLE insurance_plans").Error; err != nil {
		t.Fatalf("drop insurance_plans: %v", err)
	}

	summary, err := reports.GetPendencySummary(ctx, nil, nil)
	if err != nil {
		t.Fatalf("GetPendencySummary: %v", err)
	}
	if summary.TotalOpen != 1 || len(summary.ByRegistration) != 1 {
		t.Fatalf("unexpected rollup: %+v", summary)
	}
	reg := summary.ByRegistration[0]
	if len(reg.Errors) != 1 {
		t.Fatalf("expected the cost failure to be reported, got %v", reg.Errors)
	}
	if !reg.MonthlyCost.IsZero() {
		t.Fatalf("expected zero cost alongside the error, got %s", reg.MonthlyCost)
	}
}
