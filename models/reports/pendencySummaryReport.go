package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/workflow"
	"github.com/shopspring/decimal"
)

type PendencyTypeCount struct {
	Type    models.PendencyType `json:"type"`
	Count   int                 `json:"count"`
	Percent decimal.Decimal     `json:"percent"`
}

type PendencyTierCount struct {
	Tier    models.PendencyTier `json:"tier"`
	Count   int                 `json:"count"`
	Percent decimal.Decimal     `json:"percent"`
}

type RegistrationPendencySummary struct {
	TaxRegistrationId int             `json:"tax_registration_id"`
	LegalName         string          `json:"legal_name"`
	PendencyCount     int             `json:"pendency_count"`
	MonthlyCost       decimal.Decimal `json:"monthly_cost"`
	// Errors carries per-registration degradations, so a zero MonthlyCost is
	// never silently ambiguous between "free" and "failed".
	Errors []string `json:"errors,omitempty"`
}

type PendencySummaryResponse struct {
	TotalOpen      int                            `json:"total_open"`
	ByType         []PendencyTypeCount            `json:"by_type"`
	ByTier         []PendencyTierCount            `json:"by_tier"`
	ByRegistration []*RegistrationPendencySummary `json:"by_registration"`
}

// GetPendencySummary folds the broker's open pendencies into the dashboard
// rollup: counts and percentages by type and by derived tier, plus a
// per-registration view with monthly cost attached. Read-only; nothing is
// mutated.
func GetPendencySummary(ctx context.Context, fromDate, toDate *time.Time) (*PendencySummaryResponse, error) {
	started := time.Now()
	defer logSlowReport(ctx, "pendency_summary", started, nil)

	rows, err := models.ListOpenPendenciesForBroker(ctx, models.PendencyListFilters{
		FromDate: fromDate,
		ToDate:   toDate,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	urgentWindow := config.UrgentWindowDays()

	typeCounts := map[models.PendencyType]int{}
	tierCounts := map[models.PendencyTier]int{}
	regCounts := map[int]*RegistrationPendencySummary{}
	var regOrder []int

	for _, row := range rows {
		typeCounts[row.Type]++

		createdAt := row.CreatedAt
		c := workflow.ClassifyPriority(row.DueDate, &createdAt, now, urgentWindow)
		tierCounts[c.Tier]++

		reg, ok := regCounts[row.TaxRegistrationId]
		if !ok {
			reg = &RegistrationPendencySummary{
				TaxRegistrationId: row.TaxRegistrationId,
				LegalName:         row.LegalName,
				MonthlyCost:       decimal.Zero,
			}
			regCounts[row.TaxRegistrationId] = reg
			regOrder = append(regOrder, row.TaxRegistrationId)
		}
		reg.PendencyCount++
	}

	response := &PendencySummaryResponse{TotalOpen: len(rows)}
	total := decimal.NewFromInt(int64(len(rows)))

	for _, t := range []models.PendencyType{
		models.PendencyTypeDocumentation, models.PendencyTypeActivation,
		models.PendencyTypeAlteration, models.PendencyTypeCancellation,
	} {
		response.ByType = append(response.ByType, PendencyTypeCount{
			Type:    t,
			Count:   typeCounts[t],
			Percent: percentOf(typeCounts[t], total),
		})
	}
	for _, tier := range []models.PendencyTier{
		models.PendencyTierCritical, models.PendencyTierUrgent, models.PendencyTierNormal,
	} {
		response.ByTier = append(response.ByTier, PendencyTierCount{
			Tier:    tier,
			Count:   tierCounts[tier],
			Percent: percentOf(tierCounts[tier], total),
		})
	}

	for _, regId := range regOrder {
		reg := regCounts[regId]
		costSummary, err := GetRegistrationCostAllocation(ctx, regId)
		if err != nil {
			reg.Errors = append(reg.Errors, fmt.Sprintf("cost allocation unavailable: %v", err))
		} else {
			reg.MonthlyCost = costSummary.MonthlyTotal
		}
		response.ByRegistration = append(response.ByRegistration, reg)
	}

	return response, nil
}

func percentOf(count int, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(count)).
		Mul(decimal.NewFromInt(100)).
		DivRound(total, 2)
}
