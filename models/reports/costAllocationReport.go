package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/mktfun/gps-rh-13-sub002/workflow"
	"github.com/shopspring/decimal"
)

type EmployeeAllocation struct {
	EmployeeId   int             `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	PlanId       int             `json:"plan_id"`
	PlanType     models.PlanType `json:"plan_type"`
	Amount       decimal.Decimal `json:"amount"`
}

type RegistrationCostSummary struct {
	TaxRegistrationId int                           `json:"tax_registration_id"`
	LegalName         string                        `json:"legal_name"`
	ActiveEmployees   int                           `json:"active_employees"`
	MonthlyTotal      decimal.Decimal               `json:"monthly_total"`
	Allocations       []EmployeeAllocation          `json:"allocations"`
	Errors            []*utils.AllocationInputError `json:"errors,omitempty"`
}

type CompanyCostSummary struct {
	CompanyId     int                        `json:"company_id"`
	MonthlyTotal  decimal.Decimal            `json:"monthly_total"`
	Registrations []*RegistrationCostSummary `json:"registrations"`
}

type PortfolioSummary struct {
	ActiveEmployees            int64           `json:"active_employees"`
	RegistrationsWithPlan      int64           `json:"registrations_with_plan"`
	TotalMonthlyCost           decimal.Decimal `json:"total_monthly_cost"`
	AverageCostPerRegistration decimal.Decimal `json:"average_cost_per_registration"`
}

// GetRegistrationCostAllocation splits every plan of one registration over
// its active enrollments. A plan that cannot be allocated is recorded in
// Errors and excluded from the total; the rest of the report still renders.
func GetRegistrationCostAllocation(ctx context.Context, taxRegistrationId int) (*RegistrationCostSummary, error) {
	started := time.Now()
	defer logSlowReport(ctx, "registration_cost_allocation", started, map[string]any{"tax_registration_id": taxRegistrationId})

	registration, err := models.GetTaxRegistration(ctx, taxRegistrationId)
	if err != nil {
		return nil, err
	}

	plans, err := models.ListInsurancePlans(ctx, &taxRegistrationId)
	if err != nil {
		return nil, err
	}

	employeeNames, err := employeeNamesByRegistration(ctx, taxRegistrationId)
	if err != nil {
		return nil, err
	}

	perHeadRate := config.HealthPerHeadRate()
	summary := &RegistrationCostSummary{
		TaxRegistrationId: registration.ID,
		LegalName:         registration.LegalName,
		MonthlyTotal:      decimal.Zero,
	}

	activeSeen := map[int]struct{}{}
	for _, plan := range plans {
		enrollments, err := models.ListEnrollments(ctx, plan.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, &utils.AllocationInputError{
				PlanId: plan.ID,
				Reason: fmt.Sprintf("loading enrollments: %v", err),
			})
			continue
		}

		result, allocErr := workflow.AllocatePlanCost(plan, enrollments, perHeadRate)
		if allocErr != nil {
			summary.Errors = append(summary.Errors, allocErr)
			continue
		}

		summary.MonthlyTotal = summary.MonthlyTotal.Add(result.Total)
		for _, a := range result.Allocations {
			if a.Amount.IsZero() {
				continue
			}
			activeSeen[a.EmployeeId] = struct{}{}
			summary.Allocations = append(summary.Allocations, EmployeeAllocation{
				EmployeeId:   a.EmployeeId,
				EmployeeName: employeeNames[a.EmployeeId],
				PlanId:       plan.ID,
				PlanType:     plan.PlanType,
				Amount:       a.Amount,
			})
		}
	}
	summary.ActiveEmployees = len(activeSeen)
	return summary, nil
}

// GetCompanyCostAllocation rolls registration allocations up to one company.
func GetCompanyCostAllocation(ctx context.Context, companyId int) (*CompanyCostSummary, error) {
	started := time.Now()
	defer logSlowReport(ctx, "company_cost_allocation", started, map[string]any{"company_id": companyId})

	if _, err := models.GetCompany(ctx, companyId); err != nil {
		return nil, err
	}

	registrations, err := models.ListTaxRegistrations(ctx, &companyId)
	if err != nil {
		return nil, err
	}

	summary := &CompanyCostSummary{CompanyId: companyId, MonthlyTotal: decimal.Zero}
	for _, registration := range registrations {
		regSummary, err := GetRegistrationCostAllocation(ctx, registration.ID)
		if err != nil {
			return nil, err
		}
		summary.MonthlyTotal = summary.MonthlyTotal.Add(regSummary.MonthlyTotal)
		summary.Registrations = append(summary.Registrations, regSummary)
	}
	return summary, nil
}

// GetPortfolioSummary computes the broker-wide dashboard totals. Cached
// briefly in redis when enabled; all arithmetic stays decimal.
func GetPortfolioSummary(ctx context.Context) (*PortfolioSummary, error) {
	started := time.Now()
	defer logSlowReport(ctx, "portfolio_summary", started, nil)

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	cacheKey := "report:portfolio_summary:" + brokerId
	if reportCacheEnabled() {
		var cached PortfolioSummary
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	activeEmployees, err := models.CountActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var registrationsWithPlan int64
	err = db.WithContext(ctx).Model(&models.InsurancePlan{}).
		Where("broker_id = ?", brokerId).
		Distinct("tax_registration_id").
		Count(&registrationsWithPlan).Error
	if err != nil {
		return nil, err
	}

	registrations, err := models.ListTaxRegistrations(ctx, nil)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, registration := range registrations {
		regSummary, err := GetRegistrationCostAllocation(ctx, registration.ID)
		if err != nil {
			return nil, err
		}
		total = total.Add(regSummary.MonthlyTotal)
	}

	summary := &PortfolioSummary{
		ActiveEmployees:       activeEmployees,
		RegistrationsWithPlan: registrationsWithPlan,
		TotalMonthlyCost:      total,
	}
	if registrationsWithPlan > 0 {
		summary.AverageCostPerRegistration = total.DivRound(decimal.NewFromInt(registrationsWithPlan), 2)
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, summary, reportCacheTTL())
	}
	return summary, nil
}

func employeeNamesByRegistration(ctx context.Context, taxRegistrationId int) (map[int]string, error) {
	employees, err := models.ListEmployees(ctx, &taxRegistrationId, nil)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(employees))
	for _, e := range employees {
		names[e.ID] = e.Name
	}
	return names, nil
}
