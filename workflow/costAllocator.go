package workflow

import (
	"sort"

	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/shopspring/decimal"
)

// Allocation is one employee's share of a plan's monthly price.
type Allocation struct {
	EmployeeId int             `json:"employee_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// AllocationResult carries the per-employee split and the exact total that
// was distributed. Total always equals the sum of the shares.
type AllocationResult struct {
	PlanId      int             `json:"plan_id"`
	Total       decimal.Decimal `json:"total"`
	Allocations []Allocation    `json:"allocations"`
}

// AllocatePlanCost splits a plan's monthly price across its active
// enrollments. Pure; callers persist or report the result.
//
// Only active enrollments receive a share; the rest get zero rows. Shares
// use a largest-remainder split so the rounded amounts sum to the price
// exactly, assigned in ascending employee id order. A zero-priced health
// plan is priced synthetically at perHeadRate per active enrollment; any
// other zero-priced type allocates nothing.
func AllocatePlanCost(plan *models.InsurancePlan, enrollments []*models.PlanEnrollment, perHeadRate decimal.Decimal) (*AllocationResult, *utils.AllocationInputError) {
	if plan == nil {
		return nil, &utils.AllocationInputError{Reason: "plan is nil"}
	}
	if plan.TaxRegistrationId == 0 {
		return nil, &utils.AllocationInputError{PlanId: plan.ID, Reason: "plan has no tax registration"}
	}
	if plan.MonthlyPrice.IsNegative() {
		return nil, &utils.AllocationInputError{PlanId: plan.ID, Reason: "monthly price is negative"}
	}

	result := &AllocationResult{PlanId: plan.ID, Total: decimal.Zero}

	var active []*models.PlanEnrollment
	for _, e := range enrollments {
		if e.Status == models.EnrollmentStatusActive {
			active = append(active, e)
		} else {
			result.Allocations = append(result.Allocations, Allocation{EmployeeId: e.EmployeeId, Amount: decimal.Zero})
		}
	}
	if len(active) == 0 {
		result.Allocations = nil
		return result, nil
	}

	sort.Slice(active, func(i, j int) bool { return active[i].EmployeeId < active[j].EmployeeId })

	n := int64(len(active))
	total := plan.MonthlyPrice
	if total.IsZero() {
		if plan.PlanType != models.PlanTypeHealth {
			// No synthetic pricing outside health plans.
			for _, e := range active {
				result.Allocations = append(result.Allocations, Allocation{EmployeeId: e.EmployeeId, Amount: decimal.Zero})
			}
			sortAllocations(result.Allocations)
			return result, nil
		}
		total = perHeadRate.Mul(decimal.NewFromInt(n))
	}

	// Work in integer cents: base share for everyone, one extra cent to the
	// first (total cents mod n) employees. The shares sum to the total
	// exactly and each is within one cent of total/n.
	totalCents := total.Round(2).Shift(2).IntPart()
	baseCents := totalCents / n
	extraCents := totalCents % n

	shares := make([]Allocation, 0, len(active))
	for i, e := range active {
		cents := baseCents
		if int64(i) < extraCents {
			cents++
		}
		shares = append(shares, Allocation{EmployeeId: e.EmployeeId, Amount: decimal.New(cents, -2)})
	}

	result.Total = decimal.New(totalCents, -2)
	result.Allocations = append(result.Allocations, shares...)
	sortAllocations(result.Allocations)
	return result, nil
}

func sortAllocations(a []Allocation) {
	sort.Slice(a, func(i, j int) bool { return a[i].EmployeeId < a[j].EmployeeId })
}
