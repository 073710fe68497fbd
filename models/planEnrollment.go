package models

import (
	"context"
	"errors"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"gorm.io/gorm"
)

// PlanEnrollment links an employee to a plan. Its status, not the
// employee's, is the authoritative signal for cost allocation.
type PlanEnrollment struct {
	ID         int              `gorm:"primary_key" json:"id"`
	BrokerId   string           `gorm:"index;not null;size:36" json:"broker_id"`
	PlanId     int              `gorm:"not null;uniqueIndex:idx_plan_employee" json:"plan_id" binding:"required"`
	EmployeeId int              `gorm:"not null;uniqueIndex:idx_plan_employee" json:"employee_id" binding:"required"`
	Status     EnrollmentStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPlanEnrollment struct {
	PlanId     int `json:"plan_id" binding:"required"`
	EmployeeId int `json:"employee_id" binding:"required"`
}

func (input *NewPlanEnrollment) validate(ctx context.Context, brokerId string) error {
	plan, err := utils.FetchModel[InsurancePlan](ctx, brokerId, input.PlanId)
	if err != nil {
		return errors.New("plan not found")
	}
	employee, err := utils.FetchModel[Employee](ctx, brokerId, input.EmployeeId)
	if err != nil {
		return errors.New("employee not found")
	}
	if employee.TaxRegistrationId != plan.TaxRegistrationId {
		return errors.New("employee belongs to a different tax registration")
	}

	// zero or one enrollment per plan type: reject if the employee already
	// holds a live enrollment in another plan of the same type
	db := config.GetDB()
	var count int64
	err = db.WithContext(ctx).Model(&PlanEnrollment{}).
		Joins("JOIN insurance_plans ON insurance_plans.id = plan_enrollments.plan_id").
		Where("plan_enrollments.broker_id = ?", brokerId).
		Where("plan_enrollments.employee_id = ?", input.EmployeeId).
		Where("insurance_plans.plan_type = ?", plan.PlanType).
		Where("plan_enrollments.status IN ?", []EnrollmentStatus{EnrollmentStatusActive, EnrollmentStatusPending, EnrollmentStatusExclusionRequested}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("employee already enrolled in a plan of this type")
	}
	return nil
}

func CreatePlanEnrollment(ctx context.Context, input *NewPlanEnrollment) (*PlanEnrollment, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	if err := input.validate(ctx, brokerId); err != nil {
		return nil, err
	}

	enrollment := PlanEnrollment{
		BrokerId:   brokerId,
		PlanId:     input.PlanId,
		EmployeeId: input.EmployeeId,
		Status:     EnrollmentStatusPending,
	}
	if err := db.WithContext(ctx).Create(&enrollment).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListEnrollments returns every enrollment of one plan, ordered by employee
// id so allocation output is order-stable.
func ListEnrollments(ctx context.Context, planId int) ([]*PlanEnrollment, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	var results []*PlanEnrollment
	err := db.WithContext(ctx).
		Where("broker_id = ? AND plan_id = ?", brokerId, planId).
		Order("employee_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateEnrollmentStatusByEmployee moves every live enrollment of one
// employee to the given status. Used by pendency resolution.
func UpdateEnrollmentStatusByEmployee(ctx context.Context, tx *gorm.DB, employeeId int, from []EnrollmentStatus, to EnrollmentStatus) error {
	if tx == nil {
		tx = config.GetDB()
	}

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return errors.New("broker id is required")
	}

	q := tx.WithContext(ctx).Model(&PlanEnrollment{}).
		Where("broker_id = ? AND employee_id = ?", brokerId, employeeId)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	return q.Update("status", to).Error
}

// CountActiveEmployees counts the broker's employees in active status. The
// portfolio headcount follows employee status, not enrollment rows, so an
// active employee between plan changes still counts.
func CountActiveEmployees(ctx context.Context) (int64, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return 0, errors.New("broker id is required")
	}

	var count int64
	err := db.WithContext(ctx).Model(&Employee{}).
		Where("broker_id = ? AND status = ?", brokerId, EmployeeStatusActive).
		Count(&count).Error
	return count, err
}
