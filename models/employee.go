package models

import (
	"context"
	"errors"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"gorm.io/gorm"
)

// Employee belongs to exactly one tax registration at a time. Status
// transitions happen through broker action (resolve) or through pendency
// resolution; the reconciler observes them and never invents one.
type Employee struct {
	ID                int            `gorm:"primary_key" json:"id"`
	BrokerId          string         `gorm:"index;not null;size:36" json:"broker_id"`
	TaxRegistrationId int            `gorm:"index;not null" json:"tax_registration_id" binding:"required"`
	Name              string         `gorm:"size:100;not null" json:"name" binding:"required"`
	TaxId             string         `gorm:"size:14;not null" json:"tax_id" binding:"required"`
	Status            EmployeeStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	TaxRegistrationId int    `json:"tax_registration_id" binding:"required"`
	Name              string `json:"name" binding:"required"`
	TaxId             string `json:"tax_id" binding:"required"`
}

func (input *NewEmployee) validate(ctx context.Context, brokerId string) error {
	if !utils.IsValidCPF(input.TaxId) {
		return errors.New("invalid tax id")
	}
	if err := utils.ValidateResourceId[TaxRegistration](ctx, brokerId, input.TaxRegistrationId); err != nil {
		return errors.New("tax registration not found")
	}
	// one employment per CPF within the same registration
	count, err := utils.ResourceCountWhere[Employee](ctx, brokerId,
		"tax_registration_id = ? AND tax_id = ? AND status <> ?",
		input.TaxRegistrationId, input.TaxId, EmployeeStatusArchived)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("employee already registered for this tax registration")
	}
	return nil
}

func CreateEmployee(ctx context.Context, input *NewEmployee) (*Employee, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	if err := input.validate(ctx, brokerId); err != nil {
		return nil, err
	}

	employee := Employee{
		BrokerId:          brokerId,
		TaxRegistrationId: input.TaxRegistrationId,
		Name:              input.Name,
		TaxId:             input.TaxId,
		Status:            EmployeeStatusPending,
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}
	return utils.FetchModel[Employee](ctx, brokerId, id)
}

func ListEmployees(ctx context.Context, taxRegistrationId *int, statuses []EmployeeStatus) ([]*Employee, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	dbCtx := db.WithContext(ctx).Where("broker_id = ?", brokerId)
	if taxRegistrationId != nil && *taxRegistrationId > 0 {
		dbCtx = dbCtx.Where("tax_registration_id = ?", *taxRegistrationId)
	}
	if len(statuses) > 0 {
		dbCtx = dbCtx.Where("status IN ?", statuses)
	}
	var results []*Employee
	if err := dbCtx.Order("id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateEmployeeStatus is the single write path for employee status. The
// write is a single-row transaction; the reconciler picks the change up on
// its next pass.
func UpdateEmployeeStatus(ctx context.Context, tx *gorm.DB, id int, status EmployeeStatus) (*Employee, error) {
	if tx == nil {
		tx = config.GetDB()
	}

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	var employee Employee
	if err := tx.WithContext(ctx).Where("broker_id = ?", brokerId).First(&employee, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	employee.Status = status
	if err := tx.WithContext(ctx).Model(&Employee{}).
		Where("id = ? AND broker_id = ?", id, brokerId).
		Update("status", status).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}
