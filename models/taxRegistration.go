package models

import (
	"context"
	"errors"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
)

// TaxRegistration is one CNPJ of a company: the unit employees and plans
// hang off.
type TaxRegistration struct {
	ID                 int                `gorm:"primary_key" json:"id"`
	BrokerId           string             `gorm:"index;not null;size:36" json:"broker_id"`
	CompanyId          int                `gorm:"index;not null" json:"company_id" binding:"required"`
	RegistrationNumber string             `gorm:"size:18;not null" json:"registration_number" binding:"required"`
	LegalName          string             `gorm:"size:150;not null" json:"legal_name" binding:"required"`
	Status             RegistrationStatus `gorm:"not null;default:'configuring'" json:"status"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTaxRegistration struct {
	CompanyId          int    `json:"company_id" binding:"required"`
	RegistrationNumber string `json:"registration_number" binding:"required"`
	LegalName          string `json:"legal_name" binding:"required"`
}

func (input *NewTaxRegistration) validate(ctx context.Context, brokerId string, id int) error {
	if !utils.IsValidCNPJ(input.RegistrationNumber) {
		return errors.New("invalid registration number")
	}
	if err := utils.ValidateResourceId[Company](ctx, brokerId, input.CompanyId); err != nil {
		return errors.New("company not found")
	}
	if err := utils.ValidateUnique[TaxRegistration](ctx, brokerId, "registration_number", input.RegistrationNumber, id); err != nil {
		return err
	}
	return nil
}

func CreateTaxRegistration(ctx context.Context, input *NewTaxRegistration) (*TaxRegistration, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	if err := input.validate(ctx, brokerId, 0); err != nil {
		return nil, err
	}

	registration := TaxRegistration{
		BrokerId:           brokerId,
		CompanyId:          input.CompanyId,
		RegistrationNumber: input.RegistrationNumber,
		LegalName:          input.LegalName,
		Status:             RegistrationStatusConfiguring,
	}
	if err := db.WithContext(ctx).Create(&registration).Error; err != nil {
		return nil, err
	}
	return &registration, nil
}

func GetTaxRegistration(ctx context.Context, id int) (*TaxRegistration, error) {
	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}
	return utils.FetchModel[TaxRegistration](ctx, brokerId, id)
}

func ListTaxRegistrations(ctx context.Context, companyId *int) ([]*TaxRegistration, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	dbCtx := db.WithContext(ctx).Where("broker_id = ?", brokerId)
	if companyId != nil && *companyId > 0 {
		dbCtx = dbCtx.Where("company_id = ?", *companyId)
	}
	var results []*TaxRegistration
	if err := dbCtx.Order("legal_name ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateTaxRegistrationStatus(ctx context.Context, id int, status RegistrationStatus) (*TaxRegistration, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	registration, err := utils.FetchModel[TaxRegistration](ctx, brokerId, id)
	if err != nil {
		return nil, err
	}
	registration.Status = status
	if err := db.WithContext(ctx).Save(registration).Error; err != nil {
		return nil, err
	}
	return registration, nil
}
