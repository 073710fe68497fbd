package models

import (
	"context"
	"errors"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/shopspring/decimal"
)

// InsurancePlan holds one plan per (tax registration, plan type). A zero
// monthly price is legitimate for health plans awaiting per-head pricing;
// the allocator substitutes the configured rate in that case.
type InsurancePlan struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BrokerId          string          `gorm:"index;not null;size:36" json:"broker_id"`
	TaxRegistrationId int             `gorm:"not null;uniqueIndex:idx_registration_plan_type" json:"tax_registration_id" binding:"required"`
	Insurer           string          `gorm:"size:100;not null" json:"insurer" binding:"required"`
	PlanType          PlanType        `gorm:"not null;uniqueIndex:idx_registration_plan_type" json:"plan_type" binding:"required"`
	MonthlyPrice      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"monthly_price"`
	DeathCoverage     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"death_coverage"`
	FuneralAssistance decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"funeral_assistance"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInsurancePlan struct {
	TaxRegistrationId int             `json:"tax_registration_id" binding:"required"`
	Insurer           string          `json:"insurer" binding:"required"`
	PlanType          PlanType        `json:"plan_type" binding:"required"`
	MonthlyPrice      decimal.Decimal `json:"monthly_price"`
	DeathCoverage     decimal.Decimal `json:"death_coverage"`
	FuneralAssistance decimal.Decimal `json:"funeral_assistance"`
}

func (input *NewInsurancePlan) validate(ctx context.Context, brokerId string) error {
	if !input.PlanType.IsValid() {
		return errors.New("invalid plan type")
	}
	if input.MonthlyPrice.IsNegative() {
		return errors.New("monthly price cannot be negative")
	}
	if err := utils.ValidateResourceId[TaxRegistration](ctx, brokerId, input.TaxRegistrationId); err != nil {
		return errors.New("tax registration not found")
	}
	// at most one plan per (registration, type)
	count, err := utils.ResourceCountWhere[InsurancePlan](ctx, brokerId,
		"tax_registration_id = ? AND plan_type = ?", input.TaxRegistrationId, input.PlanType)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("registration already has a plan of this type")
	}
	return nil
}

func CreateInsurancePlan(ctx context.Context, input *NewInsurancePlan) (*InsurancePlan, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	if err := input.validate(ctx, brokerId); err != nil {
		return nil, err
	}

	plan := InsurancePlan{
		BrokerId:          brokerId,
		TaxRegistrationId: input.TaxRegistrationId,
		Insurer:           input.Insurer,
		PlanType:          input.PlanType,
		MonthlyPrice:      input.MonthlyPrice,
		DeathCoverage:     input.DeathCoverage,
		FuneralAssistance: input.FuneralAssistance,
	}
	if err := db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func GetInsurancePlan(ctx context.Context, id int) (*InsurancePlan, error) {
	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}
	return utils.FetchModel[InsurancePlan](ctx, brokerId, id)
}

func ListInsurancePlans(ctx context.Context, taxRegistrationId *int) ([]*InsurancePlan, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	dbCtx := db.WithContext(ctx).Where("broker_id = ?", brokerId)
	if taxRegistrationId != nil && *taxRegistrationId > 0 {
		dbCtx = dbCtx.Where("tax_registration_id = ?", *taxRegistrationId)
	}
	var results []*InsurancePlan
	if err := dbCtx.Order("id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
