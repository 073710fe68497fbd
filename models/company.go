package models

import (
	"context"
	"errors"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
)

type Company struct {
	ID        int       `gorm:"primary_key" json:"id"`
	BrokerId  string    `gorm:"index;not null;size:36" json:"broker_id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewCompany) validate(ctx context.Context, brokerId string, id int) error {
	// validate unique name within the broker's portfolio
	if err := utils.ValidateUnique[Company](ctx, brokerId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	if err := input.validate(ctx, brokerId, 0); err != nil {
		return nil, err
	}

	company := Company{
		BrokerId: brokerId,
		Name:     input.Name,
	}
	if err := db.WithContext(ctx).Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompany(ctx context.Context, id int) (*Company, error) {
	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}
	return utils.FetchModel[Company](ctx, brokerId, id)
}

func ListCompanies(ctx context.Context) ([]*Company, error) {
	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}
	return utils.FetchAllModels[Company](ctx, brokerId)
}
