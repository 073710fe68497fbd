package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mktfun/gps-rh-13-sub002/config"
	"gorm.io/gorm"
)

// Broker is the tenant: every owned record carries its id and the broker
// guard plugin scopes queries by it.
type Broker struct {
	ID        string    `gorm:"primary_key;size:36" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100;uniqueIndex" json:"email" binding:"required,email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Broker) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type NewBroker struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

func CreateBroker(ctx context.Context, input *NewBroker) (*Broker, error) {
	db := config.GetDB()

	broker := Broker{
		Name:  input.Name,
		Email: input.Email,
	}
	if err := db.WithContext(ctx).Create(&broker).Error; err != nil {
		return nil, err
	}
	return &broker, nil
}

func GetBrokerById(ctx context.Context, id string) (*Broker, error) {
	db := config.GetDB()
	var broker Broker
	err := db.WithContext(ctx).Where("id = ?", id).First(&broker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("broker not found")
		}
		return nil, err
	}
	return &broker, nil
}

// ListActiveBrokerIds feeds the background reconciler sweep. It is an
// internal query and runs unscoped.
func ListActiveBrokerIds(ctx context.Context) ([]string, error) {
	db := config.GetDB()
	var ids []string
	err := db.WithContext(ctx).Model(&Broker{}).Where("is_active = ?", true).Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
