package models

import (
	"context"
	"errors"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"gorm.io/gorm"
)

type PendencyComment struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BrokerId    string    `gorm:"index;not null;size:36" json:"broker_id"`
	PendencyId  int       `gorm:"index;not null" json:"pendency_id"`
	Description string    `gorm:"type:text;not null" json:"description" binding:"required"`
	UserId      int       `gorm:"index;not null" json:"user_id"`
	UserName    string    `gorm:"size:100" json:"user_name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewPendencyComment struct {
	Description string `json:"description" binding:"required"`
}

// CreatePendencyComment appends a comment and bumps the pendency's
// comment_count in the same transaction.
func CreatePendencyComment(ctx context.Context, pendencyId int, input *NewPendencyComment) (*PendencyComment, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	if _, err := GetPendency(ctx, pendencyId); err != nil {
		return nil, err
	}

	comment := PendencyComment{
		BrokerId:    brokerId,
		PendencyId:  pendencyId,
		Description: input.Description,
		UserId:      userId,
		UserName:    userName,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&Pendency{}).
			Where("id = ? AND broker_id = ?", pendencyId, brokerId).
			Update("comment_count", gorm.Expr("comment_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func ListPendencyComments(ctx context.Context, pendencyId int) ([]*PendencyComment, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	var results []*PendencyComment
	err := db.WithContext(ctx).
		Where("broker_id = ? AND pendency_id = ?", brokerId, pendencyId).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
