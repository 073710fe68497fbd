package utils

import (
	"context"
	"errors"
	"reflect"

	"github.com/mktfun/gps-rh-13-sub002/config"
)

// check if id exists, using broker_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, brokerId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, brokerId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, brokerId string, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, brokerId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, brokerId, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

// count records, using WHERE broker_id = ? AND $condition
// broker_id can be blank for admin user
func ResourceCountWhere[T any](ctx context.Context, brokerId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if brokerId != "" {
		dbCtx.Where("broker_id = ?", brokerId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
