package utils

import (
	"context"

	"github.com/mktfun/gps-rh-13-sub002/config"
)

/* DB fetching */

// fetch model from db
// (broker_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, brokerId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("broker_id = ?", brokerId)
	// preloading
	for _, field := range associations {
		dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch all models from db
// (broker_id is used in query's WHERE)
func FetchAllModels[T any](ctx context.Context, brokerId string, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("broker_id = ?", brokerId)
	for _, field := range associations {
		dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
