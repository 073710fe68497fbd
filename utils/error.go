package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrScopeViolation marks an attempt to read or mutate a record outside the
// caller's broker ownership. It is always surfaced as an authorization
// failure, never silently filtered.
var ErrScopeViolation = errors.New("resource belongs to another broker")

// ErrRepositoryUnavailable wraps transient storage failures so batch callers
// can keep going with other items.
var ErrRepositoryUnavailable = errors.New("repository unavailable")

// DataQualityWarning flags malformed or missing optional data that was
// degraded to a safe default instead of aborting the computation.
type DataQualityWarning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (w *DataQualityWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Reason)
}

// AllocationInputError reports one plan that could not participate in cost
// allocation. Batch aggregation records it and continues.
type AllocationInputError struct {
	PlanId int    `json:"plan_id"`
	Reason string `json:"reason"`
}

func (e *AllocationInputError) Error() string {
	return fmt.Sprintf("plan %d: %s", e.PlanId, e.Reason)
}
