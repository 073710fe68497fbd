package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Status vocabularies for the pendency lifecycle. Values are stored as-is in
// their enum columns, so renaming one is a migration, not a refactor.
//
// Column DDL comes from GormDBDataType so the same models migrate on MySQL
// (native enums) and on the sqlite used in tests (plain text).

func enumColumn(db *gorm.DB, values ...string) string {
	if db.Dialector.Name() == "mysql" {
		return fmt.Sprintf("enum('%s')", strings.Join(values, "','"))
	}
	return "text"
}

type RegistrationStatus string

const (
	RegistrationStatusActive      RegistrationStatus = "active"
	RegistrationStatusConfiguring RegistrationStatus = "configuring"
	RegistrationStatusInactive    RegistrationStatus = "inactive"
)

func (RegistrationStatus) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return enumColumn(db, "active", "configuring", "inactive")
}

type EmployeeStatus string

const (
	EmployeeStatusPending            EmployeeStatus = "pending"
	EmployeeStatusActive             EmployeeStatus = "active"
	EmployeeStatusDeactivated        EmployeeStatus = "deactivated"
	EmployeeStatusExclusionRequested EmployeeStatus = "exclusion_requested"
	EmployeeStatusPendingExclusion   EmployeeStatus = "pending_exclusion"
	EmployeeStatusArchived           EmployeeStatus = "archived"
	EmployeeStatusEditRequested      EmployeeStatus = "edit_requested"
)

func (EmployeeStatus) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return enumColumn(db, "pending", "active", "deactivated", "exclusion_requested",
		"pending_exclusion", "archived", "edit_requested")
}

type PlanType string

const (
	PlanTypeLife   PlanType = "life"
	PlanTypeHealth PlanType = "health"
	PlanTypeOther  PlanType = "other"
)

func (PlanType) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return enumColumn(db, "life", "health", "other")
}

func (t PlanType) IsValid() bool {
	switch t {
	case PlanTypeLife, PlanTypeHealth, PlanTypeOther:
		return true
	}
	return false
}

type EnrollmentStatus string

const (
	EnrollmentStatusActive             EnrollmentStatus = "active"
	EnrollmentStatusPending            EnrollmentStatus = "pending"
	EnrollmentStatusInactive           EnrollmentStatus = "inactive"
	EnrollmentStatusExclusionRequested EnrollmentStatus = "exclusion_requested"
)

func (EnrollmentStatus) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return enumColumn(db, "active", "pending", "inactive", "exclusion_requested")
}

type PendencyType string

const (
	PendencyTypeDocumentation PendencyType = "documentation"
	PendencyTypeActivation    PendencyType = "activation"
	PendencyTypeAlteration    PendencyType = "alteration"
	PendencyTypeCancellation  PendencyType = "cancellation"
)

func (PendencyType) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return enumColumn(db, "documentation", "activation", "alteration", "cancellation")
}

func (t PendencyType) IsValid() bool {
	switch t {
	case PendencyTypeDocumentation, PendencyTypeActivation, PendencyTypeAlteration, PendencyTypeCancellation:
		return true
	}
	return false
}

type PendencyStatus string

const (
	PendencyStatusPending   PendencyStatus = "pending"
	PendencyStatusCompleted PendencyStatus = "completed"
)

func (PendencyStatus) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return enumColumn(db, "pending", "completed")
}

// PendencyTier is derived from the due date at read time; it is never stored.
type PendencyTier string

const (
	PendencyTierCritical PendencyTier = "critical"
	PendencyTierUrgent   PendencyTier = "urgent"
	PendencyTierNormal   PendencyTier = "normal"
)

func (t PendencyTier) IsValid() bool {
	switch t {
	case PendencyTierCritical, PendencyTierUrgent, PendencyTierNormal:
		return true
	}
	return false
}

type ResolveAction string

const (
	ResolveActionApprove ResolveAction = "approve"
	ResolveActionDeny    ResolveAction = "deny"
)

type NotificationEventType string

const (
	NotificationEventPendencyCreated   NotificationEventType = "pendency_created"
	NotificationEventPendencyCompleted NotificationEventType = "pendency_completed"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending OutboxPublishStatus = "PENDING"
	OutboxPublishStatusSent    OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed  OutboxPublishStatus = "FAILED"
)
