package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"gorm.io/gorm"
)

// Pendency is an administrative to-do tied to an employee's enrollment (or
// to a whole tax registration when EmployeeId is nil). For a given employee,
// at most one activation and one cancellation pendency may be open at a
// time; CreatePendency enforces that and the reconciler relies on it.
type Pendency struct {
	ID                int            `gorm:"primary_key" json:"id"`
	BrokerId          string         `gorm:"index;not null;size:36" json:"broker_id"`
	Protocol          string         `gorm:"size:30;not null;uniqueIndex" json:"protocol"`
	Type              PendencyType   `gorm:"not null;uniqueIndex:uniq_open_employee_pendency" json:"type"`
	EmployeeId        *int           `gorm:"index;uniqueIndex:uniq_open_employee_pendency" json:"employee_id"`
	TaxRegistrationId int            `gorm:"index;not null" json:"tax_registration_id"`
	Description       string         `gorm:"type:text" json:"description"`
	DueDate           *time.Time     `json:"due_date"`
	Status            PendencyStatus `gorm:"not null;default:'pending';index" json:"status"`
	// OpenMarker is "open" while a deduplicated pendency is pending and NULL
	// once it closes, so the unique index only constrains open rows.
	OpenMarker        *string        `gorm:"size:12;uniqueIndex:uniq_open_employee_pendency" json:"-"`
	CommentCount      int            `gorm:"not null;default:0" json:"comment_count"`
	ResolvedAt        *time.Time     `json:"resolved_at"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPendency struct {
	Type              PendencyType `json:"type" binding:"required"`
	EmployeeId        *int         `json:"employee_id"`
	TaxRegistrationId int          `json:"tax_registration_id" binding:"required"`
	Description       string       `json:"description"`
	DueDate           *time.Time   `json:"due_date"`
}

// PendencyListFilters narrows ListOpenPendenciesForBroker. Zero values mean
// "no filter"; Tier is applied by the caller because it is derived, not
// stored.
type PendencyListFilters struct {
	FromDate          *time.Time
	ToDate            *time.Time
	Type              *PendencyType
	TaxRegistrationId *int
	Search            string
}

// PendencyRow is a pendency joined with the names the console searches and
// displays.
type PendencyRow struct {
	Pendency
	EmployeeName string `json:"employee_name"`
	LegalName    string `json:"legal_name"`
}

const openMarkerValue = "open"

func generateProtocol(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PEN-%s-%s", now.Format("20060102"), suffix)
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func (input *NewPendency) validate(ctx context.Context, brokerId string) error {
	if !input.Type.IsValid() {
		return errors.New("invalid pendency type")
	}
	if err := utils.ValidateResourceId[TaxRegistration](ctx, brokerId, input.TaxRegistrationId); err != nil {
		return errors.New("tax registration not found")
	}
	if input.EmployeeId != nil {
		if err := utils.ValidateResourceId[Employee](ctx, brokerId, *input.EmployeeId); err != nil {
			return errors.New("employee not found")
		}
	}
	return nil
}

// FindOpenPendency returns the open pendency of the given type for an
// employee, or nil when none exists.
func FindOpenPendency(ctx context.Context, tx *gorm.DB, employeeId int, pendencyType PendencyType) (*Pendency, error) {
	if tx == nil {
		tx = config.GetDB()
	}

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	var pendency Pendency
	err := tx.WithContext(ctx).
		Where("broker_id = ? AND employee_id = ? AND type = ? AND status = ?",
			brokerId, employeeId, pendencyType, PendencyStatusPending).
		First(&pendency).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, err)
	}
	return &pendency, nil
}

// CreatePendency inserts a pendency and queues the notification event in the
// same transaction. For activation/cancellation types the open-duplicate
// invariant is enforced idempotently: when an open pendency of the same type
// already exists for the employee, that row is returned with created=false.
// This is an expected race between the reconciler and user action, not an
// error.
func CreatePendency(ctx context.Context, tx *gorm.DB, input *NewPendency) (pendency *Pendency, created bool, err error) {
	outer := tx
	if outer == nil {
		outer = config.GetDB()
	}

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, false, errors.New("broker id is required")
	}

	if err := input.validate(ctx, brokerId); err != nil {
		return nil, false, err
	}

	dedup := input.EmployeeId != nil &&
		(input.Type == PendencyTypeActivation || input.Type == PendencyTypeCancellation)

	err = outer.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dedup {
			existing, ferr := FindOpenPendency(ctx, tx, *input.EmployeeId, input.Type)
			if ferr != nil {
				return ferr
			}
			if existing != nil {
				pendency = existing
				return nil
			}
		}

		now := time.Now()
		row := Pendency{
			BrokerId:          brokerId,
			Protocol:          generateProtocol(now),
			Type:              input.Type,
			EmployeeId:        input.EmployeeId,
			TaxRegistrationId: input.TaxRegistrationId,
			Description:       input.Description,
			DueDate:           input.DueDate,
			Status:            PendencyStatusPending,
		}
		if dedup {
			marker := openMarkerValue
			row.OpenMarker = &marker
		}
		if cerr := tx.Create(&row).Error; cerr != nil {
			if !isDuplicateKeyErr(cerr) {
				return fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, cerr)
			}
			if dedup {
				// A concurrent writer won the open-marker index between our
				// dedup read and the insert; return its row.
				existing, ferr := FindOpenPendency(ctx, tx, *input.EmployeeId, input.Type)
				if ferr != nil {
					return ferr
				}
				if existing != nil {
					pendency = existing
					return nil
				}
			}
			// Protocol collision: regenerate once. Collisions beyond that
			// indicate a clock or entropy problem worth surfacing.
			row.ID = 0
			row.Protocol = generateProtocol(now)
			if cerr = tx.Create(&row).Error; cerr != nil {
				return fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, cerr)
			}
		}

		if qerr := QueueNotification(ctx, tx, &row, NotificationEventPendencyCreated); qerr != nil {
			return qerr
		}

		pendency = &row
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return pendency, created, nil
}

// CompletePendency closes an open pendency and queues the completion event.
// Completing an already-completed pendency is a no-op.
func CompletePendency(ctx context.Context, tx *gorm.DB, id int, resolvedAt time.Time) error {
	outer := tx
	if outer == nil {
		outer = config.GetDB()
	}

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return errors.New("broker id is required")
	}

	return outer.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pendency Pendency
		if err := tx.Where("broker_id = ?", brokerId).First(&pendency, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, err)
		}
		if pendency.Status == PendencyStatusCompleted {
			return nil
		}

		res := tx.Model(&Pendency{}).
			Where("id = ? AND broker_id = ? AND status = ?", id, brokerId, PendencyStatusPending).
			Updates(map[string]interface{}{"status": PendencyStatusCompleted, "resolved_at": resolvedAt, "open_marker": nil})
		if res.Error != nil {
			return fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race to another closer; already in the desired state.
			return nil
		}

		pendency.Status = PendencyStatusCompleted
		pendency.ResolvedAt = &resolvedAt
		return QueueNotification(ctx, tx, &pendency, NotificationEventPendencyCompleted)
	})
}

// ListOpenPendenciesForBroker returns open pendencies joined with employee
// and registration names, newest due first. Broker scoping is part of the
// query itself, on top of the guard plugin.
func ListOpenPendenciesForBroker(ctx context.Context, filters PendencyListFilters) ([]*PendencyRow, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	q := db.WithContext(ctx).Model(&Pendency{}).
		Select("pendencies.*, COALESCE(employees.name, '') AS employee_name, tax_registrations.legal_name AS legal_name").
		Joins("LEFT JOIN employees ON employees.id = pendencies.employee_id").
		Joins("JOIN tax_registrations ON tax_registrations.id = pendencies.tax_registration_id").
		Where("pendencies.broker_id = ?", brokerId).
		Where("pendencies.status = ?", PendencyStatusPending)

	if filters.FromDate != nil {
		q = q.Where("pendencies.created_at >= ?", *filters.FromDate)
	}
	if filters.ToDate != nil {
		q = q.Where("pendencies.created_at <= ?", *filters.ToDate)
	}
	if filters.Type != nil {
		q = q.Where("pendencies.type = ?", *filters.Type)
	}
	if filters.TaxRegistrationId != nil && *filters.TaxRegistrationId > 0 {
		q = q.Where("pendencies.tax_registration_id = ?", *filters.TaxRegistrationId)
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		like := "%" + s + "%"
		q = q.Where("pendencies.protocol LIKE ? OR employees.name LIKE ? OR tax_registrations.legal_name LIKE ?", like, like, like)
	}

	var rows []*PendencyRow
	if err := q.Order("pendencies.due_date ASC, pendencies.id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, err)
	}
	return rows, nil
}

// GetPendency fetches one pendency. A row that exists but belongs to another
// broker is a scope violation, not a not-found.
func GetPendency(ctx context.Context, id int) (*Pendency, error) {
	db := config.GetDB()

	brokerId, ok := utils.GetBrokerIdFromContext(ctx)
	if !ok || brokerId == "" {
		return nil, errors.New("broker id is required")
	}

	var pendency Pendency
	err := db.WithContext(ctx).Where("broker_id = ?", brokerId).First(&pendency, id).Error
	if err == nil {
		return &pendency, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", utils.ErrRepositoryUnavailable, err)
	}

	// Distinguish "does not exist" from "not yours".
	unscoped := utils.SetSkipBrokerScopeInContext(ctx, true)
	var count int64
	if cerr := db.WithContext(unscoped).Model(&Pendency{}).Where("id = ?", id).Count(&count).Error; cerr == nil && count > 0 {
		return nil, utils.ErrScopeViolation
	}
	return nil, utils.ErrorRecordNotFound
}

// ResolvePendency applies the broker's approve/deny decision. For
// activation/cancellation it only mutates the underlying employee and
// enrollment status; the reconciler observes the new state and closes the
// pendency on its next pass. Documentation/alteration pendencies have no
// backing state machine and are closed directly.
func ResolvePendency(ctx context.Context, id int, action ResolveAction) (*Pendency, error) {
	db := config.GetDB()

	pendency, err := GetPendency(ctx, id)
	if err != nil {
		return nil, err
	}
	if pendency.Status == PendencyStatusCompleted {
		return pendency, nil
	}
	if action != ResolveActionApprove && action != ResolveActionDeny {
		return nil, errors.New("invalid resolve action")
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch pendency.Type {
		case PendencyTypeActivation:
			if pendency.EmployeeId == nil {
				return CompletePendency(ctx, tx, pendency.ID, time.Now())
			}
			if action == ResolveActionApprove {
				if _, uerr := UpdateEmployeeStatus(ctx, tx, *pendency.EmployeeId, EmployeeStatusActive); uerr != nil {
					return uerr
				}
				return UpdateEnrollmentStatusByEmployee(ctx, tx, *pendency.EmployeeId,
					[]EnrollmentStatus{EnrollmentStatusPending}, EnrollmentStatusActive)
			}
			if _, uerr := UpdateEmployeeStatus(ctx, tx, *pendency.EmployeeId, EmployeeStatusArchived); uerr != nil {
				return uerr
			}
			if uerr := UpdateEnrollmentStatusByEmployee(ctx, tx, *pendency.EmployeeId,
				[]EnrollmentStatus{EnrollmentStatusPending}, EnrollmentStatusInactive); uerr != nil {
				return uerr
			}
			// A denied activation has no state left to converge on; close it now.
			return CompletePendency(ctx, tx, pendency.ID, time.Now())

		case PendencyTypeCancellation:
			if pendency.EmployeeId == nil {
				return CompletePendency(ctx, tx, pendency.ID, time.Now())
			}
			if action == ResolveActionApprove {
				if _, uerr := UpdateEmployeeStatus(ctx, tx, *pendency.EmployeeId, EmployeeStatusDeactivated); uerr != nil {
					return uerr
				}
				return UpdateEnrollmentStatusByEmployee(ctx, tx, *pendency.EmployeeId, nil, EnrollmentStatusInactive)
			}
			if _, uerr := UpdateEmployeeStatus(ctx, tx, *pendency.EmployeeId, EmployeeStatusActive); uerr != nil {
				return uerr
			}
			if uerr := UpdateEnrollmentStatusByEmployee(ctx, tx, *pendency.EmployeeId,
				[]EnrollmentStatus{EnrollmentStatusExclusionRequested}, EnrollmentStatusActive); uerr != nil {
				return uerr
			}
			// A denied cancellation leaves the employee active; close it now.
			return CompletePendency(ctx, tx, pendency.ID, time.Now())

		default:
			// documentation / alteration
			return CompletePendency(ctx, tx, pendency.ID, time.Now())
		}
	})
	if err != nil {
		return nil, err
	}
	return GetPendency(ctx, id)
}
