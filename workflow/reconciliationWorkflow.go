package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileError is one item that failed during a run. The batch keeps
// going; the caller gets the full list in the summary.
type ReconcileError struct {
	EmployeeId int    `json:"employee_id,omitempty"`
	PendencyId int    `json:"pendency_id,omitempty"`
	Reason     string `json:"reason"`
}

// ReconcileSummary is the structured result of one reconciler run. A
// cancelled run returns the partial summary accumulated so far.
type ReconcileSummary struct {
	BrokerId   string           `json:"broker_id"`
	Processed  int              `json:"processed"`
	Created    int              `json:"created"`
	Completed  int              `json:"completed"`
	Flagged    int              `json:"flagged"`
	Errors     []ReconcileError `json:"errors"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// ReconcileBroker runs one drift-repair pass for a broker scope. Runs for
// the same broker are serialized (redis lock as a fast path, MySQL advisory
// lock as the reliable one); runs for different brokers are independent.
// The pass is idempotent: with no external changes a second run performs
// zero additional writes.
func ReconcileBroker(ctx context.Context, db *gorm.DB, logger *logrus.Logger, brokerId string) (*ReconcileSummary, error) {
	if brokerId == "" {
		return nil, fmt.Errorf("broker id is required")
	}
	ctx = utils.SetBrokerIdInContext(ctx, brokerId)

	if lock := obtainRedisReconcileLock(ctx, brokerId, 2*time.Minute); lock != nil {
		defer lock.Release(context.Background())
	}

	// GET_LOCK and RELEASE_LOCK are connection-scoped, so both run on one
	// pinned connection held for the whole pass. Acquiring on one pooled
	// connection and releasing on another would release nothing and leave
	// the lock held until the pool recycles the holder.
	if db.Dialector.Name() == "mysql" {
		var summary *ReconcileSummary
		err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
			if err := AcquireBrokerReconcileLock(conn, brokerId); err != nil {
				return err
			}
			defer ReleaseBrokerReconcileLock(conn, brokerId)
			summary = reconcileBrokerScope(ctx, db, logger, brokerId)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return summary, nil
	}

	return reconcileBrokerScope(ctx, db, logger, brokerId), nil
}

func reconcileBrokerScope(ctx context.Context, db *gorm.DB, logger *logrus.Logger, brokerId string) *ReconcileSummary {
	now := time.Now()
	summary := &ReconcileSummary{BrokerId: brokerId, StartedAt: now}
	defer func() { summary.FinishedAt = time.Now() }()

	// Pass 1: close open pendencies whose underlying state already resolved.
	var open []*models.Pendency
	err := db.WithContext(ctx).
		Where("broker_id = ? AND status = ? AND employee_id IS NOT NULL", brokerId, models.PendencyStatusPending).
		Where("type IN ?", []models.PendencyType{models.PendencyTypeActivation, models.PendencyTypeCancellation}).
		Order("id ASC").
		Find(&open).Error
	if err != nil {
		summary.Errors = append(summary.Errors, ReconcileError{Reason: fmt.Sprintf("loading open pendencies: %v", err)})
		return summary
	}

	for _, pendency := range open {
		if ctx.Err() != nil {
			return summary
		}
		summary.Processed++

		var employee models.Employee
		err := db.WithContext(ctx).Where("broker_id = ?", brokerId).First(&employee, *pendency.EmployeeId).Error
		if err != nil {
			summary.Errors = append(summary.Errors, ReconcileError{
				EmployeeId: *pendency.EmployeeId,
				PendencyId: pendency.ID,
				Reason:     fmt.Sprintf("loading employee: %v", err),
			})
			continue
		}

		var resolvedBy models.EmployeeStatus
		switch {
		case pendency.Type == models.PendencyTypeActivation && employee.Status == models.EmployeeStatusActive:
			resolvedBy = models.EmployeeStatusActive
		case pendency.Type == models.PendencyTypeCancellation && employee.Status == models.EmployeeStatusDeactivated:
			resolvedBy = models.EmployeeStatusDeactivated
		default:
			continue
		}

		if err := models.CompletePendency(ctx, db, pendency.ID, time.Now()); err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "reconcileBrokerScope", "completing pendency", pendency.ID, err)
			summary.Errors = append(summary.Errors, ReconcileError{
				EmployeeId: employee.ID,
				PendencyId: pendency.ID,
				Reason:     fmt.Sprintf("completing pendency: %v", err),
			})
			continue
		}
		summary.Completed++
		logTransition(logger, employee.ID, pendency.ID,
			string(models.PendencyStatusPending), string(models.PendencyStatusCompleted),
			fmt.Sprintf("employee status %s satisfies %s pendency", resolvedBy, pendency.Type))
	}

	// Pass 2: create the pendencies that qualifying employee states lack.
	var waiting []*models.Employee
	err = db.WithContext(ctx).
		Where("broker_id = ? AND status IN ?", brokerId,
			[]models.EmployeeStatus{models.EmployeeStatusPending, models.EmployeeStatusExclusionRequested}).
		Order("id ASC").
		Find(&waiting).Error
	if err != nil {
		summary.Errors = append(summary.Errors, ReconcileError{Reason: fmt.Sprintf("loading employees: %v", err)})
		return summary
	}

	dueDate := now.AddDate(0, 0, config.ActivationDueDays())
	for _, employee := range waiting {
		if ctx.Err() != nil {
			return summary
		}
		summary.Processed++

		pendencyType := models.PendencyTypeActivation
		description := fmt.Sprintf("Activate %s in the contracted plans", employee.Name)
		if employee.Status == models.EmployeeStatusExclusionRequested {
			pendencyType = models.PendencyTypeCancellation
			description = fmt.Sprintf("Process exclusion of %s from the contracted plans", employee.Name)
		}

		employeeId := employee.ID
		pendency, created, err := models.CreatePendency(ctx, db, &models.NewPendency{
			Type:              pendencyType,
			EmployeeId:        &employeeId,
			TaxRegistrationId: employee.TaxRegistrationId,
			Description:       description,
			DueDate:           &dueDate,
		})
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "reconcileBrokerScope", "creating pendency", employee.ID, err)
			summary.Errors = append(summary.Errors, ReconcileError{
				EmployeeId: employee.ID,
				Reason:     fmt.Sprintf("creating %s pendency: %v", pendencyType, err),
			})
			continue
		}
		if !created {
			// Already covered by an open pendency; nothing to write.
			continue
		}
		summary.Created++
		logTransition(logger, employee.ID, pendency.ID,
			"", string(models.PendencyStatusPending),
			fmt.Sprintf("employee status %s lacked an open %s pendency", employee.Status, pendencyType))
	}

	// Pass 3: flag orphans. A pendency pointing at this broker's registrations
	// but carrying a different broker_id is invisible to the broker who should
	// see it. Visibility bugs get investigated, never silently repaired.
	unscoped := utils.SetSkipBrokerScopeInContext(ctx, true)
	var orphans []*models.Pendency
	err = db.WithContext(unscoped).Model(&models.Pendency{}).
		Joins("JOIN tax_registrations ON tax_registrations.id = pendencies.tax_registration_id").
		Where("tax_registrations.broker_id = ?", brokerId).
		Where("pendencies.broker_id <> ?", brokerId).
		Where("pendencies.status = ?", models.PendencyStatusPending).
		Find(&orphans).Error
	if err != nil {
		summary.Errors = append(summary.Errors, ReconcileError{Reason: fmt.Sprintf("scanning for orphans: %v", err)})
		return summary
	}
	for _, pendency := range orphans {
		summary.Processed++
		summary.Flagged++
		logger.WithFields(logrus.Fields{
			"pendencyId":     pendency.ID,
			"protocol":       pendency.Protocol,
			"pendencyBroker": pendency.BrokerId,
			"scopeBroker":    brokerId,
		}).Warn("orphan pendency: row is invisible under its owning broker scope")
	}

	return summary
}

// logTransition emits one discrete, structured event per applied state
// change so runs can be audited after the fact.
func logTransition(logger *logrus.Logger, employeeId, pendencyId int, previousStatus, newStatus, reason string) {
	logger.WithFields(logrus.Fields{
		"employeeId":     employeeId,
		"pendencyId":     pendencyId,
		"previousStatus": previousStatus,
		"newStatus":      newStatus,
		"reason":         reason,
	}).Info("reconcile transition")
}

// ReconcileAllBrokers sweeps every active broker sequentially. Broker scopes
// are independent; one failing scope does not stop the sweep.
func ReconcileAllBrokers(ctx context.Context, db *gorm.DB, logger *logrus.Logger) {
	ids, err := models.ListActiveBrokerIds(ctx)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ReconcileAllBrokers", "listing brokers", nil, err)
		return
	}
	for _, brokerId := range ids {
		if ctx.Err() != nil {
			return
		}
		summary, err := ReconcileBroker(ctx, db, logger, brokerId)
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ReconcileAllBrokers", "reconciling broker", brokerId, err)
			continue
		}
		logger.WithFields(logrus.Fields{
			"brokerId":  summary.BrokerId,
			"processed": summary.Processed,
			"created":   summary.Created,
			"completed": summary.Completed,
			"flagged":   summary.Flagged,
			"errors":    len(summary.Errors),
		}).Info("reconcile run finished")
	}
}
