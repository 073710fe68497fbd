package workflow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/mktfun/gps-rh-13-sub002/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, derr := db.DB(); derr == nil {
		// One shared in-memory database per test.
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := db.Use(config.NewBrokerGuardPlugin()); err != nil {
		t.Fatalf("install broker guard: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
	return db
}

// seedBrokerScope creates a broker with one company and registration and
// returns a context carrying the broker id.
func seedBrokerScope(t *testing.T, name, email, cnpj string) (context.Context, *models.TaxRegistration) {
	t.Helper()

	ctx := context.Background()
	broker, err := models.CreateBroker(ctx, &models.NewBroker{Name: name, Email: email})
	if err != nil {
		t.Fatalf("CreateBroker: %v", err)
	}
	ctx = utils.SetBrokerIdInContext(ctx, broker.ID)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: name + " Co"})
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	registration, err := models.CreateTaxRegistration(ctx, &models.NewTaxRegistration{
		CompanyId:          company.ID,
		RegistrationNumber: cnpj,
		LegalName:          name + " Matriz",
	})
	if err != nil {
		t.Fatalf("CreateTaxRegistration: %v", err)
	}
	return ctx, registration
}

func TestReconcileCreatesActivationPendency(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker One", "one@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Ana Souza",
		TaxId:             "52998224725",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	summary, err := workflow.ReconcileBroker(context.Background(), db, logrus.New(), brokerId)
	if err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected 1 created, got %d (errors: %v)", summary.Created, summary.Errors)
	}
	if summary.Completed != 0 || summary.Flagged != 0 {
		t.Fatalf("unexpected writes: %+v", summary)
	}

	pendency, err := models.FindOpenPendency(ctx, nil, employee.ID, models.PendencyTypeActivation)
	if err != nil {
		t.Fatalf("FindOpenPendency: %v", err)
	}
	if pendency == nil {
		t.Fatal("expected an open activation pendency")
	}
	if pendency.DueDate == nil {
		t.Fatal("expected a due date on the created pendency")
	}
	if days := utils.CalendarDaysBetween(time.Now(), *pendency.DueDate); days != config.ActivationDueDays() {
		t.Fatalf("expected due in %d days, got %d", config.ActivationDueDays(), days)
	}
	if !strings.HasPrefix(pendency.Protocol, "PEN-") {
		t.Fatalf("unexpected protocol format: %s", pendency.Protocol)
	}
}

func TestReconcileCompletesSatisfiedPendency(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker Two", "two@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)
	logger := logrus.New()

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Bruno Lima",
		TaxId:             "11144477735",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	// First run creates the activation pendency.
	if _, err := workflow.ReconcileBroker(context.Background(), db, logger, brokerId); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	// The broker approves: employee goes active. The pendency stays open
	// until the next pass observes the new state.
	if _, err := models.UpdateEmployeeStatus(ctx, nil, employee.ID, models.EmployeeStatusActive); err != nil {
		t.Fatalf("UpdateEmployeeStatus: %v", err)
	}

	summary, err := workflow.ReconcileBroker(context.Background(), db, logger, brokerId)
	if err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("expected 1 completed, got %d (errors: %v)", summary.Completed, summary.Errors)
	}
	if summary.Created != 0 {
		t.Fatalf("expected no new pendencies, got %d", summary.Created)
	}

	open, err := models.FindOpenPendency(ctx, nil, employee.ID, models.PendencyTypeActivation)
	if err != nil {
		t.Fatalf("FindOpenPendency: %v", err)
	}
	if open != nil {
		t.Fatal("expected the activation pendency to be closed")
	}

	var completedEvents int64
	err = db.Model(&models.NotificationRecord{}).
		Where("broker_id = ? AND event_type = ?", brokerId, models.NotificationEventPendencyCompleted).
		Count(&completedEvents).Error
	if err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	if completedEvents != 1 {
		t.Fatalf("expected 1 completion event in the outbox, got %d", completedEvents)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker Three", "three@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)
	logger := logrus.New()

	for i, seed := range []struct{ name, taxId string }{
		{"Carla Dias", "12345678909"},
		{"Diego Alves", "98765432100"},
	} {
		if _, err := models.CreateEmployee(ctx, &models.NewEmployee{
			TaxRegistrationId: registration.ID,
			Name:              seed.name,
			TaxId:             seed.taxId,
		}); err != nil {
			t.Fatalf("CreateEmployee %d: %v", i, err)
		}
	}

	first, err := workflow.ReconcileBroker(context.Background(), db, logger, brokerId)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("first run: expected 2 created, got %d (errors: %v)", first.Created, first.Errors)
	}

	var countAfterFirst int64
	if err := db.Model(&models.Pendency{}).Where("broker_id = ?", brokerId).Count(&countAfterFirst).Error; err != nil {
		t.Fatalf("count pendencies: %v", err)
	}

	second, err := workflow.ReconcileBroker(context.Background(), db, logger, brokerId)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 || second.Completed != 0 || second.Flagged != 0 {
		t.Fatalf("second run performed writes: %+v", second)
	}

	var countAfterSecond int64
	if err := db.Model(&models.Pendency{}).Where("broker_id = ?", brokerId).Count(&countAfterSecond).Error; err != nil {
		t.Fatalf("count pendencies: %v", err)
	}
	if countAfterFirst != countAfterSecond {
		t.Fatalf("pendency count changed between runs: %d -> %d", countAfterFirst, countAfterSecond)
	}
}

func TestReconcileLeavesPoolUsable(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker Five", "five@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)

	if _, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Elisa Prado",
		TaxId:             "52998224725",
	}); err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	// The pool is capped at one connection, so a run holding a connection
	// past its return would wedge every query after it.
	for i := 0; i < 2; i++ {
		if _, err := workflow.ReconcileBroker(context.Background(), db, logrus.New(), brokerId); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	var count int64
	if err := db.Model(&models.Pendency{}).Where("broker_id = ?", brokerId).Count(&count).Error; err != nil {
		t.Fatalf("query after reconcile runs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pendency, got %d", count)
	}
}

func TestReconcileFlagsOrphansWithoutRepairing(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker Four", "four@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)

	// A pendency pointing at this broker's registration but stamped with a
	// different broker id is invisible to its rightful owner.
	orphan := models.Pendency{
		BrokerId:          "00000000-0000-0000-0000-000000000bad",
		Protocol:          "PEN-20260801-ORPHAN01",
		Type:              models.PendencyTypeDocumentation,
		TaxRegistrationId: registration.ID,
		Description:       "Missing enrollment form",
		Status:            models.PendencyStatusPending,
	}
	if err := db.Create(&orphan).Error; err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	summary, err := workflow.ReconcileBroker(context.Background(), db, logrus.New(), brokerId)
	if err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}
	if summary.Flagged != 1 {
		t.Fatalf("expected 1 flagged orphan, got %d", summary.Flagged)
	}

	// Flagged, never fixed: the row keeps its original scope and status.
	var after models.Pendency
	if err := db.Where("protocol = ?", orphan.Protocol).First(&after).Error; err != nil {
		t.Fatalf("reload orphan: %v", err)
	}
	if after.BrokerId != orphan.BrokerId || after.Status != models.PendencyStatusPending {
		t.Fatalf("orphan was modified: %+v", after)
	}
}
