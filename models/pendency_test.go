package models_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
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

func seedBrokerScope(t *testing.T, name, email, cnpj string) (context.Context, *models.TaxRegistration) {
	t.Helper()

	ctx := context.Background()
	broker, err := models.CreateBroker(ctx, &models.NewBroker{Name: name, Email: email})
	if err != nil {
		t.Fatalf("CreateBroker: %v", err)
	}
	ctx = utils.SetBrokerIdInContext(ctx, broker.ID)
	ctx = utils.SetUserIdInContext(ctx, 1)
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

func TestPendencyBrokerScopeIsolation(t *testing.T) {
	setupTestDB(t)
	ctxA, regA := seedBrokerScope(t, "Broker A", "a@test.local", "11222333000181")
	ctxB, regB := seedBrokerScope(t, "Broker B", "b@test.local", "11444777000161")

	pendencyA, _, err := models.CreatePendency(ctxA, nil, &models.NewPendency{
		Type:              models.PendencyTypeDocumentation,
		TaxRegistrationId: regA.ID,
		Description:       "Send signed contract",
	})
	if err != nil {
		t.Fatalf("CreatePendency A: %v", err)
	}
	pendencyB, _, err := models.CreatePendency(ctxB, nil, &models.NewPendency{
		Type:              models.PendencyTypeDocumentation,
		TaxRegistrationId: regB.ID,
		Description:       "Send signed contract",
	})
	if err != nil {
		t.Fatalf("CreatePendency B: %v", err)
	}

	rowsA, err := models.ListOpenPendenciesForBroker(ctxA, models.PendencyListFilters{})
	if err != nil {
		t.Fatalf("ListOpenPendenciesForBroker: %v", err)
	}
	if len(rowsA) != 1 || rowsA[0].ID != pendencyA.ID {
		t.Fatalf("broker A sees wrong rows: %+v", rowsA)
	}

	// A row owned by another broker is a scope violation, not a not-found.
	if _, err := models.GetPendency(ctxA, pendencyB.ID); !errors.Is(err, utils.ErrScopeViolation) {
		t.Fatalf("expected scope violation, got %v", err)
	}
	if _, err := models.GetPendency(ctxA, 999999); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreatePendencyDeduplicatesOpenActivation(t *testing.T) {
	setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker C", "c@test.local", "11222333000181")

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Ana Souza",
		TaxId:             "52998224725",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	input := &models.NewPendency{
		Type:              models.PendencyTypeActivation,
		EmployeeId:        &employee.ID,
		TaxRegistrationId: registration.ID,
		Description:       "Activate Ana Souza",
	}
	first, created, err := models.CreatePendency(ctx, nil, input)
	if err != nil {
		t.Fatalf("first CreatePendency: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}

	second, created, err := models.CreatePendency(ctx, nil, input)
	if err != nil {
		t.Fatalf("second CreatePendency: %v", err)
	}
	if created {
		t.Fatal("second call must not create a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing pendency back, got %d vs %d", second.ID, first.ID)
	}

	// Documentation pendencies are not deduplicated; each request is its own
	// to-do item.
	docInput := &models.NewPendency{
		Type:              models.PendencyTypeDocumentation,
		EmployeeId:        &employee.ID,
		TaxRegistrationId: registration.ID,
		Description:       "Send ID copy",
	}
	if _, created, err := models.CreatePendency(ctx, nil, docInput); err != nil || !created {
		t.Fatalf("documentation pendency: created=%v err=%v", created, err)
	}
	if _, created, err := models.CreatePendency(ctx, nil, docInput); err != nil || !created {
		t.Fatalf("second documentation pendency: created=%v err=%v", created, err)
	}
}

func TestOpenPendencyUniqueIndexBackstop(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker H", "h@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Diego Alves",
		TaxId:             "98765432100",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	input := &models.NewPendency{
		Type:              models.PendencyTypeActivation,
		EmployeeId:        &employee.ID,
		TaxRegistrationId: registration.ID,
		Description:       "Activate Diego Alves",
	}
	first, _, err := models.CreatePendency(ctx, nil, input)
	if err != nil {
		t.Fatalf("CreatePendency: %v", err)
	}

	// A writer that skips the dedup read (concurrent transaction under READ
	// COMMITTED) must still be stopped by the unique index on the open marker.
	marker := "open"
	dup := models.Pendency{
		BrokerId:          brokerId,
		Protocol:          "PEN-20260815-RACE0001",
		Type:              models.PendencyTypeActivation,
		EmployeeId:        &employee.ID,
		TaxRegistrationId: registration.ID,
		Description:       "Activate Diego Alves",
		Status:            models.PendencyStatusPending,
		OpenMarker:        &marker,
	}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatal("expected the open-marker unique index to reject a second open activation")
	}

	// Completion clears the marker, freeing the slot for a later pendency.
	if err := models.CompletePendency(ctx, nil, first.ID, time.Now()); err != nil {
		t.Fatalf("CompletePendency: %v", err)
	}
	second, created, err := models.CreatePendency(ctx, nil, input)
	if err != nil {
		t.Fatalf("CreatePendency after completion: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatalf("expected a fresh pendency after completion, got created=%v id=%d", created, second.ID)
	}
}

func TestCreatePendencyQueuesOutboxRow(t *testing.T) {
	db := setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker D", "d@test.local", "11222333000181")
	brokerId, _ := utils.GetBrokerIdFromContext(ctx)

	pendency, _, err := models.CreatePendency(ctx, nil, &models.NewPendency{
		Type:              models.PendencyTypeAlteration,
		TaxRegistrationId: registration.ID,
		Description:       "Update beneficiary data",
	})
	if err != nil {
		t.Fatalf("CreatePendency: %v", err)
	}

	var record models.NotificationRecord
	err = db.Where("broker_id = ? AND pendency_id = ?", brokerId, pendency.ID).First(&record).Error
	if err != nil {
		t.Fatalf("expected an outbox row: %v", err)
	}
	if record.EventType != models.NotificationEventPendencyCreated {
		t.Fatalf("expected pendency_created event, got %s", record.EventType)
	}
	if record.PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("expected PENDING publish status, got %s", record.PublishStatus)
	}
	if record.CorrelationId == "" {
		t.Fatal("expected a correlation id on the outbox row")
	}
}

func TestPendencyCommentsBumpCount(t *testing.T) {
	setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker E", "e@test.local", "11222333000181")

	pendency, _, err := models.CreatePendency(ctx, nil, &models.NewPendency{
		Type:              models.PendencyTypeDocumentation,
		TaxRegistrationId: registration.ID,
		Description:       "Send signed contract",
	})
	if err != nil {
		t.Fatalf("CreatePendency: %v", err)
	}

	for _, text := range []string{"Requested by email", "Client confirmed by phone"} {
		if _, err := models.CreatePendencyComment(ctx, pendency.ID, &models.NewPendencyComment{Description: text}); err != nil {
			t.Fatalf("CreatePendencyComment: %v", err)
		}
	}

	reloaded, err := models.GetPendency(ctx, pendency.ID)
	if err != nil {
		t.Fatalf("GetPendency: %v", err)
	}
	if reloaded.CommentCount != 2 {
		t.Fatalf("expected comment_count 2, got %d", reloaded.CommentCount)
	}

	comments, err := models.ListPendencyComments(ctx, pendency.ID)
	if err != nil {
		t.Fatalf("ListPendencyComments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].UserName != "Test" {
		t.Fatalf("expected actor name on comment, got %q", comments[0].UserName)
	}
}

func TestResolvePendencyActivationApprove(t *testing.T) {
	setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker F", "f@test.local", "11222333000181")

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Bruno Lima",
		TaxId:             "11144477735",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	pendency, _, err := models.CreatePendency(ctx, nil, &models.NewPendency{
		Type:              models.PendencyTypeActivation,
		EmployeeId:        &employee.ID,
		TaxRegistrationId: registration.ID,
		Description:       "Activate Bruno Lima",
	})
	if err != nil {
		t.Fatalf("CreatePendency: %v", err)
	}

	resolved, err := models.ResolvePendency(ctx, pendency.ID, models.ResolveActionApprove)
	if err != nil {
		t.Fatalf("ResolvePendency: %v", err)
	}

	// Approving only moves the underlying state; closing the pendency is the
	// reconciler's job.
	if resolved.Status != models.PendencyStatusPending {
		t.Fatalf("expected pendency still open, got %s", resolved.Status)
	}
	reloadedEmployee, err := models.GetEmployee(ctx, employee.ID)
	if err != nil {
		t.Fatalf("GetEmployee: %v", err)
	}
	if reloadedEmployee.Status != models.EmployeeStatusActive {
		t.Fatalf("expected employee active, got %s", reloadedEmployee.Status)
	}
}

func TestResolvePendencyActivationDenyClosesNow(t *testing.T) {
	setupTestDB(t)
	ctx, registration := seedBrokerScope(t, "Broker G", "g@test.local", "11222333000181")

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		TaxRegistrationId: registration.ID,
		Name:              "Carla Dias",
		TaxId:             "12345678909",
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	pendency, _, err := models.CreatePendency(ctx, nil, &models.NewPendency{
		Type:              models.PendencyTypeActivation,
		EmployeeId:        &employee.ID,
		TaxRegistrationId: registration.ID,
		Description:       "Activate Carla Dias",
	})
	if err != nil {
		t.Fatalf("CreatePendency: %v", err)
	}

	resolved, err := models.ResolvePendency(ctx, pendency.ID, models.ResolveActionDeny)
	if err != nil {
		t.Fatalf("ResolvePendency: %v", err)
	}
	if resolved.Status != models.PendencyStatusCompleted {
		t.Fatalf("expected pendency completed, got %s", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("expected resolved_at to be set")
	}

	reloadedEmployee, err := models.GetEmployee(ctx, employee.ID)
	if err != nil {
		t.Fatalf("GetEmployee: %v", err)
	}
	if reloadedEmployee.Status != models.EmployeeStatusArchived {
		t.Fatalf("expected employee archived, got %s", reloadedEmployee.Status)
	}
}
