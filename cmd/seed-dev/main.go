package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mktfun/gps-rh-13-sub002/config"
	"github.com/mktfun/gps-rh-13-sub002/models"
	"github.com/mktfun/gps-rh-13-sub002/utils"
	"github.com/shopspring/decimal"
)

// Seeds one broker with a small but complete portfolio: a company, two tax
// registrations, plans of both types, and employees in the states the
// reconciler and the reports care about. Local/dev only.
func main() {
	brokerName := flag.String("broker-name", "Dev Broker", "Display name for the seeded broker")
	brokerEmail := flag.String("broker-email", "dev-broker@example.com", "Email for the seeded broker")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	broker, err := models.CreateBroker(ctx, &models.NewBroker{Name: *brokerName, Email: *brokerEmail})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create broker: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetBrokerIdInContext(ctx, broker.ID)
	ctx = utils.SetUserNameInContext(ctx, "SeedDev")

	company, err := models.CreateCompany(ctx, &models.NewCompany{Name: "Acme Logistica Ltda"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create company: %v\n", err)
		os.Exit(1)
	}

	regA, err := models.CreateTaxRegistration(ctx, &models.NewTaxRegistration{
		CompanyId:          company.ID,
		RegistrationNumber: "11222333000181",
		LegalName:          "Acme Logistica Matriz",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create registration A: %v\n", err)
		os.Exit(1)
	}
	regB, err := models.CreateTaxRegistration(ctx, &models.NewTaxRegistration{
		CompanyId:          company.ID,
		RegistrationNumber: "11444777000161",
		LegalName:          "Acme Logistica Filial SP",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create registration B: %v\n", err)
		os.Exit(1)
	}

	lifePlan, err := models.CreateInsurancePlan(ctx, &models.NewInsurancePlan{
		TaxRegistrationId: regA.ID,
		Insurer:           "Seguradora Alfa",
		PlanType:          models.PlanTypeLife,
		MonthlyPrice:      decimal.RequireFromString("1000.00"),
		DeathCoverage:     decimal.RequireFromString("50000.00"),
		FuneralAssistance: decimal.RequireFromString("5000.00"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create life plan: %v\n", err)
		os.Exit(1)
	}
	healthPlan, err := models.CreateInsurancePlan(ctx, &models.NewInsurancePlan{
		TaxRegistrationId: regA.ID,
		Insurer:           "Seguradora Beta",
		PlanType:          models.PlanTypeHealth,
		MonthlyPrice:      decimal.Zero,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create health plan: %v\n", err)
		os.Exit(1)
	}

	type seedEmployee struct {
		name  string
		taxId string
		reg   int
	}
	seeds := []seedEmployee{
		{"Ana Souza", "52998224725", regA.ID},
		{"Bruno Lima", "11144477735", regA.ID},
		{"Carla Dias", "12345678909", regA.ID},
		{"Diego Alves", "98765432100", regB.ID},
	}
	var employees []*models.Employee
	for _, s := range seeds {
		e, err := models.CreateEmployee(ctx, &models.NewEmployee{
			TaxRegistrationId: s.reg,
			Name:              s.name,
			TaxId:             s.taxId,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create employee %s: %v\n", s.name, err)
			os.Exit(1)
		}
		employees = append(employees, e)
	}

	// First two employees get live enrollments; the rest stay pending so a
	// reconcile run has activation work to create.
	for _, e := range employees[:2] {
		for _, planId := range []int{lifePlan.ID, healthPlan.ID} {
			if _, err := models.CreatePlanEnrollment(ctx, &models.NewPlanEnrollment{
				PlanId:     planId,
				EmployeeId: e.ID,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "failed to enroll employee %d in plan %d: %v\n", e.ID, planId, err)
				os.Exit(1)
			}
		}
		if _, err := models.UpdateEmployeeStatus(ctx, nil, e.ID, models.EmployeeStatusActive); err != nil {
			fmt.Fprintf(os.Stderr, "failed to activate employee %d: %v\n", e.ID, err)
			os.Exit(1)
		}
		if err := models.UpdateEnrollmentStatusByEmployee(ctx, nil, e.ID,
			[]models.EnrollmentStatus{models.EnrollmentStatusPending}, models.EnrollmentStatusActive); err != nil {
			fmt.Fprintf(os.Stderr, "failed to activate enrollments for employee %d: %v\n", e.ID, err)
			os.Exit(1)
		}
	}

	fmt.Printf("seeded broker %s (%s)\n", broker.Name, broker.ID)
	fmt.Printf("company=%d registrations=[%d %d] plans=[%d %d] employees=%d\n",
		company.ID, regA.ID, regB.ID, lifePlan.ID, healthPlan.ID, len(employees))
	fmt.Println("run cmd/reconcile-run to generate activation pendencies for the pending employees")
}
