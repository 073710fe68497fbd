package models

import (
	"log"

	"github.com/mktfun/gps-rh-13-sub002/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Broker{},
		&Company{}, &TaxRegistration{},
		&Employee{},
		&InsurancePlan{}, &PlanEnrollment{},
		&Pendency{}, &PendencyComment{},
		&NotificationRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
