package models

import (
	"log"

	"bitbucket.org/prefsaude/compras_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Process{},
		&PriceRegistration{}, &RegisteredItem{},
		&HealthUnit{}, &UnitQuota{},
		&SubContract{}, &Commitment{}, &ConsumptionRecord{},
		&Contract{}, &ContractLineItem{}, &Amendment{},
		&User{},
		&Comment{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
