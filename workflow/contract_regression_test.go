package workflow_test

import (
	"testing"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/workflow"
)

func TestAmendmentsRederiveContractState(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	endDate := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	contract, err := workflow.CreateContract(ctx, &workflow.NewContract{
		Number:          "CONTRATO 10/2023",
		Object:          "Prestação de serviços de manutenção",
		OriginalEndDate: &endDate,
		Rows: []models.ContractLineRow{
			{Description: "Manutenção preventiva", UnitOfMeasure: "MES", Quantity: "10", UnitPrice: "100.00"},
			{Description: "", Quantity: "", UnitPrice: ""},
		},
	})
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}
	if !contract.CurrentTotalValue.Equal(dec("1000")) {
		t.Fatalf("initial total = %s, want 1000", contract.CurrentTotalValue)
	}
	if contract.CurrentEndDate == nil || !contract.CurrentEndDate.Equal(endDate) {
		t.Fatalf("initial end date = %v, want %v", contract.CurrentEndDate, endDate)
	}

	first, err := workflow.CreateAmendment(ctx, &models.NewAmendment{
		ContractId:     contract.ID,
		Number:         "1º TA",
		SignatureDate:  time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		ValueDelta:     dec("200"),
		AdditionalDays: 30,
	})
	if err != nil {
		t.Fatalf("CreateAmendment: %v", err)
	}

	explicit := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	_, err = workflow.CreateAmendment(ctx, &models.NewAmendment{
		ContractId:         contract.ID,
		Number:             "2º TA",
		SignatureDate:      time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		ExplicitNewEndDate: &explicit,
	})
	if err != nil {
		t.Fatalf("CreateAmendment: %v", err)
	}

	contract, err = workflow.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("GetContract: %v", err)
	}
	if !contract.CurrentTotalValue.Equal(dec("1200")) {
		t.Fatalf("total = %s, want 1200", contract.CurrentTotalValue)
	}
	if contract.CurrentEndDate == nil || !contract.CurrentEndDate.Equal(explicit) {
		t.Fatalf("end date = %v, want %v", contract.CurrentEndDate, explicit)
	}

	// Removing the first amendment replays the remaining history.
	if err := workflow.DeleteAmendment(ctx, first.ID); err != nil {
		t.Fatalf("DeleteAmendment: %v", err)
	}
	contract, err = workflow.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("GetContract: %v", err)
	}
	if !contract.CurrentTotalValue.Equal(dec("1000")) {
		t.Fatalf("total after delete = %s, want 1000", contract.CurrentTotalValue)
	}
	if contract.CurrentEndDate == nil || !contract.CurrentEndDate.Equal(explicit) {
		t.Fatalf("end date after delete = %v, want %v", contract.CurrentEndDate, explicit)
	}
}

func TestAmendmentWithNegativeDaysReducesTerm(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	endDate := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	contract, err := workflow.CreateContract(ctx, &workflow.NewContract{
		Number:          "CONTRATO 12/2023",
		Object:          "Locação de equipamentos",
		OriginalEndDate: &endDate,
		Rows: []models.ContractLineRow{
			{Description: "Locação mensal", UnitOfMeasure: "MES", Quantity: "12", UnitPrice: "500.00"},
		},
	})
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}

	// Term reduction: the entry form invites negative day counts.
	_, err = workflow.CreateAmendment(ctx, &models.NewAmendment{
		ContractId:     contract.ID,
		Number:         "1º TA",
		SignatureDate:  time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		AdditionalDays: -30,
	})
	if err != nil {
		t.Fatalf("CreateAmendment with negative days: %v", err)
	}

	contract, err = workflow.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("GetContract: %v", err)
	}
	want := time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)
	if contract.CurrentEndDate == nil || !contract.CurrentEndDate.Equal(want) {
		t.Fatalf("end date = %v, want %v", contract.CurrentEndDate, want)
	}
	if !contract.CurrentTotalValue.Equal(dec("6000")) {
		t.Fatalf("total = %s, want 6000 (value untouched by a term-only amendment)", contract.CurrentTotalValue)
	}
}

func TestDerivedContractColumnsRejectDirectWrites(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	contract, err := workflow.CreateContract(ctx, &workflow.NewContract{
		Number: "CONTRATO 11/2023",
		Object: "Fornecimento de insumos",
		Rows: []models.ContractLineRow{
			{Description: "Insumo A", Quantity: "5", UnitPrice: "20.00"},
		},
	})
	if err != nil {
		t.Fatalf("CreateContract: %v", err)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&models.Contract{}).Where("id = ?", contract.ID).
		Update("current_total_value", dec("999999")).Error
	if err == nil {
		t.Fatal("direct write to current_total_value should be rejected")
	}

	// The recalculation entry point remains the only writer.
	if err := workflow.RecalculateContractState(ctx, contract.ID); err != nil {
		t.Fatalf("RecalculateContractState: %v", err)
	}
	contract, err = workflow.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("GetContract: %v", err)
	}
	if !contract.CurrentTotalValue.Equal(dec("100")) {
		t.Fatalf("total = %s, want 100", contract.CurrentTotalValue)
	}
}

func TestBalanceRebuildRepairsDrift(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	registration, item, unit := seedRegistration(t, ctx, "100", "10.00", "50")

	_, err := workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-010/2024",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        unit.ID,
		Lines:               []workflow.ConsumptionLine{{RegisteredItemId: item.ID, Quantity: dec("25")}},
	})
	if err != nil {
		t.Fatalf("CreateSubContract: %v", err)
	}

	// Corrupt the caches directly, then rebuild from the records.
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.RegisteredItem{}).Where("id = ?", item.ID).
		Update("available_balance", dec("1")).Error; err != nil {
		t.Fatalf("corrupt item balance: %v", err)
	}
	if err := db.WithContext(ctx).Model(&models.UnitQuota{}).
		Where("registered_item_id = ? AND health_unit_id = ?", item.ID, unit.ID).
		Update("consumed_quantity", dec("49")).Error; err != nil {
		t.Fatalf("corrupt quota: %v", err)
	}

	if err := workflow.RebuildRegistrationBalances(ctx, registration.ID); err != nil {
		t.Fatalf("RebuildRegistrationBalances: %v", err)
	}
	assertItemBalance(t, ctx, item.ID, "75")
	assertQuotaConsumed(t, ctx, item.ID, unit.ID, "25")
}
