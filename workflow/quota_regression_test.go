package workflow_test

import (
	"errors"
	"testing"

	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/workflow"
)

func TestQuotaSumCannotExceedRegisteredQuantity(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	_, item, unit := seedRegistration(t, ctx, "100", "10.00", "60")

	second, err := models.CreateHealthUnit(ctx, &models.NewHealthUnit{Name: "UBS Norte"})
	if err != nil {
		t.Fatalf("CreateHealthUnit: %v", err)
	}

	// 60 + 41 > 100: the edit must be rejected as a whole.
	err = models.ReplaceItemQuotas(ctx, item.ID, []models.QuotaAllocation{
		{HealthUnitId: unit.ID, AllocatedQuantity: dec("60")},
		{HealthUnitId: second.ID, AllocatedQuantity: dec("41")},
	})
	var exceeds *models.QuotaExceedsRegisteredError
	if !errors.As(err, &exceeds) {
		t.Fatalf("err = %v, want QuotaExceedsRegisteredError", err)
	}

	// Exactly the registered quantity is allowed, and zeroing an allocation
	// keeps the row so its consumption history stays attached.
	if err := models.ReplaceItemQuotas(ctx, item.ID, []models.QuotaAllocation{
		{HealthUnitId: unit.ID, AllocatedQuantity: dec("100")},
		{HealthUnitId: second.ID, AllocatedQuantity: dec("0")},
	}); err != nil {
		t.Fatalf("ReplaceItemQuotas: %v", err)
	}
	quotas, err := models.GetItemQuotas(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItemQuotas: %v", err)
	}
	if len(quotas) != 1 {
		t.Fatalf("quotas = %d, want 1 (zero allocation without history is not created)", len(quotas))
	}
	if !quotas[0].AllocatedQuantity.Equal(dec("100")) {
		t.Fatalf("allocation = %s, want 100", quotas[0].AllocatedQuantity)
	}

	// Shrinking the registered quantity below the allocated total is allowed;
	// the ceiling only binds at quota-edit time. But shrinking below the
	// consumed amount is not.
	doc, err := workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-020/2024",
		PriceRegistrationId: item.PriceRegistrationId,
		HealthUnitId:        unit.ID,
		Lines:               []workflow.ConsumptionLine{{RegisteredItemId: item.ID, Quantity: dec("40")}},
	})
	if err != nil {
		t.Fatalf("CreateSubContract: %v", err)
	}
	_ = doc

	_, err = models.UpdateRegisteredItem(ctx, item.ID, &models.NewRegisteredItem{
		PriceRegistrationId: item.PriceRegistrationId,
		Description:         item.Description,
		UnitOfMeasure:       item.UnitOfMeasure,
		RegisteredQuantity:  dec("39"),
		UnitPrice:           item.UnitPrice,
		Kind:                item.Kind,
	})
	var below *models.QuantityBelowConsumedError
	if !errors.As(err, &below) {
		t.Fatalf("err = %v, want QuantityBelowConsumedError", err)
	}

	updated, err := models.UpdateRegisteredItem(ctx, item.ID, &models.NewRegisteredItem{
		PriceRegistrationId: item.PriceRegistrationId,
		Description:         item.Description,
		UnitOfMeasure:       item.UnitOfMeasure,
		RegisteredQuantity:  dec("60"),
		UnitPrice:           item.UnitPrice,
		Kind:                item.Kind,
	})
	if err != nil {
		t.Fatalf("UpdateRegisteredItem: %v", err)
	}
	if !updated.AvailableBalance.Equal(dec("20")) {
		t.Fatalf("balance after resize = %s, want 20 (60 registered - 40 consumed)", updated.AvailableBalance)
	}
}
