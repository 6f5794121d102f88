package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
)

// ConsumptionLine is one requested draw-down inside a consuming document.
type ConsumptionLine struct {
	RegisteredItemId int             `json:"registered_item_id" binding:"required"`
	Quantity         decimal.Decimal `json:"quantity"`
}

// ConsumerRef identifies the document the consumption belongs to.
type ConsumerRef struct {
	Type models.ConsumerDocumentType
	ID   int
}

// ApplyConsumptions posts every line of a consuming document: it debits the
// item's global balance and the unit's quota, and writes one immutable
// consumption record per line with the unit price snapshotted. All checks run
// before any write for a given line; the first failing line aborts the whole
// transaction, so a document is never half-posted.
//
// Lines with a non-positive quantity are skipped, matching the entry screens
// that submit empty rows. Returns the sum of the posted line totals.
func ApplyConsumptions(tx *gorm.DB, logger *logrus.Logger, consumer ConsumerRef, registrationId int, healthUnitId int, lines []ConsumptionLine) (decimal.Decimal, error) {
	total := decimal.Zero

	if healthUnitId <= 0 {
		return total, &models.MissingHealthUnitError{}
	}
	var unit models.HealthUnit
	if err := tx.First(&unit, healthUnitId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return total, &models.MissingHealthUnitError{}
		}
		config.LogError(logger, "consumptionWorkflow.go", "ApplyConsumptions", "load health unit", healthUnitId, err)
		return total, err
	}

	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}

		var item models.RegisteredItem
		if err := tx.First(&item, line.RegisteredItemId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return total, &models.ItemNotFoundError{ItemID: line.RegisteredItemId}
			}
			config.LogError(logger, "consumptionWorkflow.go", "ApplyConsumptions", "load item", line.RegisteredItemId, err)
			return total, err
		}
		if item.PriceRegistrationId != registrationId {
			return total, &models.ItemNotInRegistrationError{ItemDescription: item.Description}
		}

		if err := item.DebitGlobal(line.Quantity); err != nil {
			return total, err
		}

		var quota models.UnitQuota
		err := tx.Where("registered_item_id = ? AND health_unit_id = ?", item.ID, healthUnitId).
			First(&quota).Error
		if err == gorm.ErrRecordNotFound || (err == nil && quota.AllocatedQuantity.IsZero()) {
			return total, &models.NoQuotaDefinedError{UnitName: unit.Name, ItemDescription: item.Description}
		}
		if err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ApplyConsumptions", "load quota", item.ID, err)
			return total, err
		}
		if err := quota.DebitQuota(item.Description, line.Quantity); err != nil {
			return total, err
		}

		if err := tx.Model(&models.RegisteredItem{}).Where("id = ?", item.ID).
			Update("available_balance", item.AvailableBalance).Error; err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ApplyConsumptions", "debit item", item.ID, err)
			return total, err
		}
		if err := tx.Model(&models.UnitQuota{}).Where("id = ?", quota.ID).
			Update("consumed_quantity", quota.ConsumedQuantity).Error; err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ApplyConsumptions", "debit quota", quota.ID, err)
			return total, err
		}

		lineTotal := line.Quantity.Mul(item.UnitPrice)
		record := models.ConsumptionRecord{
			ConsumerType:           consumer.Type,
			ConsumerId:             consumer.ID,
			RegisteredItemId:       item.ID,
			QuantityConsumed:       line.Quantity,
			UnitPriceAtConsumption: item.UnitPrice,
			TotalValue:             lineTotal,
		}
		if err := tx.Create(&record).Error; err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ApplyConsumptions", "create record", record, err)
			return total, err
		}
		total = total.Add(lineTotal)
	}
	return total, nil
}

// ReverseConsumptions credits back every consumption record of a document and
// deletes the records. The edit flow calls this before re-applying the new
// lines; the delete flow calls it alone.
func ReverseConsumptions(tx *gorm.DB, logger *logrus.Logger, consumer ConsumerRef, healthUnitId int) error {
	var records []models.ConsumptionRecord
	if err := tx.Where("consumer_type = ? AND consumer_id = ?", consumer.Type, consumer.ID).
		Find(&records).Error; err != nil {
		config.LogError(logger, "consumptionWorkflow.go", "ReverseConsumptions", "load records", consumer, err)
		return err
	}

	for _, record := range records {
		var item models.RegisteredItem
		if err := tx.First(&item, record.RegisteredItemId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				// Item rows are never deleted while records exist, but an orphan
				// record must not block the reversal of the rest.
				config.LogWarn(logger, "consumptionWorkflow.go", "ReverseConsumptions", "orphan record",
					fmt.Sprintf("registered item %d missing for record %d", record.RegisteredItemId, record.ID))
				continue
			}
			config.LogError(logger, "consumptionWorkflow.go", "ReverseConsumptions", "load item", record.RegisteredItemId, err)
			return err
		}
		item.CreditGlobal(record.QuantityConsumed)
		if err := tx.Model(&models.RegisteredItem{}).Where("id = ?", item.ID).
			Update("available_balance", item.AvailableBalance).Error; err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ReverseConsumptions", "credit item", item.ID, err)
			return err
		}

		var quota models.UnitQuota
		err := tx.Where("registered_item_id = ? AND health_unit_id = ?", item.ID, healthUnitId).
			First(&quota).Error
		switch {
		case err == nil:
			quota.CreditQuota(record.QuantityConsumed)
			if err := tx.Model(&models.UnitQuota{}).Where("id = ?", quota.ID).
				Update("consumed_quantity", quota.ConsumedQuantity).Error; err != nil {
				config.LogError(logger, "consumptionWorkflow.go", "ReverseConsumptions", "credit quota", quota.ID, err)
				return err
			}
		case err == gorm.ErrRecordNotFound:
			// Quota deleted since the original posting; the global credit above
			// already restored the balance that matters.
		default:
			config.LogError(logger, "consumptionWorkflow.go", "ReverseConsumptions", "load quota", item.ID, err)
			return err
		}
	}

	if err := tx.Where("consumer_type = ? AND consumer_id = ?", consumer.Type, consumer.ID).
		Delete(&models.ConsumptionRecord{}).Error; err != nil {
		config.LogError(logger, "consumptionWorkflow.go", "ReverseConsumptions", "delete records", consumer, err)
		return err
	}
	return nil
}

// GetDocumentConsumptions lists the posted records of one document.
func GetDocumentConsumptions(tx *gorm.DB, consumer ConsumerRef) ([]models.ConsumptionRecord, error) {
	var records []models.ConsumptionRecord
	if err := tx.Where("consumer_type = ? AND consumer_id = ?", consumer.Type, consumer.ID).
		Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
