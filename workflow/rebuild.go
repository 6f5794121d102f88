package workflow

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/utils"
)

// RebuildRegistrationBalances recomputes every derived balance of one price
// registration from the consumption records, which are the source of truth:
//
//	item.availableBalance   = registeredQuantity - sum(records of item)
//	quota.consumedQuantity  = sum(records of item posted by the unit's docs)
//
// It repairs drift left by crashes or by registered-quantity edits that raced
// a posting. Runs under the registration's posting lock so no document posts
// against half-rebuilt balances.
func RebuildRegistrationBalances(ctx context.Context, registrationId int) error {
	db := config.GetDB()
	logger := config.GetLogger()
	cid := utils.CorrelationIdFromContextOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, cid)

	if err := utils.ValidateResourceId[models.PriceRegistration](ctx, registrationId); err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if err := AcquireRegistrationPostingLock(tx, registrationId); err != nil {
		tx.Rollback()
		return err
	}
	defer ReleaseRegistrationPostingLock(tx, registrationId)

	if err := rebuildRegistrationBalancesTx(tx, logger, registrationId); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	utils.ClearRedisList[models.RegisteredItem](registrationId)
	logger.WithFields(logrus.Fields{
		"module":         "rebuild.go",
		"funcName":       "RebuildRegistrationBalances",
		"correlation_id": cid,
		"registration":   registrationId,
	}).Info("registration balances rebuilt")
	return nil
}

func rebuildRegistrationBalancesTx(tx *gorm.DB, logger *logrus.Logger, registrationId int) error {
	var items []models.RegisteredItem
	if err := tx.Where("price_registration_id = ?", registrationId).Find(&items).Error; err != nil {
		config.LogError(logger, "rebuild.go", "rebuildRegistrationBalancesTx", "load items", registrationId, err)
		return err
	}

	for _, item := range items {
		var consumed decimal.NullDecimal
		if err := tx.Model(&models.ConsumptionRecord{}).
			Select("SUM(quantity_consumed)").
			Where("registered_item_id = ?", item.ID).
			Scan(&consumed).Error; err != nil {
			config.LogError(logger, "rebuild.go", "rebuildRegistrationBalancesTx", "sum item records", item.ID, err)
			return err
		}
		total := decimal.Zero
		if consumed.Valid {
			total = consumed.Decimal
		}

		available := item.RegisteredQuantity.Sub(total)
		if !available.Equal(item.AvailableBalance) {
			if err := tx.Model(&models.RegisteredItem{}).Where("id = ?", item.ID).
				Update("available_balance", available).Error; err != nil {
				config.LogError(logger, "rebuild.go", "rebuildRegistrationBalancesTx", "repair item balance", item.ID, err)
				return err
			}
		}

		if err := rebuildItemQuotasTx(tx, logger, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// rebuildItemQuotasTx recomputes per-unit consumed quantities by joining the
// item's records back to the health unit of each consuming document.
func rebuildItemQuotasTx(tx *gorm.DB, logger *logrus.Logger, itemId int) error {
	var quotas []models.UnitQuota
	if err := tx.Where("registered_item_id = ?", itemId).Find(&quotas).Error; err != nil {
		config.LogError(logger, "rebuild.go", "rebuildItemQuotasTx", "load quotas", itemId, err)
		return err
	}

	for _, quota := range quotas {
		var consumed decimal.NullDecimal
		err := tx.Model(&models.ConsumptionRecord{}).
			Select("SUM(consumption_records.quantity_consumed)").
			Joins(`LEFT JOIN sub_contracts ON consumption_records.consumer_type = ? AND sub_contracts.id = consumption_records.consumer_id`,
				models.ConsumerDocumentTypeSubContract).
			Joins(`LEFT JOIN commitments ON consumption_records.consumer_type = ? AND commitments.id = consumption_records.consumer_id`,
				models.ConsumerDocumentTypeCommitment).
			Where("consumption_records.registered_item_id = ?", itemId).
			Where("COALESCE(sub_contracts.health_unit_id, commitments.health_unit_id) = ?", quota.HealthUnitId).
			Scan(&consumed).Error
		if err != nil {
			config.LogError(logger, "rebuild.go", "rebuildItemQuotasTx", "sum quota records", quota.ID, err)
			return err
		}
		total := decimal.Zero
		if consumed.Valid {
			total = consumed.Decimal
		}
		if !total.Equal(quota.ConsumedQuantity) {
			if err := tx.Model(&models.UnitQuota{}).Where("id = ?", quota.ID).
				Update("consumed_quantity", total).Error; err != nil {
				config.LogError(logger, "rebuild.go", "rebuildItemQuotasTx", "repair quota", quota.ID, err)
				return err
			}
		}
	}
	return nil
}
