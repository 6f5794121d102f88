package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnitQuota carves a health unit's share out of a registered item's total
// quantity. (registered_item_id, health_unit_id) is unique; consumedQuantity
// moves in lockstep with the item's global balance through the consumption
// workflow.
type UnitQuota struct {
	ID                int             `gorm:"primary_key" json:"id"`
	RegisteredItemId  int             `gorm:"not null;uniqueIndex:uq_quota_item_unit" json:"registered_item_id" binding:"required"`
	HealthUnitId      int             `gorm:"not null;uniqueIndex:uq_quota_item_unit" json:"health_unit_id" binding:"required"`
	AllocatedQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"allocated_quantity"`
	ConsumedQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"consumed_quantity"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuotaAllocation struct {
	HealthUnitId      int             `json:"health_unit_id" binding:"required"`
	AllocatedQuantity decimal.Decimal `json:"allocated_quantity"`
}

// RemainingQuota is the unit's still-consumable share.
func (q *UnitQuota) RemainingQuota() decimal.Decimal {
	return q.AllocatedQuantity.Sub(q.ConsumedQuantity)
}

// DebitQuota consumes qty from the unit's share.
func (q *UnitQuota) DebitQuota(itemDescription string, qty decimal.Decimal) error {
	if qty.GreaterThan(q.RemainingQuota()) {
		return &InsufficientQuotaError{
			ItemDescription: itemDescription,
			QuotaBalance:    q.RemainingQuota(),
			Requested:       qty,
		}
	}
	q.ConsumedQuantity = q.ConsumedQuantity.Add(qty)
	return nil
}

// CreditQuota releases a previously consumed qty.
func (q *UnitQuota) CreditQuota(qty decimal.Decimal) {
	q.ConsumedQuantity = q.ConsumedQuantity.Sub(qty)
}

// ReplaceItemQuotas upserts the full allocation map of one item. The sum of
// allocations must fit within the item's registered quantity; this is the only
// point where that rule is enforced.
func ReplaceItemQuotas(ctx context.Context, registeredItemId int, allocations []QuotaAllocation) error {
	db := config.GetDB()

	var item RegisteredItem
	if err := db.WithContext(ctx).First(&item, registeredItemId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &ItemNotFoundError{ItemID: registeredItemId}
		}
		return err
	}

	sum := decimal.Zero
	for _, a := range allocations {
		if a.AllocatedQuantity.IsNegative() {
			return errors.New("cota prevista não pode ser negativa")
		}
		sum = sum.Add(a.AllocatedQuantity)
	}
	if sum.GreaterThan(item.RegisteredQuantity) {
		return &QuotaExceedsRegisteredError{QuotaSum: sum, Registered: item.RegisteredQuantity}
	}

	tx := db.Begin()
	for _, a := range allocations {
		if err := utils.ValidateResourceId[HealthUnit](ctx, a.HealthUnitId); err != nil {
			tx.Rollback()
			return err
		}

		var existing UnitQuota
		err := tx.WithContext(ctx).
			Where("registered_item_id = ? AND health_unit_id = ?", registeredItemId, a.HealthUnitId).
			First(&existing).Error
		switch {
		case err == nil:
			if err := tx.WithContext(ctx).Model(&UnitQuota{}).Where("id = ?", existing.ID).
				Update("allocated_quantity", a.AllocatedQuantity).Error; err != nil {
				tx.Rollback()
				return err
			}
		case err == gorm.ErrRecordNotFound:
			if a.AllocatedQuantity.IsPositive() {
				quota := UnitQuota{
					RegisteredItemId:  registeredItemId,
					HealthUnitId:      a.HealthUnitId,
					AllocatedQuantity: a.AllocatedQuantity,
				}
				if err := tx.WithContext(ctx).Create(&quota).Error; err != nil {
					tx.Rollback()
					return err
				}
			}
		default:
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

func GetItemQuotas(ctx context.Context, registeredItemId int) ([]UnitQuota, error) {
	db := config.GetDB()
	var quotas []UnitQuota
	if err := db.WithContext(ctx).
		Where("registered_item_id = ?", registeredItemId).
		Order("health_unit_id ASC").
		Find(&quotas).Error; err != nil {
		return nil, err
	}
	return quotas, nil
}
