package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RegisteredItem is one line of a price registration (ata). It carries the
// two-level balance: the global available balance here, and per-unit quotas in
// UnitQuota. availableBalance never exceeds registeredQuantity and never goes
// negative; DebitGlobal/CreditGlobal/Resize are the only mutation paths.
type RegisteredItem struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	PriceRegistrationId int             `gorm:"index;not null" json:"price_registration_id" binding:"required"`
	Description         string          `gorm:"size:255;not null" json:"description" binding:"required"`
	UnitOfMeasure       string          `gorm:"size:50" json:"unit_of_measure"`
	RegisteredQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"registered_quantity"`
	AvailableBalance    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"available_balance"`
	UnitPrice           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Lot                 string          `gorm:"size:100" json:"lot"`
	Kind                ItemKind        `gorm:"size:50;not null;default:'OUTRO'" json:"kind"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRegisteredItem struct {
	PriceRegistrationId int             `json:"price_registration_id" binding:"required"`
	Description         string          `json:"description" binding:"required"`
	UnitOfMeasure       string          `json:"unit_of_measure"`
	RegisteredQuantity  decimal.Decimal `json:"registered_quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	Lot                 string          `json:"lot"`
	Kind                ItemKind        `json:"kind"`
}

// ConsumedQuantity is the amount already drawn from this item.
func (it *RegisteredItem) ConsumedQuantity() decimal.Decimal {
	return it.RegisteredQuantity.Sub(it.AvailableBalance)
}

// DebitGlobal reserves qty from the global balance.
func (it *RegisteredItem) DebitGlobal(qty decimal.Decimal) error {
	if qty.GreaterThan(it.AvailableBalance) {
		return &InsufficientBalanceError{
			ItemDescription: it.Description,
			Available:       it.AvailableBalance,
			Requested:       qty,
		}
	}
	it.AvailableBalance = it.AvailableBalance.Sub(qty)
	return nil
}

// CreditGlobal restores a previously debited qty. It is intentionally not
// clamped at RegisteredQuantity: a reversal always returns an amount that was
// debited earlier, and clamping here would hide drift caused by concurrent
// registered-quantity edits. cmd/balance-rebuild repairs such drift.
func (it *RegisteredItem) CreditGlobal(qty decimal.Decimal) {
	it.AvailableBalance = it.AvailableBalance.Add(qty)
}

// Resize changes the registered quantity while preserving the consumed amount.
func (it *RegisteredItem) Resize(newRegisteredQty decimal.Decimal) error {
	consumed := it.ConsumedQuantity()
	if newRegisteredQty.LessThan(consumed) {
		return &QuantityBelowConsumedError{NewQuantity: newRegisteredQty, Consumed: consumed}
	}
	it.RegisteredQuantity = newRegisteredQty
	it.AvailableBalance = newRegisteredQty.Sub(consumed)
	return nil
}

func (input *NewRegisteredItem) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[PriceRegistration](ctx, input.PriceRegistrationId); err != nil {
		return err
	}
	if input.RegisteredQuantity.IsNegative() {
		return errors.New("quantidade registrada não pode ser negativa")
	}
	if input.UnitPrice.IsNegative() {
		return errors.New("valor unitário não pode ser negativo")
	}
	if _, err := ParseItemKind(string(input.Kind)); err != nil {
		return err
	}
	return nil
}

func CreateRegisteredItem(ctx context.Context, input *NewRegisteredItem) (*RegisteredItem, error) {
	items, err := CreateRegisteredItemsBatch(ctx, []*NewRegisteredItem{input})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// CreateRegisteredItemsBatch adds several items to a registration at once.
// Every item starts with availableBalance = registeredQuantity.
func CreateRegisteredItemsBatch(ctx context.Context, inputs []*NewRegisteredItem) ([]*RegisteredItem, error) {
	db := config.GetDB()

	items := make([]*RegisteredItem, 0, len(inputs))
	for _, input := range inputs {
		if err := input.validate(ctx); err != nil {
			return nil, err
		}
		kind, _ := ParseItemKind(string(input.Kind))
		items = append(items, &RegisteredItem{
			PriceRegistrationId: input.PriceRegistrationId,
			Description:         input.Description,
			UnitOfMeasure:       input.UnitOfMeasure,
			RegisteredQuantity:  input.RegisteredQuantity,
			AvailableBalance:    input.RegisteredQuantity,
			UnitPrice:           input.UnitPrice,
			Lot:                 input.Lot,
			Kind:                kind,
		})
	}

	tx := db.Begin()
	for _, item := range items {
		if err := tx.WithContext(ctx).Create(item).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		utils.ClearRedisList[RegisteredItem](item.PriceRegistrationId)
	}
	return items, nil
}

// UpdateRegisteredItem edits descriptive fields and resizes the registered
// quantity. The already-consumed amount is preserved across the edit; shrinking
// below it fails with QuantityBelowConsumed.
func UpdateRegisteredItem(ctx context.Context, id int, input *NewRegisteredItem) (*RegisteredItem, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var item RegisteredItem
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ItemNotFoundError{ItemID: id}
		}
		return nil, err
	}
	if item.PriceRegistrationId != input.PriceRegistrationId {
		return nil, &ItemNotInRegistrationError{ItemDescription: item.Description}
	}

	if err := item.Resize(input.RegisteredQuantity); err != nil {
		return nil, err
	}
	kind, _ := ParseItemKind(string(input.Kind))
	item.Description = input.Description
	item.UnitOfMeasure = input.UnitOfMeasure
	item.UnitPrice = input.UnitPrice
	item.Lot = input.Lot
	item.Kind = kind

	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(&RegisteredItem{}).Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"description":         item.Description,
			"unit_of_measure":     item.UnitOfMeasure,
			"registered_quantity": item.RegisteredQuantity,
			"available_balance":   item.AvailableBalance,
			"unit_price":          item.UnitPrice,
			"lot":                 item.Lot,
			"kind":                item.Kind,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	utils.ClearRedisList[RegisteredItem](item.PriceRegistrationId)
	return &item, nil
}

// DeleteRegisteredItem removes an item and its quotas. Items already referenced
// by consumption records cannot be deleted.
func DeleteRegisteredItem(ctx context.Context, id int) error {
	db := config.GetDB()
	var item RegisteredItem
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return &ItemNotFoundError{ItemID: id}
		}
		return err
	}

	count, err := utils.ResourceCountWhere[ConsumptionRecord](ctx, "registered_item_id = ?", id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &LinkedDocumentsExistError{
			Message: "Este item não pode ser excluído pois já foi referenciado em Contratinhos ou Empenhos. Remova as referências primeiro.",
		}
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("registered_item_id = ?", id).Delete(&UnitQuota{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.WithContext(ctx).Delete(&RegisteredItem{}, id).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	utils.ClearRedisList[RegisteredItem](item.PriceRegistrationId)
	return nil
}

func GetRegisteredItem(ctx context.Context, id int) (*RegisteredItem, error) {
	db := config.GetDB()
	var item RegisteredItem
	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ItemNotFoundError{ItemID: id}
		}
		return nil, err
	}
	return &item, nil
}

// GetRegisteredItems lists a registration's items, cached in redis. On a cache
// miss the refill is serialized through a short redis lock so a burst of
// readers does not stampede the database. Losing the lock race is fine: the
// loser just queries the database directly.
func GetRegisteredItems(ctx context.Context, priceRegistrationId int) ([]RegisteredItem, error) {
	var items []RegisteredItem
	if found, err := utils.FetchRedisList[RegisteredItem](&items, priceRegistrationId); err == nil && found {
		return items, nil
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:registered_items:%d", priceRegistrationId), 5*time.Second, nil)
		if err == nil {
			defer func() { _ = lock.Release(config.GetRedisContext()) }()
			// A concurrent reader may have refilled the cache first.
			if found, err := utils.FetchRedisList[RegisteredItem](&items, priceRegistrationId); err == nil && found {
				return items, nil
			}
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("price_registration_id = ?", priceRegistrationId).
		Order("description ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	utils.StoreRedisList[RegisteredItem](items, priceRegistrationId)
	return items, nil
}
