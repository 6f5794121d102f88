package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionRecord snapshots one line-item draw-down by a consuming document.
// Records are immutable: the edit flow reverses and recreates them, it never
// updates them in place. Deleting a record credits back both the item's global
// balance and the unit quota (see workflow.ReverseConsumptions).
type ConsumptionRecord struct {
	ID                     int                  `gorm:"primary_key" json:"id"`
	ConsumerType           ConsumerDocumentType `gorm:"size:50;not null;index:idx_consumption_consumer" json:"consumer_type"`
	ConsumerId             int                  `gorm:"not null;index:idx_consumption_consumer" json:"consumer_id"`
	RegisteredItemId       int                  `gorm:"index;not null" json:"registered_item_id"`
	QuantityConsumed       decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"quantity_consumed"`
	UnitPriceAtConsumption decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"unit_price_at_consumption"`
	TotalValue             decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"total_value"`
	CreatedAt              time.Time            `gorm:"autoCreateTime" json:"created_at"`
}
