package models

import (
	"context"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Commitment is the "Empenho": the budget commitment note. It consumes
// registered-item balances exactly like a sub-contract; only the document
// metadata differs.
type Commitment struct {
	ID                  int                 `gorm:"primary_key" json:"id"`
	Number              string              `gorm:"size:100;not null" json:"number" binding:"required"`
	Object              string              `gorm:"type:text" json:"object"`
	Favored             string              `gorm:"size:200" json:"favored"`
	IssueDate           *time.Time          `json:"issue_date"`
	ProcessId           int                 `gorm:"index" json:"process_id"`
	PriceRegistrationId int                 `gorm:"index;not null" json:"price_registration_id"`
	HealthUnitId        int                 `gorm:"index;not null" json:"health_unit_id"`
	ItemsTotalValue     decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"items_total_value"`
	ManualTotalValue    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"manual_total_value"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Commitment) EffectiveTotalValue() decimal.Decimal {
	if c.ManualTotalValue.Valid {
		return c.ManualTotalValue.Decimal
	}
	return c.ItemsTotalValue
}

func GetCommitment(ctx context.Context, id int) (*Commitment, error) {
	db := config.GetDB()
	var doc Commitment
	if err := db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func GetCommitments(ctx context.Context, registrationId int) ([]Commitment, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Order("id DESC")
	if registrationId > 0 {
		query = query.Where("price_registration_id = ?", registrationId)
	}
	var docs []Commitment
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
