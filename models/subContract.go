package models

import (
	"context"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubContract is the "Contratinho": a small purchase order that draws down
// item balances from a price registration. ItemsTotalValue is derived from
// its consumption records; ManualTotalValue, when set, is the operator's
// override shown on reports.
type SubContract struct {
	ID                  int                 `gorm:"primary_key" json:"id"`
	Number              string              `gorm:"size:100;not null" json:"number" binding:"required"`
	Object              string              `gorm:"type:text" json:"object"`
	Supplier            string              `gorm:"size:200" json:"supplier"`
	IssueDate           *time.Time          `json:"issue_date"`
	EndDate             *time.Time          `json:"end_date"`
	ProcessId           int                 `gorm:"index" json:"process_id"`
	PriceRegistrationId int                 `gorm:"index;not null" json:"price_registration_id"`
	HealthUnitId        int                 `gorm:"index;not null" json:"health_unit_id"`
	ItemsTotalValue     decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"items_total_value"`
	ManualTotalValue    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"manual_total_value"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectiveTotalValue is what reports display: the manual override when the
// operator provided one, otherwise the sum of the consumed lines.
func (s *SubContract) EffectiveTotalValue() decimal.Decimal {
	if s.ManualTotalValue.Valid {
		return s.ManualTotalValue.Decimal
	}
	return s.ItemsTotalValue
}

func GetSubContract(ctx context.Context, id int) (*SubContract, error) {
	db := config.GetDB()
	var doc SubContract
	if err := db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func GetSubContracts(ctx context.Context, registrationId int) ([]SubContract, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Order("id DESC")
	if registrationId > 0 {
		query = query.Where("price_registration_id = ?", registrationId)
	}
	var docs []SubContract
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
