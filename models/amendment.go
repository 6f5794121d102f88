package models

import (
	"context"
	"time"

	"bitbucket.org/prefsaude/compras_backend/utils"
	"github.com/shopspring/decimal"
)

// Amendment ("termo aditivo") adjusts a contract's value, its end date, or
// both. Amendments never mutate the contract row directly: the contract's
// derived state is recomputed from the full amendment history after every
// change (see workflow.RecalculateContractState).
type Amendment struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	ContractId         int             `gorm:"index;not null" json:"contract_id"`
	Number             string          `gorm:"size:100;not null" json:"number" binding:"required"`
	Object             string          `gorm:"type:text" json:"object"`
	SignatureDate      time.Time       `gorm:"not null;index" json:"signature_date" binding:"required"`
	ValueDelta         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"value_delta"`
	AdditionalDays     int             `gorm:"not null;default:0" json:"additional_days"`
	ExplicitNewEndDate *time.Time      `json:"explicit_new_end_date"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewAmendment struct {
	ContractId         int             `json:"contract_id" binding:"required"`
	Number             string          `json:"number" binding:"required"`
	Object             string          `json:"object"`
	SignatureDate      time.Time       `json:"signature_date" binding:"required"`
	ValueDelta         decimal.Decimal `json:"value_delta"`
	AdditionalDays     int             `json:"additional_days"`
	ExplicitNewEndDate *time.Time      `json:"explicit_new_end_date"`
}

// AdditionalDays is signed: negative values shorten the term ("Use valor
// negativo para redução de prazo" on the entry form).
func (input *NewAmendment) Validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	return utils.ValidateResourceId[Contract](ctx, input.ContractId)
}
