package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Contract is the classic procurement contract with free-form line items and
// amendments, independent of price-registration ceilings. CurrentTotalValue
// and CurrentEndDate are derived caches: pure functions of (line items,
// amendments) recomputed by workflow.RecalculateContractState and protected
// against any other write by the derived-field guard plugin.
type Contract struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Number            string          `gorm:"size:100;not null;uniqueIndex" json:"number" binding:"required"`
	Object            string          `gorm:"type:text;not null" json:"object" binding:"required"`
	Supplier          string          `gorm:"size:200" json:"supplier"`
	SignatureDate     *time.Time      `json:"signature_date"`
	StartDate         *time.Time      `json:"start_date"`
	OriginalEndDate   *time.Time      `json:"original_end_date"`
	CurrentEndDate    *time.Time      `json:"current_end_date"`
	CurrentTotalValue decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"current_total_value"`
	ProcessId         int             `gorm:"index" json:"process_id"`
	HealthUnitId      int             `gorm:"index" json:"health_unit_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ContractLineItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ContractId    int             `gorm:"index;not null" json:"contract_id"`
	Description   string          `gorm:"size:500;not null" json:"description"`
	UnitOfMeasure string          `gorm:"size:50" json:"unit_of_measure"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LineTotal     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
}

// ContractLineRow is one raw form row before parsing. Quantity and UnitPrice
// arrive as text because the legacy entry screens submit free text.
type ContractLineRow struct {
	Description   string `json:"description"`
	UnitOfMeasure string `json:"unit_of_measure"`
	Quantity      string `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
}

// LineRowError reports a rejected row in strict parsing mode.
type LineRowError struct {
	Index  int
	Reason string
}

func (e LineRowError) Error() string {
	return fmt.Sprintf("linha %d: %s", e.Index+1, e.Reason)
}

// ParseContractLineRows turns raw rows into line items and the aggregate
// total. In lenient mode rows with a blank description, an unparseable number
// or a non-positive quantity are silently skipped (legacy behavior). In strict
// mode every rejected row is reported; the caller fails when any error is
// returned.
func ParseContractLineRows(rows []ContractLineRow, strict bool) ([]ContractLineItem, decimal.Decimal, []LineRowError) {
	var items []ContractLineItem
	var rowErrs []LineRowError
	total := decimal.Zero

	for i, row := range rows {
		desc := strings.TrimSpace(row.Description)
		if desc == "" {
			if strict && (strings.TrimSpace(row.Quantity) != "" || strings.TrimSpace(row.UnitPrice) != "") {
				rowErrs = append(rowErrs, LineRowError{Index: i, Reason: "descrição em branco"})
			}
			continue
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(row.Quantity))
		if err != nil {
			if strict {
				rowErrs = append(rowErrs, LineRowError{Index: i, Reason: "quantidade inválida"})
			}
			continue
		}
		price := decimal.Zero
		if strings.TrimSpace(row.UnitPrice) != "" {
			price, err = decimal.NewFromString(strings.TrimSpace(row.UnitPrice))
			if err != nil {
				if strict {
					rowErrs = append(rowErrs, LineRowError{Index: i, Reason: "valor unitário inválido"})
				}
				continue
			}
		}
		if !qty.IsPositive() {
			if strict {
				rowErrs = append(rowErrs, LineRowError{Index: i, Reason: "quantidade deve ser maior que zero"})
			}
			continue
		}

		lineTotal := qty.Mul(price)
		total = total.Add(lineTotal)
		items = append(items, ContractLineItem{
			Description:   desc,
			UnitOfMeasure: strings.TrimSpace(row.UnitOfMeasure),
			Quantity:      qty,
			UnitPrice:     price,
			LineTotal:     lineTotal,
		})
	}
	return items, total, rowErrs
}

// ComputeContractState derives (currentTotalValue, currentEndDate) from the
// base line items and the amendments. Amendments replay in signature-date
// order, ties broken by creation order (ascending id), so the computation is
// deterministic and idempotent.
//
// An amendment's explicit new end date always wins over day-based extensions
// applied earlier in the replay; additional days only apply while a current
// end date exists to extend.
func ComputeContractState(originalEndDate *time.Time, items []ContractLineItem, amendments []Amendment) (decimal.Decimal, *time.Time) {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}

	ordered := make([]Amendment, len(amendments))
	copy(ordered, amendments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SignatureDate.Equal(ordered[j].SignatureDate) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].SignatureDate.Before(ordered[j].SignatureDate)
	})

	endDate := originalEndDate
	for _, amendment := range ordered {
		total = total.Add(amendment.ValueDelta)

		if amendment.ExplicitNewEndDate != nil {
			d := *amendment.ExplicitNewEndDate
			endDate = &d
		} else if amendment.AdditionalDays != 0 && endDate != nil {
			d := endDate.AddDate(0, 0, amendment.AdditionalDays)
			endDate = &d
		}
	}
	return total, endDate
}
