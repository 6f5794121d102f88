package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/utils"
)

// NewContract carries the contract header plus the raw line-item rows.
type NewContract struct {
	Number          string                   `json:"number" binding:"required"`
	Object          string                   `json:"object" binding:"required"`
	Supplier        string                   `json:"supplier"`
	SignatureDate   *time.Time               `json:"signature_date"`
	StartDate       *time.Time               `json:"start_date"`
	OriginalEndDate *time.Time               `json:"original_end_date"`
	ProcessId       int                      `json:"process_id"`
	HealthUnitId    int                      `json:"health_unit_id"`
	Rows            []models.ContractLineRow `json:"rows"`
}

func (input *NewContract) validate(ctx context.Context, exceptId int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.ProcessId > 0 {
		if err := utils.ValidateResourceId[models.Process](ctx, input.ProcessId); err != nil {
			return err
		}
	}
	if input.HealthUnitId > 0 {
		if err := utils.ValidateResourceId[models.HealthUnit](ctx, input.HealthUnitId); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[models.Contract](ctx, "number", input.Number, exceptId); err != nil {
		if err == utils.ErrorDuplicate {
			return &models.DuplicateDocumentNumberError{Message: "Já existe um contrato com este número."}
		}
		return err
	}
	return nil
}

func parseRowsOrFail(rows []models.ContractLineRow) ([]models.ContractLineItem, error) {
	strict := config.StrictContractItemRows()
	items, _, rowErrs := models.ParseContractLineRows(rows, strict)
	if strict && len(rowErrs) > 0 {
		reasons := make([]string, 0, len(rowErrs))
		for _, re := range rowErrs {
			reasons = append(reasons, re.Error())
		}
		return nil, errors.New("Linhas de itens inválidas: " + strings.Join(reasons, "; "))
	}
	return items, nil
}

// CreateContract writes the header and its parsed line items, then derives
// the contract's current state, all in one transaction.
func CreateContract(ctx context.Context, input *NewContract) (*models.Contract, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}
	items, err := parseRowsOrFail(input.Rows)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()

	contract := models.Contract{
		Number:          input.Number,
		Object:          input.Object,
		Supplier:        input.Supplier,
		SignatureDate:   input.SignatureDate,
		StartDate:       input.StartDate,
		OriginalEndDate: input.OriginalEndDate,
		ProcessId:       input.ProcessId,
		HealthUnitId:    input.HealthUnitId,
	}

	tx := db.WithContext(utils.AllowDerivedWrite(ctx)).Begin()
	if err := tx.Create(&contract).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "CreateContract", "create header", input, err)
		return nil, err
	}
	for i := range items {
		items[i].ContractId = contract.ID
		if err := tx.Create(&items[i]).Error; err != nil {
			tx.Rollback()
			config.LogError(logger, "contractWorkflow.go", "CreateContract", "create line item", items[i], err)
			return nil, err
		}
	}
	if err := recalculateContractStateTx(tx, logger, contract.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetContract(ctx, contract.ID)
}

// UpdateContract replaces the header and the full set of line items, then
// re-derives the contract state. Line items have no consumption ledger of
// their own, so replacement is safe.
func UpdateContract(ctx context.Context, id int, input *NewContract) (*models.Contract, error) {
	if err := utils.ValidateResourceId[models.Contract](ctx, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	items, err := parseRowsOrFail(input.Rows)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()

	tx := db.WithContext(utils.AllowDerivedWrite(ctx)).Begin()
	if err := tx.Model(&models.Contract{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"number":            input.Number,
			"object":            input.Object,
			"supplier":          input.Supplier,
			"signature_date":    input.SignatureDate,
			"start_date":        input.StartDate,
			"original_end_date": input.OriginalEndDate,
			"process_id":        input.ProcessId,
			"health_unit_id":    input.HealthUnitId,
		}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "UpdateContract", "update header", id, err)
		return nil, err
	}
	if err := tx.Where("contract_id = ?", id).Delete(&models.ContractLineItem{}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "UpdateContract", "clear line items", id, err)
		return nil, err
	}
	for i := range items {
		items[i].ContractId = id
		if err := tx.Create(&items[i]).Error; err != nil {
			tx.Rollback()
			config.LogError(logger, "contractWorkflow.go", "UpdateContract", "create line item", items[i], err)
			return nil, err
		}
	}
	if err := recalculateContractStateTx(tx, logger, id); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetContract(ctx, id)
}

// DeleteContract removes the contract with its line items and amendments.
func DeleteContract(ctx context.Context, id int) error {
	if err := utils.ValidateResourceId[models.Contract](ctx, id); err != nil {
		return err
	}

	db := config.GetDB()
	logger := config.GetLogger()

	tx := db.WithContext(ctx).Begin()
	if err := tx.Where("contract_id = ?", id).Delete(&models.ContractLineItem{}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "DeleteContract", "delete line items", id, err)
		return err
	}
	if err := tx.Where("contract_id = ?", id).Delete(&models.Amendment{}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "DeleteContract", "delete amendments", id, err)
		return err
	}
	if err := tx.Delete(&models.Contract{}, id).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "DeleteContract", "delete contract", id, err)
		return err
	}
	return tx.Commit().Error
}

func GetContract(ctx context.Context, id int) (*models.Contract, error) {
	db := config.GetDB()
	var contract models.Contract
	if err := db.WithContext(ctx).First(&contract, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &contract, nil
}

func GetContracts(ctx context.Context) ([]models.Contract, error) {
	db := config.GetDB()
	var contracts []models.Contract
	if err := db.WithContext(ctx).Order("id DESC").Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

// CreateAmendment records a termo aditivo and re-derives the contract state
// in the same transaction.
func CreateAmendment(ctx context.Context, input *models.NewAmendment) (*models.Amendment, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()

	amendment := models.Amendment{
		ContractId:         input.ContractId,
		Number:             input.Number,
		Object:             input.Object,
		SignatureDate:      input.SignatureDate,
		ValueDelta:         input.ValueDelta,
		AdditionalDays:     input.AdditionalDays,
		ExplicitNewEndDate: input.ExplicitNewEndDate,
	}

	tx := db.WithContext(utils.AllowDerivedWrite(ctx)).Begin()
	if err := tx.Create(&amendment).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "CreateAmendment", "create amendment", input, err)
		return nil, err
	}
	if err := recalculateContractStateTx(tx, logger, input.ContractId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &amendment, nil
}

func UpdateAmendment(ctx context.Context, id int, input *models.NewAmendment) (*models.Amendment, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()

	var existing models.Amendment
	if err := db.WithContext(ctx).First(&existing, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if existing.ContractId != input.ContractId {
		return nil, fmt.Errorf("o aditivo %d não pertence ao contrato %d", id, input.ContractId)
	}

	tx := db.WithContext(utils.AllowDerivedWrite(ctx)).Begin()
	if err := tx.Model(&models.Amendment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"number":                input.Number,
			"object":                input.Object,
			"signature_date":        input.SignatureDate,
			"value_delta":           input.ValueDelta,
			"additional_days":       input.AdditionalDays,
			"explicit_new_end_date": input.ExplicitNewEndDate,
		}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "UpdateAmendment", "update amendment", id, err)
		return nil, err
	}
	if err := recalculateContractStateTx(tx, logger, existing.ContractId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	var amendment models.Amendment
	if err := db.WithContext(ctx).First(&amendment, id).Error; err != nil {
		return nil, err
	}
	return &amendment, nil
}

func DeleteAmendment(ctx context.Context, id int) error {
	db := config.GetDB()
	logger := config.GetLogger()

	var existing models.Amendment
	if err := db.WithContext(ctx).First(&existing, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorRecordNotFound
		}
		return err
	}

	tx := db.WithContext(utils.AllowDerivedWrite(ctx)).Begin()
	if err := tx.Delete(&models.Amendment{}, id).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "contractWorkflow.go", "DeleteAmendment", "delete amendment", id, err)
		return err
	}
	if err := recalculateContractStateTx(tx, logger, existing.ContractId); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func GetContractAmendments(ctx context.Context, contractId int) ([]models.Amendment, error) {
	db := config.GetDB()
	var amendments []models.Amendment
	if err := db.WithContext(ctx).
		Where("contract_id = ?", contractId).
		Order("signature_date ASC, id ASC").
		Find(&amendments).Error; err != nil {
		return nil, err
	}
	return amendments, nil
}

// RecalculateContractState re-derives currentTotalValue and currentEndDate
// from the stored line items and amendments. It is the single entry point
// allowed to write those columns; the derived-field guard rejects everything
// else. Safe to run repeatedly: the result depends only on stored rows.
func RecalculateContractState(ctx context.Context, contractId int) error {
	db := config.GetDB()
	logger := config.GetLogger()

	tx := db.WithContext(utils.AllowDerivedWrite(ctx)).Begin()
	if err := recalculateContractStateTx(tx, logger, contractId); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func recalculateContractStateTx(tx *gorm.DB, logger *logrus.Logger, contractId int) error {
	var contract models.Contract
	if err := tx.First(&contract, contractId).Error; err != nil {
		config.LogError(logger, "contractWorkflow.go", "recalculateContractStateTx", "load contract", contractId, err)
		return err
	}

	var items []models.ContractLineItem
	if err := tx.Where("contract_id = ?", contractId).Find(&items).Error; err != nil {
		config.LogError(logger, "contractWorkflow.go", "recalculateContractStateTx", "load line items", contractId, err)
		return err
	}
	var amendments []models.Amendment
	if err := tx.Where("contract_id = ?", contractId).
		Order("signature_date ASC, id ASC").
		Find(&amendments).Error; err != nil {
		config.LogError(logger, "contractWorkflow.go", "recalculateContractStateTx", "load amendments", contractId, err)
		return err
	}

	total, endDate := models.ComputeContractState(contract.OriginalEndDate, items, amendments)

	return tx.Model(&models.Contract{}).Where("id = ?", contractId).
		Updates(map[string]interface{}{
			"current_total_value": total,
			"current_end_date":    endDate,
		}).Error
}
