package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/utils"
)

// NewSubContract carries the document header plus the lines to consume.
type NewSubContract struct {
	Number              string              `json:"number" binding:"required"`
	Object              string              `json:"object"`
	Supplier            string              `json:"supplier"`
	IssueDate           *time.Time          `json:"issue_date"`
	EndDate             *time.Time          `json:"end_date"`
	ProcessId           int                 `json:"process_id"`
	PriceRegistrationId int                 `json:"price_registration_id" binding:"required"`
	HealthUnitId        int                 `json:"health_unit_id"`
	ManualTotalValue    decimal.NullDecimal `json:"manual_total_value"`
	Lines               []ConsumptionLine   `json:"lines"`
}

func (input *NewSubContract) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[models.PriceRegistration](ctx, input.PriceRegistrationId); err != nil {
		return err
	}
	if input.ProcessId > 0 {
		if err := utils.ValidateResourceId[models.Process](ctx, input.ProcessId); err != nil {
			return err
		}
	}
	return nil
}

// CreateSubContract writes the document and posts its consumptions in one
// transaction under the registration's posting lock. Nothing is persisted when
// any line fails.
func CreateSubContract(ctx context.Context, input *NewSubContract) (*models.SubContract, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()
	cid := utils.CorrelationIdFromContextOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, cid)

	tx := db.WithContext(ctx).Begin()
	if err := AcquireRegistrationPostingLock(tx, input.PriceRegistrationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseRegistrationPostingLock(tx, input.PriceRegistrationId)

	doc := models.SubContract{
		Number:              input.Number,
		Object:              input.Object,
		Supplier:            input.Supplier,
		IssueDate:           input.IssueDate,
		EndDate:             input.EndDate,
		ProcessId:           input.ProcessId,
		PriceRegistrationId: input.PriceRegistrationId,
		HealthUnitId:        input.HealthUnitId,
		ManualTotalValue:    input.ManualTotalValue,
	}
	if err := tx.Create(&doc).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "subContractWorkflow.go", "CreateSubContract", "create document", input, err)
		return nil, err
	}

	consumer := ConsumerRef{Type: models.ConsumerDocumentTypeSubContract, ID: doc.ID}
	total, err := ApplyConsumptions(tx, logger, consumer, input.PriceRegistrationId, input.HealthUnitId, input.Lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	doc.ItemsTotalValue = total
	if err := tx.Model(&models.SubContract{}).Where("id = ?", doc.ID).
		Update("items_total_value", total).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "subContractWorkflow.go", "CreateSubContract", "set items total", doc.ID, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	utils.ClearRedisList[models.RegisteredItem](input.PriceRegistrationId)
	logger.WithFields(logrus.Fields{
		"module":         "subContractWorkflow.go",
		"funcName":       "CreateSubContract",
		"correlation_id": cid,
		"sub_contract":   doc.ID,
		"registration":   input.PriceRegistrationId,
		"health_unit":    input.HealthUnitId,
		"items_total":    total.String(),
	}).Info("sub-contract posted")
	return &doc, nil
}

// UpdateSubContract edits a document by reversing its previous consumptions
// and re-applying the new lines. The reversal credits against the OLD health
// unit's quota before the new lines debit the new one, so moving a document
// between units keeps both quota ledgers consistent.
func UpdateSubContract(ctx context.Context, id int, input *NewSubContract) (*models.SubContract, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()
	cid := utils.CorrelationIdFromContextOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, cid)

	existing, err := models.GetSubContract(ctx, id)
	if err != nil {
		return nil, err
	}
	// A document cannot move to another ata: its consumption history belongs to
	// the original registration's items.
	if input.PriceRegistrationId != existing.PriceRegistrationId {
		return nil, &models.ItemNotInRegistrationError{ItemDescription: existing.Number}
	}

	tx := db.WithContext(ctx).Begin()
	if err := AcquireRegistrationPostingLock(tx, existing.PriceRegistrationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseRegistrationPostingLock(tx, existing.PriceRegistrationId)

	consumer := ConsumerRef{Type: models.ConsumerDocumentTypeSubContract, ID: id}
	if err := ReverseConsumptions(tx, logger, consumer, existing.HealthUnitId); err != nil {
		tx.Rollback()
		return nil, err
	}

	total, err := ApplyConsumptions(tx, logger, consumer, input.PriceRegistrationId, input.HealthUnitId, input.Lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&models.SubContract{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"number":             input.Number,
			"object":             input.Object,
			"supplier":           input.Supplier,
			"issue_date":         input.IssueDate,
			"end_date":           input.EndDate,
			"process_id":         input.ProcessId,
			"health_unit_id":     input.HealthUnitId,
			"manual_total_value": input.ManualTotalValue,
			"items_total_value":  total,
		}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "subContractWorkflow.go", "UpdateSubContract", "update document", id, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	utils.ClearRedisList[models.RegisteredItem](existing.PriceRegistrationId)
	logger.WithFields(logrus.Fields{
		"module":         "subContractWorkflow.go",
		"funcName":       "UpdateSubContract",
		"correlation_id": cid,
		"sub_contract":   id,
		"registration":   existing.PriceRegistrationId,
		"health_unit":    input.HealthUnitId,
		"items_total":    total.String(),
	}).Info("sub-contract reposted")
	return models.GetSubContract(ctx, id)
}

// DeleteSubContract reverses the document's consumptions and removes it.
func DeleteSubContract(ctx context.Context, id int) error {
	db := config.GetDB()
	logger := config.GetLogger()
	cid := utils.CorrelationIdFromContextOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, cid)

	existing, err := models.GetSubContract(ctx, id)
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if err := AcquireRegistrationPostingLock(tx, existing.PriceRegistrationId); err != nil {
		tx.Rollback()
		return err
	}
	defer ReleaseRegistrationPostingLock(tx, existing.PriceRegistrationId)

	consumer := ConsumerRef{Type: models.ConsumerDocumentTypeSubContract, ID: id}
	if err := ReverseConsumptions(tx, logger, consumer, existing.HealthUnitId); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&models.SubContract{}, id).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "subContractWorkflow.go", "DeleteSubContract", "delete document", id, err)
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	utils.ClearRedisList[models.RegisteredItem](existing.PriceRegistrationId)
	logger.WithFields(logrus.Fields{
		"module":         "subContractWorkflow.go",
		"funcName":       "DeleteSubContract",
		"correlation_id": cid,
		"sub_contract":   id,
		"registration":   existing.PriceRegistrationId,
	}).Info("sub-contract reversed and removed")
	return nil
}
