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

// NewCommitment carries the empenho header plus the lines to consume. The
// posting semantics are identical to the sub-contract's; only the document
// metadata differs.
type NewCommitment struct {
	Number              string              `json:"number" binding:"required"`
	Object              string              `json:"object"`
	Favored             string              `json:"favored"`
	IssueDate           *time.Time          `json:"issue_date"`
	ProcessId           int                 `json:"process_id"`
	PriceRegistrationId int                 `json:"price_registration_id" binding:"required"`
	HealthUnitId        int                 `json:"health_unit_id"`
	ManualTotalValue    decimal.NullDecimal `json:"manual_total_value"`
	Lines               []ConsumptionLine   `json:"lines"`
}

func (input *NewCommitment) validate(ctx context.Context) error {
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

func CreateCommitment(ctx context.Context, input *NewCommitment) (*models.Commitment, error) {
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

	doc := models.Commitment{
		Number:              input.Number,
		Object:              input.Object,
		Favored:             input.Favored,
		IssueDate:           input.IssueDate,
		ProcessId:           input.ProcessId,
		PriceRegistrationId: input.PriceRegistrationId,
		HealthUnitId:        input.HealthUnitId,
		ManualTotalValue:    input.ManualTotalValue,
	}
	if err := tx.Create(&doc).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "commitmentWorkflow.go", "CreateCommitment", "create document", input, err)
		return nil, err
	}

	consumer := ConsumerRef{Type: models.ConsumerDocumentTypeCommitment, ID: doc.ID}
	total, err := ApplyConsumptions(tx, logger, consumer, input.PriceRegistrationId, input.HealthUnitId, input.Lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	doc.ItemsTotalValue = total
	if err := tx.Model(&models.Commitment{}).Where("id = ?", doc.ID).
		Update("items_total_value", total).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "commitmentWorkflow.go", "CreateCommitment", "set items total", doc.ID, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	utils.ClearRedisList[models.RegisteredItem](input.PriceRegistrationId)
	logger.WithFields(logrus.Fields{
		"module":         "commitmentWorkflow.go",
		"funcName":       "CreateCommitment",
		"correlation_id": cid,
		"commitment":     doc.ID,
		"registration":   input.PriceRegistrationId,
		"health_unit":    input.HealthUnitId,
		"items_total":    total.String(),
	}).Info("commitment posted")
	return &doc, nil
}

func UpdateCommitment(ctx context.Context, id int, input *NewCommitment) (*models.Commitment, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	logger := config.GetLogger()
	cid := utils.CorrelationIdFromContextOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, cid)

	existing, err := models.GetCommitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.PriceRegistrationId != existing.PriceRegistrationId {
		return nil, &models.ItemNotInRegistrationError{ItemDescription: existing.Number}
	}

	tx := db.WithContext(ctx).Begin()
	if err := AcquireRegistrationPostingLock(tx, existing.PriceRegistrationId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseRegistrationPostingLock(tx, existing.PriceRegistrationId)

	consumer := ConsumerRef{Type: models.ConsumerDocumentTypeCommitment, ID: id}
	if err := ReverseConsumptions(tx, logger, consumer, existing.HealthUnitId); err != nil {
		tx.Rollback()
		return nil, err
	}

	total, err := ApplyConsumptions(tx, logger, consumer, input.PriceRegistrationId, input.HealthUnitId, input.Lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Model(&models.Commitment{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"number":             input.Number,
			"object":             input.Object,
			"favored":            input.Favored,
			"issue_date":         input.IssueDate,
			"process_id":         input.ProcessId,
			"health_unit_id":     input.HealthUnitId,
			"manual_total_value": input.ManualTotalValue,
			"items_total_value":  total,
		}).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "commitmentWorkflow.go", "UpdateCommitment", "update document", id, err)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	utils.ClearRedisList[models.RegisteredItem](existing.PriceRegistrationId)
	logger.WithFields(logrus.Fields{
		"module":         "commitmentWorkflow.go",
		"funcName":       "UpdateCommitment",
		"correlation_id": cid,
		"commitment":     id,
		"registration":   existing.PriceRegistrationId,
		"health_unit":    input.HealthUnitId,
		"items_total":    total.String(),
	}).Info("commitment reposted")
	return models.GetCommitment(ctx, id)
}

func DeleteCommitment(ctx context.Context, id int) error {
	db := config.GetDB()
	logger := config.GetLogger()
	cid := utils.CorrelationIdFromContextOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, cid)

	existing, err := models.GetCommitment(ctx, id)
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if err := AcquireRegistrationPostingLock(tx, existing.PriceRegistrationId); err != nil {
		tx.Rollback()
		return err
	}
	defer ReleaseRegistrationPostingLock(tx, existing.PriceRegistrationId)

	consumer := ConsumerRef{Type: models.ConsumerDocumentTypeCommitment, ID: id}
	if err := ReverseConsumptions(tx, logger, consumer, existing.HealthUnitId); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&models.Commitment{}, id).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "commitmentWorkflow.go", "DeleteCommitment", "delete document", id, err)
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	utils.ClearRedisList[models.RegisteredItem](existing.PriceRegistrationId)
	logger.WithFields(logrus.Fields{
		"module":         "commitmentWorkflow.go",
		"funcName":       "DeleteCommitment",
		"correlation_id": cid,
		"commitment":     id,
		"registration":   existing.PriceRegistrationId,
	}).Info("commitment reversed and removed")
	return nil
}
