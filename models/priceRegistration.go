package models

import (
	"context"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"gorm.io/gorm"
)

// PriceRegistration is the "ata de registro de preços": the document that
// establishes ceiling quantities and unit prices for its registered items.
type PriceRegistration struct {
	ID            int        `gorm:"primary_key" json:"id"`
	Number        string     `gorm:"size:100;not null;uniqueIndex:uq_registration_number_year" json:"number" binding:"required"`
	Year          int        `gorm:"not null;uniqueIndex:uq_registration_number_year" json:"year" binding:"required"`
	Description   string     `gorm:"type:text" json:"description"`
	SignatureDate *time.Time `json:"signature_date"`
	ValidUntil    *time.Time `json:"valid_until"`
	ProcessId     int        `gorm:"index" json:"process_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPriceRegistration struct {
	Number        string     `json:"number" binding:"required"`
	Year          int        `json:"year" binding:"required"`
	Description   string     `json:"description"`
	SignatureDate *time.Time `json:"signature_date"`
	ValidUntil    *time.Time `json:"valid_until"`
	ProcessId     int        `json:"process_id"`
}

func (input *NewPriceRegistration) validate(ctx context.Context, exceptId int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.ProcessId > 0 {
		if err := utils.ValidateResourceId[Process](ctx, input.ProcessId); err != nil {
			return err
		}
	}
	if err := utils.ValidateUniquePair[PriceRegistration](ctx, "number", input.Number, "year", input.Year, exceptId); err != nil {
		if err == utils.ErrorDuplicate {
			return &DuplicateDocumentNumberError{Message: "Já existe uma ata com este número. Verifique os dados."}
		}
		return err
	}
	return nil
}

func CreatePriceRegistration(ctx context.Context, input *NewPriceRegistration) (*PriceRegistration, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	registration := PriceRegistration{
		Number:        input.Number,
		Year:          input.Year,
		Description:   input.Description,
		SignatureDate: input.SignatureDate,
		ValidUntil:    input.ValidUntil,
		ProcessId:     input.ProcessId,
	}
	if err := db.WithContext(ctx).Create(&registration).Error; err != nil {
		return nil, err
	}
	return &registration, nil
}

func UpdatePriceRegistration(ctx context.Context, id int, input *NewPriceRegistration) (*PriceRegistration, error) {
	if err := utils.ValidateResourceId[PriceRegistration](ctx, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&PriceRegistration{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"number":         input.Number,
			"year":           input.Year,
			"description":    input.Description,
			"signature_date": input.SignatureDate,
			"valid_until":    input.ValidUntil,
			"process_id":     input.ProcessId,
		}).Error; err != nil {
		return nil, err
	}
	var registration PriceRegistration
	if err := db.WithContext(ctx).First(&registration, id).Error; err != nil {
		return nil, err
	}
	return &registration, nil
}

// DeletePriceRegistration removes the registration with its items and quotas.
// It refuses while any of its items has been consumed by a sub-contract or
// commitment.
func DeletePriceRegistration(ctx context.Context, id int) error {
	if err := utils.ValidateResourceId[PriceRegistration](ctx, id); err != nil {
		return err
	}

	db := config.GetDB()
	var consumed int64
	if err := db.WithContext(ctx).Model(&ConsumptionRecord{}).
		Joins("JOIN registered_items ON registered_items.id = consumption_records.registered_item_id").
		Where("registered_items.price_registration_id = ?", id).
		Count(&consumed).Error; err != nil {
		return err
	}
	if consumed > 0 {
		return &LinkedDocumentsExistError{
			Message: "Não é possível excluir a ata. Existem itens desta ata que já foram consumidos em Contratinhos ou Empenhos.",
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var itemIds []int
		if err := tx.WithContext(ctx).Model(&RegisteredItem{}).
			Where("price_registration_id = ?", id).
			Pluck("id", &itemIds).Error; err != nil {
			return err
		}
		if len(itemIds) > 0 {
			if err := tx.WithContext(ctx).Where("registered_item_id IN ?", itemIds).Delete(&UnitQuota{}).Error; err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Where("price_registration_id = ?", id).Delete(&RegisteredItem{}).Error; err != nil {
				return err
			}
		}
		if err := tx.WithContext(ctx).Delete(&PriceRegistration{}, id).Error; err != nil {
			return err
		}
		utils.ClearRedisList[RegisteredItem](id)
		return nil
	})
}

func GetPriceRegistration(ctx context.Context, id int) (*PriceRegistration, error) {
	db := config.GetDB()
	var registration PriceRegistration
	if err := db.WithContext(ctx).First(&registration, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &registration, nil
}

func GetPriceRegistrations(ctx context.Context) ([]PriceRegistration, error) {
	db := config.GetDB()
	var registrations []PriceRegistration
	if err := db.WithContext(ctx).Order("year DESC, number ASC").Find(&registrations).Error; err != nil {
		return nil, err
	}
	return registrations, nil
}
