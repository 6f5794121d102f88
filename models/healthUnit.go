package models

import (
	"context"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"gorm.io/gorm"
)

type HealthUnit struct {
	ID        int            `gorm:"primary_key" json:"id"`
	Name      string         `gorm:"size:150;not null;uniqueIndex" json:"name" binding:"required"`
	Kind      HealthUnitKind `gorm:"size:50;not null;default:'OUTRO'" json:"kind"`
	Address   string         `gorm:"size:255" json:"address"`
	Phone     string         `gorm:"size:20" json:"phone"`
	Email     string         `gorm:"size:120" json:"email"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewHealthUnit struct {
	Name    string         `json:"name" binding:"required"`
	Kind    HealthUnitKind `json:"kind"`
	Address string         `json:"address"`
	Phone   string         `json:"phone"`
	Email   string         `json:"email"`
}

func (input *NewHealthUnit) validate(ctx context.Context, exceptId int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if _, err := ParseHealthUnitKind(string(input.Kind)); err != nil {
		return err
	}
	if err := utils.ValidateUnique[HealthUnit](ctx, "name", input.Name, exceptId); err != nil {
		if err == utils.ErrorDuplicate {
			return &DuplicateDocumentNumberError{Message: "Já existe uma unidade de saúde com este nome."}
		}
		return err
	}
	return nil
}

func CreateHealthUnit(ctx context.Context, input *NewHealthUnit) (*HealthUnit, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}
	kind, _ := ParseHealthUnitKind(string(input.Kind))

	db := config.GetDB()
	unit := HealthUnit{
		Name:    input.Name,
		Kind:    kind,
		Address: input.Address,
		Phone:   input.Phone,
		Email:   input.Email,
	}
	if err := db.WithContext(ctx).Create(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func UpdateHealthUnit(ctx context.Context, id int, input *NewHealthUnit) (*HealthUnit, error) {
	if err := utils.ValidateResourceId[HealthUnit](ctx, id); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}
	kind, _ := ParseHealthUnitKind(string(input.Kind))

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&HealthUnit{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":    input.Name,
			"kind":    kind,
			"address": input.Address,
			"phone":   input.Phone,
			"email":   input.Email,
		}).Error; err != nil {
		return nil, err
	}
	var unit HealthUnit
	if err := db.WithContext(ctx).First(&unit, id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// DeleteHealthUnit refuses while quotas or documents still reference the unit.
func DeleteHealthUnit(ctx context.Context, id int) error {
	if err := utils.ValidateResourceId[HealthUnit](ctx, id); err != nil {
		return err
	}

	for _, linked := range []func() (int64, error){
		func() (int64, error) { return utils.ResourceCountWhere[UnitQuota](ctx, "health_unit_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[SubContract](ctx, "health_unit_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[Commitment](ctx, "health_unit_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[Contract](ctx, "health_unit_id = ?", id) },
	} {
		count, err := linked()
		if err != nil {
			return err
		}
		if count > 0 {
			return &LinkedDocumentsExistError{
				Message: "Não é possível excluir a unidade de saúde. Existem cotas ou documentos vinculados a ela.",
			}
		}
	}

	db := config.GetDB()
	return db.WithContext(ctx).Delete(&HealthUnit{}, id).Error
}

func GetHealthUnit(ctx context.Context, id int) (*HealthUnit, error) {
	db := config.GetDB()
	var unit HealthUnit
	if err := db.WithContext(ctx).First(&unit, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &unit, nil
}

func GetHealthUnits(ctx context.Context) ([]HealthUnit, error) {
	db := config.GetDB()
	var units []HealthUnit
	if err := db.WithContext(ctx).Order("name ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}
