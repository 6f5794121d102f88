package models

import (
	"context"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
	"gorm.io/gorm"
)

// Process is the procurement case file ("processo administrativo") that
// registrations, contracts and consuming documents may reference.
type Process struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Number      string    `gorm:"size:100;not null;uniqueIndex:uq_process_number_year" json:"number" binding:"required"`
	Year        int       `gorm:"not null;uniqueIndex:uq_process_number_year" json:"year" binding:"required"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewProcess struct {
	Number      string `json:"number" binding:"required"`
	Year        int    `json:"year" binding:"required"`
	Description string `json:"description"`
}

func CreateProcess(ctx context.Context, input *NewProcess) (*Process, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUniquePair[Process](ctx, "number", input.Number, "year", input.Year, 0); err != nil {
		if err == utils.ErrorDuplicate {
			return nil, &DuplicateDocumentNumberError{Message: "Já existe um processo com este número e ano."}
		}
		return nil, err
	}

	db := config.GetDB()
	process := Process{
		Number:      input.Number,
		Year:        input.Year,
		Description: input.Description,
	}
	if err := db.WithContext(ctx).Create(&process).Error; err != nil {
		return nil, err
	}
	return &process, nil
}

func UpdateProcess(ctx context.Context, id int, input *NewProcess) (*Process, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Process](ctx, id); err != nil {
		return nil, err
	}
	if err := utils.ValidateUniquePair[Process](ctx, "number", input.Number, "year", input.Year, id); err != nil {
		if err == utils.ErrorDuplicate {
			return nil, &DuplicateDocumentNumberError{Message: "Já existe um processo com este número e ano."}
		}
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Process{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"number":      input.Number,
			"year":        input.Year,
			"description": input.Description,
		}).Error; err != nil {
		return nil, err
	}
	var process Process
	if err := db.WithContext(ctx).First(&process, id).Error; err != nil {
		return nil, err
	}
	return &process, nil
}

// DeleteProcess refuses while any document still references the case file.
func DeleteProcess(ctx context.Context, id int) error {
	if err := utils.ValidateResourceId[Process](ctx, id); err != nil {
		return err
	}

	for _, linked := range []func() (int64, error){
		func() (int64, error) { return utils.ResourceCountWhere[PriceRegistration](ctx, "process_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[Contract](ctx, "process_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[SubContract](ctx, "process_id = ?", id) },
		func() (int64, error) { return utils.ResourceCountWhere[Commitment](ctx, "process_id = ?", id) },
	} {
		count, err := linked()
		if err != nil {
			return err
		}
		if count > 0 {
			return &LinkedDocumentsExistError{
				Message: "Não é possível excluir o processo. Existem Atas, Contratos ou outros documentos vinculados a ele.",
			}
		}
	}

	db := config.GetDB()
	return db.WithContext(ctx).Delete(&Process{}, id).Error
}

func GetProcess(ctx context.Context, id int) (*Process, error) {
	db := config.GetDB()
	var process Process
	if err := db.WithContext(ctx).First(&process, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &process, nil
}

func GetProcesses(ctx context.Context) ([]Process, error) {
	db := config.GetDB()
	var processes []Process
	if err := db.WithContext(ctx).Order("year DESC, number ASC").Find(&processes).Error; err != nil {
		return nil, err
	}
	return processes, nil
}
