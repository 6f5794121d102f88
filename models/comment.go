package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/utils"
)

// Comment is a free-form annotation attached to any document by its
// (ReferenceType, ReferenceId) pair. The author is resolved from the request
// context at creation time.
type Comment struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ReferenceType string    `gorm:"size:50;not null;index:idx_comment_reference" json:"reference_type"`
	ReferenceId   int       `gorm:"not null;index:idx_comment_reference" json:"reference_id"`
	Body          string    `gorm:"type:text;not null" json:"body"`
	AuthorId      int       `gorm:"index" json:"author_id"`
	AuthorName    string    `gorm:"size:200" json:"author_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewComment struct {
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceId   int    `json:"reference_id" binding:"required"`
	Body          string `json:"body" binding:"required"`
}

func CreateComment(ctx context.Context, input *NewComment) (*Comment, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, errors.New("o comentário não pode estar em branco")
	}

	authorId, _ := utils.GetUserIdFromContext(ctx)
	authorName, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	comment := Comment{
		ReferenceType: input.ReferenceType,
		ReferenceId:   input.ReferenceId,
		Body:          strings.TrimSpace(input.Body),
		AuthorId:      authorId,
		AuthorName:    authorName,
	}
	if err := db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func GetComments(ctx context.Context, referenceType string, referenceId int) ([]Comment, error) {
	db := config.GetDB()
	var comments []Comment
	if err := db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
