package utils

import (
	"context"
	"reflect"

	"bitbucket.org/prefsaude/compras_backend/config"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	// Input structs keep the `binding` tag convention.
	validate.SetTagName("binding")
}

// ValidateStruct runs the declarative `binding` rules of an input struct.
func ValidateStruct(input any) error {
	return validate.Struct(input)
}

// ValidateResourceId checks that an id exists, returns ErrorRecordNotFound otherwise.
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique returns ErrorDuplicate when another row already holds the value.
// exceptId excludes the row being updated (zero value for create).
func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrorDuplicate
	}
	return nil
}

// ValidateUniquePair is ValidateUnique over a two-column natural key
// (e.g. process number + year).
func ValidateUniquePair[T any](ctx context.Context, colA string, valA interface{}, colB string, valB interface{}, exceptId interface{}) error {
	cond := colA + " = ? AND " + colB + " = ?"
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, cond, valA, valB)
	} else {
		count, err = ResourceCountWhere[T](ctx, cond+" AND NOT id = ?", valA, valB, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrorDuplicate
	}
	return nil
}

// ResourceCountWhere counts records of T matching the condition.
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if err := dbCtx.Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
