package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorDuplicate is returned by ValidateUnique; callers wrap it into the
// domain's duplicate-number error with a user-facing message.
var ErrorDuplicate = errors.New("duplicate record")
