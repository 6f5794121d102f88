package config

import (
	"os"
	"strings"
)

// StrictContractItemRows switches the free-form contract line-item parser from
// the legacy lenient behavior (malformed rows are silently skipped) to strict
// per-row error collection. Lenient stays the default for compatibility with
// imported data.
//
// Set via env:
// - STRICT_CONTRACT_ITEM_ROWS=true
func StrictContractItemRows() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_CONTRACT_ITEM_ROWS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
