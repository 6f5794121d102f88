package config

import (
	"fmt"
	"strings"

	"bitbucket.org/prefsaude/compras_backend/appctx"
	"gorm.io/gorm"
)

// DerivedGuardPlugin refuses direct writes to the contract columns that are
// derived caches (current_total_value, current_end_date). Those columns are a
// pure function of the contract's line items and amendments and may only be
// written by the recalculation entry point, which marks its context with
// appctx.ContextKeyAllowDerivedWrite.
//
// NOTE: this does NOT apply to Raw SQL. Raw statements must go through the
// recalculation entry point like everything else.
type DerivedGuardPlugin struct{}

func NewDerivedGuardPlugin() *DerivedGuardPlugin { return &DerivedGuardPlugin{} }

func (p *DerivedGuardPlugin) Name() string { return "derived_guard" }

var guardedContractColumns = map[string]bool{
	"current_total_value": true,
	"current_end_date":    true,
}

func (p *DerivedGuardPlugin) Initialize(db *gorm.DB) error {
	return db.Callback().Update().Before("gorm:update").Register("derived_guard:update", derivedGuardCallback)
}

func derivedGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	table := db.Statement.Table
	if table == "" && db.Statement.Schema != nil {
		table = db.Statement.Schema.Table
	}
	if table != "contracts" {
		return
	}
	if ctx := db.Statement.Context; ctx != nil {
		if v, ok := ctx.Value(appctx.ContextKeyAllowDerivedWrite).(bool); ok && v {
			return
		}
	}
	for _, col := range touchedColumns(db.Statement) {
		if guardedContractColumns[col] {
			db.AddError(fmt.Errorf("coluna derivada %q só pode ser gravada pelo recálculo do contrato", col))
			return
		}
	}
}

// touchedColumns lists the columns an Updates call is about to write. Struct
// saves without an explicit Select are not inspected; all contract struct
// writes in this codebase go through Updates with a column map.
func touchedColumns(stmt *gorm.Statement) []string {
	var cols []string
	switch dest := stmt.Dest.(type) {
	case map[string]interface{}:
		for k := range dest {
			cols = append(cols, strings.ToLower(k))
		}
	case *map[string]interface{}:
		for k := range *dest {
			cols = append(cols, strings.ToLower(k))
		}
	default:
		for _, s := range stmt.Selects {
			cols = append(cols, strings.ToLower(s))
		}
	}
	return cols
}
