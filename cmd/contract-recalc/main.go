// contract-recalc re-derives currentTotalValue and currentEndDate for
// contracts from their stored line items and amendments. The recalculation is
// idempotent, so running it over already-consistent contracts is harmless.
//
// Usage:
//
//	go run ./cmd/contract-recalc --contract-id 12
//	go run ./cmd/contract-recalc --all
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/workflow"
)

func main() {
	contractID := flag.Int("contract-id", 0, "Contract id to recalculate")
	all := flag.Bool("all", false, "Recalculate every contract")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing contracts and continue")
	flag.Parse()

	if *contractID <= 0 && !*all {
		fmt.Fprintln(os.Stderr, "either --contract-id or --all is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var ids []int
	if *all {
		if err := db.WithContext(ctx).Model(&models.Contract{}).
			Order("id ASC").Pluck("id", &ids).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list contracts: %v\n", err)
			os.Exit(1)
		}
	} else {
		ids = []int{*contractID}
	}

	failed := 0
	for _, id := range ids {
		if err := workflow.RecalculateContractState(ctx, id); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "contract %d: recalc failed: %v\n", id, err)
			if !*continueOnError {
				os.Exit(1)
			}
			continue
		}
		fmt.Printf("contract %d: state recalculated\n", id)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
