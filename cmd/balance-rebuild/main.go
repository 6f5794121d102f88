// balance-rebuild recomputes registered-item balances and unit-quota consumed
// quantities from the consumption records. Run it after a crash or whenever
// the derived balances are suspected to have drifted.
//
// Usage:
//
//	go run ./cmd/balance-rebuild --registration-id 3
//	go run ./cmd/balance-rebuild --all
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
	registrationID := flag.Int("registration-id", 0, "Price registration id to rebuild")
	all := flag.Bool("all", false, "Rebuild every price registration")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing registrations and continue")
	flag.Parse()

	if *registrationID <= 0 && !*all {
		fmt.Fprintln(os.Stderr, "either --registration-id or --all is required")
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
		if err := db.WithContext(ctx).Model(&models.PriceRegistration{}).
			Order("id ASC").Pluck("id", &ids).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list registrations: %v\n", err)
			os.Exit(1)
		}
	} else {
		ids = []int{*registrationID}
	}

	failed := 0
	for _, id := range ids {
		if err := workflow.RebuildRegistrationBalances(ctx, id); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "registration %d: rebuild failed: %v\n", id, err)
			if !*continueOnError {
				os.Exit(1)
			}
			continue
		}
		fmt.Printf("registration %d: balances rebuilt\n", id)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
