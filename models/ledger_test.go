package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/prefsaude/compras_backend/models"
)

func TestDebitGlobalRefusesOverdraw(t *testing.T) {
	item := models.RegisteredItem{
		Description:        "Dipirona 500mg",
		RegisteredQuantity: d("100"),
		AvailableBalance:   d("100"),
	}

	if err := item.DebitGlobal(d("30")); err != nil {
		t.Fatalf("DebitGlobal(30): %v", err)
	}
	if !item.AvailableBalance.Equal(d("70")) {
		t.Fatalf("balance = %s, want 70", item.AvailableBalance)
	}
	if !item.ConsumedQuantity().Equal(d("30")) {
		t.Fatalf("consumed = %s, want 30", item.ConsumedQuantity())
	}

	err := item.DebitGlobal(d("70.0001"))
	var insufficient *models.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	if !item.AvailableBalance.Equal(d("70")) {
		t.Fatalf("failed debit mutated balance: %s", item.AvailableBalance)
	}

	// Exactly the remaining balance is allowed.
	if err := item.DebitGlobal(d("70")); err != nil {
		t.Fatalf("DebitGlobal(70): %v", err)
	}
	if !item.AvailableBalance.IsZero() {
		t.Fatalf("balance = %s, want 0", item.AvailableBalance)
	}
}

func TestCreditGlobalIsNotClamped(t *testing.T) {
	item := models.RegisteredItem{
		RegisteredQuantity: d("50"),
		AvailableBalance:   d("40"),
	}
	// A reversal after the registered quantity was shrunk can push the balance
	// past the ceiling. The rebuild command reconciles this; clamping here
	// would silently lose the credit.
	item.CreditGlobal(d("20"))
	if !item.AvailableBalance.Equal(d("60")) {
		t.Fatalf("balance = %s, want 60", item.AvailableBalance)
	}
}

func TestResizePreservesConsumedQuantity(t *testing.T) {
	item := models.RegisteredItem{
		RegisteredQuantity: d("100"),
		AvailableBalance:   d("60"), // consumed 40
	}

	if err := item.Resize(d("80")); err != nil {
		t.Fatalf("Resize(80): %v", err)
	}
	if !item.AvailableBalance.Equal(d("40")) {
		t.Fatalf("balance = %s, want 40", item.AvailableBalance)
	}
	if !item.ConsumedQuantity().Equal(d("40")) {
		t.Fatalf("consumed = %s, want 40", item.ConsumedQuantity())
	}

	err := item.Resize(d("39.99"))
	var below *models.QuantityBelowConsumedError
	if !errors.As(err, &below) {
		t.Fatalf("err = %v, want QuantityBelowConsumedError", err)
	}
	if !item.RegisteredQuantity.Equal(d("80")) {
		t.Fatalf("failed resize mutated quantity: %s", item.RegisteredQuantity)
	}

	// Shrinking to exactly the consumed amount zeroes the balance.
	if err := item.Resize(d("40")); err != nil {
		t.Fatalf("Resize(40): %v", err)
	}
	if !item.AvailableBalance.IsZero() {
		t.Fatalf("balance = %s, want 0", item.AvailableBalance)
	}
}

func TestDebitQuotaRefusesOverdraw(t *testing.T) {
	quota := models.UnitQuota{
		AllocatedQuantity: d("40"),
		ConsumedQuantity:  d("10"),
	}

	if err := quota.DebitQuota("Dipirona 500mg", d("30")); err != nil {
		t.Fatalf("DebitQuota(30): %v", err)
	}
	if !quota.RemainingQuota().IsZero() {
		t.Fatalf("remaining = %s, want 0", quota.RemainingQuota())
	}

	err := quota.DebitQuota("Dipirona 500mg", d("0.0001"))
	var insufficient *models.InsufficientQuotaError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientQuotaError", err)
	}

	quota.CreditQuota(d("15"))
	if !quota.RemainingQuota().Equal(d("15")) {
		t.Fatalf("remaining after credit = %s, want 15", quota.RemainingQuota())
	}
}

func TestDomainErrorMessages(t *testing.T) {
	err := &models.InsufficientBalanceError{
		ItemDescription: "Dipirona 500mg",
		Available:       d("70"),
		Requested:       d("90.5"),
	}
	want := "Saldo GLOBAL insuficiente para 'Dipirona 500mg'. Disponível: 70.00, Solicitado: 90.50."
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
	if !models.IsDomainError(err) {
		t.Fatal("InsufficientBalanceError should be a domain error")
	}
	if models.IsDomainError(errors.New("driver: bad connection")) {
		t.Fatal("infrastructure errors must not count as domain errors")
	}
}
