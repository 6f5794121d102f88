package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Domain validation failures. All of these are user-correctable: the
// transaction boundary rolls back and surfaces Error() to the caller as-is.
// Messages stay in Portuguese because they reach end users unchanged.

type ItemNotFoundError struct {
	ItemID int
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("Item ID %d não encontrado.", e.ItemID)
}

type ItemNotInRegistrationError struct {
	ItemDescription string
}

func (e *ItemNotInRegistrationError) Error() string {
	return fmt.Sprintf("Item '%s' não pertence à Ata selecionada.", e.ItemDescription)
}

type MissingHealthUnitError struct{}

func (e *MissingHealthUnitError) Error() string {
	return "Uma Unidade de Saúde é obrigatória para consumir um item."
}

type NoQuotaDefinedError struct {
	UnitName        string
	ItemDescription string
}

func (e *NoQuotaDefinedError) Error() string {
	return fmt.Sprintf("A unidade '%s' não tem cota definida para o item '%s'.", e.UnitName, e.ItemDescription)
}

type InsufficientBalanceError struct {
	ItemDescription string
	Available       decimal.Decimal
	Requested       decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Saldo GLOBAL insuficiente para '%s'. Disponível: %s, Solicitado: %s.",
		e.ItemDescription, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

type InsufficientQuotaError struct {
	ItemDescription string
	QuotaBalance    decimal.Decimal
	Requested       decimal.Decimal
}

func (e *InsufficientQuotaError) Error() string {
	return fmt.Sprintf("Saldo da COTA da unidade insuficiente para '%s'. Saldo da Cota: %s, Solicitado: %s.",
		e.ItemDescription, e.QuotaBalance.StringFixed(2), e.Requested.StringFixed(2))
}

type QuantityBelowConsumedError struct {
	NewQuantity decimal.Decimal
	Consumed    decimal.Decimal
}

func (e *QuantityBelowConsumedError) Error() string {
	return "A nova quantidade registrada é menor que a quantidade já consumida. Ajuste os consumos ou aumente a quantidade."
}

type QuotaExceedsRegisteredError struct {
	QuotaSum   decimal.Decimal
	Registered decimal.Decimal
}

func (e *QuotaExceedsRegisteredError) Error() string {
	return fmt.Sprintf("A soma das cotas (%s) não pode ultrapassar a quantidade total registrada do item (%s).",
		e.QuotaSum.StringFixed(2), e.Registered.StringFixed(2))
}

type DuplicateDocumentNumberError struct {
	Message string
}

func (e *DuplicateDocumentNumberError) Error() string {
	return e.Message
}

type LinkedDocumentsExistError struct {
	Message string
}

func (e *LinkedDocumentsExistError) Error() string {
	return e.Message
}

// IsDomainError reports whether err is one of the validation failures above,
// as opposed to an infrastructure error that should be logged and surfaced
// generically.
func IsDomainError(err error) bool {
	switch err.(type) {
	case *ItemNotFoundError, *ItemNotInRegistrationError, *MissingHealthUnitError,
		*NoQuotaDefinedError, *InsufficientBalanceError, *InsufficientQuotaError,
		*QuantityBelowConsumedError, *QuotaExceedsRegisteredError,
		*DuplicateDocumentNumberError, *LinkedDocumentsExistError:
		return true
	}
	return false
}
