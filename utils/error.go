package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Match with errors.Is; the originating cause stays reachable via errors.Unwrap.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrEmptyDocument           = errors.New("empty document")
	ErrExtractionFailure       = errors.New("extraction failure")
	ErrStorageFailure          = errors.New("storage failure")
	ErrConfiguration           = errors.New("configuration error")
	ErrOracleFailure           = errors.New("oracle failure")
	ErrMalformedOracleResponse = errors.New("malformed oracle response")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrNotFound                = errors.New("record not found")
	ErrInvalidIdentifier       = errors.New("invalid identifier")
	ErrConflict                = errors.New("conflict")
	ErrUnauthorized            = errors.New("unauthorized")
)

type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

// Wrap tags cause with kind. cause may be nil.
func Wrap(kind error, cause error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Errorf builds a causeless error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError carries the balance seen when a debit was rejected.
type InsufficientBalanceError struct {
	UserId     string
	CreditType string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s, requested %s", e.CreditType, e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }
