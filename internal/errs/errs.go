// Package errs defines the error taxonomy shared by all ledger components.
//
// Every error carries a Kind that tells the caller how to react: Validation
// means the input was malformed and can be corrected and retried; Policy
// means the request was well-formed but refused by a business rule;
// Authorization means the caller lacks the required relationship and must not
// retry; External means a collaborator (settlement asset, price oracle)
// failed and the whole operation was aborted with no partial effect.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller's retry/abort decision.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPolicy
	KindAuthorization
	KindExternal
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPolicy:
		return "policy"
	case KindAuthorization:
		return "authorization"
	case KindExternal:
		return "external"
	}
	return "unknown"
}

// Stable reason codes surfaced to callers. Risk denial codes match the
// assessment result's Reason field verbatim.
const (
	CodeScoreTooLow        = "score-too-low"
	CodeAmountExceedsTier  = "amount-exceeds-tier-limit"
	CodeInsufficientColl   = "insufficient-collateral"
	CodeExistingDebt       = "existing-debt-outstanding"
	CodeInvalidAmount      = "invalid-amount"
	CodeUnknownTemplate    = "unknown-template"
	CodeUnsupportedToken   = "unsupported-token"
	CodeUnknownEntity      = "unknown-entity"
	CodePositionExists     = "position-already-locked"
	CodePositionMismatch   = "position-mismatch"
	CodeLiquidationDelay   = "liquidation-delay-not-elapsed"
	CodeInsufficientFunds  = "insufficient-liquidity"
	CodeNothingAccrued     = "nothing-accrued"
	CodeWrongStatus        = "wrong-status"
	CodeMerchantInactive   = "merchant-inactive"
	CodeNotBorrower        = "not-borrower"
	CodeNotLedger          = "not-ledger"
	CodeNotAdmin           = "not-admin"
	CodePriceUnavailable   = "price-unavailable"
	CodeTransferFailed     = "transfer-failed"
	CodeStorageUnavailable = "storage-unavailable"
)

// Error is a kinded, coded error. Compare with errors.Is against the kind
// sentinels below, or against another *Error to match kind and code.
type Error struct {
	Kind Kind
	Code string
	msg  string
	err  error
}

// Sentinels for errors.Is kind matching.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrPolicy        = &Error{Kind: KindPolicy}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrExternal      = &Error{Kind: KindExternal}
)

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Code != "" {
		s += " [" + e.Code + "]"
	}
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	return s
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.err }

// Is matches another *Error when kinds are equal and the target's code is
// empty or equal. This makes the kind sentinels above match any coded error
// of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || t.Code == e.Code)
}

// Validation builds a validation error with the given code.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, msg: fmt.Sprintf(format, args...)}
}

// Policy builds a policy violation with the given reason code.
func Policy(code, format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Code: code, msg: fmt.Sprintf(format, args...)}
}

// Authorization builds an authorization error with the given code.
func Authorization(code, format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Code: code, msg: fmt.Sprintf(format, args...)}
}

// External wraps a collaborator failure.
func External(code string, err error) *Error {
	return &Error{Kind: KindExternal, Code: code, err: err}
}

// CodeOf returns the reason code carried by err, or "" if err is not a
// taxonomy error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
