package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/types"
)

// Sentinel errors. Backends return these so callers can use errors.Is
// regardless of the store in use.
var (
	// General errors
	ErrNotFound      = errors.New("tally: not found")
	ErrAlreadyExists = errors.New("tally: already exists")
	ErrInvalidInput  = errors.New("tally: invalid input")
	ErrUnauthorized  = errors.New("tally: unauthorized")
	ErrForbidden     = errors.New("tally: forbidden")

	// Invoice errors
	ErrInvoiceNotFound    = errors.New("tally: invoice not found")
	ErrInvoicePaid        = errors.New("tally: invoice is paid and can no longer change")
	ErrInvoiceHasPayments = errors.New("tally: invoice has payments recorded")
	ErrInvoiceNumberTaken = errors.New("tally: invoice number already in use")

	// Payment errors
	ErrPaymentNotFound = errors.New("tally: payment not found")
	ErrOverpayment     = errors.New("tally: payment exceeds the amount due")
	ErrPaymentChanged  = errors.New("tally: payment was changed by another request")

	// Score errors
	ErrDailyScoreLimit = errors.New("tally: daily score limit reached")

	// Reward errors
	ErrRewardNotFound      = errors.New("tally: reward not found")
	ErrRewardUnavailable   = errors.New("tally: reward is not available")
	ErrRewardExhausted     = errors.New("tally: reward is out of stock")
	ErrRewardInUse         = errors.New("tally: reward has open redemptions")
	ErrRedemptionNotFound  = errors.New("tally: redemption not found")
	ErrDuplicateRedemption = errors.New("tally: redemption already requested for this reward")
	ErrInsufficientBalance = errors.New("tally: insufficient points")
	ErrInvalidTransition   = errors.New("tally: invalid redemption status transition")

	// Directory errors
	ErrMemberNotFound       = errors.New("tally: member not found")
	ErrNotificationNotFound = errors.New("tally: notification not found")
)

// ValidationError reports a bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OverpaymentError is returned when a payment would take the amount paid
// above the invoice total.
type OverpaymentError struct {
	Total       types.Money
	AlreadyPaid types.Money
	Remaining   types.Money
	Attempted   types.Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("tally: payment of %s exceeds the amount due (total %s, paid %s, remaining %s)",
		e.Attempted, e.Total, e.AlreadyPaid, e.Remaining)
}

// Unwrap makes OverpaymentError match ErrOverpayment.
func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// Budgets checked by Redeem.
const (
	BudgetLifetime = "lifetime"
	BudgetMonthly  = "monthly"
)

// InsufficientBalanceError names the budget that fell short.
type InsufficientBalanceError struct {
	Budget string
	Have   int64
	Need   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("tally: insufficient %s points: have %d, need %d", e.Budget, e.Have, e.Need)
}

// Unwrap makes InsufficientBalanceError match ErrInsufficientBalance.
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// TransitionError reports a redemption status change the state machine
// does not allow.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("tally: cannot move redemption from %s to %s", e.From, e.To)
}

// Unwrap makes TransitionError match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// MultiError collects independent failures, e.g. from a sweep.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tally: no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("tally: %d errors occurred, first: %v", len(e.Errors), e.Errors[0])
	}
}

// Add appends err if it is non-nil.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// ErrOrNil returns nil when nothing was collected.
func (e *MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return *e
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound reports whether err is any not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrRedemptionNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrNotificationNotFound)
}

// IsValidation reports whether err is an input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsRuleViolation reports whether err is a business rule refusing an
// otherwise well-formed request.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrInvoicePaid) ||
		errors.Is(err, ErrInvoiceHasPayments) ||
		errors.Is(err, ErrInvoiceNumberTaken) ||
		errors.Is(err, ErrDailyScoreLimit) ||
		errors.Is(err, ErrRewardUnavailable) ||
		errors.Is(err, ErrRewardExhausted) ||
		errors.Is(err, ErrRewardInUse) ||
		errors.Is(err, ErrDuplicateRedemption) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPaymentChanged) ||
		errors.Is(err, ErrAlreadyExists)
}
