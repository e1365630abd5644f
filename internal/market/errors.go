package market

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how a caller should react to it.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindArithmetic
	KindAuthorization
	KindOracle
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	case KindAuthorization:
		return "authorization"
	case KindOracle:
		return "oracle"
	default:
		return "unknown"
	}
}

// Error is a typed engine failure. Every value is a package-level sentinel so
// callers compare with errors.Is after any amount of fmt.Errorf wrapping.
type Error struct {
	Code uint32
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Msg, e.Code)
}

// Recoverable is true when resubmitting with corrected input or fresher
// oracle data can succeed.
func (e *Error) Recoverable() bool {
	return e.Kind == KindValidation || e.Kind == KindOracle
}

func newError(code uint32, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Validation
var (
	ErrInvalidAmount         = newError(6000, KindValidation, "invalid amount")
	ErrBetTooSmall           = newError(6001, KindValidation, "bet amount below minimum allowed")
	ErrBetTooLarge           = newError(6002, KindValidation, "bet amount exceeds maximum allowed")
	ErrInvalidTargetPrice    = newError(6003, KindValidation, "invalid target price, must be positive")
	ErrInvalidSettleTime     = newError(6004, KindValidation, "invalid settlement time")
	ErrSettlementTimeTooSoon = newError(6005, KindValidation, "settlement time is too soon")
	ErrSettlementTimeTooFar  = newError(6006, KindValidation, "settlement time is too far in the future")
	ErrInvalidOutcome        = newError(6007, KindValidation, "invalid outcome specified")
	ErrInvalidParameter      = newError(6008, KindValidation, "invalid parameter value")
	ErrInvalidMarket         = newError(6009, KindValidation, "invalid market reference")
)

// State conflict
var (
	ErrMarketAlreadyResolved    = newError(6020, KindState, "market has already been resolved")
	ErrMarketNotResolved        = newError(6021, KindState, "market is not yet resolved")
	ErrSettlementTimeNotReached = newError(6022, KindState, "settlement time not reached")
	ErrMarketClosed             = newError(6023, KindState, "market is closed for betting")
	ErrMarketPaused             = newError(6024, KindState, "market is paused")
	ErrMarketNotActive          = newError(6025, KindState, "market is not active")
	ErrInvalidMarketStatus      = newError(6026, KindState, "invalid market status")
	ErrNoPosition               = newError(6027, KindState, "no position to claim")
	ErrAlreadyClaimed           = newError(6028, KindState, "already claimed")
	ErrMaxExposureExceeded      = newError(6029, KindState, "maximum exposure exceeded")
	ErrInsufficientBalance      = newError(6030, KindState, "insufficient balance for operation")
	ErrMarketExists             = newError(6031, KindState, "market already exists")
	ErrMarketNotFound           = newError(6032, KindState, "market not found")
	ErrMakerExists              = newError(6033, KindState, "market maker already initialized")
	ErrMakerNotFound            = newError(6034, KindState, "market maker not initialized")
)

// Arithmetic
var (
	ErrMathOverflow = newError(6040, KindArithmetic, "math overflow")
	ErrInvalidPool  = newError(6041, KindArithmetic, "invalid pool state")
)

// Authorization
var (
	ErrUnauthorized         = newError(6050, KindAuthorization, "unauthorized")
	ErrUnauthorizedResolver = newError(6051, KindAuthorization, "not authorized to resolve")
)

// Oracle
var (
	ErrPriceConfidenceTooHigh = newError(6060, KindOracle, "price confidence too high")
	ErrPriceTooStale          = newError(6061, KindOracle, "price data too stale")
	ErrPriceUnavailable       = newError(6062, KindOracle, "price data is unavailable")
	ErrInvalidOraclePrice     = newError(6063, KindOracle, "oracle price is negative or invalid")
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRecoverable reports whether err (or anything it wraps) is a validation or
// oracle failure.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable()
	}
	return false
}
