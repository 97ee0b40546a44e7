package paper

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrorCode identifies why an order was rejected.
type ErrorCode string

const (
	UnsupportedPair     ErrorCode = "UnsupportedPair"
	InvalidQuantity     ErrorCode = "InvalidQuantity"
	InvalidPrice        ErrorCode = "InvalidPrice"
	BelowMinimumOrder   ErrorCode = "BelowMinimumOrder"
	InsufficientBalance ErrorCode = "InsufficientBalance"
	InvalidSide         ErrorCode = "InvalidSide"
)

// SupportedPairs are the symbols paper trading accepts.
var SupportedPairs = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "DOTUSDT", "MATICUSDT", "AVAXUSDT",
}

// OrderRequest is a proposed order as it arrives from a caller.
type OrderRequest struct {
	Side             Side    `json:"side"`
	Pair             string  `json:"pair"`
	Quantity         float64 `json:"quantity"`
	Price            float64 `json:"price"`
	AvailableBalance float64 `json:"available_balance"`
}

// Result is the outcome of validation. Error is empty when Valid.
type Result struct {
	Valid bool      `json:"valid"`
	Code  ErrorCode `json:"code,omitempty"`
	Error string    `json:"error,omitempty"`
}

func reject(code ErrorCode, format string, args ...interface{}) Result {
	return Result{Code: code, Error: fmt.Sprintf(format, args...)}
}

// Validator checks orders against static business rules.
type Validator struct {
	pairs    map[string]struct{}
	minOrder decimal.Decimal
}

// NewValidator builds a validator for the given pairs. An empty list means SupportedPairs.
func NewValidator(pairs []string) *Validator {
	if len(pairs) == 0 {
		pairs = SupportedPairs
	}
	set := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		set[strings.ToUpper(p)] = struct{}{}
	}
	return &Validator{pairs: set, minOrder: MinOrderValue}
}

var defaultValidator = NewValidator(nil)

// Validate checks req with the default supported pairs.
func Validate(req OrderRequest) Result {
	return defaultValidator.Validate(req)
}

// Supports reports whether pair can be traded.
func (v *Validator) Supports(pair string) bool {
	_, ok := v.pairs[strings.ToUpper(pair)]
	return ok
}

// Validate runs the checks in order and stops at the first failure.
func (v *Validator) Validate(req OrderRequest) Result {
	if !v.Supports(req.Pair) {
		return reject(UnsupportedPair, "trading pair %s is not supported", req.Pair)
	}
	if !finitePositive(req.Quantity) {
		return reject(InvalidQuantity, "quantity must be a positive number")
	}
	if !finitePositive(req.Price) {
		return reject(InvalidPrice, "price must be a positive number")
	}

	total := decimal.NewFromFloat(req.Quantity).Mul(decimal.NewFromFloat(req.Price))
	if total.LessThan(v.minOrder) {
		return reject(BelowMinimumOrder, "minimum order value is %s", v.minOrder)
	}

	switch req.Side {
	case SideBuy:
		if math.IsNaN(req.AvailableBalance) || math.IsInf(req.AvailableBalance, 0) {
			return reject(InsufficientBalance, "available balance is not a number")
		}
		required := total.Add(Fee(total))
		if required.GreaterThan(decimal.NewFromFloat(req.AvailableBalance)) {
			return reject(InsufficientBalance, "insufficient balance: need %s, have %.2f",
				required.StringFixed(moneyPlaces), req.AvailableBalance)
		}
	case SideSell:
		// Per-asset holdings are not tracked, so a sell can only be sanity checked.
		if !total.IsPositive() {
			return reject(InvalidQuantity, "order total must be positive")
		}
	default:
		return reject(InvalidSide, "unknown order side %q", req.Side)
	}

	return Result{Valid: true}
}

func finitePositive(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}
