// Package types holds the value types shared by every Tally package.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultCurrency is used when an invoice does not name one.
const DefaultCurrency = "eur"

// Money is an amount in the currency's minor unit (cents for EUR).
// Arithmetic is integer only.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217, lowercase
}

// New returns amount minor units of currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: normalizeCurrency(currency)}
}

// EUR returns cents euro.
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// Zero returns a zero amount in currency.
func Zero(currency string) Money { return New(0, currency) }

// Add returns m + other. Mixing currencies is a programming error and panics.
func (m Money) Add(other Money) Money {
	m.mustMatch(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Sub returns m - other. Mixing currencies panics.
func (m Money) Sub(other Money) Money {
	m.mustMatch(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Times multiplies m by a quantity. It wraps on overflow; use CheckedTimes
// on untrusted input.
func (m Money) Times(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// Percent returns rate percent of m, rounded half away from zero.
func (m Money) Percent(rate int64) Money {
	p := m.Amount * rate
	half := int64(50)
	if p < 0 {
		half = -half
	}
	return Money{Amount: (p + half) / 100, Currency: m.Currency}
}

// CheckedAdd is Add that reports false instead of wrapping past int64.
func (m Money) CheckedAdd(other Money) (Money, bool) {
	m.mustMatch(other)
	a, b := m.Amount, other.Amount
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return Money{}, false
	}
	return Money{Amount: a + b, Currency: m.Currency}, true
}

// CheckedTimes is Times that reports false on overflow.
func (m Money) CheckedTimes(qty int64) (Money, bool) {
	p, ok := mul64(m.Amount, qty)
	if !ok {
		return Money{}, false
	}
	return Money{Amount: p, Currency: m.Currency}, true
}

// CheckedPercent is Percent that reports false on overflow.
func (m Money) CheckedPercent(rate int64) (Money, bool) {
	p, ok := mul64(m.Amount, rate)
	if !ok || p > math.MaxInt64-50 || p < math.MinInt64+50 {
		return Money{}, false
	}
	return m.Percent(rate), true
}

func mul64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

// Neg returns -m.
func (m Money) Neg() Money { return Money{Amount: -m.Amount, Currency: m.Currency} }

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Cmp returns -1, 0 or +1. Mixing currencies panics.
func (m Money) Cmp(other Money) int {
	m.mustMatch(other)
	switch {
	case m.Amount < other.Amount:
		return -1
	case m.Amount > other.Amount:
		return 1
	default:
		return 0
	}
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool { return m.Cmp(other) < 0 }

// GreaterThan reports m > other.
func (m Money) GreaterThan(other Money) bool { return m.Cmp(other) > 0 }

// Min returns the smaller of m and other.
func (m Money) Min(other Money) Money {
	if m.Cmp(other) <= 0 {
		return m
	}
	return other
}

// FormatMajor renders the amount in major units without a symbol: "1234.50".
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return strconv.FormatInt(m.Amount, 10)
	}

	abs := m.Amount
	sign := ""
	if abs < 0 {
		abs, sign = -abs, "-"
	}
	div := pow10(decimals)
	return fmt.Sprintf("%s%d.%0*d", sign, abs/div, decimals, abs%div)
}

// String renders the amount with its currency symbol: "€1234.50".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// ParseMajor converts a major-unit string ("60", "60.5", "60,50") into Money.
// More decimals than the currency allows is an error.
func ParseMajor(s, currency string) (Money, error) {
	currency = normalizeCurrency(currency)
	raw := strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if raw == "" {
		return Money{}, fmt.Errorf("money: parse %q: empty amount", s)
	}

	neg := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")

	whole, frac, _ := strings.Cut(raw, ".")
	decimals := currencyDecimals(currency)
	if len(frac) > decimals {
		return Money{}, fmt.Errorf("money: parse %q: too many decimals for %s", s, currency)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	var minor int64
	if frac != "" {
		if minor, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
		}
	}

	amount := major*pow10(decimals) + minor
	if neg {
		amount = -amount
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MarshalJSON adds a display string next to amount and currency.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{m.Amount, m.Currency, m.String()})
}

// UnmarshalJSON accepts either the object form or a bare integer amount in
// minor units. A bare amount leaves Currency empty for the caller to fill.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var amount int64
		if err := json.Unmarshal(data, &amount); err != nil {
			return fmt.Errorf("money: %w", err)
		}
		*m = Money{Amount: amount}
		return nil
	}

	var obj struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Money{Amount: obj.Amount, Currency: normalizeCurrency(obj.Currency)}
	return nil
}

// Sum adds values in currency. An empty list yields zero.
func Sum(currency string, values ...Money) Money {
	total := Zero(currency)
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func (m Money) mustMatch(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

func currencySymbol(currency string) string {
	switch currency {
	case "eur":
		return "€"
	case "usd":
		return "$"
	case "gbp":
		return "£"
	case "chf":
		return "CHF "
	default:
		return strings.ToUpper(currency) + " "
	}
}

// currencyDecimals is 0 for the zero-decimal currencies Tally is likely to
// see and 2 otherwise.
func currencyDecimals(currency string) int {
	switch currency {
	case "jpy", "krw":
		return 0
	default:
		return 2
	}
}

func pow10(n int) int64 {
	p := int64(1)
	for range n {
		p *= 10
	}
	return p
}
