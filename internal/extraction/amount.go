package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidAmount = errors.New("invalid amount")

// maxUnits keeps units*100 plus rounded cents within int64.
const maxUnits = (math.MaxInt64 - 100) / 100

// Amount is a fixed-point monetary value in hundredths of the currency unit.
type Amount int64

// String renders the amount with exactly two decimals and no grouping.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float returns the amount in currency units.
func (a Amount) Float() float64 {
	return float64(a) / 100
}

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
		}
		v, err := AmountFromFloat(f)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AmountFromFloat rounds a provider float half-up to two decimals. The float is
// formatted with its shortest decimal representation first so 2.675 rounds to
// 2.68 instead of the binary neighbour below it.
func AmountFromFloat(f float64) (Amount, error) {
	s := strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")
	return compose(whole, frac, f < 0, s)
}

// ParseAmount reads a human or provider formatted amount such as "12 500,00 Ft",
// "$1,234.565" or "12.500" and rounds it half-up to two decimals.
//
// When only one separator kind is present it is a thousands separator if it
// repeats, or if it follows a non-zero integer part and precedes exactly three
// digits; otherwise it is the decimal point.
// When both are present the rightmost one is the decimal point.
func ParseAmount(raw string) (Amount, error) {
	negative := false
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			if b.Len() == 0 {
				negative = true
			}
		case r == '(' && b.Len() == 0:
			negative = true
		case unicode.IsSpace(r), r == '\'', r == '\u00a0', r == '\u202f':
		case unicode.IsLetter(r), unicode.IsSymbol(r), r == ')':
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}

	digits := b.String()
	if digits == "" || strings.Trim(digits, ".,") == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	whole, frac := splitDecimal(digits)
	whole = strings.NewReplacer(".", "", ",", "").Replace(whole)
	return compose(whole, frac, negative, raw)
}

func compose(whole, frac string, negative bool, raw string) (Amount, error) {
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if units > maxUnits {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, raw)
	}

	cents := int64(0)
	for i := 0; i < 2; i++ {
		cents *= 10
		if i < len(frac) {
			cents += int64(frac[i] - '0')
		}
	}
	if len(frac) > 2 && frac[2] >= '5' {
		cents++
	}

	v := units*100 + cents
	if negative {
		v = -v
	}
	return Amount(v), nil
}

func splitDecimal(s string) (string, string) {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	sep := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep = max(lastDot, lastComma)
	case lastDot >= 0 || lastComma >= 0:
		sep = max(lastDot, lastComma)
		mark := s[sep]
		trailing := len(s) - sep - 1
		lead := strings.TrimLeft(s[:sep], "0")
		if strings.Count(s, string(mark)) > 1 || (trailing == 3 && lead != "") {
			sep = -1
		}
	}

	if sep < 0 {
		return s, ""
	}
	return s[:sep], s[sep+1:]
}
