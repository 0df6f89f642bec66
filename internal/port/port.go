package port

import (
	"strconv"
	"strings"

	"github.com/thatjpcsguy/cappit/internal/errors"
)

// Range is a half-open port range [From, To)
type Range struct {
	From int
	To   int
}

// DefaultRange is the port range challenges are published on
var DefaultRange = Range{From: 31000, To: 32000}

// Contains reports whether p lies in the range
func (r Range) Contains(p int) bool {
	return p >= r.From && p < r.To
}

// Size returns the number of ports in the range
func (r Range) Size() int {
	if r.To <= r.From {
		return 0
	}
	return r.To - r.From
}

// Allocate returns the lowest port in r that is not in used
func Allocate(r Range, used map[int]struct{}) (int, error) {
	for p := r.From; p < r.To; p++ {
		if _, taken := used[p]; !taken {
			return p, nil
		}
	}

	return 0, errors.RangeExhausted(r.From, r.To)
}

// ValidateManual parses an operator-supplied port and checks it lies in r
func ValidateManual(r Range, input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if !isDecimal(trimmed) {
		return 0, errors.InvalidPort(input, r.From, r.To)
	}

	p, err := strconv.Atoi(trimmed)
	if err != nil || !r.Contains(p) {
		return 0, errors.InvalidPort(input, r.From, r.To)
	}

	return p, nil
}

// isDecimal accepts plain digits without sign or leading zero
func isDecimal(s string) bool {
	if s == "" || s[0] == '0' {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
