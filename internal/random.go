package internal

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxCodeDigits bounds NewNumericCode so the code space fits a uint64.
const MaxCodeDigits = 10

var errCodeDigits = errors.New("invalid code digits")

// NewNumericCode draws a uniformly distributed code in [0, 10^digits) from r
// and renders it zero padded to exactly digits characters. A nil reader uses
// crypto/rand.
func NewNumericCode(r io.Reader, digits int) (string, error) {
	if digits < 4 || digits > MaxCodeDigits {
		return "", errCodeDigits
	}
	if r == nil {
		r = rand.Reader
	}

	space := uint64(1)
	for i := 0; i < digits; i++ {
		space *= 10
	}
	// Rejection sampling keeps the draw unbiased.
	limit := math.MaxUint64 - math.MaxUint64%space

	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", err
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v >= limit {
			continue
		}
		code := fmt.Sprintf("%0*d", digits, v%space)
		if len(code) != digits {
			return "", fmt.Errorf("invalid code generation length")
		}
		return code, nil
	}
}
