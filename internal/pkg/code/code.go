package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewNumeric generates a random numeric code of exactly length digits whose first digit
// is never zero, so the code reads the same whether it is treated as text or a number.
func NewNumeric(length int) (string, error) {
	if length < 1 || length > 18 {
		return "", fmt.Errorf("code length %d out of range", length)
	}
	lo := pow10(length - 1)
	n, err := rand.Int(rand.Reader, big.NewInt(pow10(length)-lo))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+lo), nil
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
