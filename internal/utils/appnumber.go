// internal/utils/appnumber.go
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateApplicationNumber builds a human-readable loan application number:
// "LA" + yymmdd + 5 random digits. The suffix is random, so collisions are
// possible; callers must pair this with a uniqueness constraint and retry.
func GenerateApplicationNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LA%s%05d", now.Format("060102"), n.Int64()), nil
}
