package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const braceletAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateBraceletCode produces a short human-readable code for
// walk-up bracelets, e.g. "BR-7KQ2M9". Uniqueness is enforced by the
// tracker, not here.
func GenerateBraceletCode() string {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(braceletAlphabet))))
		if err != nil {
			return fmt.Sprintf("BR-%d", time.Now().UnixNano()%1000000)
		}
		code[i] = braceletAlphabet[n.Int64()]
	}
	return "BR-" + string(code)
}

// GenerateEntryID creates a timestamped identifier for maintenance
// log entries.
func GenerateEntryID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("mnt_%d_%06d", timestamp, randomNum.Int64())
}
