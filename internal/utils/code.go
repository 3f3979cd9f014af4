package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// codeAlphabet matches what humans can read back over a table: uppercase
// letters and digits.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewJoinCode returns a random join code of the given length.
func NewJoinCode(length int) string {
	max := big.NewInt(int64(len(codeAlphabet)))

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// Fallback to timestamp digits if crypto/rand is unavailable.
			return fallbackCode(length)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String()
}

func fallbackCode(length int) string {
	ts := strconv.FormatInt(time.Now().UnixNano(), 36)
	ts = strings.ToUpper(ts)
	for len(ts) < length {
		ts += "0"
	}
	return ts[len(ts)-length:]
}
