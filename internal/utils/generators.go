package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"

	"github.com/google/uuid"
)

// TransactionCharset leaves out characters that are easy to misread on a
// bank-transfer memo (0/O, 1/I/L).
const TransactionCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const TransactionIDLength = 10

func GenerateID() string {
	return uuid.NewString()
}

// GenerateTransactionID returns prefix followed by TransactionIDLength
// characters drawn from TransactionCharset.
func GenerateTransactionID(prefix string) string {
	buf := make([]byte, TransactionIDLength)
	max := big.NewInt(int64(len(TransactionCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		buf[i] = TransactionCharset[n.Int64()]
	}
	return prefix + string(buf)
}

// GenerateSecret returns 32 random bytes, hex encoded.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
