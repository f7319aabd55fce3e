// Package invoice issues human-readable invoice numbers.
package invoice

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Number builds an invoice number like INV-20260824143005-9f2c41d8: the
// issue time down to the second plus a random suffix so two carts rung up
// in the same second still get distinct numbers.
func Number(at time.Time) string {
	stamp := at.UTC().Format("20060102150405")

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("INV-%s", stamp)
	}
	return fmt.Sprintf("INV-%s-%s", stamp, hex.EncodeToString(buf))
}
