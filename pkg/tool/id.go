package tool

import (
	"strings"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortRef returns a compact reference for human-facing labels such as
// coupon names.
func ShortRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
