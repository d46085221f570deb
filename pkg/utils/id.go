package utils

import (
	"fmt"

	"github.com/google/uuid"
)

func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// TempMessageID generates a client-side id for an optimistic message.
func TempMessageID() string {
	return GenerateID("temp")
}

// IsTempID reports whether id was generated client-side.
func IsTempID(id string) bool {
	return len(id) > 5 && id[:5] == "temp-"
}
