package utils

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContextWithTimeout returns a context with a timeout
func ContextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// NewJobID returns a random job id such as "sync-1b4e28ba".
func NewJobID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
