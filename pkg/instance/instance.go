package instance

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/env"
)

// workerIDKeys are checked in order. DYNO is set by the container platform.
var workerIDKeys = []string{"STAMPBOOK_WORKER_ID", "DYNO"}

// GetID identifies this process for lock ownership. An explicit worker id
// wins, then the hostname plus pid, then a random id.
func GetID() string {
	if id, ok := env.First(workerIDKeys...); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return "proc-" + uuid.NewString()
}
