package offline

import (
	"fmt"
	"strings"

	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
)

// LocalDSN turns a file path into a SQLite DSN suited to several processes
// sharing the queue file.
func LocalDSN(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// OpenStore opens the local queue database and creates its tables.
func OpenStore(dsn string) (*db.Client, error) {
	client, err := db.OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := client.DB().AutoMigrate(&models.OfflineOperation{}, &models.QueueLease{}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrating offline store: %w", err)
	}
	return client, nil
}
