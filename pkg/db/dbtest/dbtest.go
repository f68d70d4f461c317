// Package dbtest opens isolated in-memory SQLite databases carrying the
// stampbook schema for repository and service tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE COLLATE NOCASE,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL,
  role TEXT NOT NULL,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE pending_customers (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE COLLATE NOCASE,
  merged_into_user_id TEXT,
  merged_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE stamp_cards (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  total_stamps INTEGER NOT NULL,
  reward TEXT NOT NULL,
  reward_value NUMERIC,
  business_logo TEXT,
  business_color TEXT,
  is_active BOOLEAN NOT NULL DEFAULT 1,
  expiry_days INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE customer_stamp_cards (
  id TEXT PRIMARY KEY,
  card_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  customer_kind TEXT NOT NULL,
  current_stamps INTEGER NOT NULL DEFAULT 0 CHECK (current_stamps >= 0),
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (card_id, customer_id)
);`,
	`CREATE TABLE stamp_qr_codes (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  card_id TEXT NOT NULL,
  code TEXT NOT NULL UNIQUE,
  security_level TEXT NOT NULL,
  is_single_use BOOLEAN NOT NULL DEFAULT 0,
  is_used BOOLEAN NOT NULL DEFAULT 0,
  used_at DATETIME,
  expires_at DATETIME NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE stamp_transactions (
  id TEXT PRIMARY KEY,
  card_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  customer_kind TEXT NOT NULL,
  merchant_id TEXT NOT NULL,
  type TEXT NOT NULL,
  count INTEGER NOT NULL DEFAULT 0,
  reward_code TEXT,
  metadata TEXT,
  timestamp DATETIME NOT NULL
);`,
	`CREATE TABLE reward_grants (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  card_id TEXT NOT NULL,
  customer_stamp_card_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  customer_kind TEXT NOT NULL,
  merchant_id TEXT NOT NULL,
  state TEXT NOT NULL,
  earned_transaction_id TEXT NOT NULL,
  redeemed_transaction_id TEXT,
  earned_at DATETIME NOT NULL,
  redeemed_at DATETIME,
  expired_at DATETIME,
  claimed_at DATETIME,
  version INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a client over a private in-memory database with every table
// created. The database lives until the test ends.
func Open(t testing.TB) *db.Client {
	t.Helper()

	client, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := client.SQL()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// One connection keeps the memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if err := client.DB().Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
