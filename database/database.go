package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// connectionParams are appended to every DSN. _txlock=immediate makes every
// transaction take the write lock up front, which serializes checkouts.
const connectionParams = "_busy_timeout=30000&_foreign_keys=1&_txlock=immediate"

// Initialize opens the SQLite database and applies connection settings
func Initialize(databaseURL string, log *zap.Logger) (*sqlx.DB, error) {
	inMemory := strings.HasPrefix(databaseURL, ":memory:") || strings.Contains(databaseURL, "mode=memory")

	dsn := databaseURL
	if !strings.Contains(dsn, "_txlock") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + connectionParams
		if !inMemory {
			dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
		}
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA temp_store = memory", "PRAGMA cache_size = 1000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Warn("failed to set pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	log.Info("database connection established", zap.Bool("in_memory", inMemory))
	return db, nil
}

// Migrate runs all pending schema migrations
func Migrate(db *sqlx.DB, log *zap.Logger) error {
	return NewMigrationManager(db, log).RunMigrations()
}

// migration is a named, ordered set of statements applied in one transaction
type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{"001_create_identity_tables", []string{createUsersTable, createVendorProfilesTable}},
	{"002_create_catalog_tables", []string{createServiceListingsTable}},
	{"003_create_commerce_tables", []string{
		createCartsTable,
		createCartItemsTable,
		createBookingsTable,
		createBookingItemsTable,
		createTransactionsTable,
		createFavoritesTable,
	}},
	{"004_create_messaging_tables", []string{createConversationsTable, createMessagesTable}},
	{"005_create_indexes", createIndexes},
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sqlx.DB, log *zap.Logger) *MigrationManager {
	return &MigrationManager{db: db, log: log.Named("migrations")}
}

// RunMigrations executes all pending migrations
func (m *MigrationManager) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, mig := range migrations {
		if err := m.runMigration(mig); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", mig.name, err)
		}
	}

	m.log.Info("all migrations completed")
	return nil
}

func (m *MigrationManager) createMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			migration VARCHAR(255) NOT NULL UNIQUE,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// runMigration applies a migration if it hasn't been run before
func (m *MigrationManager) runMigration(mig migration) error {
	var count int
	if err := m.db.Get(&count, "SELECT COUNT(*) FROM migrations WHERE migration = ?", mig.name); err != nil {
		return err
	}
	if count > 0 {
		m.log.Debug("migration already executed, skipping", zap.String("migration", mig.name))
		return nil
	}

	tx, err := m.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range mig.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("INSERT INTO migrations (migration) VALUES (?)", mig.name); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	m.log.Info("migration applied", zap.String("migration", mig.name))
	return nil
}

// MigrationStatus is one applied migration
type MigrationStatus struct {
	Migration  string    `db:"migration" json:"migration"`
	ExecutedAt time.Time `db:"executed_at" json:"executedAt"`
}

// GetMigrationStatus returns the applied migrations in order
func (m *MigrationManager) GetMigrationStatus() ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := m.db.Select(&out, "SELECT migration, executed_at FROM migrations ORDER BY id ASC")
	return out, err
}

// SQL migration statements. Money is stored as TEXT decimal strings.
const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    phone TEXT,
    phone_country TEXT,
    avatar TEXT,
    role TEXT NOT NULL DEFAULT 'CLIENT' CHECK (role IN ('CLIENT', 'VENDOR')),
    preferred_location TEXT,
    preferred_categories TEXT NOT NULL DEFAULT '[]',
    budget_min TEXT,
    budget_max TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createVendorProfilesTable = `
CREATE TABLE IF NOT EXISTS vendor_profiles (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    business_name TEXT NOT NULL,
    description TEXT,
    location TEXT,
    phone TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createServiceListingsTable = `
CREATE TABLE IF NOT EXISTS service_listings (
    id TEXT PRIMARY KEY,
    vendor_id TEXT NOT NULL REFERENCES vendor_profiles(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    price TEXT NOT NULL,
    price_min TEXT,
    price_max TEXT,
    location TEXT NOT NULL DEFAULT '',
    min_capacity INTEGER,
    max_capacity INTEGER,
    images TEXT NOT NULL DEFAULT '[]',
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createCartsTable = `
CREATE TABLE IF NOT EXISTS carts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

// cart_items.service_id has no foreign key: a deleted listing leaves a dangling line
const createCartItemsTable = `
CREATE TABLE IF NOT EXISTS cart_items (
    id TEXT PRIMARY KEY,
    cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
    service_id TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    selected_date DATETIME,
    unit_price TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE (cart_id, service_id)
)`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL,
    event_date DATETIME,
    event_location TEXT,
    guest_count INTEGER,
    notes TEXT,
    contact_name TEXT NOT NULL DEFAULT '',
    contact_email TEXT NOT NULL DEFAULT '',
    contact_phone TEXT,
    subtotal TEXT NOT NULL,
    platform_fee TEXT NOT NULL,
    total TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING', 'CONFIRMED', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createBookingItemsTable = `
CREATE TABLE IF NOT EXISTS booking_items (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
    service_id TEXT,
    service_name TEXT NOT NULL,
    vendor_id TEXT NOT NULL,
    vendor_name TEXT NOT NULL,
    category TEXT NOT NULL,
    unit_price TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    line_total TEXT NOT NULL,
    selected_date DATETIME,
    status TEXT NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING', 'CONFIRMED', 'COMPLETED', 'CANCELLED')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL UNIQUE REFERENCES bookings(id) ON DELETE CASCADE,
    amount TEXT NOT NULL,
    platform_fee TEXT NOT NULL,
    vendor_payout TEXT NOT NULL,
    payment_status TEXT NOT NULL DEFAULT 'PENDING'
        CHECK (payment_status IN ('PENDING', 'PAID', 'FAILED', 'REFUNDED')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createFavoritesTable = `
CREATE TABLE IF NOT EXISTS favorites (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    service_id TEXT NOT NULL REFERENCES service_listings(id) ON DELETE CASCADE,
    created_at DATETIME NOT NULL,
    UNIQUE (user_id, service_id)
)`

const createConversationsTable = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user1_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    user2_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    service_id TEXT REFERENCES service_listings(id) ON DELETE SET NULL,
    last_message TEXT,
    last_message_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    CHECK (user1_id <> user2_id)
)`

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT 0,
    read_at DATETIME,
    created_at DATETIME NOT NULL
)`

var createIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)",
	"CREATE INDEX IF NOT EXISTS idx_service_listings_vendor ON service_listings(vendor_id)",
	"CREATE INDEX IF NOT EXISTS idx_service_listings_category ON service_listings(category, is_active)",
	"CREATE INDEX IF NOT EXISTS idx_cart_items_cart ON cart_items(cart_id)",
	"CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_booking_items_booking ON booking_items(booking_id)",
	"CREATE INDEX IF NOT EXISTS idx_booking_items_vendor ON booking_items(vendor_id)",
	"CREATE INDEX IF NOT EXISTS idx_booking_items_service ON booking_items(service_id)",
	"CREATE INDEX IF NOT EXISTS idx_favorites_user ON favorites(user_id, created_at)",
	// one conversation per unordered pair
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair ON conversations(min(user1_id, user2_id), max(user1_id, user2_id))",
	"CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)",
}
