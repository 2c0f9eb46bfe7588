package credentials

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUserID       = "user_id"
	keyRole         = "role"

	metaSealerSalt = "sealer_salt"
)

var credentialKeys = []string{keyAccessToken, keyRefreshToken, keyUserID, keyRole}

type schemaMigration struct {
	version    string
	statements []string
}

var schemaMigrations = []schemaMigration{
	{
		version: "001",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS credentials (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS store_metadata (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
}

// SQLiteOptions configures an SQLiteStore.
type SQLiteOptions struct {
	// Passphrase enables sealing of token values at rest when non-empty.
	Passphrase string
	KeyParams  KeyParams
	Logger     *slog.Logger
	Now        func() time.Time
}

// SQLiteStore persists credentials in a local SQLite database so a session
// survives process restarts. The in-memory snapshot is authoritative for
// reads; every write is flushed in one transaction and a failed flush is
// logged without failing the caller.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	sealer  *Sealer
	logger  *slog.Logger
	now     func() time.Time
	current Credentials
}

// OpenSQLite opens (creating when needed) the database at dsn, applies the
// schema, and loads the persisted snapshot.
func OpenSQLite(ctx context.Context, dsn string, opts SQLiteOptions) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to credential database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: opts.Logger, now: opts.Now}
	if store.logger == nil {
		store.logger = slog.Default()
	}
	if store.now == nil {
		store.now = time.Now
	}

	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.Passphrase != "" {
		params := opts.KeyParams
		if params == (KeyParams{}) {
			params = DefaultKeyParams
		}
		if store.sealer, err = store.loadSealer(ctx, opts.Passphrase, params); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if store.current, err = store.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the current snapshot.
func (s *SQLiteStore) Get() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set applies update to the snapshot and persists the result.
func (s *SQLiteStore) Set(update Update) {
	s.SetIf(matchAny, update)
}

// Clear removes every credential entry.
func (s *SQLiteStore) Clear() {
	s.ClearIf(matchAny)
}

// SetIf applies update when match accepts the current snapshot.
func (s *SQLiteStore) SetIf(match func(Credentials) bool, update Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !match(s.current) {
		return false
	}

	next := update.Apply(s.current)
	s.current = next
	if err := s.persistLocked(context.Background(), next); err != nil {
		s.logger.Error("failed to persist credentials", "store", "sqlite", "error", err)
	}
	return true
}

// ClearIf removes every entry when match accepts the current snapshot.
func (s *SQLiteStore) ClearIf(match func(Credentials) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !match(s.current) {
		return false
	}

	s.current = Credentials{}
	if err := s.persistLocked(context.Background(), Credentials{}); err != nil {
		s.logger.Error("failed to clear persisted credentials", "store", "sqlite", "error", err)
	}
	return true
}

func matchAny(Credentials) bool { return true }

func (s *SQLiteStore) persistLocked(ctx context.Context, creds Credentials) error {
	values := map[string]string{
		keyAccessToken:  creds.AccessToken,
		keyRefreshToken: creds.RefreshToken,
		keyRole:         string(creds.Role),
	}
	if creds.UserID != 0 {
		values[keyUserID] = strconv.FormatInt(creds.UserID, 10)
	}

	for _, key := range []string{keyAccessToken, keyRefreshToken} {
		if values[key] == "" || s.sealer == nil {
			continue
		}
		sealed, err := s.sealer.Seal(values[key])
		if err != nil {
			return err
		}
		values[key] = sealed
	}

	updatedAt := s.now().UTC().Format(time.RFC3339)
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		for _, key := range credentialKeys {
			value := values[key]
			if value == "" {
				if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, value, updatedAt); err != nil {
				return fmt.Errorf("upsert %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) load(ctx context.Context) (Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(credentialKeys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Credentials{}, fmt.Errorf("failed to scan credentials: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return Credentials{}, fmt.Errorf("failed to iterate credentials: %w", err)
	}

	creds := Credentials{
		AccessToken:  s.openValue(keyAccessToken, values[keyAccessToken]),
		RefreshToken: s.openValue(keyRefreshToken, values[keyRefreshToken]),
		Role:         ParseRole(values[keyRole]),
	}
	if raw := values[keyUserID]; raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.logger.Warn("ignoring malformed persisted user id", "store", "sqlite", "error", err)
		} else {
			creds.UserID = id
		}
	}

	// Tokens travel as a pair; a half-readable session is discarded.
	if creds.AccessToken == "" && values[keyAccessToken] != "" {
		return Credentials{}, nil
	}
	return creds, nil
}

func (s *SQLiteStore) openValue(key, value string) string {
	if value == "" || s.sealer == nil {
		return value
	}
	plain, err := s.sealer.Open(value)
	if err != nil {
		s.logger.Warn("discarding persisted value that cannot be unsealed", "store", "sqlite", "key", key, "error", err)
		return ""
	}
	return plain
}

func (s *SQLiteStore) loadSealer(ctx context.Context, passphrase string, params KeyParams) (*Sealer, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_metadata WHERE key = ?`, metaSealerSalt).Scan(&encoded)
	var salt []byte
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if salt, err = NewSalt(params); err != nil {
			return nil, err
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO store_metadata (key, value) VALUES (?, ?)`,
			metaSealerSalt, base64.RawStdEncoding.EncodeToString(salt)); err != nil {
			return nil, fmt.Errorf("failed to record sealer salt: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read sealer salt: %w", err)
	default:
		if salt, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("failed to decode sealer salt: %w", err)
		}
	}
	return NewSealer(passphrase, salt, params)
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, migration := range schemaMigrations {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ? LIMIT 1`, migration.version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check migration %s: %w", migration.version, err)
		}

		err = s.withTransaction(ctx, func(tx *sql.Tx) error {
			for i, stmt := range migration.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("execute statement %d: %w", i+1, err)
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				migration.version, s.now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.version, err)
		}
		s.logger.Debug("applied credential schema migration", "store", "sqlite", "version", migration.version)
	}
	return nil
}

func (s *SQLiteStore) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
