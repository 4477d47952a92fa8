// Package store keeps auto-type entries in SQLite. Passwords, OTP secrets
// and protected custom fields are sealed with a key derived from the
// user's passphrase; the store only serves entries while unlocked.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"autotyped/internal/entry"
	"autotyped/internal/security"
)

var (
	// ErrLocked is returned while no passphrase has been supplied. It
	// matches entry.ErrClosed.
	ErrLocked = fmt.Errorf("store is locked: %w", entry.ErrClosed)

	// ErrBadPassphrase means the passphrase does not open this store.
	ErrBadPassphrase = errors.New("store: wrong passphrase")

	// ErrNotFound means no entry has the requested id.
	ErrNotFound = errors.New("store: entry not found")
)

const checkValue = "autotyped-key-check"

// Options configures Open.
type Options struct {
	BusyTimeout time.Duration
	KDF         KDFParams
}

// Store is a SQLite-backed entry.Provider.
type Store struct {
	db   *sql.DB
	path string
	kdf  KDFParams

	mu  sync.RWMutex
	key *security.SecureBytes

	changes chan struct{}

	watchMu sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
}

// Open opens or creates the database at path and applies migrations. The
// store starts locked.
func Open(path string, opts Options) (*Store, error) {
	if err := security.EnsureSecureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if opts.KDF == (KDFParams{}) {
		opts.KDF = DefaultKDF
	}
	if err := opts.KDF.validate(); err != nil {
		return nil, err
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps WAL checkpoints simple.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := os.Chmod(path, security.PermSecretFile); err != nil {
		db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		path:    path,
		kdf:     opts.KDF,
		changes: make(chan struct{}, 1),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close locks the store, stops watching and closes the database.
func (s *Store) Close() error {
	s.stopWatch()
	s.Lock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Initialized reports whether a passphrase has been set.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM meta WHERE key = 'salt'").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read meta: %w", err)
	}
	return n > 0, nil
}

// Unlock derives the field key from passphrase. On a new store the
// passphrase is set; otherwise it must match. passphrase is wiped.
func (s *Store) Unlock(ctx context.Context, passphrase []byte) error {
	defer security.Wipe(passphrase)

	salt, params, check, err := s.readMeta(ctx)
	if err != nil {
		return err
	}

	if salt == nil {
		return s.initialize(ctx, passphrase)
	}

	key := deriveKey(passphrase, salt, params)
	pt, err := open(key, check, []byte("autotyped:meta:check"))
	if err != nil || string(pt) != checkValue {
		security.Wipe(key)
		return ErrBadPassphrase
	}
	s.setKey(key)
	return nil
}

func (s *Store) initialize(ctx context.Context, passphrase []byte) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key := deriveKey(passphrase, salt, s.kdf)
	check, err := seal(key, []byte(checkValue), []byte("autotyped:meta:check"))
	if err != nil {
		security.Wipe(key)
		return err
	}
	params, _ := json.Marshal(s.kdf)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		security.Wipe(key)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	for k, v := range map[string][]byte{"salt": salt, "kdf": params, "check": check} {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			security.Wipe(key)
			return fmt.Errorf("write meta: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		security.Wipe(key)
		return fmt.Errorf("commit meta: %w", err)
	}
	s.setKey(key)
	return nil
}

func (s *Store) readMeta(ctx context.Context) (salt []byte, params KDFParams, check []byte, err error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, params, nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	params = s.kdf
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, params, nil, fmt.Errorf("scan meta: %w", err)
		}
		switch k {
		case "salt":
			salt = v
		case "check":
			check = v
		case "kdf":
			if err := json.Unmarshal(v, &params); err != nil {
				return nil, params, nil, fmt.Errorf("decode kdf parameters: %w", err)
			}
		}
	}
	return salt, params, check, rows.Err()
}

func (s *Store) setKey(key []byte) {
	s.mu.Lock()
	if s.key != nil {
		s.key.Destroy()
	}
	s.key = security.FromBytes(key)
	s.mu.Unlock()
	s.signal()
}

// Lock discards the field key. Entries are unavailable until Unlock.
func (s *Store) Lock() {
	s.mu.Lock()
	was := s.key != nil
	if was {
		s.key.Destroy()
		s.key = nil
	}
	s.mu.Unlock()
	if was {
		s.signal()
	}
}

// Unlocked reports whether the field key is available.
func (s *Store) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// HasOpenFiles implements entry.Provider.
func (s *Store) HasOpenFiles() bool { return s.Unlocked() }

// Changes fires after the store is unlocked, locked or modified,
// including by another process when Watch is running. Signals coalesce.
func (s *Store) Changes() <-chan struct{} { return s.changes }

func (s *Store) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// withKey runs fn with the field key held.
func (s *Store) withKey(fn func(key []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return ErrLocked
	}
	return fn(s.key.Bytes())
}

// Put inserts or replaces e. An empty ID is assigned a new UUID.
func (s *Store) Put(ctx context.Context, e *entry.Entry) error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("store: entry title is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Modified.IsZero() {
		e.Modified = time.Now()
	}

	err := s.withKey(func(key []byte) error {
		password, err := sealValue(key, e.ID, "password", e.Password)
		if err != nil {
			return err
		}
		otp, err := sealValue(key, e.ID, "otp", e.OTP)
		if err != nil {
			return err
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO entries (id, title, username, password, url, notes, otp,
				auto_type_enabled, auto_type_sequence, auto_type_obfuscation, modified_ns, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Title, e.UserName, password, e.URL, e.Notes, otp,
			e.AutoTypeEnabled, e.AutoTypeSequence, e.AutoTypeObfuscation, e.Modified.UnixNano(),
			strings.Join(e.Tags, "\n"),
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM fields WHERE entry_id = ?", e.ID); err != nil {
			return fmt.Errorf("clear fields: %w", err)
		}
		for i, f := range e.Fields {
			value := f.Value.Bytes()
			if f.Value.IsProtected() {
				value, err = seal(key, value, fieldAAD(e.ID, "field:"+f.Name))
				if err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO fields (entry_id, ordinal, name, value, protected) VALUES (?, ?, ?, ?, ?)",
				e.ID, i, f.Name, value, f.Value.IsProtected(),
			); err != nil {
				return fmt.Errorf("insert field %q: %w", f.Name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.signal()
	return nil
}

func sealValue(key []byte, id, column string, v entry.ProtectedValue) ([]byte, error) {
	if v.IsEmpty() {
		return nil, nil
	}
	b := v.Bytes()
	defer security.Wipe(b)
	return seal(key, b, fieldAAD(id, column))
}

// Delete removes the entry with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.Unlocked() {
		return ErrLocked
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.signal()
	return nil
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (*entry.Entry, error) {
	entries, err := s.load(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries[0], nil
}

// All returns every entry ordered by title.
func (s *Store) All(ctx context.Context) ([]*entry.Entry, error) {
	return s.load(ctx, "")
}

// EntriesByFilter implements entry.Provider.
func (s *Store) EntriesByFilter(ctx context.Context, q entry.Query) ([]*entry.Entry, error) {
	where := ""
	if q.AutoType {
		where = "WHERE auto_type_enabled = 1"
	}
	all, err := s.load(ctx, where)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Matches(q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Import stores every entry of a JSON export. It returns the number stored.
func (s *Store) Import(ctx context.Context, path string) (int, error) {
	c, err := entry.LoadJSON(path)
	if err != nil {
		return 0, err
	}
	entries, err := c.EntriesByFilter(ctx, entry.Query{})
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := s.Put(ctx, e); err != nil {
			return i, fmt.Errorf("import %q: %w", e.Title, err)
		}
	}
	return len(entries), nil
}

func (s *Store) load(ctx context.Context, where string, args ...any) ([]*entry.Entry, error) {
	var out []*entry.Entry
	err := s.withKey(func(key []byte) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, title, username, password, url, notes, otp,
				auto_type_enabled, auto_type_sequence, auto_type_obfuscation, modified_ns, tags
			FROM entries `+where+` ORDER BY title, id`, args...)
		if err != nil {
			return fmt.Errorf("query entries: %w", err)
		}
		defer rows.Close()

		byID := make(map[string]*entry.Entry)
		for rows.Next() {
			var (
				e             entry.Entry
				password, otp []byte
				modified      int64
				tags          string
			)
			if err := rows.Scan(&e.ID, &e.Title, &e.UserName, &password, &e.URL, &e.Notes, &otp,
				&e.AutoTypeEnabled, &e.AutoTypeSequence, &e.AutoTypeObfuscation, &modified, &tags); err != nil {
				return fmt.Errorf("scan entry: %w", err)
			}
			if e.Password, err = openValue(key, e.ID, "password", password); err != nil {
				return err
			}
			if e.OTP, err = openValue(key, e.ID, "otp", otp); err != nil {
				return err
			}
			e.Modified = time.Unix(0, modified)
			if tags != "" {
				e.Tags = strings.Split(tags, "\n")
			}
			out = append(out, &e)
			byID[e.ID] = &e
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		return s.loadFields(ctx, key, byID)
	})
	return out, err
}

func (s *Store) loadFields(ctx context.Context, key []byte, byID map[string]*entry.Entry) error {
	rows, err := s.db.QueryContext(ctx, "SELECT entry_id, name, value, protected FROM fields ORDER BY entry_id, ordinal")
	if err != nil {
		return fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, name  string
			value     []byte
			protected bool
		)
		if err := rows.Scan(&id, &name, &value, &protected); err != nil {
			return fmt.Errorf("scan field: %w", err)
		}
		e, ok := byID[id]
		if !ok {
			continue
		}
		v := entry.Plain(string(value))
		if protected {
			pt, err := open(key, value, fieldAAD(id, "field:"+name))
			if err != nil {
				return fmt.Errorf("entry %s field %q: %w", id, name, err)
			}
			v = entry.ProtectBytes(pt)
		}
		e.Fields = append(e.Fields, entry.CustomField{Name: name, Value: v})
	}
	return rows.Err()
}

func openValue(key []byte, id, column string, sealed []byte) (entry.ProtectedValue, error) {
	if len(sealed) == 0 {
		return entry.Protect(""), nil
	}
	pt, err := open(key, sealed, fieldAAD(id, column))
	if err != nil {
		return entry.ProtectedValue{}, fmt.Errorf("entry %s %s: %w", id, column, err)
	}
	return entry.ProtectBytes(pt), nil
}

var _ entry.Provider = (*Store)(nil)
