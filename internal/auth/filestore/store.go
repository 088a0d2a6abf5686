// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

// Package filestore implements the auth repositories on a single JSON
// document. The document keeps the layout of the previous store: accounts
// live under "estudiantes" and "empresas", refresh tokens under
// "refreshTokens", and any other top-level keys belong to other subsystems
// and are written back unchanged.
//
// Every mutation holds the store's write lock for the whole read, modify,
// write cycle, and writes replace the file atomically. Writers in other
// processes (the serve command and the admin commands) are serialized by an
// advisory lock on "<path>.lock" taken after the in-process lock. Readers
// need only the in-process lock: a rename never exposes a partial file.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/samber/oops"

	"github.com/internhub/internhub/internal/auth"
)

// Top-level document keys owned by this package.
const (
	keyRefreshTokens = "refreshTokens"
)

// layout describes where one role's accounts live and how their fields are named.
type layout struct {
	collection string
	identifier string
	secret     string
}

// Field names shared by both account collections.
const (
	fieldID        = "id"
	fieldApproved  = "estadoValidacion"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

var layouts = map[auth.Role]layout{
	auth.RoleStudent: {collection: "estudiantes", identifier: "legajo", secret: "password"},
	auth.RoleCompany: {collection: "empresas", identifier: "correo", secret: "contraseña"},
}

func layoutFor(role auth.Role) (layout, error) {
	l, ok := layouts[role]
	if !ok {
		return layout{}, oops.Code("FILESTORE_INVALID_ROLE").With("role", role).Errorf("no collection for role")
	}
	return l, nil
}

// lockRetryDelay is how often a blocked writer polls the file lock.
const lockRetryDelay = 5 * time.Millisecond

// Store is a JSON document on disk.
type Store struct {
	path     string
	mu       sync.RWMutex
	fileLock *flock.Flock
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open returns a Store for path, creating the file and its directory when
// they do not exist. An existing file must contain a JSON object.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, oops.Code("FILESTORE_OPEN_FAILED").Errorf("path cannot be empty")
	}
	s := &Store{
		path:     path,
		fileLock: flock.New(path + ".lock"),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, oops.Code("FILESTORE_OPEN_FAILED").With("path", path).Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockFile(context.Background())
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if !doc.existed {
		if err := s.save(doc); err != nil {
			return nil, err
		}
		s.logger.Info("created store file", "path", path)
	}
	return s, nil
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that the document is readable.
func (s *Store) Ping(ctx context.Context) error {
	return s.view(ctx, func(*document) error { return nil })
}

// view runs fn on a freshly loaded document under the read lock.
func (s *Store) view(ctx context.Context, fn func(doc *document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// update runs fn under the write lock and persists the document if fn
// reports a change. A context cancelled before the write leaves the file
// untouched.
func (s *Store) update(ctx context.Context, fn func(doc *document) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.save(doc)
}

// lockFile takes the cross-process write lock and returns its release
// func. Callers hold s.mu, so one Store never locks the file twice.
func (s *Store) lockFile(ctx context.Context) (func(), error) {
	if _, err := s.fileLock.TryLockContext(ctx, lockRetryDelay); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, oops.Code("FILESTORE_LOCK_FAILED").With("lock_file", s.fileLock.Path()).Wrap(err)
	}
	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("failed to release store lock", "lock_file", s.fileLock.Path(), "error", err)
		}
	}, nil
}

// document is the decoded store file.
type document struct {
	existed  bool
	top      map[string]json.RawMessage
	accounts map[auth.Role][]record
	tokens   []tokenRecord
}

// record is one account object. Fields this package does not own are kept as is.
type record map[string]json.RawMessage

func (s *Store) load() (*document, error) {
	doc := &document{
		top:      make(map[string]json.RawMessage),
		accounts: make(map[auth.Role][]record),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, oops.Code("FILESTORE_READ_FAILED").With("path", s.path).Wrap(err)
	}
	doc.existed = true
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc.top); err != nil {
		return nil, oops.Code("FILESTORE_CORRUPT").With("path", s.path).Wrap(err)
	}
	for role, l := range layouts {
		raw, ok := doc.top[l.collection]
		if !ok || isNull(raw) {
			continue
		}
		var records []record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, oops.Code("FILESTORE_CORRUPT").With("collection", l.collection).Wrap(err)
		}
		doc.accounts[role] = records
	}
	if raw, ok := doc.top[keyRefreshTokens]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &doc.tokens); err != nil {
			return nil, oops.Code("FILESTORE_CORRUPT").With("collection", keyRefreshTokens).Wrap(err)
		}
	}
	return doc, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func (s *Store) save(doc *document) error {
	for role, l := range layouts {
		records := doc.accounts[role]
		if records == nil {
			records = []record{}
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return oops.Code("FILESTORE_WRITE_FAILED").With("collection", l.collection).Wrap(err)
		}
		doc.top[l.collection] = raw
	}
	tokens := doc.tokens
	if tokens == nil {
		tokens = []tokenRecord{}
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("collection", keyRefreshTokens).Wrap(err)
	}
	doc.top[keyRefreshTokens] = raw

	data, err := json.MarshalIndent(doc.top, "", "  ")
	if err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", s.path).Wrap(err)
	}
	return writeFileAtomic(s.path, append(data, '\n'))
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", path).Wrap(err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName) //nolint:errcheck // best effort cleanup, write error takes precedence
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err = tmp.Close(); err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err = os.Chmod(tmpName, 0o600); err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// flexID decodes identifiers written either as JSON strings or numbers.
type flexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// str returns the value of a string or numeric field, or "" if absent.
func (r record) str(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var id flexID
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return string(id)
}

func (r record) flag(key string) bool {
	var b bool
	if raw, ok := r[key]; ok {
		_ = json.Unmarshal(raw, &b) //nolint:errcheck // non-boolean values read as false
	}
	return b
}

func (r record) timestamp(key string) time.Time {
	var t time.Time
	if raw, ok := r[key]; ok {
		_ = json.Unmarshal(raw, &t) //nolint:errcheck // unparseable timestamps read as zero
	}
	return t
}

func (r record) set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return oops.Code("FILESTORE_WRITE_FAILED").With("field", key).Wrap(err)
	}
	r[key] = raw
	return nil
}

// idMatches compares a stored id with a string id. Numeric ids written by
// the previous store compare by their decimal form.
func idMatches(stored, id string) bool {
	if stored == id {
		return true
	}
	a, errA := strconv.ParseFloat(stored, 64)
	b, errB := strconv.ParseFloat(id, 64)
	return errA == nil && errB == nil && a == b
}
