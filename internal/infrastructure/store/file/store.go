// Package file persists the account snapshot as a single JSON document on
// local disk. Every Save rewrites the whole document through a temp file and
// rename so readers never observe a partial write.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/weewoocad/accounts/internal/core/domain"
)

const filePerm = 0o600

// document is the on-disk layout: {"users": [...]}.
type document struct {
	Users []record `json:"users"`
}

// record keeps the field names of the existing db.json files. TokenExpires is
// milliseconds since the Unix epoch.
type record struct {
	ID                accountID `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"passwordHash"`
	Confirmed         bool      `json:"confirmed"`
	VerificationToken string    `json:"verificationToken,omitempty"`
	TokenExpires      int64     `json:"tokenExpires,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitzero"`
}

// accountID accepts both the numeric ids of older files and string ids.
type accountID string

func (id *accountID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = accountID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("account id: %w", err)
	}
	*id = accountID(n.String())
	return nil
}

// Store implements ports.AccountStore on a JSON file.
type Store struct {
	path string
	log  zerolog.Logger
}

func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log}
}

// Path returns the location of the backing document.
func (s *Store) Path() string {
	return s.path
}

// Load reads the whole document. A missing file is an empty store; any other
// read or decode failure is reported as domain.ErrStorageUnavailable so that
// callers never overwrite data they could not read.
func (s *Store) Load(_ context.Context) (domain.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Debug().Str("path", s.path).Msg("account file not found, starting empty")
			return domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStorageUnavailable, s.path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrStorageUnavailable, s.path, err)
	}

	accounts := make(domain.Snapshot, 0, len(doc.Users))
	for _, r := range doc.Users {
		accounts = append(accounts, r.toDomain())
	}
	return accounts, nil
}

// Save writes accounts to a temp file in the target directory, syncs it and
// renames it over the document.
func (s *Store) Save(_ context.Context, accounts domain.Snapshot) error {
	doc := document{Users: make([]record, 0, len(accounts))}
	for _, a := range accounts {
		doc.Users = append(doc.Users, fromDomain(a))
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Ping reports whether the document can currently be loaded.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Load(ctx)
	return err
}

func (r record) toDomain() domain.Account {
	a := domain.Account{
		ID:                string(r.ID),
		Username:          r.Username,
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		Confirmed:         r.Confirmed,
		VerificationToken: r.VerificationToken,
		CreatedAt:         r.CreatedAt,
	}
	// Older files keep the token on accounts created already confirmed.
	if r.Confirmed {
		a.VerificationToken = ""
		return a
	}
	if r.VerificationToken != "" && r.TokenExpires != 0 {
		exp := time.UnixMilli(r.TokenExpires).UTC()
		a.TokenExpiresAt = &exp
	}
	return a
}

func fromDomain(a domain.Account) record {
	r := record{
		ID:                accountID(a.ID),
		Username:          a.Username,
		Email:             a.Email,
		PasswordHash:      a.PasswordHash,
		Confirmed:         a.Confirmed,
		VerificationToken: a.VerificationToken,
		CreatedAt:         a.CreatedAt,
	}
	if a.TokenExpiresAt != nil {
		r.TokenExpires = a.TokenExpiresAt.UnixMilli()
	}
	return r
}
