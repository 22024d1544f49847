package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"lampiran/api/internal/rbac"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is one operator login.
type Account struct {
	Name string
	Role rbac.Role
	hash []byte
}

// Accounts is the configured operator list.
type Accounts struct {
	byName map[string]Account
}

// ParseAccounts reads a comma-separated list of name:role:bcrypt-hash
// entries. Names are matched case-insensitively.
func ParseAccounts(spec string) (*Accounts, error) {
	accounts := &Accounts{byName: map[string]Account{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// bcrypt hashes never contain ':'.
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed account entry %q", redact(entry))
		}
		if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
			return nil, fmt.Errorf("account %s: invalid bcrypt hash: %w", parts[0], err)
		}
		key := strings.ToLower(parts[0])
		if _, dup := accounts.byName[key]; dup {
			return nil, fmt.Errorf("duplicate account %s", parts[0])
		}
		accounts.byName[key] = Account{Name: parts[0], Role: rbac.Normalize(parts[1]), hash: []byte(parts[2])}
	}
	return accounts, nil
}

// Authenticate checks a password. Unknown names and wrong passwords return
// the same error.
func (a *Accounts) Authenticate(name, password string) (Account, error) {
	account, ok := a.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		// Same cost as a real comparison for unknown names.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.hash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Names lists the configured accounts, sorted.
func (a *Accounts) Names() []string {
	names := make([]string, 0, len(a.byName))
	for _, account := range a.byName {
		names = append(names, account.Name)
	}
	sort.Strings(names)
	return names
}

// HashPassword produces an entry hash for the account list.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("lampiran-dummy-password"), bcrypt.DefaultCost)

func redact(entry string) string {
	if i := strings.Index(entry, ":"); i >= 0 {
		return entry[:i] + ":…"
	}
	return entry
}
