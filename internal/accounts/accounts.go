// Package accounts loads vendor portal logins from an xlsx workbook with
// Username and Password columns on its first sheet.
package accounts

import (
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"

	"supply_tracker/internal/supply"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultFile    = "VENDOR_ACCOUNTS.xlsx"
	UsernameColumn = "Username"
	PasswordColumn = "Password"
)

// Book is the set of vendor logins. The username is the vendor name as it
// appears in the sheet.
type Book struct {
	passwords map[string]string
}

// Load reads the workbook at path. A missing file or missing columns is a
// configuration error.
func Load(path string) (*Book, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open accounts file %s: %w", supply.ErrConfiguration, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: accounts file %s has no sheets", supply.ErrConfiguration, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read accounts file %s: %w", supply.ErrConfiguration, path, err)
	}

	book, err := FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", supply.ErrConfiguration, path, err)
	}
	log.Debug().Str("file", path).Int("accounts", len(book.passwords)).Msg("Loaded vendor accounts")
	return book, nil
}

// FromRows builds a Book from a header row followed by data rows. Rows with
// an empty username are skipped; a repeated username keeps the first row.
func FromRows(rows [][]string) (*Book, error) {
	book := &Book{passwords: make(map[string]string)}
	if len(rows) == 0 {
		return book, nil
	}

	userIdx, passIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case UsernameColumn:
			userIdx = i
		case PasswordColumn:
			passIdx = i
		}
	}
	if userIdx < 0 || passIdx < 0 {
		return nil, fmt.Errorf("header must contain %s and %s", UsernameColumn, PasswordColumn)
	}

	for _, row := range rows[1:] {
		user := strings.TrimSpace(cell(row, userIdx))
		if user == "" {
			continue
		}
		if _, dup := book.passwords[user]; dup {
			log.Warn().Str("username", user).Msg("Duplicate vendor account, keeping first")
			continue
		}
		book.passwords[user] = cell(row, passIdx)
	}
	return book, nil
}

// Usernames returns every login name, sorted.
func (b *Book) Usernames() []string {
	out := make([]string, 0, len(b.passwords))
	for u := range b.passwords {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Authenticate checks password for username. Stored values starting with
// "$2" are bcrypt hashes; anything else is compared as plaintext.
func (b *Book) Authenticate(username, password string) bool {
	stored, ok := b.passwords[username]
	if !ok {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
