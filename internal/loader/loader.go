// Package loader imports contestant credentials from the CSV export produced
// by contest registration.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"

	"natsume/internal/api"
	"natsume/internal/database"
)

var ErrMalformed = errors.New("malformed credential file")

var header = []string{"id", "username", "password"}

type Importer interface {
	ImportCredentials(ctx context.Context, creds []database.ContestantCredential) (database.ImportResult, error)
}

// LoadFile reads path and applies every row in one transaction.
func LoadFile(ctx context.Context, store Importer, path string) (database.ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return database.ImportResult{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	creds, err := Parse(file)
	if err != nil {
		return database.ImportResult{}, fmt.Errorf("%s: %w", path, err)
	}

	result, err := store.ImportCredentials(ctx, creds)
	if err != nil {
		return database.ImportResult{}, fmt.Errorf("failed to import credentials: %w", err)
	}
	logr.FromContextOrDiscard(ctx).Info("credentials loaded",
		"path", path, "inserted", result.Inserted, "updated", result.Updated, "unchanged", result.Unchanged)
	return result, nil
}

// Parse expects an id,username,password header followed by one row per
// contestant. Identities must be unique, no field may be empty, and the
// UNKNOWN sentinel is rejected.
func Parse(r io.Reader) ([]database.ContestantCredential, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	first, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	for i, name := range header {
		got := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(first[i], "\ufeff")))
		if got != name {
			return nil, fmt.Errorf("%w: header must be %s, got %s", ErrMalformed,
				strings.Join(header, ","), strings.Join(first, ","))
		}
	}

	seen := map[string]int{}
	var creds []database.ContestantCredential
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		line, _ := reader.FieldPos(0)

		cred := database.ContestantCredential{
			ID:       strings.TrimSpace(record[0]),
			Username: strings.TrimSpace(record[1]),
			Password: record[2],
		}
		if cred.ID == "" || cred.Username == "" || cred.Password == "" {
			return nil, fmt.Errorf("%w: line %d: id, username and password are required", ErrMalformed, line)
		}
		if cred.ID == api.UnknownIdentity {
			return nil, fmt.Errorf("%w: line %d: id %q is reserved", ErrMalformed, line, cred.ID)
		}
		if prev, ok := seen[cred.ID]; ok {
			return nil, fmt.Errorf("%w: line %d: id %q already defined on line %d", ErrMalformed, line, cred.ID, prev)
		}
		seen[cred.ID] = line
		creds = append(creds, cred)
	}
	return creds, nil
}
