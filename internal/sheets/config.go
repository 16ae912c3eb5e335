// Package sheets reads and writes the vendor table kept in Google Sheets.
package sheets

import (
	"fmt"
	"os"

	"supply_tracker/internal/config"
	"supply_tracker/internal/retry"
	"supply_tracker/internal/supply"
)

// CredentialKind says where the service account JSON comes from.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialEnvBundle
	CredentialLocalFile
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialEnvBundle:
		return "env"
	case CredentialLocalFile:
		return "file"
	default:
		return "none"
	}
}

// CredentialSource is resolved once at startup and never looked up again.
type CredentialSource struct {
	Kind CredentialKind
	JSON []byte
	Path string
}

// EnvBundle uses a service account JSON payload supplied through the
// environment (hosted deployments).
func EnvBundle(payload []byte) CredentialSource {
	return CredentialSource{Kind: CredentialEnvBundle, JSON: payload}
}

// LocalFile uses a service account key file on disk (local runs).
func LocalFile(path string) CredentialSource {
	return CredentialSource{Kind: CredentialLocalFile, Path: path}
}

// Load returns the JSON payload.
func (c CredentialSource) Load() ([]byte, error) {
	switch c.Kind {
	case CredentialEnvBundle:
		if len(c.JSON) == 0 {
			return nil, fmt.Errorf("%w: empty service account bundle", supply.ErrConfiguration)
		}
		return c.JSON, nil
	case CredentialLocalFile:
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to read service account key file: %w", supply.ErrConfiguration, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: no credential source", supply.ErrConfiguration)
	}
}

// Config addresses one table. SpreadsheetID wins over TableName; an empty
// SheetTitle selects the first tab.
type Config struct {
	Credentials   CredentialSource
	TableName     string
	SpreadsheetID string
	SheetTitle    string
	Open          retry.Config
	Read          retry.Config
}

// DefaultConfig returns a Config for the given credentials and table name.
func DefaultConfig(creds CredentialSource, tableName string) Config {
	return Config{
		Credentials: creds,
		TableName:   tableName,
		Open:        config.DefaultResilienceConfig.SheetOpen,
		Read:        config.DefaultResilienceConfig.SheetRead,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Credentials.Kind == CredentialNone {
		return fmt.Errorf("%w: no credential source", supply.ErrConfiguration)
	}
	if c.SpreadsheetID == "" && c.TableName == "" {
		return fmt.Errorf("%w: spreadsheet id or table name required", supply.ErrConfiguration)
	}
	if c.Read.MaxRetries < 0 || c.Open.MaxRetries < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", supply.ErrConfiguration)
	}
	return nil
}
