// Package app resolves runtime configuration once at startup and builds the
// long-lived clients from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for digest.timezone

	"supply_tracker/internal/accounts"
	"supply_tracker/internal/config"
	"supply_tracker/internal/notifications"
	"supply_tracker/internal/server"
	"supply_tracker/internal/sheets"
	"supply_tracker/internal/supply"
	"supply_tracker/internal/writeback"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DefaultTableName       = "DB_VENDOR_ADARO"
	DefaultCredentialsFile = "secrets.json"
	CredentialsEnv         = "GCP_SERVICE_ACCOUNT"
)

// Config is everything the commands need. It is built by Load and passed
// down explicitly.
type Config struct {
	Sheets       sheets.Config
	AccountsFile string
	WriteMode    writeback.Mode

	Addr   string
	Server server.Config

	Notify notifications.Config

	DigestSchedule string
	DigestYear     string
	DigestLocation *time.Location
	DigestTimeout  time.Duration
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sheet.name", DefaultTableName)
	v.SetDefault("sheet.id", "")
	v.SetDefault("sheet.title", "")
	v.SetDefault("sheet.read_attempts", 0)
	v.SetDefault("credentials.json", "")
	v.SetDefault("credentials.file", DefaultCredentialsFile)
	v.SetDefault("accounts.file", accounts.DefaultFile)
	v.SetDefault("write.mode", string(writeback.ModeReplace))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", 8*time.Hour)
	v.SetDefault("server.allow_origins", []string{})
	v.SetDefault("ntfy.enabled", false)
	v.SetDefault("ntfy.url", "https://ntfy.sh")
	v.SetDefault("ntfy.topic", "supply-tracker")
	v.SetDefault("ntfy.priority", "")
	v.SetDefault("digest.schedule", "0 7 * * 1-5")
	v.SetDefault("digest.year", "")
	v.SetDefault("digest.timezone", "Asia/Jakarta")
	v.SetDefault("digest.timeout", 2*time.Minute)
}

// NewViper returns a viper instance reading SUPPLY_* environment variables.
// The service account bundle is read from GCP_SERVICE_ACCOUNT without the
// prefix.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("SUPPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("credentials.json", CredentialsEnv)
	return v
}

// Load builds a Config from v.
func Load(v *viper.Viper) (Config, error) {
	creds, err := ResolveCredentials(v.GetString("credentials.json"), v.GetString("credentials.file"))
	if err != nil {
		return Config{}, err
	}

	mode, err := writeback.ParseMode(v.GetString("write.mode"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", supply.ErrConfiguration, err)
	}

	loc, err := time.LoadLocation(v.GetString("digest.timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: digest timezone: %w", supply.ErrConfiguration, err)
	}

	sheetCfg := sheets.DefaultConfig(creds, v.GetString("sheet.name"))
	sheetCfg.SpreadsheetID = v.GetString("sheet.id")
	sheetCfg.SheetTitle = v.GetString("sheet.title")
	sheetCfg.Read = config.WithAttempts(sheetCfg.Read, v.GetInt("sheet.read_attempts"))
	if err := sheetCfg.Validate(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Sheets:       sheetCfg,
		AccountsFile: v.GetString("accounts.file"),
		WriteMode:    mode,
		Addr:         v.GetString("server.addr"),
		Server: server.Config{
			JWTSecret:    []byte(v.GetString("server.jwt_secret")),
			TokenTTL:     v.GetDuration("server.token_ttl"),
			AllowOrigins: v.GetStringSlice("server.allow_origins"),
		},
		Notify: notifications.Config{
			BaseURL:  v.GetString("ntfy.url"),
			Topic:    v.GetString("ntfy.topic"),
			Enabled:  v.GetBool("ntfy.enabled"),
			Priority: v.GetString("ntfy.priority"),
			Retry:    config.DefaultResilienceConfig.Notify,
		},
		DigestSchedule: v.GetString("digest.schedule"),
		DigestYear:     v.GetString("digest.year"),
		DigestLocation: loc,
		DigestTimeout:  v.GetDuration("digest.timeout"),
	}

	log.Debug().
		Str("credentials", creds.Kind.String()).
		Str("table", sheetCfg.TableName).
		Str("spreadsheet_id", sheetCfg.SpreadsheetID).
		Str("write_mode", string(mode)).
		Bool("ntfy", cfg.Notify.Enabled).
		Msg("Configuration loaded")

	return cfg, nil
}

// ResolveCredentials picks the service account source: the JSON bundle from
// the environment first, then the key file on disk.
func ResolveCredentials(envJSON, path string) (sheets.CredentialSource, error) {
	if strings.TrimSpace(envJSON) != "" {
		return sheets.EnvBundle([]byte(envJSON)), nil
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return sheets.LocalFile(path), nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return sheets.CredentialSource{}, fmt.Errorf("%w: %s: %w", supply.ErrConfiguration, path, err)
		}
	}
	return sheets.CredentialSource{}, fmt.Errorf("%w: set %s or provide %s", supply.ErrConfiguration, CredentialsEnv, path)
}

// RequireJWTSecret fails when the portal has no signing secret.
func (c Config) RequireJWTSecret() error {
	if len(c.Server.JWTSecret) == 0 {
		return fmt.Errorf("%w: SUPPLY_SERVER_JWT_SECRET is required to serve the vendor portal", supply.ErrConfiguration)
	}
	return nil
}

// OpenStore connects to the configured sheet.
func OpenStore(ctx context.Context, cfg Config) (*sheets.Table, error) {
	log.Debug().Msg("Opening sheet")
	table, err := sheets.Open(ctx, cfg.Sheets)
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("Sheet opened")
	return table, nil
}

// InitializeNotificationClient creates and returns the notification client
func InitializeNotificationClient(cfg Config) *notifications.Client {
	log.Debug().
		Bool("enabled", cfg.Notify.Enabled).
		Str("base_url", cfg.Notify.BaseURL).
		Str("topic", cfg.Notify.Topic).
		Msg("Initializing notification client")

	client := notifications.NewClient(cfg.Notify)

	if cfg.Notify.Enabled {
		log.Info().Str("topic", cfg.Notify.Topic).Msg("Notifications enabled")
	} else {
		log.Debug().Msg("Notifications disabled")
	}

	return client
}
