package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

type Config struct {
	Addr                  string `mapstructure:"ADDR"`
	DataDir               string `mapstructure:"DATA_DIR"`
	StaticDir             string `mapstructure:"STATIC_DIR"`
	StoreBackend          string `mapstructure:"STORE_BACKEND"`
	SheetName             string `mapstructure:"SHEET_NAME"`
	SpreadsheetID         string `mapstructure:"SPREADSHEET_ID"`
	CredentialsFile       string `mapstructure:"GOOGLE_CREDENTIALS_FILE"`
	MediaBaseURL          string `mapstructure:"MEDIA_BASE_URL"`
	AdminSecret           string `mapstructure:"ADMIN_SECRET"`
	DeletionWindowSeconds int    `mapstructure:"DELETION_WINDOW_SECONDS"`
	RemoteTimeoutSeconds  int    `mapstructure:"REMOTE_TIMEOUT_SECONDS"`
	AllowedOriginsRaw     string `mapstructure:"ALLOWED_ORIGINS"`
	SubmissionsPerMinute  int    `mapstructure:"SUBMISSIONS_PER_MINUTE"`
}

// LoadConfig reads the configuration from HOSTELS_* environment variables.
// Variables missing from the environment are taken from the given dotenv
// files, or from .env in the working directory when none are given.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", strings.Join(envFiles, ", "), err)
		}
		log.Println("No .env file found, using environment")
	}

	v := viper.New()

	v.SetDefault("ADDR", ":8080")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("STATIC_DIR", "./static")
	v.SetDefault("STORE_BACKEND", BackendSQLite)
	v.SetDefault("SHEET_NAME", "Hostels")
	v.SetDefault("SPREADSHEET_ID", "")
	v.SetDefault("GOOGLE_CREDENTIALS_FILE", "")
	v.SetDefault("MEDIA_BASE_URL", "")
	v.SetDefault("ADMIN_SECRET", "")
	v.SetDefault("DELETION_WINDOW_SECONDS", 60)
	v.SetDefault("REMOTE_TIMEOUT_SECONDS", 15)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("SUBMISSIONS_PER_MINUTE", 10)

	v.SetEnvPrefix("HOSTELS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return &cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if c.AdminSecret == "" {
		errs = append(errs, errors.New("HOSTELS_ADMIN_SECRET is required"))
	}
	switch c.StoreBackend {
	case BackendSQLite:
	case BackendSheets:
		if c.SpreadsheetID == "" {
			errs = append(errs, errors.New("HOSTELS_SPREADSHEET_ID is required for the sheets backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.DeletionWindowSeconds <= 0 {
		errs = append(errs, errors.New("HOSTELS_DELETION_WINDOW_SECONDS must be positive"))
	}
	if c.RemoteTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("HOSTELS_REMOTE_TIMEOUT_SECONDS must be positive"))
	}

	return errors.Join(errs...)
}

// RemoteTimeout is the upper bound on a single row store call.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
