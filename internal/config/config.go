package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
)

type Config struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Telegram struct {
		Enabled            bool   `yaml:"enabled"`
		Token              string `yaml:"token"`
		PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
		RetryDelay         string `yaml:"retry_delay"`
		ParseMode          string `yaml:"parse_mode"`
		RemoveWebhook      bool   `yaml:"remove_webhook"`
	} `yaml:"telegram"`
	Storage struct {
		Backend string `yaml:"backend"`
		File    struct {
			Path string `yaml:"path"`
		} `yaml:"file"`
		Sheets struct {
			SpreadsheetID   string `yaml:"spreadsheet_id"`
			SheetName       string `yaml:"sheet_name"`
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"sheets"`
		SQLite struct {
			Path           string `yaml:"path"`
			WALMode        bool   `yaml:"wal_mode"`
			MaxConnections int    `yaml:"max_connections"`
		} `yaml:"sqlite"`
	} `yaml:"storage"`
	Backup struct {
		Enabled  bool   `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
		Dir      string `yaml:"dir"`
		Keep     int    `yaml:"keep"`
		GCS      struct {
			Bucket          string `yaml:"bucket"`
			Prefix          string `yaml:"prefix"`
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"gcs"`
	} `yaml:"backup"`
	API struct {
		RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
		RateLimitBurst     int `yaml:"rate_limit_burst"`
	} `yaml:"api"`
	MCP struct {
		Enabled bool `yaml:"enabled"`
		HTTP    struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"http"`
	} `yaml:"mcp"`
	Logging struct {
		File   string `yaml:"file"`
		Prefix string `yaml:"prefix"`
	} `yaml:"logging"`
}

func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = "30s"
	cfg.Server.WriteTimeout = "30s"
	cfg.Telegram.Enabled = true
	cfg.Telegram.PollTimeoutSeconds = 30
	cfg.Telegram.RetryDelay = "5s"
	cfg.Telegram.ParseMode = "Markdown"
	cfg.Telegram.RemoveWebhook = true
	cfg.Storage.Backend = BackendFile
	cfg.Storage.File.Path = "./entries.txt"
	cfg.Storage.Sheets.SheetName = "Sheet1"
	cfg.Storage.Sheets.CredentialsFile = "credentials.json"
	cfg.Storage.SQLite.Path = "./lookupbot.db"
	cfg.Storage.SQLite.WALMode = true
	cfg.Storage.SQLite.MaxConnections = 4
	cfg.Backup.Enabled = false
	cfg.Backup.Schedule = "@daily"
	cfg.Backup.Dir = "./backups/"
	cfg.Backup.Keep = 14
	cfg.API.RateLimitPerMinute = 600
	cfg.API.RateLimitBurst = 60
	cfg.MCP.Enabled = true
	cfg.MCP.HTTP.Enabled = true
	cfg.MCP.HTTP.Path = "/mcp"
	cfg.Logging.Prefix = ""
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	overrideFromEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML, used by `init` to write a starter file.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func Addr(cfg Config) string {
	return cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
}

func ReadTimeout(cfg Config) time.Duration {
	d, _ := time.ParseDuration(cfg.Server.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

func WriteTimeout(cfg Config) time.Duration {
	d, _ := time.ParseDuration(cfg.Server.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

func RetryDelay(cfg Config) time.Duration {
	d, _ := time.ParseDuration(cfg.Telegram.RetryDelay)
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("LOOKUPBOT_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("LOOKUPBOT_TELEGRAM_ENABLED"); v != "" {
		cfg.Telegram.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("LOOKUPBOT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LOOKUPBOT_SERVER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("LOOKUPBOT_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("LOOKUPBOT_FILE_PATH"); v != "" {
		cfg.Storage.File.Path = v
	}
	if v := os.Getenv("LOOKUPBOT_SHEETS_ID"); v != "" {
		cfg.Storage.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("LOOKUPBOT_SHEETS_CREDENTIALS"); v != "" {
		cfg.Storage.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("LOOKUPBOT_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("LOOKUPBOT_MCP_ENABLED"); v != "" {
		cfg.MCP.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("invalid server.port")
	}
	switch cfg.Storage.Backend {
	case BackendFile:
		if strings.TrimSpace(cfg.Storage.File.Path) == "" {
			return errors.New("storage.file.path is required")
		}
	case BackendSheets:
		if strings.TrimSpace(cfg.Storage.Sheets.SpreadsheetID) == "" {
			return errors.New("storage.sheets.spreadsheet_id is required")
		}
		if strings.TrimSpace(cfg.Storage.Sheets.CredentialsFile) == "" {
			return errors.New("storage.sheets.credentials_file is required")
		}
	case BackendSQLite:
		if strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
			return errors.New("storage.sqlite.path is required")
		}
		if cfg.Storage.SQLite.MaxConnections <= 0 {
			return errors.New("storage.sqlite.max_connections must be > 0")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s", cfg.Storage.Backend)
	}
	if cfg.Telegram.PollTimeoutSeconds < 0 {
		return errors.New("telegram.poll_timeout_seconds must be >= 0")
	}
	if v := strings.TrimSpace(cfg.Telegram.RetryDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return errors.New("telegram.retry_delay must be a positive duration")
		}
	}
	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		return fmt.Errorf("invalid telegram.parse_mode: %s", cfg.Telegram.ParseMode)
	}
	if cfg.Backup.Enabled {
		if strings.TrimSpace(cfg.Backup.Dir) == "" {
			return errors.New("backup.dir is required when backups are enabled")
		}
		if _, err := cron.ParseStandard(cfg.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid backup.schedule: %w", err)
		}
	}
	if cfg.Backup.Keep < 0 {
		return errors.New("backup.keep must be >= 0")
	}
	if cfg.MCP.HTTP.Enabled && (strings.TrimSpace(cfg.MCP.HTTP.Path) == "" || cfg.MCP.HTTP.Path[0] != '/') {
		return errors.New("mcp.http.path must start with '/'")
	}
	return nil
}
