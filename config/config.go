package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the screener-scraper settings file
type Config struct {
	Fetcher struct {
		// Engine is "http" (colly) or "browser" (rod)
		Engine    string        `yaml:"engine"`
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"fetcher"`
	Scraper struct {
		MaxPages          int           `yaml:"max_pages"`
		PageDelay         time.Duration `yaml:"page_delay"`
		LastPageThreshold int           `yaml:"last_page_threshold"`
		PageParam         string        `yaml:"page_param"`
		TargetDomain      string        `yaml:"target_domain"`
	} `yaml:"scraper"`
	Server struct {
		Addr        string   `yaml:"addr"`
		ExampleURLs []string `yaml:"example_urls"`
	} `yaml:"server"`
	Bot struct {
		AllowedUsers []int64 `yaml:"allowed_users"`
		QueueSize    int     `yaml:"queue_size"`
	} `yaml:"bot"`
	Sheets struct {
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetURL  string `yaml:"spreadsheet_url"`
	} `yaml:"sheets"`
	Export struct {
		OutputDir string `yaml:"output_dir"`
	} `yaml:"export"`
}

// LoadConfig loads configuration from a YAML file. A missing file yields the
// defaults, keys absent from the file keep their default value.
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Fetcher.Engine = "http"
	cfg.Fetcher.Timeout = 30 * time.Second
	cfg.Scraper.MaxPages = 100
	cfg.Scraper.PageDelay = 3 * time.Second
	cfg.Scraper.LastPageThreshold = 26
	cfg.Scraper.PageParam = "page"
	cfg.Scraper.TargetDomain = "screener.in"
	cfg.Server.Addr = ":8501"
	cfg.Server.ExampleURLs = []string{
		"https://www.screener.in/screens/2448025/sales-profit-20-eps-up/",
		"https://www.screener.in/screens/71064/high-roe/",
		"https://www.screener.in/screens/71063/low-debt/",
	}
	cfg.Bot.QueueSize = 100
	cfg.Export.OutputDir = "."
	return cfg
}

// Validate rejects settings the scraper cannot run with
func (c *Config) Validate() error {
	switch c.Fetcher.Engine {
	case "http", "browser":
	default:
		return fmt.Errorf("invalid fetcher engine %q: must be http or browser", c.Fetcher.Engine)
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("invalid max_pages %d: must be at least 1", c.Scraper.MaxPages)
	}
	if c.Scraper.PageDelay < 0 {
		return fmt.Errorf("invalid page_delay %s: must not be negative", c.Scraper.PageDelay)
	}
	if c.Scraper.LastPageThreshold < 1 {
		return fmt.Errorf("invalid last_page_threshold %d: must be at least 1", c.Scraper.LastPageThreshold)
	}
	return nil
}

// Secrets are read from the environment (or .env), never from the YAML file
type Secrets struct {
	DatabaseURL       string
	SheetsCredentials string
	SpreadsheetURL    string
	BotToken          string
	AllowedUsers      []int64
}

// LoadSecrets reads the environment. DATABASE_URL wins over the DB_* parts.
func LoadSecrets() (*Secrets, error) {
	s := &Secrets{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SheetsCredentials: os.Getenv("GOOGLE_SHEETS_CREDENTIALS"),
		SpreadsheetURL:    os.Getenv("SPREADSHEET_URL"),
		BotToken:          os.Getenv("SCREENER_BOT_TOKEN"),
	}

	if s.DatabaseURL == "" && os.Getenv("DB_HOST") != "" {
		s.DatabaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			os.Getenv("DB_HOST"),
			envOr("DB_PORT", "5432"),
			envOr("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			envOr("DB_NAME", "screener"),
			envOr("DB_SSLMODE", "disable"),
		)
	}

	if raw := os.Getenv("SCREENER_ALLOWED_USERS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in SCREENER_ALLOWED_USERS: %w", part, err)
			}
			s.AllowedUsers = append(s.AllowedUsers, id)
		}
	}

	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
