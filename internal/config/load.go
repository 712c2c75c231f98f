package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a value like \"45s\": %w", err)
	}
	d.Duration = dd
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
		},
		DataDir: "data",
		Summary: SummaryConfig{
			TruncationBudgetChars:   20000,
			IncludeCitationsDefault: true,
		},
		Providers: []ProviderConfig{
			{Name: "primary", Type: ProviderTypeMock},
		},
	}
}

// Load builds the configuration value object once at startup: defaults,
// optional YAML file, then env overrides, then validation.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("CB_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		var loaded Config
		if err := yaml.Unmarshal(b, &loaded); err != nil {
			return nil, err
		}
		*cfg = loaded
	}

	if v := strings.TrimSpace(os.Getenv("LOG_MODE")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("CB_HTTP_ADDR")); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CB_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}

	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}
	if cfg.HTTP.ReadHeaderTimeout.Duration <= 0 {
		cfg.HTTP.ReadHeaderTimeout = Duration{Duration: 5 * time.Second}
	}
	if cfg.HTTP.IdleTimeout.Duration <= 0 {
		cfg.HTTP.IdleTimeout = Duration{Duration: 2 * time.Minute}
	}
	if cfg.HTTP.ShutdownTimeout.Duration <= 0 {
		cfg.HTTP.ShutdownTimeout = Duration{Duration: 15 * time.Second}
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "data"
	}
	if cfg.Summary.TruncationBudgetChars < 0 {
		return nil, errors.New("summary.truncation_budget_chars must be >= 0")
	}

	if len(cfg.Providers) == 0 {
		return nil, errors.New("config must define at least one provider")
	}
	seen := map[string]bool{}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, errors.New("provider name is required")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true

		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		switch p.Type {
		case ProviderTypeGemini:
			if p.Model == "" {
				p.Model = "gemini-1.5-flash"
			}
			if p.APIKeyEnv == "" {
				p.APIKeyEnv = "GEMINI_API_KEY"
			}
			if p.BaseURL == "" {
				p.BaseURL = "https://generativelanguage.googleapis.com"
			}
		case ProviderTypeOpenAIChat:
			if p.Model == "" {
				p.Model = "gpt-4o"
			}
			if p.APIKeyEnv == "" {
				p.APIKeyEnv = "OPENAI_API_KEY"
			}
			if p.BaseURL == "" {
				p.BaseURL = "https://api.openai.com"
			}
		case ProviderTypeMock:
		default:
			return nil, fmt.Errorf("provider %q has unsupported type %q", p.Name, p.Type)
		}
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")

		if p.Temperature < 0 || p.Temperature > 2 {
			return nil, fmt.Errorf("provider %q temperature out of range", p.Name)
		}
		if p.Temperature == 0 {
			p.Temperature = 0.3
		}
		if p.MaxOutputTokens <= 0 {
			p.MaxOutputTokens = 8192
		}
		if p.Timeout.Duration <= 0 {
			p.Timeout = Duration{Duration: 45 * time.Second}
		}
	}

	return cfg, nil
}
