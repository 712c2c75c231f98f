package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`
}

// ProviderConfig configures one generation backend. Name is the role label
// the orchestrator tries in list order ("primary", "secondary"); Type picks
// the transport variant.
type ProviderConfig struct {
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	Model           string   `yaml:"model"`
	Temperature     float64  `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	Timeout         Duration `yaml:"timeout"`
	BaseURL         string   `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the key, so the
	// config file itself never carries credentials.
	APIKeyEnv string `yaml:"api_key_env"`
}

type SummaryConfig struct {
	// TruncationBudgetChars bounds the flattened patient context; 0 means
	// unlimited.
	TruncationBudgetChars   int  `yaml:"truncation_budget_chars"`
	IncludeCitationsDefault bool `yaml:"include_citations_default"`
}

type Config struct {
	Env       string           `yaml:"env"`
	HTTP      HTTPConfig       `yaml:"http"`
	DataDir   string           `yaml:"data_dir"`
	Summary   SummaryConfig    `yaml:"summary"`
	Providers []ProviderConfig `yaml:"providers"`
}

const (
	ProviderTypeGemini     = "gemini"
	ProviderTypeOpenAIChat = "openai_chat"
	ProviderTypeMock       = "mock"
)
