package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Library struct {
		TokenTTL       string `yaml:"tokenTtl"`
		UnlockAttempts int    `yaml:"unlockAttempts"`
		UnlockWindow   string `yaml:"unlockWindow"`
	} `yaml:"library"`
	AI struct {
		Default string `yaml:"default"`
		Ollama  struct {
			URL   string `yaml:"url"`
			Model string `yaml:"model"`
		} `yaml:"ollama"`
		Anthropic ProviderConfig `yaml:"anthropic"`
		OpenAI    ProviderConfig `yaml:"openai"`
		Gemini    ProviderConfig `yaml:"gemini"`
	} `yaml:"ai"`
}

// ProviderConfig covers one hosted model API. APIKey supports ${ENV} expansion.
type ProviderConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.AI.Anthropic.APIKey = os.ExpandEnv(cfg.AI.Anthropic.APIKey)
	cfg.AI.OpenAI.APIKey = os.ExpandEnv(cfg.AI.OpenAI.APIKey)
	cfg.AI.Gemini.APIKey = os.ExpandEnv(cfg.AI.Gemini.APIKey)
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
