package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings, loaded from the environment with an
// optional .env file for development.
type Config struct {
	AppName string
	Port    int

	// SecretKey feeds the credential vault KDF and HS256 token verification.
	// Must be stable across restarts or stored passwords become unreadable.
	SecretKey string

	DatabasePath string
	RedisURL     string

	CORSOrigins []string

	// Bedrock / SQL generation
	BedrockEnabled     bool
	AWSRegion          string
	BedrockModelID     string
	BedrockMaxTokens   int
	BedrockTemperature float64
}

// Load reads configuration from the environment. A missing .env file is not
// an error; a short SECRET_KEY is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	key := os.Getenv("SECRET_KEY")
	if len(key) < 32 {
		return nil, errors.New("SECRET_KEY must be set and at least 32 characters")
	}

	cfg := &Config{
		AppName:            "DataPilot",
		Port:               envInt("PORT", 8000),
		SecretKey:          key,
		DatabasePath:       envStr("DATAPILOT_DB", "datapilot.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		CORSOrigins:        envList("CORS_ORIGINS", "http://localhost:3000"),
		BedrockEnabled:     envBool("BEDROCK_ENABLED", false),
		AWSRegion:          envStr("AWS_REGION", "us-east-1"),
		BedrockModelID:     envStr("BEDROCK_MODEL_ID", "anthropic.claude-3-sonnet-20240229-v1:0"),
		BedrockMaxTokens:   envInt("BEDROCK_MAX_TOKENS", 1024),
		BedrockTemperature: envFloat("BEDROCK_TEMPERATURE", 0.1),
	}

	return cfg, nil
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(name string, def bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envList(name, def string) []string {
	raw := envStr(name, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
