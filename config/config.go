// Package config provides configuration for the chat server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Upstream completion provider (OpenAI-compatible)
	OpenRouterURL    string
	OpenRouterAPIKey string
	Model            string
	LLMTimeout       time.Duration
	SystemPrompt     string

	// Uploaded image storage
	UploadDir string

	// Optional retrieval backend (Supabase REST)
	SupabaseURL string
	SupabaseKey string

	// Logging
	LogLevel string
}

// DefaultSystemPrompt is the fixed instruction sent with every completion
// request. It defines the response format contract for the agent.
const DefaultSystemPrompt = `You are a multimodal AI agent. Follow this exact format for all responses:

Answer:
<clear explanation of the result>

If image analysis was performed:
What was found on the image:
- ...

Agent actions:
- sent request to API
- received response
- formed final result

Always follow this structure precisely.`

// Load loads configuration from a .env file (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 5000),
		DatabaseURL:      getEnv("DATABASE_URL", "file:chat.db?cache=shared&mode=rwc"),
		OpenRouterURL:    getEnv("OPENROUTER_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		Model:            getEnv("LLM_MODEL", "openai/gpt-4o"),
		LLMTimeout:       time.Duration(getEnvInt("LLM_TIMEOUT_MS", 300000)) * time.Millisecond,
		SystemPrompt:     getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),
		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		SupabaseURL:      getEnv("SUPABASE_URL", ""),
		SupabaseKey:      getEnv("SUPABASE_KEY", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
