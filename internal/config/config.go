package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Isydoria/lighton-workflow-generator/internal/paradigm"
)

// Config holds service configuration.
type Config struct {
	ServerAddr  string
	DatabaseURL string

	ParadigmAPIKey  string
	ParadigmBaseURL string

	ChatModel          string
	SearchFallbackTool string

	ExecutionTimeout time.Duration
	IngestPoll       paradigm.PollPolicy
	AnalysisPoll     paradigm.PollPolicy

	WorkflowTTL   time.Duration
	SweepInterval time.Duration

	CORSOrigins []string
}

// Load reads configuration from environment. DATABASE_URL is optional;
// without it the service runs on in-memory storage.
func Load() (*Config, error) {
	apiKey := os.Getenv("PARADIGM_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("PARADIGM_API_KEY is required")
	}

	cfg := &Config{
		ServerAddr:  getenv("SERVER_ADDR", "0.0.0.0:8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		ParadigmAPIKey:  apiKey,
		ParadigmBaseURL: getenv("PARADIGM_BASE_URL", paradigm.DefaultBaseURL),

		ChatModel:          getenv("CHAT_MODEL", paradigm.DefaultChatModel),
		SearchFallbackTool: getenv("SEARCH_FALLBACK_TOOL", paradigm.ToolVisionSearch),

		ExecutionTimeout: parseDuration(os.Getenv("EXECUTION_TIMEOUT"), 30*time.Minute),
		IngestPoll: paradigm.PollPolicy{
			MaxWait:  parseDuration(os.Getenv("INGEST_MAX_WAIT"), paradigm.DefaultIngestPoll.MaxWait),
			Interval: parseDuration(os.Getenv("INGEST_POLL_INTERVAL"), paradigm.DefaultIngestPoll.Interval),
		},
		AnalysisPoll: paradigm.PollPolicy{
			MaxWait:  parseDuration(os.Getenv("ANALYSIS_MAX_WAIT"), paradigm.DefaultAnalysisPoll.MaxWait),
			Interval: parseDuration(os.Getenv("ANALYSIS_POLL_INTERVAL"), paradigm.DefaultAnalysisPoll.Interval),
		},

		WorkflowTTL:   parseDuration(os.Getenv("WORKFLOW_TTL"), 24*time.Hour),
		SweepInterval: parseDuration(os.Getenv("SWEEP_INTERVAL"), 10*time.Minute),

		CORSOrigins: splitList(getenv("CORS_ORIGINS", "*")),
	}

	return cfg, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
