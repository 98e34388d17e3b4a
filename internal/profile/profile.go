package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/notecrew/ai/core/llm"
)

// Profile is configuration to start main server.
type Profile struct {
	Mode    string
	Addr    string
	Port    int
	Version string

	// Logging
	LogLevel  string // DEBUG, INFO, WARN, ERROR
	LogFormat string // json, text
	LogDir    string // empty disables the log file

	// LLM configuration (DashScope OpenAI-compatible protocol)
	LLMAPIKey         string
	LLMModel          string // text model
	LLMImageModel     string // vision model used by the image agents
	LLMRegion         string // cn, intl, finance
	LLMBaseURL        string // overrides LLMRegion when set
	LLMTimeout        int    // seconds per attempt
	LLMRetryCount     int    // 0..10
	LLMRetryBackoffMs int
	LLMRateLimit      float64 // requests per second, 0 = unlimited
	LLMTemperature    *float32

	// Image staging
	ImageMaxSize int // long edge in pixels
	ImageQuality int // JPEG quality 1..100
	MaxImages    int

	// Crew execution
	CrewTimeout     int // seconds per phase
	CrewMaxParallel int

	// Data is the output directory for staged uploads and the sqlite database.
	Data        string
	TemplateDir string
	APIKeys     []string

	Driver string
	DSN    string
}

const (
	defaultPort          = 8072
	defaultLLMModel      = "qwen-plus"
	defaultImageModel    = "qwen3-vl-plus"
	defaultLLMTimeout    = 600
	defaultRetryCount    = 3
	maxRetryCount        = 10
	defaultRetryBackoff  = 500
	defaultImageMaxSize  = 1024
	defaultImageQuality  = 85
	defaultMaxImages     = 20
	defaultCrewTimeout   = 600
	defaultCrewParallel  = 4
	defaultDataDir       = "./data/output"
	defaultLogDir        = "./logs"
	defaultDriver        = "sqlite"
	defaultRegion        = "cn"
	defaultLogFormat     = "json"
	defaultLogLevel      = "INFO"
	developmentMode      = "dev"
	productionMode       = "prod"
	apiKeyEnvFallbackOne = "QWEN_API_KEY"
	apiKeyEnvFallbackTwo = "DASHSCOPE_API_KEY"
)

var (
	supportedRegions = []string{"cn", "intl", "finance"}
	supportedDrivers = []string{"sqlite", "postgres"}
)

func (p *Profile) IsDev() bool {
	return p.Mode != productionMode
}

// IsAIEnabled returns true if the LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// AuthRequired reports whether API requests must carry an X-API-Key.
// Development instances without configured keys stay open.
func (p *Profile) AuthRequired() bool {
	return len(p.APIKeys) > 0 || !p.IsDev()
}

// LLMConfig returns the client configuration of the LLM adapter.
func (p *Profile) LLMConfig() llm.Config {
	return llm.Config{
		APIKey:       p.LLMAPIKey,
		Region:       p.LLMRegion,
		BaseURL:      p.LLMBaseURL,
		Model:        p.LLMModel,
		VisionModel:  p.LLMImageModel,
		Temperature:  p.LLMTemperature,
		Timeout:      time.Duration(p.LLMTimeout) * time.Second,
		RetryCount:   p.LLMRetryCount,
		RetryBackoff: time.Duration(p.LLMRetryBackoffMs) * time.Millisecond,
		RateLimit:    p.LLMRateLimit,
	}
}

// CrewTimeoutDuration returns the per-phase crew budget.
func (p *Profile) CrewTimeoutDuration() time.Duration {
	return time.Duration(p.CrewTimeout) * time.Second
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("Invalid number in environment, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FromEnv loads configuration from environment variables. Fields already set
// from command line flags (mode, addr, port, data, driver, dsn, log level)
// are kept.
func (p *Profile) FromEnv() {
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("NOTECREW_MODE", developmentMode)
	}
	if p.Addr == "" {
		p.Addr = os.Getenv("NOTECREW_ADDR")
	}
	if p.Port == 0 {
		p.Port = getEnvOrDefaultInt("NOTECREW_PORT", defaultPort)
	}

	if p.LogLevel == "" {
		p.LogLevel = getEnvOrDefault("NOTECREW_LOG_LEVEL", getEnvOrDefault("LOG_LEVEL", defaultLogLevel))
	}
	if p.LogFormat == "" {
		p.LogFormat = getEnvOrDefault("NOTECREW_LOG_FORMAT", defaultLogFormat)
	}
	if p.LogDir == "" {
		p.LogDir = getEnvOrDefault("NOTECREW_LOG_DIR", defaultLogDir)
	}

	// LLM configuration
	p.LLMAPIKey = firstEnv("NOTECREW_LLM_API_KEY", apiKeyEnvFallbackOne, apiKeyEnvFallbackTwo)
	p.LLMModel = getEnvOrDefault("NOTECREW_LLM_MODEL", defaultLLMModel)
	p.LLMImageModel = getEnvOrDefault("NOTECREW_LLM_IMAGE_MODEL", defaultImageModel)
	p.LLMRegion = getEnvOrDefault("NOTECREW_LLM_REGION", defaultRegion)
	p.LLMBaseURL = os.Getenv("NOTECREW_LLM_BASE_URL")
	p.LLMTimeout = getEnvOrDefaultInt("NOTECREW_LLM_TIMEOUT", defaultLLMTimeout)
	p.LLMRetryCount = getEnvOrDefaultInt("NOTECREW_LLM_RETRY_COUNT", defaultRetryCount)
	p.LLMRetryBackoffMs = getEnvOrDefaultInt("NOTECREW_LLM_RETRY_BACKOFF_MS", defaultRetryBackoff)
	p.LLMRateLimit = getEnvOrDefaultFloat("NOTECREW_LLM_RATE_LIMIT", 0)
	p.LLMTemperature = nil
	if value := os.Getenv("NOTECREW_LLM_TEMPERATURE"); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			t := float32(f)
			p.LLMTemperature = &t
		} else {
			slog.Warn("Invalid LLM temperature, leaving it unset", "value", value)
		}
	}

	// Image staging
	p.ImageMaxSize = getEnvOrDefaultInt("NOTECREW_IMAGE_MAX_SIZE", defaultImageMaxSize)
	p.ImageQuality = getEnvOrDefaultInt("NOTECREW_IMAGE_QUALITY", defaultImageQuality)
	p.MaxImages = getEnvOrDefaultInt("NOTECREW_MAX_IMAGES", defaultMaxImages)

	// Crew
	p.CrewTimeout = getEnvOrDefaultInt("NOTECREW_CREW_TIMEOUT", defaultCrewTimeout)
	p.CrewMaxParallel = getEnvOrDefaultInt("NOTECREW_CREW_MAX_PARALLEL", defaultCrewParallel)

	if p.Data == "" {
		p.Data = getEnvOrDefault("NOTECREW_DATA_DIR", defaultDataDir)
	}
	p.TemplateDir = os.Getenv("NOTECREW_TEMPLATE_DIR")
	p.APIKeys = splitList(os.Getenv("NOTECREW_API_KEYS"))

	if p.Driver == "" {
		p.Driver = getEnvOrDefault("NOTECREW_DRIVER", defaultDriver)
	}
	if p.DSN == "" {
		p.DSN = os.Getenv("NOTECREW_DSN")
	}
}

func checkDataDir(dataDir string) (string, error) {
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return "", errors.Wrapf(err, "unable to resolve data folder %s", dataDir)
	}

	// Trim trailing \ or / in case user supplies
	absDir = strings.TrimRight(absDir, "\\/")
	if err := os.MkdirAll(absDir, 0o770); err != nil {
		return "", errors.Wrapf(err, "unable to create data folder %s", absDir)
	}
	return absDir, nil
}

// clamp replaces a non-positive value with its default.
func clamp(name string, v *int, def int) {
	if *v <= 0 {
		slog.Warn("Non-positive setting, using default", "setting", name, "value", *v, "default", def)
		*v = def
	}
}

// Validate normalizes the profile and rejects settings the server cannot run with.
func (p *Profile) Validate() error {
	if p.Mode != developmentMode && p.Mode != productionMode {
		slog.Warn("Unknown mode, using dev", "mode", p.Mode)
		p.Mode = developmentMode
	}
	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	if p.LLMRetryCount < 0 || p.LLMRetryCount > maxRetryCount {
		return errors.Errorf("llm retry count must be between 0 and %d, got %d", maxRetryCount, p.LLMRetryCount)
	}
	if p.ImageQuality < 1 || p.ImageQuality > 100 {
		return errors.Errorf("image quality must be between 1 and 100, got %d", p.ImageQuality)
	}
	if p.LLMBaseURL == "" && !slices.Contains(supportedRegions, p.LLMRegion) {
		return errors.Errorf("unsupported llm region %q (expected %s)", p.LLMRegion, strings.Join(supportedRegions, ", "))
	}
	if p.LLMRateLimit < 0 {
		p.LLMRateLimit = 0
	}
	if p.LLMRetryBackoffMs < 0 {
		p.LLMRetryBackoffMs = defaultRetryBackoff
	}
	clamp("llm timeout", &p.LLMTimeout, defaultLLMTimeout)
	clamp("image max size", &p.ImageMaxSize, defaultImageMaxSize)
	clamp("max images", &p.MaxImages, defaultMaxImages)
	clamp("crew timeout", &p.CrewTimeout, defaultCrewTimeout)
	clamp("crew max parallel", &p.CrewMaxParallel, defaultCrewParallel)

	if !slices.Contains(supportedDrivers, p.Driver) {
		return errors.Errorf("unsupported database driver %q (expected %s)", p.Driver, strings.Join(supportedDrivers, ", "))
	}

	if p.Mode == productionMode && len(p.APIKeys) == 0 {
		return errors.New("NOTECREW_API_KEYS is required in prod mode")
	}

	if p.Data == "" {
		p.Data = defaultDataDir
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("notecrew_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	return nil
}
