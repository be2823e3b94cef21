package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "GAZETTE_CONFIG"
	feedURLEnv         = "GAZETTE_FEED_URL"
	workersEnv         = "GAZETTE_WORKERS"
	maxEntriesEnv      = "GAZETTE_MAX_ENTRIES"
	outputDirEnv       = "GAZETTE_OUTPUT_DIR"
	themesFileEnv      = "GAZETTE_THEMES_FILE"
	logLevelEnv        = "GAZETTE_LOG_LEVEL"
	logFormatEnv       = "GAZETTE_LOG_FORMAT"
	ocrEnabledEnv      = "GAZETTE_OCR_ENABLED"
	aiProviderEnv      = "GAZETTE_AI_PROVIDER"
	openAIKeyEnv       = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	openAIBaseURLEnv   = "OPENAI_BASE_URL"
	azureKeyEnv        = "AZURE_OPENAI_API_KEY"
	azureEndpointEnv   = "AZURE_OPENAI_ENDPOINT"
	azureVersionEnv    = "AZURE_OPENAI_API_VERSION"
	azureDeploymentEnv = "AZURE_OPENAI_DEPLOYMENT"
	geminiKeyEnv       = "GEMINI_API_KEY"
	geminiModelEnv     = "GEMINI_MODEL"
	mongoURIEnv        = "MONGODB_URI"
	databaseDSNEnv     = "DATABASE_DSN"
	redisAddrEnv       = "REDIS_ADDR"
	redisPasswordEnv   = "REDIS_PASSWORD"
	supabaseURLEnv     = "SUPABASE_URL"
	supabaseKeyEnv     = "SUPABASE_KEY"
	supabaseDSNEnv     = "SUPABASE_DB_URL"
)

// Sink names accepted in Config.Sinks.
const (
	SinkFile     = "file"
	SinkMongo    = "mongo"
	SinkPostgres = "postgres"
	SinkSupabase = "supabase"
)

// Tracker names accepted in Config.Tracker.
const (
	TrackerNone  = "none"
	TrackerMongo = "mongo"
	TrackerRedis = "redis"
)

// AI providers accepted in AIConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	defaultOpenAIModel = "gpt-4.1-mini"
	defaultGeminiModel = "gemini-1.5-flash"
)

// DefaultThemes are used when no themes file can be read.
var DefaultThemes = []string{"Healthcare", "Public Health", "Medical Devices", "Pharmaceuticals"}

// Config holds every setting of a gazette run.
type Config struct {
	Feed       FeedConfig       `yaml:"feed"`
	Extraction ExtractionConfig `yaml:"extraction"`
	AI         AIConfig         `yaml:"ai"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Output     OutputConfig     `yaml:"output"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Redis      RedisConfig      `yaml:"redis"`
	Sinks      []string         `yaml:"sinks"`
	Tracker    string           `yaml:"tracker"`
	ThemesFile string           `yaml:"themesFile"`
	LogLevel   string           `yaml:"logLevel"`
	LogFormat  string           `yaml:"logFormat"`
}

// JSONLogs reports whether logs should be written as JSON lines.
func (c Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}

// FeedConfig describes the feed and how many of its entries to process.
type FeedConfig struct {
	URL          string        `yaml:"url"`
	Workers      int           `yaml:"workers"`
	MaxEntries   int           `yaml:"maxEntries"`
	LandingPages bool          `yaml:"landingPages"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
	MaxPDFBytes  int64         `yaml:"maxPdfBytes"`
	Since        string        `yaml:"since"`
	PathContains string        `yaml:"pathContains"`

	// PDFLinksOnly drops entries whose URL does not end in .pdf before
	// download. Leave it off for feeds that link to landing pages or serve
	// PDFs from query URLs; Download detects PDFs by content.
	PDFLinksOnly bool `yaml:"pdfLinksOnly"`
}

// ExtractionConfig tunes text extraction and OCR escalation.
type ExtractionConfig struct {
	QualityThreshold float64   `yaml:"qualityThreshold"`
	MinChars         int       `yaml:"minChars"`
	OCR              OCRConfig `yaml:"ocr"`
}

// OCRConfig tunes the OCR fallback.
type OCRConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Margin    float64  `yaml:"margin"`
	DPI       float64  `yaml:"dpi"`
	MaxPages  int      `yaml:"maxPages"`
	MaxPixels int      `yaml:"maxPixels"`
	Languages []string `yaml:"languages"`
}

// AIConfig defines how to contact the chat completion service. Azure OpenAI
// is the openai provider with Azure set.
type AIConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"apiKey"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"baseUrl"`
	Azure      bool          `yaml:"azure"`
	APIVersion string        `yaml:"apiVersion"`
	Timeout    time.Duration `yaml:"timeout"`
	JSONMode   bool          `yaml:"jsonMode"`
}

// TimeoutsConfig bounds each pipeline stage.
type TimeoutsConfig struct {
	Download time.Duration `yaml:"download"`
	Extract  time.Duration `yaml:"extract"`
	Review   time.Duration `yaml:"review"`
	Save     time.Duration `yaml:"save"`
}

// OutputConfig describes the JSON file sink.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// MongoConfig describes the MongoDB sink and processed ledger.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// PostgresConfig describes the Postgres sink.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// SupabaseConfig describes the Supabase sink.
type SupabaseConfig struct {
	URL              string `yaml:"url"`
	Key              string `yaml:"key"`
	ConnectionString string `yaml:"connectionString"`
	Table            string `yaml:"table"`
}

// RedisConfig describes the Redis processed ledger.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// Load reads the YAML file at path (or $GAZETTE_CONFIG when path is empty)
// over the defaults and applies environment overrides. A missing file is not
// an error; an unparsable one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			slog.Warn("config file not found, using defaults", "path", path)
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Feed: FeedConfig{
			URL:          "https://www.doh.gov.ae/en/resources/guidelines-rss-feed",
			Workers:      1,
			LandingPages: true,
			HTTPTimeout:  60 * time.Second,
			MaxPDFBytes:  50 << 20,
		},
		Extraction: ExtractionConfig{
			QualityThreshold: 70,
			MinChars:         50,
			OCR: OCRConfig{
				Enabled:   true,
				DPI:       300,
				MaxPages:  30,
				MaxPixels: 40_000_000,
				Languages: []string{"eng", "ara"},
			},
		},
		AI: AIConfig{
			Provider:   ProviderOpenAI,
			Model:      defaultOpenAIModel,
			APIVersion: "2024-10-21",
			Timeout:    5 * time.Minute,
			JSONMode:   true,
		},
		Timeouts: TimeoutsConfig{
			Download: 2 * time.Minute,
			Extract:  10 * time.Minute,
			Review:   5 * time.Minute,
			Save:     30 * time.Second,
		},
		Output:    OutputConfig{Dir: "output"},
		Mongo:     MongoConfig{Database: "gazette", Collection: "records"},
		Postgres:  PostgresConfig{Table: "gazette_records"},
		Supabase:  SupabaseConfig{Table: "gazette_records"},
		Redis:     RedisConfig{Key: "gazette:processed"},
		Sinks:     []string{SinkFile},
		Tracker:   TrackerNone,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(feedURLEnv); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv(workersEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", workersEnv, err)
		}
		c.Feed.Workers = n
	}
	if v := os.Getenv(maxEntriesEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", maxEntriesEnv, err)
		}
		c.Feed.MaxEntries = n
	}
	if v := os.Getenv(ocrEnabledEnv); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", ocrEnabledEnv, err)
		}
		c.Extraction.OCR.Enabled = b
	}
	if v := os.Getenv(outputDirEnv); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv(themesFileEnv); v != "" {
		c.ThemesFile = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.LogFormat = v
	}

	if v := os.Getenv(aiProviderEnv); v != "" {
		c.AI.Provider = strings.ToLower(v)
	}
	switch c.AI.Provider {
	case ProviderGemini:
		c.applyGeminiEnv()
	default:
		c.applyOpenAIEnv()
	}

	if v := os.Getenv(mongoURIEnv); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(supabaseURLEnv); v != "" {
		c.Supabase.URL = v
	}
	if v := os.Getenv(supabaseKeyEnv); v != "" {
		c.Supabase.Key = v
	}
	if v := os.Getenv(supabaseDSNEnv); v != "" {
		c.Supabase.ConnectionString = v
	}
	return nil
}

func (c *Config) applyOpenAIEnv() {
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv(openAIBaseURLEnv); v != "" {
		c.AI.BaseURL = v
	}

	// Azure settings win over plain OpenAI ones when an endpoint is given.
	if v := os.Getenv(azureEndpointEnv); v != "" {
		c.AI.Azure = true
		c.AI.BaseURL = v
		if key := os.Getenv(azureKeyEnv); key != "" {
			c.AI.APIKey = key
		}
	}
	if v := os.Getenv(azureVersionEnv); v != "" {
		c.AI.APIVersion = v
	}
	if v := os.Getenv(azureDeploymentEnv); v != "" {
		c.AI.Model = v
	}
}

func (c *Config) applyGeminiEnv() {
	if c.AI.Model == defaultOpenAIModel {
		c.AI.Model = defaultGeminiModel
	}
	if v := os.Getenv(geminiKeyEnv); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv(geminiModelEnv); v != "" {
		c.AI.Model = v
	}
}

// HasSink reports whether name is one of the configured sinks.
func (c Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// ParseSinks splits a comma separated sink list.
func ParseSinks(value string) []string {
	var sinks []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// LoadThemes reads a JSON array of theme names from path. It falls back to
// DefaultThemes when the path is empty, unreadable or holds no themes.
func LoadThemes(path string) []string {
	if path == "" {
		return append([]string(nil), DefaultThemes...)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("cannot read themes file, using defaults", "path", path, "error", err)
		return append([]string(nil), DefaultThemes...)
	}

	var themes []string
	if err := json.Unmarshal(raw, &themes); err != nil {
		slog.Warn("cannot parse themes file, using defaults", "path", path, "error", err)
		return append([]string(nil), DefaultThemes...)
	}

	out := themes[:0]
	for _, t := range themes {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultThemes...)
	}
	return out
}
