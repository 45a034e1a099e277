package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Index    IndexConfig    `yaml:"index"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// PipelineConfig holds batch and per-document processing configuration
type PipelineConfig struct {
	Workers     int           `yaml:"workers"`
	UploadDir   string        `yaml:"upload_dir"`
	TempDir     string        `yaml:"temp_dir"`
	MaxNameLen  int           `yaml:"max_name_len"`
	TaskTimeout time.Duration `yaml:"task_timeout"` // 0 = none
	QueueSize   int           `yaml:"queue_size"`
}

// StorageConfig selects where draft and final records live
type StorageConfig struct {
	Backend   string `yaml:"backend"` // fs | minio | gcs
	DraftDir  string `yaml:"draft_dir"`
	FinalDir  string `yaml:"final_dir"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// IndexConfig selects the searchable store for finalized records
type IndexConfig struct {
	Backend         string        `yaml:"backend"` // badger | sql | firestore
	Path            string        `yaml:"path"`
	Driver          string        `yaml:"driver"` // postgres | sqlite
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ProjectID       string        `yaml:"project_id"`
	Collection      string        `yaml:"collection"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Strategy      string `yaml:"strategy"` // auto | fast | hi_res
	InferTables   bool   `yaml:"infer_tables"`
	Lang          string `yaml:"lang"`
	DPI           int    `yaml:"dpi"`
	MaxPages      int    `yaml:"max_pages"`
	PageWorkers   int    `yaml:"page_workers"`
	TessdataDir   string `yaml:"tessdata_dir"`
	HeicConverter string `yaml:"heic_converter"`
}

// LLMConfig holds structuring-service configuration
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // openai | langchain | vertex
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests/second, 0 = unlimited
	RateBurst      int           `yaml:"rate_burst"`
	EmbeddingModel string        `yaml:"embedding_model"`
	ProjectID      string        `yaml:"project_id"`
	Region         string        `yaml:"region"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:    ":5000",
			GRPCAddr:    ":5001",
			MaxUploadMB: 64,
		},
		Pipeline: PipelineConfig{
			Workers:    4,
			UploadDir:  "uploads",
			TempDir:    "temp",
			MaxNameLen: 128,
			QueueSize:  256,
		},
		Storage: StorageConfig{
			Backend:  "fs",
			DraftDir: "drafts",
			FinalDir: "finalized",
			Region:   "us-east-1",
		},
		Index: IndexConfig{
			Backend:         "badger",
			Path:            "db",
			Driver:          "sqlite",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			DialTimeout:     3 * time.Second,
			Collection:      "finalized_jsons",
		},
		OCR: OCRConfig{
			Strategy:      "auto",
			InferTables:   true,
			Lang:          "eng",
			DPI:           300,
			PageWorkers:   2,
			HeicConverter: "magick",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini-2024-07-18",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.0,
			Timeout:     90 * time.Second,
			RateBurst:   1,
			Region:      "us-central1",
		},
	}
}

// LoadConfig loads configuration from an optional YAML file (CONFIG_FILE)
// and then from environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError("CONFIG_ERROR", "decode config file "+path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", c.Server.MaxUploadMB)

	c.Pipeline.Workers = getEnvAsInt("MAX_FILE_PROCESSING_THREADS", c.Pipeline.Workers)
	c.Pipeline.UploadDir = getEnv("UPLOAD_DIR", c.Pipeline.UploadDir)
	c.Pipeline.TempDir = getEnv("TEMP_DIR", c.Pipeline.TempDir)
	c.Pipeline.MaxNameLen = getEnvAsInt("MAX_NAME_LEN", c.Pipeline.MaxNameLen)
	c.Pipeline.TaskTimeout = getEnvAsDuration("TASK_TIMEOUT", c.Pipeline.TaskTimeout)
	c.Pipeline.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Pipeline.QueueSize)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.DraftDir = getEnv("DRAFT_DIR", c.Storage.DraftDir)
	c.Storage.FinalDir = getEnv("FINAL_DIR", c.Storage.FinalDir)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.UseSSL = getEnvAsBool("STORAGE_USE_SSL", c.Storage.UseSSL)
	c.Storage.Region = getEnv("STORAGE_REGION", c.Storage.Region)

	c.Index.Backend = getEnv("INDEX_BACKEND", c.Index.Backend)
	c.Index.Path = getEnv("INDEX_PATH", c.Index.Path)
	c.Index.Driver = getEnv("INDEX_DRIVER", c.Index.Driver)
	c.Index.DSN = getEnv("DB_URL", c.Index.DSN)
	c.Index.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Index.MaxConns)
	c.Index.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Index.MinConns)
	c.Index.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Index.MaxConnLifetime)
	c.Index.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Index.DialTimeout)
	c.Index.ProjectID = getEnv("GCP_PROJECT_ID", c.Index.ProjectID)
	c.Index.Collection = getEnv("INDEX_COLLECTION", c.Index.Collection)

	c.OCR.Strategy = getEnv("OCR_STRATEGY", c.OCR.Strategy)
	c.OCR.InferTables = getEnvAsBool("OCR_INFER_TABLES", c.OCR.InferTables)
	c.OCR.Lang = getEnv("OCR_LANG", c.OCR.Lang)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.MaxPages = getEnvAsInt("OCR_MAX_PAGES", c.OCR.MaxPages)
	c.OCR.PageWorkers = getEnvAsInt("OCR_PAGE_WORKERS", c.OCR.PageWorkers)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.HeicConverter = getEnv("HEIC_CONVERTER", c.OCR.HeicConverter)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", getEnv("API_KEY", c.LLM.APIKey))
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", c.LLM.Timeout)
	c.LLM.RateLimit = getEnvAsFloat64("LLM_RATE_LIMIT", c.LLM.RateLimit)
	c.LLM.RateBurst = getEnvAsInt("LLM_RATE_BURST", c.LLM.RateBurst)
	c.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.ProjectID = getEnv("GCP_PROJECT_ID", c.LLM.ProjectID)
	c.LLM.Region = getEnv("GCP_REGION", c.LLM.Region)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "MAX_FILE_PROCESSING_THREADS must be at least 1", ErrInvalidInput)
	}
	if c.Pipeline.MaxNameLen < 48 {
		return NewAppError("CONFIG_ERROR", "MAX_NAME_LEN must leave room for the unique id", ErrInvalidInput)
	}
	if !oneOf(c.Storage.Backend, "fs", "minio", "gcs") {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown STORAGE_BACKEND %q", c.Storage.Backend), ErrInvalidInput)
	}
	if c.Storage.Backend != "fs" && c.Storage.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_BUCKET is required for "+c.Storage.Backend, ErrInvalidInput)
	}
	if !oneOf(c.Index.Backend, "badger", "sql", "firestore") {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown INDEX_BACKEND %q", c.Index.Backend), ErrInvalidInput)
	}
	if c.Index.Backend == "sql" && c.Index.Driver == "postgres" && c.Index.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required for the postgres index", ErrInvalidInput)
	}
	if c.Index.Backend == "firestore" && c.Index.ProjectID == "" {
		return NewAppError("CONFIG_ERROR", "GCP_PROJECT_ID is required for the firestore index", ErrInvalidInput)
	}
	if !oneOf(c.OCR.Strategy, "auto", "fast", "hi_res") {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown OCR_STRATEGY %q", c.OCR.Strategy), ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "openai", "langchain":
		if c.LLM.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case "vertex":
		if c.LLM.ProjectID == "" {
			return NewAppError("CONFIG_ERROR", "GCP_PROJECT_ID is required for vertex", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider), ErrInvalidInput)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
