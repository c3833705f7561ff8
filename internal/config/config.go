// Package config provides XML-based configuration for the readtext server and CLI.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"Readtext"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// External converter commands
	Converters ConvertersConfig `xml:"Converters"`

	// S3 credentials for s3:// inputs
	S3 S3Config `xml:"S3"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
	// AllowFileDeletion exposes DELETE /api/files/:id
	AllowFileDeletion bool `xml:"AllowFileDeletion"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	TempDirectory    string `xml:"TempDirectory"`
}

// ProcessingConfig contains ingestion settings
type ProcessingConfig struct {
	Workers                 int  `xml:"Workers"`
	ConverterTimeoutSeconds int  `xml:"ConverterTimeoutSeconds"`
	FetchTimeoutSeconds     int  `xml:"FetchTimeoutSeconds"`
	JobTimeoutMinutes       int  `xml:"JobTimeoutMinutes"`
	CleanupIntervalMinutes  int  `xml:"CleanupIntervalMinutes"`
	EnableCompression       bool `xml:"EnableCompression"`
	CompressionLevel        int  `xml:"CompressionLevel"`
	AllowRemoteInputs       bool `xml:"AllowRemoteInputs"`
	AllowLocalPaths         bool `xml:"AllowLocalPaths"`
}

// ConvertersConfig names the executables used for binary formats.
type ConvertersConfig struct {
	Antiword  string `xml:"Antiword"`
	Pdftotext string `xml:"Pdftotext"`
	// UseDocconvFallback retries failed doc/pdf conversions through docconv.
	UseDocconvFallback bool `xml:"UseDocconvFallback"`
}

// S3Config contains credentials for s3:// inputs. Empty keys fall back to
// the default AWS credential chain.
type S3Config struct {
	Region    string `xml:"Region"`
	AccessKey string `xml:"AccessKey"`
	SecretKey string `xml:"SecretKey"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	Verbosity            int  `xml:"Verbosity"`
	EnableRequestLogging bool `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "512M",

			AllowFileDeletion: true,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			TempDirectory:    "./data/temp",
		},
		Processing: ProcessingConfig{
			Workers:                 4,
			ConverterTimeoutSeconds: 60,
			FetchTimeoutSeconds:     120,
			JobTimeoutMinutes:       30,
			CleanupIntervalMinutes:  5,
			EnableCompression:       true,
			CompressionLevel:        5,
			AllowRemoteInputs:       true,
			AllowLocalPaths:         false,
		},
		Converters: ConvertersConfig{
			Antiword:           "antiword",
			Pdftotext:          "pdftotext",
			UseDocconvFallback: true,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Advanced: AdvancedConfig{
			Verbosity:            1,
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// .env values become visible to the environment overrides below
	_ = godotenv.Load()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- readtext configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.TempDirectory = filepath.Join(dataDir, "temp")
	}

	if tempDir := os.Getenv("READTEXT_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}

	if v := os.Getenv("READTEXT_VERBOSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Advanced.Verbosity = n
		}
	}

	if v := os.Getenv("READTEXT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Processing.Workers = n
		}
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		c.S3.Region = region
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		c.S3.AccessKey = key
	}
	if secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); secret != "" {
		c.S3.SecretKey = secret
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.TempDirectory) {
		c.Storage.TempDirectory = filepath.Join(configDir, c.Storage.TempDirectory)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetTempDir returns the absolute temp directory path
func (c *AppConfig) GetTempDir() string {
	return c.Storage.TempDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ConverterTimeout returns the per-file converter timeout; zero disables it.
func (c *AppConfig) ConverterTimeout() time.Duration {
	return time.Duration(c.Processing.ConverterTimeoutSeconds) * time.Second
}

// FetchTimeout returns the timeout for one remote fetch.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Processing.FetchTimeoutSeconds) * time.Second
}

// AllowedOrigins splits AllowOrigins into a list, defaulting to "*".
func (c *AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
