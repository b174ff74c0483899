package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names for credentials.
const (
	EnvSearchAPIKey   = "GOOGLE_SEARCH_API_KEY"
	EnvSearchEngineID = "GOOGLE_SEARCH_ENGINE_ID"
	EnvHCloudToken    = "HCLOUD_TOKEN"
	EnvS3Endpoint     = "S3_ENDPOINT"
	EnvS3Region       = "S3_REGION"
	EnvS3AccessKey    = "S3_ACCESS_KEY"
	EnvS3SecretKey    = "S3_SECRET_KEY"
)

// Files read when the search credentials are not in the environment.
const (
	SearchAPIKeyFile   = "api_key.txt"
	SearchEngineIDFile = "search_engine_id.txt"
)

// LoadDotEnv loads variables from a .env file without overriding variables
// that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// SearchCredentials holds the image search API key and engine id.
type SearchCredentials struct {
	APIKey   string
	EngineID string
}

// LoadSearchCredentials returns the cover search credentials from the
// environment, falling back to api_key.txt and search_engine_id.txt in dir.
// ok is false when either value is missing; cover search is then skipped.
func LoadSearchCredentials(dir string) (creds SearchCredentials, ok bool) {
	creds.APIKey = os.Getenv(EnvSearchAPIKey)
	creds.EngineID = os.Getenv(EnvSearchEngineID)

	if creds.APIKey == "" {
		creds.APIKey = readTrimmed(dir, SearchAPIKeyFile)
	}
	if creds.EngineID == "" {
		creds.EngineID = readTrimmed(dir, SearchEngineIDFile)
	}
	return creds, creds.APIKey != "" && creds.EngineID != ""
}

// S3Credentials holds object storage access settings.
type S3Credentials struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// LoadS3Credentials reads S3 settings from the environment.
func LoadS3Credentials() (S3Credentials, error) {
	creds := S3Credentials{
		Endpoint:  os.Getenv(EnvS3Endpoint),
		Region:    os.Getenv(EnvS3Region),
		AccessKey: os.Getenv(EnvS3AccessKey),
		SecretKey: os.Getenv(EnvS3SecretKey),
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return creds, fmt.Errorf("%s and %s are required for s3 archives", EnvS3AccessKey, EnvS3SecretKey)
	}
	if creds.Region == "" {
		creds.Region = "us-east-1"
	}
	return creds, nil
}

func readTrimmed(dir, name string) string {
	// #nosec G304
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
