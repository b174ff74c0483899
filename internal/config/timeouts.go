package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	RemoteShort    time.Duration // mkdir/rm on the VM
	Conversion     time.Duration // one container run
	InstanceCreate time.Duration // one zone attempt including the operation wait
	CoverFetch     time.Duration // one cover image download
	SSHMaxRetries  int           // native SSH dial attempts
	SSHRetryDelay  time.Duration // initial delay between dial attempts
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - EBOOKCAST_TIMEOUT_REMOTE_SHORT (default: 60s)
//   - EBOOKCAST_TIMEOUT_CONVERSION (default: 1h)
//   - EBOOKCAST_TIMEOUT_INSTANCE_CREATE (default: 10m)
//   - EBOOKCAST_TIMEOUT_COVER_FETCH (default: 6s)
//   - EBOOKCAST_SSH_MAX_RETRIES (default: 30)
//   - EBOOKCAST_SSH_RETRY_DELAY (default: 2s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		RemoteShort:    parseDuration("EBOOKCAST_TIMEOUT_REMOTE_SHORT", 60*time.Second),
		Conversion:     parseDuration("EBOOKCAST_TIMEOUT_CONVERSION", time.Hour),
		InstanceCreate: parseDuration("EBOOKCAST_TIMEOUT_INSTANCE_CREATE", 10*time.Minute),
		CoverFetch:     parseDuration("EBOOKCAST_TIMEOUT_COVER_FETCH", 6*time.Second),
		SSHMaxRetries:  parseInt("EBOOKCAST_SSH_MAX_RETRIES", 30),
		SSHRetryDelay:  parseDuration("EBOOKCAST_SSH_RETRY_DELAY", 2*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
