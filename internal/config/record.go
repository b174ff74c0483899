package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultRecordFile is the connection record path used by both commands.
const DefaultRecordFile = "gcp_config.json"

// Provider names stored in a Record.
const (
	ProviderGCE    = "gce"
	ProviderHCloud = "hcloud"
)

// ErrRecordNotFound is returned when the connection record file does not exist.
var ErrRecordNotFound = errors.New("connection record not found")

// Record holds the connection details of a provisioned VM.
//
// The four upper-case fields are the on-disk format shared with earlier
// tooling. Provider and Host are only written for non-GCE machines.
type Record struct {
	ProjectID    string `json:"GCP_PROJECT_ID"`
	Zone         string `json:"GCP_ZONE"`
	InstanceName string `json:"INSTANCE_NAME"`
	RemoteUser   string `json:"REMOTE_USER"`
	Provider     string `json:"PROVIDER,omitempty"`
	Host         string `json:"HOST,omitempty"`
}

// Validate checks that every required field is set.
func (r Record) Validate() error {
	var missing []string
	if r.ProjectID == "" {
		missing = append(missing, "GCP_PROJECT_ID")
	}
	if r.Zone == "" {
		missing = append(missing, "GCP_ZONE")
	}
	if r.InstanceName == "" {
		missing = append(missing, "INSTANCE_NAME")
	}
	if r.RemoteUser == "" {
		missing = append(missing, "REMOTE_USER")
	}
	if len(missing) > 0 {
		return fmt.Errorf("connection record is missing fields: %s", strings.Join(missing, ", "))
	}
	if r.ProviderName() == ProviderHCloud && r.Host == "" {
		return fmt.Errorf("connection record for %s requires HOST", ProviderHCloud)
	}
	return nil
}

// ProviderName returns the provider, defaulting to GCE for records
// written without one.
func (r Record) ProviderName() string {
	if r.Provider == "" {
		return ProviderGCE
	}
	return r.Provider
}

// RemoteHome returns the home directory of the remote user.
func (r Record) RemoteHome() string {
	if r.RemoteUser == "root" {
		return "/root"
	}
	return "/home/" + r.RemoteUser
}

// Target returns the user@instance address used by gcloud ssh/scp.
func (r Record) Target() string {
	return r.RemoteUser + "@" + r.InstanceName
}

// WriteRecord writes rec to path as indented JSON, replacing any existing file.
func WriteRecord(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode connection record: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write connection record %s: %w", path, err)
	}
	return nil
}

// LoadRecord reads and validates the connection record at path.
func LoadRecord(path string) (Record, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s (run 'ebookcast provision' first)", ErrRecordNotFound, path)
		}
		return Record{}, fmt.Errorf("failed to read connection record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse connection record %s: %w", path, err)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RemoteUser derives the remote login name from an account e-mail:
// the local part with dots replaced by underscores.
func RemoteUser(account string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(account), "@")
	return strings.ReplaceAll(local, ".", "_")
}
