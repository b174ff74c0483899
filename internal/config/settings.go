package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is the settings path used when no --settings flag is given.
const DefaultSettingsFile = "ebookcast.yaml"

// DefaultLanguageCode is assigned to multilingual books whose language
// directory has no entry in the language map.
const DefaultLanguageCode = "en"

// Settings is the optional YAML configuration of a run.
type Settings struct {
	VM               VMShape           `yaml:"vm"`
	HCloud           HCloudShape       `yaml:"hcloud"`
	LanguageMap      map[string]string `yaml:"languageMap"`
	VITSLanguages    []string          `yaml:"vitsLanguages"`
	ManualExclusions []string          `yaml:"manualExclusions"`
}

// VMShape describes the Compute Engine instance to create.
type VMShape struct {
	MachineType       string   `yaml:"machineType"`
	GPUType           string   `yaml:"gpuType"`
	GPUCount          int64    `yaml:"gpuCount"`
	GPUMetricName     string   `yaml:"gpuMetricName"`
	ImageFamily       string   `yaml:"imageFamily"`
	ImageProject      string   `yaml:"imageProject"`
	DiskSizeGB        int64    `yaml:"diskSizeGB"`
	Scopes            []string `yaml:"scopes"`
	MaintenancePolicy string   `yaml:"maintenancePolicy"`
}

// HCloudShape describes the Hetzner Cloud server to create.
type HCloudShape struct {
	ServerType     string   `yaml:"serverType"`
	Image          string   `yaml:"image"`
	SSHKeys        []string `yaml:"sshKeys"`
	PrivateKeyPath string   `yaml:"privateKeyPath"`
}

// DefaultSettings returns the built-in settings. The L4 shape is the one
// that converts fastest per dollar for the TTS container.
func DefaultSettings() *Settings {
	return &Settings{
		VM: VMShape{
			MachineType:       "g2-standard-32",
			GPUType:           "nvidia-l4",
			GPUCount:          1,
			GPUMetricName:     "NVIDIA_L4_GPUS",
			ImageFamily:       "pytorch-latest-cu124-debian-11",
			ImageProject:      "deeplearning-platform-release",
			DiskSizeGB:        200,
			Scopes:            []string{"https://www.googleapis.com/auth/cloud-platform"},
			MaintenancePolicy: "TERMINATE",
		},
		HCloud: HCloudShape{
			ServerType:     "ccx33",
			Image:          "ubuntu-24.04",
			PrivateKeyPath: "~/.ssh/id_ebookcast",
		},
		LanguageMap: map[string]string{},
	}
}

// LoadSettings reads the settings file at path on top of the defaults.
// A missing file is not an error: the defaults are returned with found=false.
func LoadSettings(path string) (s *Settings, found bool, err error) {
	s = DefaultSettings()

	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, false, nil
		}
		return nil, false, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal settings yaml: %w", err)
	}
	s.normalize()

	if err := s.Validate(); err != nil {
		return nil, true, fmt.Errorf("settings validation failed: %w", err)
	}
	return s, true, nil
}

// normalize lower-cases language map keys so lookups are case-insensitive.
func (s *Settings) normalize() {
	m := make(map[string]string, len(s.LanguageMap))
	for k, v := range s.LanguageMap {
		m[strings.ToLower(k)] = v
	}
	s.LanguageMap = m
}

// Validate checks the settings for values that would make every zone attempt fail.
func (s *Settings) Validate() error {
	if s.VM.MachineType == "" {
		return fmt.Errorf("vm.machineType is required")
	}
	if s.VM.GPUType == "" {
		return fmt.Errorf("vm.gpuType is required")
	}
	if s.VM.GPUCount < 1 {
		return fmt.Errorf("vm.gpuCount must be at least 1, got %d", s.VM.GPUCount)
	}
	if s.VM.DiskSizeGB < 10 {
		return fmt.Errorf("vm.diskSizeGB must be at least 10, got %d", s.VM.DiskSizeGB)
	}
	for dir, code := range s.LanguageMap {
		if code == "" {
			return fmt.Errorf("languageMap entry %q has an empty code", dir)
		}
	}
	return nil
}

// LanguageCode maps a language directory name to its language code.
func (s *Settings) LanguageCode(dir string) string {
	if code, ok := s.LanguageMap[strings.ToLower(dir)]; ok {
		return code
	}
	return DefaultLanguageCode
}

// SupportsVITS reports whether the VITS engine has a model for code.
func (s *Settings) SupportsVITS(code string) bool {
	for _, c := range s.VITSLanguages {
		if c == code {
			return true
		}
	}
	return false
}

// ManualExclusionSet returns the manual exclusion list as a set of
// slash-separated relative paths.
func (s *Settings) ManualExclusionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.ManualExclusions))
	for _, p := range s.ManualExclusions {
		set[strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")] = struct{}{}
	}
	return set
}
