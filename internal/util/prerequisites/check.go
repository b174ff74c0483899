// Package prerequisites checks that the client tools a command shells out to are installed.
package prerequisites

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// GCloudTool is the Google Cloud CLI used for project discovery and the
// default remote transport.
var GCloudTool = Tool{
	Name:        "gcloud",
	Required:    true,
	Description: "Required to discover the project and to reach Compute Engine VMs",
	InstallURL:  "https://cloud.google.com/sdk/docs/install",
}

// ToolsFor returns the tools needed to work with a VM of the given provider.
// Hetzner servers are reached over native SSH and need nothing external.
func ToolsFor(provider string) []Tool {
	if provider == "hcloud" {
		return nil
	}
	return []Tool{GCloudTool}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = getToolVersion(tool.Name)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// getToolVersion returns the first line of "<name> --version", or "".
func getToolVersion(name string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// #nosec G204 - name comes from trusted Tool definitions, not user input
	output, err := exec.CommandContext(ctx, name, "--version").Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first)
}
