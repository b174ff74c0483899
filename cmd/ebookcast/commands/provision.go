package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/ebookcast/cmd/ebookcast/handlers"
	"github.com/imamik/ebookcast/internal/config"
)

// Provision returns the provision command.
//
// The provision command walks the provider's zones in listing order and
// creates the GPU VM in the first zone that has capacity.
func Provision() *cobra.Command {
	opts := handlers.ProvisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Find a zone with GPU capacity and create the VM",
		Long: `Provision creates the GPU VM used by convert.

Zones are tried one after another until creation succeeds. A zone without
capacity is skipped; a quota error stops the search and prints the link to
request a quota increase.

On success the connection record is written to --config-file. Running
provision again overwrites it.

Example:
  ebookcast provision --instance-name ebook-converter-vm
  ebookcast provision --provider hcloud`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Provision(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.InstanceName, "instance-name", handlers.DefaultInstanceName, "Name of the new virtual machine")
	cmd.Flags().StringVar(&opts.ConfigFile, "config-file", config.DefaultRecordFile, "Connection record written on success")
	cmd.Flags().StringVar(&opts.Provider, "provider", config.ProviderGCE, "Cloud provider (gce, hcloud)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "GCP project id (default: gcloud config)")
	cmd.Flags().StringVar(&opts.SettingsFile, "settings", config.DefaultSettingsFile, "Settings file")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	return cmd
}
