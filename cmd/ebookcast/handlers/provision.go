package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/imamik/ebookcast/internal/config"
	"github.com/imamik/ebookcast/internal/metrics"
	"github.com/imamik/ebookcast/internal/platform/gce"
	"github.com/imamik/ebookcast/internal/platform/gcloud"
	"github.com/imamik/ebookcast/internal/platform/hcloud"
	"github.com/imamik/ebookcast/internal/provisioning"
	"github.com/imamik/ebookcast/internal/ui"
	"github.com/imamik/ebookcast/internal/util/keygen"
)

// DefaultInstanceName is the VM name used when --instance-name is not given.
const DefaultInstanceName = "ebook-converter-vm"

// hcloudRemoteUser is the login of freshly created Hetzner servers.
const hcloudRemoteUser = "root"

// ProvisionOptions are the flags of the provision command.
type ProvisionOptions struct {
	InstanceName string
	ConfigFile   string
	Provider     string
	Project      string
	SettingsFile string
	MetricsFile  string
}

// gcloudCLI is the part of the gcloud CLI provision needs.
type gcloudCLI interface {
	Project(ctx context.Context) (string, error)
	ActiveAccount(ctx context.Context) (string, error)
}

// Factory function variables for provision - can be replaced in tests.
var (
	newGCloudCLI = func() gcloudCLI {
		return gcloud.New(gcloud.WithLogger(loggerFor("gcloud")))
	}

	newGCEProvider = func(ctx context.Context, project string, shape config.VMShape) (provisioning.Provider, error) {
		return gce.NewProvider(ctx, project, shape)
	}

	newHCloudProvider = func(token string, shape config.HCloudShape, opts ...hcloud.Option) provisioning.Provider {
		return hcloud.NewProvider(token, shape, opts...)
	}

	loadOrCreateKey = func(path string) (*keygen.KeyPair, bool, error) {
		return keygen.LoadOrCreate(path, keygen.DefaultBits)
	}

	writeRecord = config.WriteRecord
)

// provisionTarget is everything provider-specific the search and record need.
type provisionTarget struct {
	provider   provisioning.Provider
	project    string
	remoteUser string
}

// Provision finds a zone with capacity, creates the VM there and writes
// the connection record.
//
// A quota error stops the search and prints remediation steps; when no
// zone has capacity no record is written. Both cases return an error so
// the process exits non-zero.
func Provision(ctx context.Context, opts ProvisionOptions) error {
	console := newConsole()

	settings, err := loadSettingsOrDefaults(opts.SettingsFile)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	timeouts := loadTimeouts()

	m := metrics.New()
	defer writeMetrics(m, opts.MetricsFile)

	target, err := resolveProvisionTarget(ctx, opts, settings)
	if err != nil {
		return err
	}

	zones, err := target.provider.ListZones(ctx)
	if err != nil {
		return err
	}
	if len(zones) == 0 {
		return fmt.Errorf("%s returned no zones", target.provider.Name())
	}
	logger.Info().Int("zones", len(zones)).Str("provider", target.provider.Name()).Msg("Searching for a zone with capacity")

	searcher := provisioning.NewSearcher(target.provider, timeouts.InstanceCreate, loggerFor("provisioning"))
	searcher.OnAttempt = func(a provisioning.Attempt) {
		m.ObserveZoneAttempt(string(a.Outcome))
		switch a.Outcome {
		case provisioning.OutcomeExhausted:
			console.Warn("Resource unavailable in zone '%s'. Trying next zone.", a.Zone)
		case provisioning.OutcomeFailed:
			console.Warn("Failed to create VM in '%s'. The error was: %v", a.Zone, a.Err)
		}
	}

	result, err := searcher.Search(ctx, zones, provisioning.InstanceSpec{Name: opts.InstanceName})
	if err != nil {
		switch {
		case errors.Is(err, provisioning.ErrQuotaExceeded):
			printQuotaHelp(console, target, settings, result.LastZone())
		case errors.Is(err, provisioning.ErrNoCapacity):
			console.Failure("Could not create the VM in any of the available zones. " +
				"This may be due to temporary resource unavailability across all zones. Please try again later.")
		}
		return err
	}

	rec := config.Record{
		ProjectID:    target.project,
		Zone:         result.Instance.Zone,
		InstanceName: result.Instance.Name,
		RemoteUser:   target.remoteUser,
	}
	if target.provider.Name() == config.ProviderHCloud {
		rec.Provider = config.ProviderHCloud
		rec.Host = result.Instance.Host
	}

	console.Info("VM created. Generating configuration file...")
	if err := writeRecord(opts.ConfigFile, rec); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode connection record: %w", err)
	}
	console.Success("Configuration file '%s' created successfully:", opts.ConfigFile)
	console.Block(string(data))
	return nil
}

func resolveProvisionTarget(ctx context.Context, opts ProvisionOptions, settings *config.Settings) (*provisionTarget, error) {
	switch opts.Provider {
	case "", config.ProviderGCE:
		if err := checkPrerequisites(config.ProviderGCE); err != nil {
			return nil, err
		}
		cli := newGCloudCLI()

		project := opts.Project
		if project == "" {
			p, err := cli.Project(ctx)
			if err != nil {
				return nil, err
			}
			project = p
		}
		account, err := cli.ActiveAccount(ctx)
		if err != nil {
			return nil, err
		}

		provider, err := newGCEProvider(ctx, project, settings.VM)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("project", project).Str("account", account).Msg("Using Compute Engine")
		return &provisionTarget{provider: provider, project: project, remoteUser: config.RemoteUser(account)}, nil

	case config.ProviderHCloud:
		token := os.Getenv(config.EnvHCloudToken)
		if token == "" {
			return nil, fmt.Errorf("%s environment variable is required", config.EnvHCloudToken)
		}
		project := opts.Project
		if project == "" {
			project = config.ProviderHCloud
		}
		keyOpt, err := authorizedKeyOption(opts.InstanceName, settings.HCloud.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		return &provisionTarget{
			provider:   newHCloudProvider(token, settings.HCloud, keyOpt),
			project:    project,
			remoteUser: hcloudRemoteUser,
		}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q (expected %s or %s)", opts.Provider, config.ProviderGCE, config.ProviderHCloud)
	}
}

// authorizedKeyOption makes sure the key the native SSH transport will use
// exists locally and gets installed on the new server.
func authorizedKeyOption(instanceName, privateKeyPath string) (hcloud.Option, error) {
	keyPath, err := expandHome(privateKeyPath)
	if err != nil {
		return nil, err
	}
	kp, created, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info().Str("path", keyPath).Msg("Generated SSH key pair")
	}
	return hcloud.WithAuthorizedKey("ebookcast-"+instanceName, kp.PublicKey), nil
}

func printQuotaHelp(console *ui.Console, target *provisionTarget, settings *config.Settings, zone string) {
	if target.provider.Name() == config.ProviderHCloud {
		console.Failure("Hetzner Cloud resource limit reached in '%s'. Request a limit increase in the Hetzner Cloud Console.", zone)
		return
	}
	console.QuotaBanner(
		settings.VM.GPUType,
		provisioning.RegionOf(zone),
		provisioning.QuotaURL(target.project, settings.VM.GPUMetricName, zone),
		provisioning.QuotaSteps,
	)
}
