// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/orchestration"
	"github.com/imamik/metalboot/internal/platform/s3"
	"github.com/imamik/metalboot/internal/platform/talos"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/platform/wol"
	"github.com/imamik/metalboot/internal/probe"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/provisioning/power"
	"github.com/imamik/metalboot/internal/ui/tui"
)

// ProvisionOptions are the provision command flags.
type ProvisionOptions struct {
	ConfigPath     string
	Mode           string
	CNI            bool
	ClusterDNS     bool
	Yes            bool
	MetricsFile    string
	Image          string
	ServiceAccount string
	LogFormat      string
	TUI            bool
}

// Runner interface for testing - matches orchestration.Orchestrator.
type Runner interface {
	Run(ctx context.Context, cfg *config.Config, run provisioning.RunConfig) (*orchestration.Report, error)
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads and validates config from file.
	loadConfigFile = config.Load

	// findConfigFile finds metalboot.yaml in the working directory or a parent.
	findConfigFile = config.FindConfigFile

	// newDeps connects to every external system a local run needs.
	newDeps = buildDeps

	// newRunner creates the orchestrator.
	newRunner = func(deps provisioning.Deps, observer provisioning.Observer) Runner {
		return orchestration.NewOrchestrator(deps, orchestration.WithObserver(observer))
	}

	// newManagementClient connects to the cluster running the workflow engine.
	newManagementClient = func(cfg *config.Config) (*k8s.Client, error) {
		return k8s.NewClient(cfg.Workflow.Kubeconfig)
	}

	// runDashboard shows the full-screen dashboard while a run executes.
	runDashboard = func(ctx context.Context, cfg *config.Config, fn tui.RunFunc) error {
		phases := orchestration.PhaseNames(orchestration.DefaultPhases())
		return tui.Run(ctx, cfg.ClusterName, len(cfg.Nodes), phases, fn)
	}

	// isTerminal reports whether stdin and stdout are a terminal.
	isTerminal = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
	}

	// logOutput receives observer output.
	logOutput io.Writer = os.Stderr
)

// Provision runs or delegates a provisioning pass.
//
//  1. Loads and validates the configuration (auto-detects metalboot.yaml)
//  2. Builds the immutable run configuration from the flags
//  3. In local mode connects to every external system and runs all phases
//  4. In job mode hands the same run to a Job in the management cluster
//
// A fatal abort returns an error; partial success returns nil after the
// warnings were printed.
func Provision(ctx context.Context, opts ProvisionOptions) error {
	mode, err := provisioning.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	cfg, path, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	terminal := opts.LogFormat != "json" && isTerminal()
	dashboard := opts.TUI && terminal && mode == provisioning.ModeLocal

	run := provisioning.RunConfig{
		Mode:       mode,
		CNI:        opts.CNI,
		ClusterDNS: opts.ClusterDNS,
		AssumeYes:  opts.Yes,
		// The reset prompt cannot share the terminal with the dashboard.
		Interactive: terminal && !dashboard,
		MetricsFile: opts.MetricsFile,
		Image:       opts.Image,
	}

	if mode == provisioning.ModeJob {
		return Delegate(ctx, cfg, path, run, opts.ServiceAccount)
	}
	return runLocal(ctx, cfg, run, opts.LogFormat, dashboard)
}

func runLocal(ctx context.Context, cfg *config.Config, run provisioning.RunConfig, logFormat string, dashboard bool) error {
	deps, err := newDeps(ctx, cfg, run)
	if err != nil {
		return err
	}

	if !dashboard {
		_, err = newRunner(deps, observerFor(logFormat)).Run(ctx, cfg, run)
		return err
	}

	var report *orchestration.Report
	err = runDashboard(ctx, cfg, func(ctx context.Context, observer provisioning.Observer) error {
		r, err := newRunner(deps, observer).Run(ctx, cfg, run)
		report = r
		return err
	})
	// The dashboard leaves the alternate screen on exit; repeat the outcome.
	if report != nil {
		report.Render(observerFor(logFormat))
	}
	return err
}

func observerFor(logFormat string) provisioning.Observer {
	if logFormat == "json" {
		return provisioning.NewJSONObserver(logOutput)
	}
	return provisioning.NewConsoleObserverTo(logOutput)
}

// loadConfig resolves the config path and loads it.
// If configPath is empty, it looks for metalboot.yaml upwards from the
// working directory.
func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		path, err := findConfigFile()
		if err != nil {
			return nil, "", fmt.Errorf("no config file found: %w", err)
		}
		configPath = path
	}

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	return cfg, configPath, nil
}

// buildDeps wires the real clients.
func buildDeps(ctx context.Context, cfg *config.Config, run provisioning.RunConfig) (provisioning.Deps, error) {
	nodes, err := talos.NewClientFromFile(cfg.TalosConfigFile())
	if err != nil {
		return provisioning.Deps{}, err
	}

	restCfg, err := tinkerbell.RESTConfig(cfg.Workflow.Kubeconfig)
	if err != nil {
		return provisioning.Deps{}, err
	}
	crClient, err := tinkerbell.NewClient(restCfg)
	if err != nil {
		return provisioning.Deps{}, err
	}
	mgmt, err := newManagementClient(cfg)
	if err != nil {
		return provisioning.Deps{}, err
	}

	t := cfg.Timeouts
	deps := provisioning.Deps{
		Nodes:     nodes,
		Workflows: tinkerbell.NewEngine(crClient, cfg.Workflow.Namespace),
		Prober:    probe.New(cfg.Talos.Port, t.ProbeDial, t.ProbePing),
		Waker:     wol.NewSender(cfg.Network.BroadcastAddress),
		ClusterClient: func(kubeconfig []byte) (provisioning.ClusterAPI, error) {
			return k8s.NewClientFromBytes(kubeconfig)
		},
		Secrets: mgmt,
	}

	if cfg.Archive.Enabled() {
		archive, err := s3.New(ctx, cfg.Archive)
		if err != nil {
			return provisioning.Deps{}, err
		}
		deps.Archive = archive
	}

	if run.Interactive {
		deps.Confirm = power.PromptConfirm(ctx)
	}
	return deps, nil
}
