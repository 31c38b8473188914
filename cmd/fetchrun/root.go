package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/platform"
)

const envPrefix = "FETCHRUN"

// app carries what the commands share: output streams, the viper instance
// holding flag and environment values, and the exit code of a launched
// binary.
type app struct {
	stdout io.Writer
	stderr io.Writer
	v      *viper.Viper
	runID  string

	detector   platform.Detector
	privileges platform.PrivilegeChecker

	exitCode int
}

func newApp(stdout, stderr io.Writer) *app {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &app{
		stdout:     stdout,
		stderr:     stderr,
		v:          v,
		runID:      uuid.NewString(),
		detector:   platform.NewDetector(),
		privileges: platform.NewPrivilegeChecker(),
	}
}

// execute runs the command line and returns the process exit code. A
// non-nil error always means exit code 1.
func execute(ctx context.Context, a *app, args []string) (int, error) {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		return 1, err
	}
	return a.exitCode, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "fetchrun [-- args...]",
		Short: "Download the latest release for this machine and run it",
		Long: `fetchrun resolves the latest GitHub release of a project, downloads the asset
built for this OS and architecture with parallel range requests, and launches it.

Running fetchrun without a subcommand is the same as "fetchrun install".
Arguments after "--" are passed to the launched binary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          binaryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInstall(cmd.Context(), args)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", config.DefaultConfigPath(), "Lua config file")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.String("repo", "", "GitHub repository (owner/name)")
	pf.String("project", "", "Asset name prefix")
	pf.String("release", "", "Install this release version instead of the latest")
	pf.String("dir", "", "Download directory")
	pf.IntP("parallelism", "p", 0, "Number of parallel segments")
	pf.Bool("no-launch", false, "Install only, do not run the binary")
	pf.Bool("elevate", true, "Run the binary with root/administrator privileges")
	pf.String("progress", "bar", "Progress output: bar, log or none")
	// Flags cannot fail to bind to a fresh viper instance.
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		newInstallCmd(a),
		newPlanCmd(a),
		newPlatformCmd(a),
		newVersionCmd(a),
		newConfigCmd(a),
	)
	return root
}

// binaryArgs accepts positional arguments only after "--".
func binaryArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 && cmd.ArgsLenAtDash() != 0 {
		return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
	}
	return nil
}

// logger returns the run's logger. Every line carries the run ID.
func (a *app) logger() *slog.Logger {
	return config.NewLogger(a.stderr, a.v.GetBool("verbose")).With("run_id", a.runID)
}

// loadConfig layers the configuration: built-in defaults, then the Lua file,
// then environment variables and flags.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	parser := config.NewParser(a.detector)
	cfg, err := parser.ParseFile(ctx, a.v.GetString("config"), config.Default())
	if err != nil {
		return nil, fmt.Errorf("load config: %s", config.FormatError(err, a.v.GetBool("verbose")))
	}

	a.applyOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOverrides copies the flags and FETCHRUN_* variables that were set.
func (a *app) applyOverrides(cfg *config.Config) {
	if a.v.IsSet("repo") {
		cfg.Repo = a.v.GetString("repo")
	}
	if a.v.IsSet("project") {
		cfg.Project = a.v.GetString("project")
	}
	if a.v.IsSet("release") {
		cfg.Version = a.v.GetString("release")
	}
	if a.v.IsSet("dir") {
		cfg.DownloadsDir = a.v.GetString("dir")
	}
	if a.v.IsSet("parallelism") {
		cfg.Parallelism = a.v.GetInt("parallelism")
	}
	// FETCHRUN_API_BASE has no flag.
	if a.v.IsSet("api-base") {
		cfg.APIBase = a.v.GetString("api-base")
	}
	if a.v.GetBool("no-launch") {
		cfg.Launch = false
	}
	if a.v.IsSet("elevate") {
		cfg.Elevate = a.v.GetBool("elevate")
	}
}
