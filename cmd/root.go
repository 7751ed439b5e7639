package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/igwatch/internal/catalog"
	"github.com/joescharf/igwatch/internal/git"
	"github.com/joescharf/igwatch/internal/github"
	"github.com/joescharf/igwatch/internal/logging"
	"github.com/joescharf/igwatch/internal/manifest"
	"github.com/joescharf/igwatch/internal/models"
	"github.com/joescharf/igwatch/internal/output"
	"github.com/joescharf/igwatch/internal/proxy"
	"github.com/joescharf/igwatch/internal/refresh"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "igwatch",
	Short: "IG fleet watch - publication health for FHIR Implementation Guides",
	Long: `igwatch reports the publication health of a fleet of FHIR Implementation
Guides. For every tracked repository it classifies branches by freshness and
reconciles git tags against the versions listed in the published package-list.

Running bare 'igwatch' inside a clone of a tracked guide shows that
project's detail; anywhere else it is the same as 'igwatch status'.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	// Ctrl-C cancels in-flight fetches.
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd.Context())
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/igwatch/config.yaml)")
	rootCmd.PersistentFlags().StringP("projects", "f", "", "Project list file or URL (overrides projects.source)")
	_ = viper.BindPFlag("projects.source", rootCmd.PersistentFlags().Lookup("projects"))
}

func initConfig() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir, err := configDirFunc(); err == nil {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("IGW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()

	if viper.GetString("github.token") == "" {
		viper.Set("github.token", os.Getenv("GITHUB_TOKEN"))
	}
}

// setDefaults registers every config key's default value.
func setDefaults() {
	viper.SetDefault("projects.source", "")
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.api_url", "https://api.github.com")
	viper.SetDefault("manifest.proxy_url", "")
	viper.SetDefault("proxy.upstreams.smart", "https://smart.who.int")
	viper.SetDefault("proxy.upstreams.fhir", "https://build.fhir.org")
	viper.SetDefault("proxy.upstreams.githubio", "https://worldhealthorganization.github.io")
	viper.SetDefault("fleet.concurrency", refresh.DefaultConcurrency)
	viper.SetDefault("http.timeout", 30*time.Second)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("port", 8080)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	logging.SetDefault(logging.New(os.Stderr, level))
}

// rootRun handles `igwatch` with no subcommand: detect the project from cwd
// and show it, falling back to the fleet overview.
func rootRun(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return statusOverviewRun(ctx)
	}
	repo, err := git.OriginRepo(git.NewClient(), cwd)
	if err != nil {
		return statusOverviewRun(ctx)
	}

	fleet, err := runFleet(ctx)
	if err != nil {
		return err
	}
	if p, ok := fleet.Find(repo); ok {
		renderProjectDetail(p)
		return nil
	}
	renderFleetTable(fleet.Projects)
	return nil
}

// proxyRouter builds the /proxy upstream table from config.
func proxyRouter() (*proxy.Router, error) {
	prefixes := proxy.Prefixes()
	upstreams := make(map[string]string, len(prefixes))
	for _, prefix := range prefixes {
		if origin := viper.GetString("proxy.upstreams." + prefix); origin != "" {
			upstreams[prefix] = origin
		}
	}
	return proxy.NewRouter(upstreams, *logging.Default())
}

// buildAggregator wires the GitHub client and manifest fetcher from config.
func buildAggregator() *refresh.Aggregator {
	timeout := viper.GetDuration("http.timeout")

	if viper.GetString("github.token") == "" {
		logging.Default().Warn().Msg("no GitHub token configured; GraphQL requests will be rejected")
	}

	gh := github.NewClient(viper.GetString("github.token"), viper.GetString("github.api_url"), timeout)
	mf := manifest.NewFetcher(viper.GetString("manifest.proxy_url"), timeout)
	return refresh.NewAggregator(gh, mf, refresh.WithConcurrency(viper.GetInt("fleet.concurrency")))
}

// loadProjects reads the configured project list.
func loadProjects(ctx context.Context) ([]models.TrackedProject, error) {
	loader := catalog.NewLoader(viper.GetDuration("http.timeout"))
	return loader.Load(orBackground(ctx), viper.GetString("projects.source"))
}

// fleetRunner loads the project list and refreshes the fleet on every call.
type fleetRunner struct {
	agg *refresh.Aggregator
}

func (f *fleetRunner) Fleet(ctx context.Context) (models.FleetResult, error) {
	projects, err := loadProjects(ctx)
	if err != nil {
		return models.FleetResult{}, err
	}
	return f.agg.Fleet(ctx, projects), nil
}

// runFleet is the one-shot path used by the CLI commands.
func runFleet(ctx context.Context) (models.FleetResult, error) {
	return (&fleetRunner{agg: buildAggregator()}).Fleet(orBackground(ctx))
}

// orBackground guards against commands invoked without Execute, which leaves
// cmd.Context() nil.
func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// defaultConfigDir is ~/.config/igwatch.
func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "igwatch"), nil
}
