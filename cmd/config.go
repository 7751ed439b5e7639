package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage igwatch configuration.

Running bare 'igwatch config' is the same as 'igwatch config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# igwatch configuration
# See: igwatch config show (for effective values and sources)
# Every key can be overridden with an IGW_ environment variable,
# e.g. projects.source -> IGW_PROJECTS_SOURCE.

projects:
  # Project list: a file path or http(s) URL to {igs: [{name, repo, published}]}
  source: "{{ .ProjectsSource }}"

github:
  # API token (falls back to $GITHUB_TOKEN)
  # token: ""
  api_url: "{{ .GitHubAPIURL }}"

manifest:
  # Base URL of a running 'igwatch serve' to fetch /proxy paths through.
  # Empty means fetch each package-list from the host its manifest URL names.
  proxy_url: "{{ .ManifestProxyURL }}"

proxy:
  # Upstreams behind 'igwatch serve' /proxy routes.
  upstreams:
    smart: "{{ .UpstreamSmart }}"
    fhir: "{{ .UpstreamFHIR }}"
    githubio: "{{ .UpstreamGitHubIO }}"

fleet:
  # Projects refreshed in parallel (0 = all at once)
  concurrency: {{ .Concurrency }}

http:
  timeout: {{ .HTTPTimeout }}

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"

# API server port for 'igwatch serve'
port: {{ .Port }}

anthropic:
  # Used by 'igwatch report --summarize'
  # api_key: ""
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	ProjectsSource   string
	GitHubAPIURL     string
	ManifestProxyURL string
	UpstreamSmart    string
	UpstreamFHIR     string
	UpstreamGitHubIO string
	Concurrency      int
	HTTPTimeout      string
	LogLevel         string
	Port             int
	AnthropicModel   string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		ProjectsSource:   viper.GetString("projects.source"),
		GitHubAPIURL:     viper.GetString("github.api_url"),
		ManifestProxyURL: viper.GetString("manifest.proxy_url"),
		UpstreamSmart:    viper.GetString("proxy.upstreams.smart"),
		UpstreamFHIR:     viper.GetString("proxy.upstreams.fhir"),
		UpstreamGitHubIO: viper.GetString("proxy.upstreams.githubio"),
		Concurrency:      viper.GetInt("fleet.concurrency"),
		HTTPTimeout:      viper.GetDuration("http.timeout").String(),
		LogLevel:         viper.GetString("log.level"),
		Port:             viper.GetInt("port"),
		AnthropicModel:   viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "projects.source", EnvVar: "IGW_PROJECTS_SOURCE"},
	{Key: "github.token", EnvVar: "IGW_GITHUB_TOKEN", Secret: true},
	{Key: "github.api_url", EnvVar: "IGW_GITHUB_API_URL"},
	{Key: "manifest.proxy_url", EnvVar: "IGW_MANIFEST_PROXY_URL"},
	{Key: "proxy.upstreams.smart", EnvVar: "IGW_PROXY_UPSTREAMS_SMART"},
	{Key: "proxy.upstreams.fhir", EnvVar: "IGW_PROXY_UPSTREAMS_FHIR"},
	{Key: "proxy.upstreams.githubio", EnvVar: "IGW_PROXY_UPSTREAMS_GITHUBIO"},
	{Key: "fleet.concurrency", EnvVar: "IGW_FLEET_CONCURRENCY"},
	{Key: "http.timeout", EnvVar: "IGW_HTTP_TIMEOUT"},
	{Key: "log.level", EnvVar: "IGW_LOG_LEVEL"},
	{Key: "port", EnvVar: "IGW_PORT"},
	{Key: "anthropic.api_key", EnvVar: "IGW_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "IGW_ANTHROPIC_MODEL"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret keeps the last four characters of a credential.
func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'igwatch config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
