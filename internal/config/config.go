package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/thatjpcsguy/cappit/internal/errors"
	"github.com/thatjpcsguy/cappit/internal/port"
	"github.com/thatjpcsguy/cappit/internal/registry"
)

// Config file names, lowest priority first
const (
	GlobalConfigDir  = ".cappit"
	GlobalConfigName = "config"
	ProjectConfig    = ".cappit.config"
	LocalConfig      = ".cappit.config.local"
	EnvPrefix        = "CAPPIT"
)

// Config represents the cappit configuration
type Config struct {
	// Container settings
	ContainerPrefix string `mapstructure:"container_prefix"`
	ContainerPort   int    `mapstructure:"container_port"`
	ImagePrefix     string `mapstructure:"image_prefix"`

	// Port settings
	PortRangeStart int `mapstructure:"port_range_start"`
	PortRangeEnd   int `mapstructure:"port_range_end"`

	// Registry settings
	Storage   string `mapstructure:"storage"`
	StatePath string `mapstructure:"state_path"`

	// Build settings
	WorkDir         string   `mapstructure:"work_dir"`
	DirPrefix       string   `mapstructure:"dir_prefix"`
	Versions        []string `mapstructure:"versions"`
	RequiredFiles   []string `mapstructure:"required_files"`
	GenerateCommand string   `mapstructure:"generate_command"`
	BuildCommand    string   `mapstructure:"build_command"`
	RunCommand      string   `mapstructure:"run_command"`

	// Logging settings
	LogFile string `mapstructure:"log_file"`
	Verbose bool   `mapstructure:"verbose"`
	LogJSON bool   `mapstructure:"log_json"`

	// Remote settings
	RemoteHost string `mapstructure:"remote_host"`
	RemoteUser string `mapstructure:"remote_user"`
	RemoteDir  string `mapstructure:"remote_dir"`
	SSHKeyPath string `mapstructure:"ssh_key_path"`
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("container_prefix", "cappit_")
	v.SetDefault("container_port", 31000)
	v.SetDefault("image_prefix", "")
	v.SetDefault("port_range_start", port.DefaultRange.From)
	v.SetDefault("port_range_end", port.DefaultRange.To)
	v.SetDefault("storage", registry.BackendJSON)
	v.SetDefault("state_path", "challs.json")
	v.SetDefault("work_dir", ".")
	v.SetDefault("dir_prefix", "dock_")
	v.SetDefault("versions", []string{"16.04", "18.04"})
	v.SetDefault("required_files", []string{"flag", "bin"})
	v.SetDefault("generate_command", "gendock")
	v.SetDefault("build_command", "./build.sh")
	v.SetDefault("run_command", "./run.sh")
	v.SetDefault("log_file", "")
	v.SetDefault("verbose", false)
	v.SetDefault("log_json", false)
	v.SetDefault("remote_host", "")
	v.SetDefault("remote_user", "${USER}")
	v.SetDefault("remote_dir", "~")
	v.SetDefault("ssh_key_path", "")
}

// Load reads the layered config files into v and decodes the result.
// Flags bound to v before the call take precedence over files and env.
// configFile, when set, is merged last.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Global config first (lowest priority)
	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFile(v, filepath.Join(home, GlobalConfigDir, GlobalConfigName), false); err != nil {
			return nil, err
		}
	}

	if err := mergeFile(v, ProjectConfig, false); err != nil {
		return nil, err
	}

	// Local overrides
	if err := mergeFile(v, LocalConfig, false); err != nil {
		return nil, err
	}

	if configFile != "" {
		if err := mergeFile(v, configFile, true); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigError("failed to decode configuration", err)
	}

	if err := cfg.expandVariables(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeFile merges a bash-style KEY=value file. Missing optional files are skipped.
func mergeFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return errors.ConfigError(fmt.Sprintf("failed to read %s", path), err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}

// expandVariables expands environment variables, tildes and relative paths
func (c *Config) expandVariables() error {
	if c.RemoteUser == "${USER}" || c.RemoteUser == "$USER" {
		c.RemoteUser = os.Getenv("USER")
	}

	c.Versions = trimList(c.Versions)
	c.RequiredFiles = trimList(c.RequiredFiles)

	// Don't expand ~ in RemoteDir: the remote shell handles it
	for _, p := range []*string{&c.SSHKeyPath, &c.StatePath, &c.LogFile, &c.WorkDir} {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}

	return nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.ConfigError(fmt.Sprintf("failed to expand ~ in %s", p), err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.ConfigError(fmt.Sprintf("failed to resolve %s", p), err)
	}
	return abs, nil
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Range returns the configured port range
func (c *Config) Range() port.Range {
	return port.Range{From: c.PortRangeStart, To: c.PortRangeEnd}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var problems []string

	if c.PortRangeStart < 1 || c.PortRangeEnd > 65536 || c.PortRangeStart >= c.PortRangeEnd {
		problems = append(problems, fmt.Sprintf("invalid port range [%d, %d)", c.PortRangeStart, c.PortRangeEnd))
	}
	if c.Storage != registry.BackendJSON && c.Storage != registry.BackendSQLite {
		problems = append(problems, fmt.Sprintf("STORAGE must be %s or %s, got %q", registry.BackendJSON, registry.BackendSQLite, c.Storage))
	}

	required := map[string]string{
		"CONTAINER_PREFIX": c.ContainerPrefix,
		"STATE_PATH":       c.StatePath,
		"BUILD_COMMAND":    c.BuildCommand,
		"RUN_COMMAND":      c.RunCommand,
		"GENERATE_COMMAND": c.GenerateCommand,
	}
	var missing []string
	for field, value := range required {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(c.Versions) == 0 {
		missing = append(missing, "VERSIONS")
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		problems = append(problems, fmt.Sprintf("missing required configuration fields: %s", strings.Join(missing, ", ")))
	}

	if len(problems) > 0 {
		return errors.ConfigError(strings.Join(problems, "; "), nil)
	}
	return nil
}

// ValidateRemote checks the fields needed to reach the remote host
func (c *Config) ValidateRemote() error {
	var missing []string
	if c.RemoteHost == "" {
		missing = append(missing, "REMOTE_HOST")
	}
	if c.RemoteUser == "" {
		missing = append(missing, "REMOTE_USER")
	}
	if len(missing) > 0 {
		return errors.ConfigError(fmt.Sprintf("missing required remote fields: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}
