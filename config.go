package verbump

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// ConfigFileName is the base name of the optional configuration file.
const ConfigFileName = ".verbump"

// ConfigFileExtensions are the formats searched for, in order.
var ConfigFileExtensions = []string{"yaml", "yml", "toml", "json"}

// Config is the file and environment configuration of a decision.
type Config struct {
	// Branches maps release branch names to stable, alpha or beta. Empty
	// means the built-in table.
	Branches map[string]string `mapstructure:"branches"`

	// Keywords are the bump keywords per category.
	Keywords Keywords `mapstructure:"keywords"`

	// FirstRelease configures first release handling.
	FirstRelease FirstReleaseConfig `mapstructure:"first_release"`

	// History configures which commits are classified.
	History HistoryConfig `mapstructure:"history"`

	// Tags configures which tags count as releases.
	Tags TagsConfig `mapstructure:"tags"`
}

// FirstReleaseConfig is the first_release section.
type FirstReleaseConfig struct {
	// Policy is "broad" or "strict".
	Policy string `mapstructure:"policy"`
}

// HistoryConfig is the history section.
type HistoryConfig struct {
	// AllCommits classifies every commit subject, not only merge commits.
	AllCommits bool `mapstructure:"all_commits"`
}

// TagsConfig is the tags section.
type TagsConfig struct {
	// Prefix restricts release tags to those starting with it, e.g. "sdk/".
	Prefix string `mapstructure:"prefix"`
}

// ConfigLoader reads Config from an optional file and VERBUMP_* environment
// variables, e.g. VERBUMP_TAGS_PREFIX=sdk/.
type ConfigLoader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewConfigLoader returns a loader searching the current directory.
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetEnvPrefix("VERBUMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &ConfigLoader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file, which must exist.
func (l *ConfigLoader) WithConfigPath(path string) *ConfigLoader {
	l.configPath = path
	return l
}

// WithSearchPaths replaces the directories searched for a config file.
func (l *ConfigLoader) WithSearchPaths(paths ...string) *ConfigLoader {
	l.searchPaths = paths
	return l
}

// Load reads the configuration. A missing config file is not an error.
func (l *ConfigLoader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// ConfigFile returns the file Load read, or "".
func (l *ConfigLoader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *ConfigLoader) setDefaults() {
	kw := DefaultKeywords()
	l.v.SetDefault("keywords.major", kw.Major)
	l.v.SetDefault("keywords.minor", kw.Minor)
	l.v.SetDefault("keywords.patch", kw.Patch)

	l.v.SetDefault("first_release.policy", string(FirstReleaseBroad))
	l.v.SetDefault("history.all_commits", false)
	l.v.SetDefault("tags.prefix", "")
}

func (l *ConfigLoader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		return l.v.ReadInConfig()
	}

	for _, dir := range l.searchPaths {
		for _, ext := range ConfigFileExtensions {
			path := filepath.Join(dir, ConfigFileName+"."+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			l.v.SetConfigFile(path)
			return l.v.ReadInConfig()
		}
	}
	return nil
}

// EngineOptions converts the configuration into engine options.
func (c *Config) EngineOptions(logger *log.Logger) (Options, error) {
	opts := Options{Logger: logger}

	if len(c.Branches) > 0 {
		policy, err := ParseBranchPolicy(c.Branches)
		if err != nil {
			return Options{}, fmt.Errorf("branches: %w", err)
		}
		opts.Policy = policy
	}

	kw := c.Keywords
	opts.Keywords = &kw

	policy, err := ParseFirstReleasePolicy(c.FirstRelease.Policy)
	if err != nil {
		return Options{}, fmt.Errorf("first_release: %w", err)
	}
	opts.FirstRelease = policy

	return opts, nil
}

// GitOptions converts the configuration into GitSource options.
func (c *Config) GitOptions() GitOptions {
	return GitOptions{
		TagPrefix:  c.Tags.Prefix,
		AllCommits: c.History.AllCommits,
	}
}
