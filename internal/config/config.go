// Package config loads annodex configuration. Values are layered, each
// layer overriding the previous one:
//  1. Built-in defaults
//  2. User config ($XDG_CONFIG_HOME/annodex/config.yaml)
//  3. Project config (.annodex.yaml in the project root)
//  4. Environment variables (ANNODEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/annodex/internal/classpath"
	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/scanner"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// ProjectFile is the name of the project configuration file.
const ProjectFile = ".annodex.yaml"

// Prefix names accepted by index.prefix.
const (
	PrefixServices = "services"
	PrefixLegacy   = "legacy"
)

// Config is the complete annodex configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Classpath ClasspathConfig `yaml:"classpath" json:"classpath"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig locates the index output and the provenance ledger.
// Relative paths are resolved against the project root.
type PathsConfig struct {
	// Output receives the META-INF resources.
	Output string `yaml:"output" json:"output"`

	// Ledger is the provenance database. Empty means annodex.db next to
	// the output directory.
	Ledger string `yaml:"ledger" json:"ledger"`

	// Exclude lists gitignore-style patterns skipped when scanning.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures builds.
type IndexConfig struct {
	// Prefix selects the namespace written: "services" or "legacy".
	Prefix string `yaml:"prefix" json:"prefix"`

	// Dependencies are module directories used to resolve annotation
	// and embedded types. They are never indexed.
	Dependencies []string `yaml:"dependencies" json:"dependencies"`

	IncludeTests     bool  `yaml:"include_tests" json:"include_tests"`
	RespectGitignore *bool `yaml:"respect_gitignore,omitempty" json:"respect_gitignore,omitempty"`
	NestedModules    bool  `yaml:"nested_modules" json:"nested_modules"`
	MaxFileSize      int64 `yaml:"max_file_size" json:"max_file_size"`

	// Workers bounds parallel parsing.
	Workers int `yaml:"workers" json:"workers"`

	// LockTimeout bounds the wait for a resource lock ("30s").
	LockTimeout string `yaml:"lock_timeout" json:"lock_timeout"`
}

// ClasspathConfig lists the roots queried by list and serve.
type ClasspathConfig struct {
	// Entries are directories, .zip/.jar archives or s3://bucket/prefix
	// URLs. The output directory is always searched first.
	Entries []string     `yaml:"entries" json:"entries"`
	Bucket  BucketConfig `yaml:"bucket" json:"bucket"`
}

// BucketConfig holds S3-compatible connection settings.
type BucketConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Region    string `yaml:"region" json:"region"`
	Secure    bool   `yaml:"secure" json:"secure"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce     string `yaml:"debounce" json:"debounce"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	ForcePolling bool   `yaml:"force_polling" json:"force_polling"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	respect := true
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Output: filepath.Join(".annodex", "out"),
		},
		Index: IndexConfig{
			Prefix:           PrefixServices,
			RespectGitignore: &respect,
			MaxFileSize:      scanner.DefaultMaxFileSize,
			Workers:          runtime.NumCPU(),
			LockTimeout:      "30s",
		},
		Watch: WatchConfig{
			Debounce:     "200ms",
			PollInterval: "2s",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// UserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/annodex/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/annodex/config.yaml otherwise
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "annodex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "annodex", "config.yaml")
	}
	return filepath.Join(home, ".config", "annodex", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(UserConfigPath())
}

// Load loads the configuration of the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if p := UserConfigPath(); fileExists(p) {
		if err := cfg.loadYAML(p); err != nil {
			return nil, err
		}
	}
	if p := filepath.Join(dir, ProjectFile); fileExists(p) {
		if err := cfg.loadYAML(p); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError("failed to read config file", err).WithDetail("path", path)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.ConfigError("failed to parse config file", err).
			WithDetail("path", path).
			WithSuggestion("Check the YAML syntax or regenerate it with 'annodex config init'")
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges the non-zero values of other into c. Exclusion
// patterns and classpath entries accumulate across layers.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.Output != "" {
		c.Paths.Output = other.Paths.Output
	}
	if other.Paths.Ledger != "" {
		c.Paths.Ledger = other.Paths.Ledger
	}
	c.Paths.Exclude = appendUnique(c.Paths.Exclude, other.Paths.Exclude...)

	if other.Index.Prefix != "" {
		c.Index.Prefix = other.Index.Prefix
	}
	c.Index.Dependencies = appendUnique(c.Index.Dependencies, other.Index.Dependencies...)
	if other.Index.IncludeTests {
		c.Index.IncludeTests = true
	}
	if other.Index.RespectGitignore != nil {
		c.Index.RespectGitignore = other.Index.RespectGitignore
	}
	if other.Index.NestedModules {
		c.Index.NestedModules = true
	}
	if other.Index.MaxFileSize != 0 {
		c.Index.MaxFileSize = other.Index.MaxFileSize
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.LockTimeout != "" {
		c.Index.LockTimeout = other.Index.LockTimeout
	}

	c.Classpath.Entries = appendUnique(c.Classpath.Entries, other.Classpath.Entries...)
	b := other.Classpath.Bucket
	if b.Endpoint != "" {
		c.Classpath.Bucket.Endpoint = b.Endpoint
	}
	if b.AccessKey != "" {
		c.Classpath.Bucket.AccessKey = b.AccessKey
	}
	if b.SecretKey != "" {
		c.Classpath.Bucket.SecretKey = b.SecretKey
	}
	if b.Region != "" {
		c.Classpath.Bucket.Region = b.Region
	}
	if b.Secure {
		c.Classpath.Bucket.Secure = true
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}
	if other.Watch.ForcePolling {
		c.Watch.ForcePolling = true
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// SplitList splits a path list like filepath.SplitList, rejoining URL
// entries whose scheme separator collides with the list separator.
func SplitList(v string) []string {
	parts := filepath.SplitList(v)
	out := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		p := parts[i]
		if i+1 < len(parts) && isScheme(p) && strings.HasPrefix(parts[i+1], "//") {
			p += string(os.PathListSeparator) + parts[i+1]
			i++
		}
		out = append(out, p)
	}
	return out
}

// isScheme reports whether s is a URL scheme of two or more characters,
// so Windows drive letters are not mistaken for one.
func isScheme(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// applyEnvOverrides applies ANNODEX_* variables. List variables use the
// platform path list separator; URL entries such as s3://bucket/prefix
// survive the split.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ANNODEX_OUTPUT"); v != "" {
		c.Paths.Output = v
	}
	if v := os.Getenv("ANNODEX_LEDGER"); v != "" {
		c.Paths.Ledger = v
	}
	if v := os.Getenv("ANNODEX_CLASSPATH"); v != "" {
		c.Classpath.Entries = appendUnique(c.Classpath.Entries, SplitList(v)...)
	}
	if v := os.Getenv("ANNODEX_DEPENDENCIES"); v != "" {
		c.Index.Dependencies = appendUnique(c.Index.Dependencies, SplitList(v)...)
	}
	if v := os.Getenv("ANNODEX_PREFIX"); v != "" {
		c.Index.Prefix = v
	}
	if v := os.Getenv("ANNODEX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.ConfigError("ANNODEX_WORKERS must be an integer", err).WithDetail("value", v)
		}
		c.Index.Workers = n
	}
	if v := os.Getenv("ANNODEX_LOCK_TIMEOUT"); v != "" {
		c.Index.LockTimeout = v
	}
	if v := os.Getenv("ANNODEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}

	if v := os.Getenv("ANNODEX_S3_ENDPOINT"); v != "" {
		c.Classpath.Bucket.Endpoint = v
	}
	if v := os.Getenv("ANNODEX_S3_ACCESS_KEY"); v != "" {
		c.Classpath.Bucket.AccessKey = v
	}
	if v := os.Getenv("ANNODEX_S3_SECRET_KEY"); v != "" {
		c.Classpath.Bucket.SecretKey = v
	}
	if v := os.Getenv("ANNODEX_S3_REGION"); v != "" {
		c.Classpath.Bucket.Region = v
	}
	if v := os.Getenv("ANNODEX_S3_SECURE"); v != "" {
		c.Classpath.Bucket.Secure = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.Output) == "" {
		return errors.ConfigError("paths.output must not be empty", nil)
	}
	if c.Index.Prefix != PrefixServices && c.Index.Prefix != PrefixLegacy {
		return errors.ConfigError(fmt.Sprintf("index.prefix must be %q or %q, got %q", PrefixServices, PrefixLegacy, c.Index.Prefix), nil)
	}
	if c.Index.Workers < 0 {
		return errors.ConfigError(fmt.Sprintf("index.workers must be non-negative, got %d", c.Index.Workers), nil)
	}
	if c.Index.MaxFileSize < 0 {
		return errors.ConfigError(fmt.Sprintf("index.max_file_size must be non-negative, got %d", c.Index.MaxFileSize), nil)
	}
	for field, v := range map[string]string{
		"index.lock_timeout":  c.Index.LockTimeout,
		"watch.debounce":      c.Watch.Debounce,
		"watch.poll_interval": c.Watch.PollInterval,
	} {
		if _, err := parseDuration(v); err != nil {
			return errors.ConfigError(fmt.Sprintf("%s is not a valid duration: %q", field, v), err).
				WithSuggestion("Use Go duration syntax such as 500ms or 30s")
		}
	}
	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return errors.ConfigError(fmt.Sprintf("server.transport must be 'stdio', got %s", c.Server.Transport), nil)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.ConfigError(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel), nil)
	}
	for _, e := range c.Classpath.Entries {
		if strings.TrimSpace(e) == "" {
			return errors.ConfigError("classpath.entries must not contain empty entries", nil)
		}
	}
	return nil
}

// parseDuration accepts Go durations; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := parseDuration(s)
	if err != nil || d == 0 {
		return def
	}
	return d
}

// OutputDir returns the output directory resolved against root.
func (c *Config) OutputDir(root string) string {
	return resolve(root, c.Paths.Output)
}

// LedgerPath returns the ledger database resolved against root.
func (c *Config) LedgerPath(root string) string {
	if c.Paths.Ledger != "" {
		return resolve(root, c.Paths.Ledger)
	}
	return filepath.Join(filepath.Dir(filepath.Clean(c.OutputDir(root))), "annodex.db")
}

// DependencyDirs returns the dependency modules resolved against root.
func (c *Config) DependencyDirs(root string) []string {
	out := make([]string, 0, len(c.Index.Dependencies))
	for _, d := range c.Index.Dependencies {
		out = append(out, resolve(root, d))
	}
	return out
}

// ClasspathEntries returns the query roots: the output directory first,
// then the configured entries resolved against root.
func (c *Config) ClasspathEntries(root string) []string {
	out := []string{c.OutputDir(root)}
	for _, e := range c.Classpath.Entries {
		if strings.HasPrefix(e, "s3://") {
			out = appendUnique(out, e)
			continue
		}
		out = appendUnique(out, resolve(root, e))
	}
	return out
}

// BucketOptions returns the bucket connection settings.
func (c *Config) BucketOptions() classpath.BucketOptions {
	b := c.Classpath.Bucket
	return classpath.BucketOptions{
		Endpoint:  b.Endpoint,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
		Region:    b.Region,
		Secure:    b.Secure,
	}
}

// ScanOptions returns the scanner options for root.
func (c *Config) ScanOptions(root string) scanner.Options {
	respect := c.Index.RespectGitignore == nil || *c.Index.RespectGitignore
	return scanner.Options{
		Root:             root,
		Exclude:          append([]string(nil), c.Paths.Exclude...),
		IncludeTests:     c.Index.IncludeTests,
		RespectGitignore: respect,
		NestedModules:    c.Index.NestedModules,
		MaxFileSize:      c.Index.MaxFileSize,
	}
}

// WritePrefix returns the resource prefix builds write to.
func (c *Config) WritePrefix() string {
	if c.Index.Prefix == PrefixLegacy {
		return resource.LegacyPrefix
	}
	return resource.ServicePrefix
}

// LockTimeout returns index.lock_timeout as a duration.
func (c *Config) LockTimeout() time.Duration {
	return durationOr(c.Index.LockTimeout, 30*time.Second)
}

// DebounceWindow returns watch.debounce as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return durationOr(c.Watch.Debounce, 200*time.Millisecond)
}

// PollInterval returns watch.poll_interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return durationOr(c.Watch.PollInterval, 2*time.Second)
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~"+string(filepath.Separator)) || p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Join(root, p)
}

// FindProjectRoot walks up from startDir to the nearest directory holding
// go.mod, .annodex.yaml or .git. It returns the absolute startDir when
// none is found.
func FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	for dir := abs; ; {
		if fileExists(filepath.Join(dir, "go.mod")) ||
			fileExists(filepath.Join(dir, ProjectFile)) ||
			dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// WriteYAML writes the configuration to path, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WriteError(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WriteError(path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
