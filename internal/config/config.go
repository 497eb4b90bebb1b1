// internal/config/config.go
//
// This package handles configuration and the .pynome directory kept in the
// species root. Settings come from, in increasing precedence: built-in
// defaults, <root>/.pynome/config.yaml, a .env file, PYNOME_* environment
// variables, and command-line flags.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// StateDir is the name of the directory we create in the species root
	StateDir = ".pynome"

	defaultRootDir    = "species"
	defaultJobName    = "pynome_work_%05d.txt"
	defaultFTPTimeout = 30 * time.Second
)

// Environment variables consulted by Load.
const (
	EnvRoot        = "PYNOME_ROOT"
	EnvCPUs        = "PYNOME_CPUS"
	EnvDatabaseURL = "PYNOME_DATABASE_URL"
	EnvFTPTimeout  = "PYNOME_FTP_TIMEOUT"
)

const defaultProjectConfigYAML = `# pynome configuration
version: 1

# Number of threads handed to indexers. 0 means one per CPU.
cpus: 0

# printf pattern for job files written by list-all.
job_name: pynome_work_%05d.txt

# Postgres DSN for the assembly registry. Leave empty to use
# .pynome/assemblies.yaml in the species root.
database_url: ""

ftp:
  timeout: 30s
  retry_delay: 0s

# Remote databases to crawl. kind: ensembl covers Ensembl and every
# Ensembl Genomes division.
crawlers:
  - name: ensembl
    kind: ensembl
    host: ftp.ensembl.org
    root: /pub
    taxonomy_file: species_EnsemblVertebrates.txt
    rsync_module: ensembl
    # Also walk gtf/ and fasta/*/cdna so download_gtf and download_cdna
    # have remote sources.
    companion_files: true
  - name: ensembl-plants
    kind: ensembl
    host: ftp.ensemblgenomes.org
    root: /pub/plants
    taxonomy_file: species_EnsemblPlants.txt
    rsync_module: all
  - name: ensembl-metazoa
    kind: ensembl
    host: ftp.ensemblgenomes.org
    root: /pub/metazoa
    taxonomy_file: species_EnsemblMetazoa.txt
    rsync_module: all
  - name: ensembl-fungi
    kind: ensembl
    host: ftp.ensemblgenomes.org
    root: /pub/fungi
    taxonomy_file: species_EnsemblFungi.txt
    rsync_module: all
  - name: ensembl-protists
    kind: ensembl
    host: ftp.ensemblgenomes.org
    root: /pub/protists
    taxonomy_file: species_EnsemblProtists.txt
    rsync_module: all

# External programs. Override with absolute paths if they are not on PATH.
tools:
  rsync: rsync
  gffread: gffread
  splice_sites: hisat2_extract_splice_sites.py
  hisat2_build: hisat2-build
  salmon: salmon
  kallisto: kallisto
`

// CrawlerRef declares one remote database inside config.yaml.
type CrawlerRef struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	Host         string `yaml:"host"`
	Root         string `yaml:"root"`
	TaxonomyFile string `yaml:"taxonomy_file"`
	RsyncModule  string `yaml:"rsync_module,omitempty"`
	// CompanionFiles also indexes published GTF and cDNA files.
	CompanionFiles bool `yaml:"companion_files,omitempty"`
	Disabled       bool `yaml:"disabled,omitempty"`
}

// FTPConfig tunes the crawler connections.
type FTPConfig struct {
	Timeout    string `yaml:"timeout"`
	RetryDelay string `yaml:"retry_delay,omitempty"`
}

// ToolsConfig names external binaries.
type ToolsConfig struct {
	Rsync       string `yaml:"rsync"`
	Gffread     string `yaml:"gffread"`
	SpliceSites string `yaml:"splice_sites"`
	HisatBuild  string `yaml:"hisat2_build"`
	Salmon      string `yaml:"salmon"`
	Kallisto    string `yaml:"kallisto"`
}

// ProjectConfig models .pynome/config.yaml.
type ProjectConfig struct {
	Version     int          `yaml:"version"`
	CPUs        int          `yaml:"cpus"`
	JobName     string       `yaml:"job_name"`
	DatabaseURL string       `yaml:"database_url"`
	FTP         FTPConfig    `yaml:"ftp"`
	Crawlers    []CrawlerRef `yaml:"crawlers"`
	Tools       ToolsConfig  `yaml:"tools"`
}

// Config holds the runtime configuration for pynome.
type Config struct {
	// Root is the species root every assembly lives under
	Root string

	// StateDir is Root/.pynome
	StateDir string

	// Quiet suppresses the stderr echo of the process log
	Quiet bool

	Project ProjectConfig
}

// LoadOptions carries command-line values. Zero values mean "not given".
type LoadOptions struct {
	Root      string
	CPUs      int
	Quiet     bool
	Overrides map[string]string
	// EnvFiles are loaded with godotenv before the environment is read.
	// Missing files are ignored.
	EnvFiles []string
}

// Load resolves the species root, creates its .pynome directory and returns
// the merged configuration.
func Load(opts LoadOptions) (*Config, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", file, err)
			}
		}
	}

	root := strings.TrimSpace(opts.Root)
	if root == "" {
		root = strings.TrimSpace(os.Getenv(EnvRoot))
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve home directory: %w", err)
		}
		root = filepath.Join(home, defaultRootDir)
	}
	root, err := expandHome(root)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Root:     root,
		StateDir: filepath.Join(root, StateDir),
		Quiet:    opts.Quiet,
		Project:  defaultProjectConfig(),
	}
	if err := InitStateDir(root); err != nil {
		return nil, err
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.Project.applyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.CPUs > 0 {
		cfg.Project.CPUs = opts.CPUs
	}
	if err := cfg.Project.applyOverrides(opts.Overrides); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Project.normalize()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// InitStateDir creates the .pynome directory structure in the species root.
//
// Structure created:
// .pynome/
// ├── config.yaml  <- Settings (written with defaults on first run)
// ├── logs/        <- Process log
// ├── jobs/        <- Job files written by list-all
// └── tasks/       <- Extra YAML command tasks
func InitStateDir(root string) error {
	stateDir := filepath.Join(root, StateDir)
	for _, dir := range []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "jobs"),
		filepath.Join(stateDir, "tasks"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// JobsDir returns the default output directory for job files
func (c *Config) JobsDir() string {
	return filepath.Join(c.StateDir, "jobs")
}

// TasksDir returns the directory scanned for YAML command tasks
func (c *Config) TasksDir() string {
	return filepath.Join(c.StateDir, "tasks")
}

// ProjectConfigPath returns the on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// CPUCount returns the configured thread count, defaulting to every CPU.
func (c *Config) CPUCount() int {
	if c.Project.CPUs > 0 {
		return c.Project.CPUs
	}
	return runtime.NumCPU()
}

// FTPTimeout returns the dial and login timeout.
func (c *Config) FTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Project.FTP.Timeout)
	if err != nil || d <= 0 {
		return defaultFTPTimeout
	}
	return d
}

// RetryDelay returns the pause between reconnect attempts.
func (c *Config) RetryDelay() time.Duration {
	if c.Project.FTP.RetryDelay == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Project.FTP.RetryDelay)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Crawlers returns the enabled crawler references.
func (c *Config) Crawlers() []CrawlerRef {
	out := make([]CrawlerRef, 0, len(c.Project.Crawlers))
	for _, ref := range c.Project.Crawlers {
		if !ref.Disabled {
			out = append(out, ref)
		}
	}
	return out
}

// RsyncModules maps crawler hosts to rsync module names.
func (c *Config) RsyncModules() map[string]string {
	modules := map[string]string{}
	for _, ref := range c.Project.Crawlers {
		if ref.RsyncModule != "" {
			modules[ref.Host] = ref.RsyncModule
		}
	}
	return modules
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	var pc ProjectConfig
	if err := yaml.Unmarshal([]byte(defaultProjectConfigYAML), &pc); err != nil {
		panic(fmt.Sprintf("config: default config does not parse: %v", err))
	}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.JobName == "" {
		pc.JobName = defaultJobName
	}
	if pc.FTP.Timeout == "" {
		pc.FTP.Timeout = defaultFTPTimeout.String()
	}
	pick := func(value *string, fallback string) {
		if strings.TrimSpace(*value) == "" {
			*value = fallback
		}
	}
	pick(&pc.Tools.Rsync, "rsync")
	pick(&pc.Tools.Gffread, "gffread")
	pick(&pc.Tools.SpliceSites, "hisat2_extract_splice_sites.py")
	pick(&pc.Tools.HisatBuild, "hisat2-build")
	pick(&pc.Tools.Salmon, "salmon")
	pick(&pc.Tools.Kallisto, "kallisto")
}

func (pc *ProjectConfig) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvCPUs)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCPUs, err)
		}
		pc.CPUs = n
	}
	if v := strings.TrimSpace(getenv(EnvDatabaseURL)); v != "" {
		pc.DatabaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvFTPTimeout)); v != "" {
		pc.FTP.Timeout = v
	}
	return nil
}

// applyOverrides handles --set key=value pairs.
func (pc *ProjectConfig) applyOverrides(overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := strings.TrimSpace(overrides[key])
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "cpus":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("cpus: %w", err)
			}
			pc.CPUs = n
		case "job_name":
			pc.JobName = value
		case "database_url":
			pc.DatabaseURL = value
		case "ftp.timeout":
			pc.FTP.Timeout = value
		case "ftp.retry_delay":
			pc.FTP.RetryDelay = value
		case "tools.rsync":
			pc.Tools.Rsync = value
		case "tools.gffread":
			pc.Tools.Gffread = value
		case "tools.splice_sites":
			pc.Tools.SpliceSites = value
		case "tools.hisat2_build":
			pc.Tools.HisatBuild = value
		case "tools.salmon":
			pc.Tools.Salmon = value
		case "tools.kallisto":
			pc.Tools.Kallisto = value
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	return nil
}

func (pc *ProjectConfig) normalize() {
	pc.JobName = strings.TrimSpace(pc.JobName)
	pc.DatabaseURL = strings.TrimSpace(pc.DatabaseURL)
	pc.FTP.Timeout = strings.TrimSpace(pc.FTP.Timeout)
	pc.FTP.RetryDelay = strings.TrimSpace(pc.FTP.RetryDelay)
	for i := range pc.Crawlers {
		pc.Crawlers[i].normalize()
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.CPUs < 0 {
		return fmt.Errorf("cpus must be >= 0")
	}
	if !strings.Contains(pc.JobName, "%") {
		return fmt.Errorf("job_name must contain a printf verb for the job index")
	}
	if d, err := time.ParseDuration(pc.FTP.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("ftp.timeout must be a positive duration")
	}
	if pc.FTP.RetryDelay != "" {
		if d, err := time.ParseDuration(pc.FTP.RetryDelay); err != nil || d < 0 {
			return fmt.Errorf("ftp.retry_delay must be a duration")
		}
	}
	seen := map[string]bool{}
	for i := range pc.Crawlers {
		if err := pc.Crawlers[i].validate(); err != nil {
			return fmt.Errorf("crawlers[%d]: %w", i, err)
		}
		if seen[pc.Crawlers[i].Name] {
			return fmt.Errorf("crawlers[%d]: duplicate name %q", i, pc.Crawlers[i].Name)
		}
		seen[pc.Crawlers[i].Name] = true
	}
	return nil
}

func (ref *CrawlerRef) normalize() {
	ref.Name = strings.TrimSpace(ref.Name)
	ref.Kind = strings.ToLower(strings.TrimSpace(ref.Kind))
	if ref.Kind == "" {
		ref.Kind = "ensembl"
	}
	ref.Host = strings.TrimSpace(ref.Host)
	ref.Root = "/" + strings.Trim(strings.TrimSpace(ref.Root), "/")
	ref.TaxonomyFile = strings.TrimSpace(ref.TaxonomyFile)
	ref.RsyncModule = strings.Trim(strings.TrimSpace(ref.RsyncModule), "/")
}

func (ref CrawlerRef) validate() error {
	if ref.Name == "" {
		return fmt.Errorf("name is required")
	}
	if ref.Kind != "ensembl" {
		return fmt.Errorf("kind must be 'ensembl'")
	}
	if ref.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
