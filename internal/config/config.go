package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fctarget/adapters/blob"
	"fctarget/domain/cluster"
	"fctarget/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Targeting TargetingConfig `yaml:"targeting"`
	Inputs    InputConfig     `yaml:"inputs"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Reports   ReportConfig    `yaml:"reports"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// TargetingConfig holds the statistical parameters of a run
type TargetingConfig struct {
	Permutations     int           `yaml:"permutations"`
	Alpha            float64       `yaml:"alpha"`
	MinClusterVoxels int           `yaml:"min_cluster_voxels"`
	Connectivity     int           `yaml:"connectivity"`
	Bisided          bool          `yaml:"bisided"`
	CenterMode       string        `yaml:"center_mode"`
	SelectionPolicy  string        `yaml:"selection_policy"`
	Workers          int           `yaml:"workers"`
	TrialTimeout     time.Duration `yaml:"trial_timeout"`
	Seed             int64         `yaml:"seed"`
}

// InputConfig locates input volumes
type InputConfig struct {
	Root string `yaml:"root"`
}

// ArtifactConfig controls per-trial artifact persistence
type ArtifactConfig struct {
	Enabled bool        `yaml:"enabled"`
	Blob    blob.Config `yaml:"blob"`
}

// ReportConfig selects the final-report sinks
type ReportConfig struct {
	Dir         string `yaml:"dir"`
	XLSX        bool   `yaml:"xlsx"`
	Markdown    bool   `yaml:"markdown"`
	HTML        bool   `yaml:"html"`
	DBDriver    string `yaml:"db_driver"`
	DatabaseURL string `yaml:"database_url"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port          string `yaml:"port"`
	GinMode       string `yaml:"gin_mode"`
	MaxActiveRuns int    `yaml:"max_active_runs"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Targeting: TargetingConfig{
			Permutations:     1000,
			Alpha:            0.05,
			MinClusterVoxels: 5,
			Connectivity:     int(cluster.NN1),
			CenterMode:       string(cluster.CenterUnweighted),
			SelectionPolicy:  string(cluster.SelectLargest),
			Workers:          runtime.NumCPU(),
			TrialTimeout:     2 * time.Minute,
		},
		Inputs: InputConfig{Root: "."},
		Artifacts: ArtifactConfig{
			Blob: blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./artifacts"},
		},
		Reports: ReportConfig{
			Dir:      "./reports",
			Markdown: true,
			DBDriver: "sqlite",
		},
		Server: ServerConfig{
			Port:          "8080",
			GinMode:       "release",
			MaxActiveRuns: 2,
		},
		Log: LogConfig{Level: "INFO", Format: "text"},
	}
}

// Load layers defaults, the YAML file named by CONFIG_FILE and FCT_*
// environment overrides, then validates the result
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file
func LoadFile(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := mergeYAML(config, path); err != nil {
			return nil, errors.Wrap(err, "failed to load configuration file")
		}
	}

	applyEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func mergeYAML(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("parse %s: %v", path, err))
	}
	return nil
}

// Marshal renders the configuration as YAML with secrets masked
func (c *Config) Marshal() ([]byte, error) {
	out := *c
	if out.Artifacts.Blob.S3.SecretAccessKey != "" {
		out.Artifacts.Blob.S3.SecretAccessKey = "***"
	}
	if out.Artifacts.Blob.S3.SessionToken != "" {
		out.Artifacts.Blob.S3.SessionToken = "***"
	}
	if out.Reports.DatabaseURL != "" {
		out.Reports.DatabaseURL = "***"
	}
	return yaml.Marshal(&out)
}

func applyEnv(config *Config) {
	t := &config.Targeting
	t.Permutations = getEnvIntOrDefault("FCT_PERMUTATIONS", t.Permutations)
	t.Alpha = getEnvFloatOrDefault("FCT_ALPHA", t.Alpha)
	t.MinClusterVoxels = getEnvIntOrDefault("FCT_MIN_CLUSTER_VOXELS", t.MinClusterVoxels)
	t.Connectivity = getEnvIntOrDefault("FCT_CONNECTIVITY", t.Connectivity)
	t.Bisided = getEnvBoolOrDefault("FCT_BISIDED", t.Bisided)
	t.CenterMode = getEnvOrDefault("FCT_CENTER_MODE", t.CenterMode)
	t.SelectionPolicy = getEnvOrDefault("FCT_SELECTION_POLICY", t.SelectionPolicy)
	t.Workers = getEnvIntOrDefault("FCT_WORKERS", t.Workers)
	t.TrialTimeout = getEnvDurationOrDefault("FCT_TRIAL_TIMEOUT", t.TrialTimeout)
	t.Seed = getEnvInt64OrDefault("FCT_SEED", t.Seed)

	config.Inputs.Root = getEnvOrDefault("FCT_INPUT_ROOT", config.Inputs.Root)

	a := &config.Artifacts
	a.Enabled = getEnvBoolOrDefault("FCT_ARTIFACTS", a.Enabled)
	a.Blob.Driver = blob.Driver(getEnvOrDefault("FCT_BLOB_DRIVER", string(a.Blob.Driver)))
	a.Blob.FSRoot = getEnvOrDefault("FCT_BLOB_FS_ROOT", a.Blob.FSRoot)
	a.Blob.S3.Bucket = getEnvOrDefault("FCT_S3_BUCKET", a.Blob.S3.Bucket)
	a.Blob.S3.Region = getEnvOrDefault("FCT_S3_REGION", a.Blob.S3.Region)
	a.Blob.S3.Endpoint = getEnvOrDefault("FCT_S3_ENDPOINT", a.Blob.S3.Endpoint)
	a.Blob.S3.AccessKeyID = getEnvOrDefault("FCT_S3_ACCESS_KEY_ID", a.Blob.S3.AccessKeyID)
	a.Blob.S3.SecretAccessKey = getEnvOrDefault("FCT_S3_SECRET_ACCESS_KEY", a.Blob.S3.SecretAccessKey)
	a.Blob.S3.PathStyle = getEnvBoolOrDefault("FCT_S3_PATH_STYLE", a.Blob.S3.PathStyle)

	r := &config.Reports
	r.Dir = getEnvOrDefault("FCT_REPORT_DIR", r.Dir)
	r.XLSX = getEnvBoolOrDefault("FCT_REPORT_XLSX", r.XLSX)
	r.Markdown = getEnvBoolOrDefault("FCT_REPORT_MARKDOWN", r.Markdown)
	r.HTML = getEnvBoolOrDefault("FCT_REPORT_HTML", r.HTML)
	r.DBDriver = getEnvOrDefault("FCT_DB_DRIVER", r.DBDriver)
	r.DatabaseURL = getEnvOrDefault("DATABASE_URL", r.DatabaseURL)

	s := &config.Server
	s.Port = getEnvOrDefault("PORT", s.Port)
	s.GinMode = getEnvOrDefault("GIN_MODE", s.GinMode)
	s.MaxActiveRuns = getEnvIntOrDefault("FCT_MAX_ACTIVE_RUNS", s.MaxActiveRuns)

	config.Log.Level = getEnvOrDefault("LOG_LEVEL", config.Log.Level)
	config.Log.Format = getEnvOrDefault("LOG_FORMAT", config.Log.Format)
}

func validateConfig(config *Config) error {
	t := config.Targeting
	if t.Permutations < 1 {
		return errors.ConfigInvalid("permutations must be >= 1")
	}
	if !(t.Alpha > 0 && t.Alpha < 1) {
		return errors.ConfigInvalid(fmt.Sprintf("alpha must be in (0,1), got %v", t.Alpha))
	}
	if t.MinClusterVoxels < 1 {
		return errors.ConfigInvalid("min_cluster_voxels must be >= 1")
	}
	if err := cluster.Connectivity(t.Connectivity).Validate(); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if _, err := cluster.ParseCenterMode(t.CenterMode); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if _, err := cluster.ParseSelectionPolicy(t.SelectionPolicy); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if t.Workers < 1 {
		return errors.ConfigInvalid("workers must be >= 1")
	}
	if t.TrialTimeout <= 0 {
		return errors.ConfigInvalid("trial_timeout must be positive")
	}

	switch config.Artifacts.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if config.Artifacts.Enabled && config.Artifacts.Blob.S3.Bucket == "" {
			return errors.ConfigInvalid("s3 artifact store requires a bucket")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown blob driver %q", config.Artifacts.Blob.Driver))
	}

	switch config.Reports.DBDriver {
	case "postgres":
		if config.Reports.DatabaseURL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the postgres report store")
		}
	case "sqlite", "":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown report database driver %q", config.Reports.DBDriver))
	}

	if config.Server.MaxActiveRuns < 1 {
		return errors.ConfigInvalid("max_active_runs must be >= 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
