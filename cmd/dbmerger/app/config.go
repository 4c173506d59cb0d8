package app

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/mappings"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Project configuration
	Project string
	Store   string

	// Merge parameters
	SourceField   string
	MissingLabel  string
	ValidatedFlag string
	Separator     string
	Scope         string

	// Field mappings, in increasing precedence: Mappings, MappingsRaw, MappingsFile
	Mappings     mappings.Set
	MappingsRaw  string
	MappingsFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables
// 3. .env files
// 4. Config file (configFile, or ~/.dbmerger.yaml, or ./.dbmerger.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.ConfigFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "reading config file", err)
		}
	}

	config := &Config{
		// Global flags (may be overridden by cobra flags later)
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no-color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		Project: v.GetString("project"),
		Store:   v.GetString("store"),

		SourceField:   v.GetString("source_field"),
		MissingLabel:  v.GetString("missing_label"),
		ValidatedFlag: v.GetString("validated_flag"),
		Separator:     v.GetString("separator"),
		Scope:         v.GetString("scope"),

		MappingsRaw:  v.GetString("mappings_raw"),
		MappingsFile: v.GetString("mappings_file"),

		// Logging configuration
		LogLevel:  getEnvOrDefault("LOG_LEVEL", v.GetString("log_level")),
		LogFormat: getEnvOrDefault("LOG_FORMAT", v.GetString("log_format")),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", v.GetString("log_output")),
	}

	if raw := v.Get("mappings"); raw != nil {
		set, err := decodeMappings(raw)
		if err != nil {
			return nil, errors.NewConfigError("config", "invalid mappings", err)
		}
		config.Mappings = set
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store", "files")
	v.SetDefault("source_field", constants.DefaultSourceField)
	v.SetDefault("missing_label", constants.DefaultMissingLabel)
	v.SetDefault("validated_flag", constants.DefaultValidatedFlag)
	v.SetDefault("separator", constants.DefaultSeparator)
	v.SetDefault("scope", "image")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// decodeMappings converts the "mappings" config value to a Set, applying
// the same schema checks as the raw JSON parameter.
func decodeMappings(raw any) (mappings.Set, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapParse("yaml", "mappings", err)
	}
	return mappings.ParseJSON(string(data))
}

// ResolveMappings returns the mapping set to use: the mappings file when
// configured, otherwise the raw JSON parameter, otherwise the "mappings"
// key. It returns nil when none is configured.
func (c *Config) ResolveMappings() (mappings.Set, error) {
	switch {
	case c.MappingsFile != "":
		return mappings.LoadFile(c.MappingsFile)
	case strings.TrimSpace(c.MappingsRaw) != "":
		return mappings.ParseJSON(c.MappingsRaw)
	case c.Mappings != nil:
		return c.Mappings.Clone(), nil
	}
	return nil, nil
}

// ProvenancePath returns where merge provenance is stored for the project.
func (c *Config) ProvenancePath() string {
	if c.Project == "" || c.Project == ":memory:" {
		return ""
	}
	return c.Project + constants.ProvenanceFileSuffix
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
