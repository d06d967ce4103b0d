// Package config builds the immutable run configuration from the environment,
// command-line flags and an optional config file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Viper keys.
const (
	KeyAccessToken        = "access_token"
	KeyUser               = "user"
	KeyExcludedRepos      = "excluded_repos"
	KeyExcludedLangs      = "excluded_langs"
	KeyExcludeForkedRepos = "exclude_forked_repos"
	KeyTemplateDir        = "template_dir"
	KeyOutputDir          = "output_dir"
	KeyStatsFile          = "stats_file"
	KeyConcurrency        = "concurrency"
	KeyMetricsFile        = "metrics_file"
)

// envNames maps each key to the environment variables it is read from, first match wins.
var envNames = map[string][]string{
	KeyAccessToken:        {"ACCESS_TOKEN"},
	KeyUser:               {"GITHUB_ACTOR"},
	KeyExcludedRepos:      {"EXCLUDED"},
	KeyExcludedLangs:      {"EXCLUDED_LANGS"},
	KeyExcludeForkedRepos: {"EXCLUDE_FORKED_REPOS"},
	KeyTemplateDir:        {"TEMPLATE_DIR"},
	KeyOutputDir:          {"OUTPUT_DIR"},
	KeyStatsFile:          {"REPO_STATS_PATH"},
	KeyConcurrency:        {"CONCURRENCY"},
	KeyMetricsFile:        {"METRICS_FILE"},
}

// Defaults.
const (
	DefaultTemplateDir = "templates"
	DefaultOutputDir   = "generated"
	DefaultStatsFile   = "generated/repo_stats.json"
	DefaultConcurrency = 4
)

// Config is the configuration of a generation run. It is constructed once at startup
// and passed by value; nothing below cmd reads the environment.
type Config struct {
	AccessToken        string `env:"ACCESS_TOKEN" validate:"required"`
	User               string `env:"GITHUB_ACTOR" validate:"required"`
	ExcludedRepos      []string
	ExcludedLangs      []string
	ExcludeForkedRepos bool
	TemplateDir        string `env:"TEMPLATE_DIR" validate:"required"`
	OutputDir          string `env:"OUTPUT_DIR" validate:"required"`
	StatsFile          string `env:"REPO_STATS_PATH" validate:"required"`
	Concurrency        int    `env:"CONCURRENCY" validate:"min=1,max=32"`
	MetricsFile        string
}

// Bind registers defaults and environment variable names on v.
func Bind(v *viper.Viper) error {
	v.SetDefault(KeyTemplateDir, DefaultTemplateDir)
	v.SetDefault(KeyOutputDir, DefaultOutputDir)
	v.SetDefault(KeyStatsFile, DefaultStatsFile)
	v.SetDefault(KeyConcurrency, DefaultConcurrency)
	for key, names := range envNames {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		AccessToken:        strings.TrimSpace(v.GetString(KeyAccessToken)),
		User:               strings.TrimSpace(v.GetString(KeyUser)),
		ExcludedRepos:      SplitList(v.GetString(KeyExcludedRepos)),
		ExcludedLangs:      SplitList(v.GetString(KeyExcludedLangs)),
		ExcludeForkedRepos: ParseTruthy(v.GetString(KeyExcludeForkedRepos)),
		TemplateDir:        v.GetString(KeyTemplateDir),
		OutputDir:          v.GetString(KeyOutputDir),
		StatsFile:          v.GetString(KeyStatsFile),
		Concurrency:        v.GetInt(KeyConcurrency),
		MetricsFile:        v.GetString(KeyMetricsFile),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("env"); name != "" {
			return name
		}
		return field.Name
	})
	return val
}

// Validate reports every invalid field, naming the environment variable that sets it.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s must be set", fe.Field()))
		default:
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// SplitList turns "a, b,,c" into ["a" "b" "c"].
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseTruthy treats any non-empty value other than "false" (case-insensitive) as true.
func ParseTruthy(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw != "" && !strings.EqualFold(raw, "false")
}
