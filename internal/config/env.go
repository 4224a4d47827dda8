// env.go layers environment variable overrides on top of the file config.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env holds settings that come from the environment rather than the
// project config file, mostly credentials and operator overrides.
type Env struct {
	GitHubToken string `envconfig:"GITHUB_TOKEN"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	ModelCLI    string `envconfig:"MODEL_CLI"`
}

// LoadEnv reads GANTRY_ prefixed environment variables. GITHUB_TOKEN is
// also honored without the prefix since that is what most tooling sets.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("gantry", &env); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	return &env, nil
}
