package configuration

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "PGLOAD"
	// PasswordEnvVar overrides the password of every configured cluster.
	PasswordEnvVar = "DB_PASSWORD"

	defaultConfigName = ".pgload"
)

// list-valued keys whose built-in defaults are replaced wholesale when present in a config file
var listKeys = []string{"clusters", "categories", "analysisqueries"}

// NewViper returns a viper instance with pgload's environment handling and scalar defaults registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("duration", defaults.Duration)
	v.SetDefault("pollInterval", defaults.PollInterval)
	v.SetDefault("monitor.url", defaults.Monitor.Url)
	v.SetDefault("monitor.timeout", defaults.Monitor.Timeout)
	v.SetDefault("metrics.port", defaults.Metrics.Port)
	v.SetDefault("reportFile", defaults.ReportFile)
	v.SetDefault("seed", defaults.Seed)
	return v
}

// ReadConfigFile reads the config file at path into v. If path is empty, ~/.pgload.yaml is used when
// present and the built-in defaults otherwise.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.Wrap(err, "locating home directory")
		}
		v.AddConfigPath(home)
		v.SetConfigName(defaultConfigName)
	}

	err := v.ReadInConfig()
	if err == nil {
		log.Infof("Using config file: %s", v.ConfigFileUsed())
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		log.Debug("No config file found, using built-in defaults")
		return nil
	}
	return errors.Wrapf(err, "reading config file %s", path)
}

// Load builds a validated Config from v, starting from the built-in defaults.
func Load(v *viper.Viper) (*Config, error) {
	return load(v, os.LookupEnv)
}

func load(v *viper.Viper, lookupEnv func(string) (string, bool)) (*Config, error) {
	config := Default()
	for _, key := range listKeys {
		if v.InConfig(key) {
			switch key {
			case "clusters":
				config.Clusters = nil
			case "categories":
				config.Categories = nil
			case "analysisqueries":
				config.AnalysisQueries = nil
			}
		}
	}

	if err := v.Unmarshal(config, CustomHooks...); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	ApplyEnvOverrides(config, lookupEnv)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return config, nil
}

// ApplyEnvOverrides applies the single credential override sourced from the environment.
func ApplyEnvOverrides(config *Config, lookupEnv func(string) (string, bool)) {
	password, ok := lookupEnv(PasswordEnvVar)
	if !ok || password == "" {
		return
	}
	for i := range config.Clusters {
		config.Clusters[i].Password = password
	}
}
