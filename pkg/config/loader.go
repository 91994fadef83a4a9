package config

import (
	"errors"
	"os"

	"github.com/kkyr/fig"
)

const EnvPrefix = "HOLOMESH"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom directory of the configuration file.
// Environment variables with the HOLOMESH_ prefix override file params;
// params from the config should be in uppercase separated with _.
// A missing file is not an error: defaults plus the environment apply.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.holomesh")
		}
	}
	err := fig.Load(config, fig.File("config.yaml"), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	return err
}
