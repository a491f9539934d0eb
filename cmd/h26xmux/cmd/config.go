package cmd

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "H26XMUX"

func newConfig() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("mux.fps", 60)
	v.SetDefault("mux.format", "mp4")
	v.SetDefault("mux.fragment", "200ms")

	v.SetDefault("batch.parallel", 4)
	v.SetDefault("batch.metrics_file", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readConfig loads path, or h26xmux.yaml from the usual places when path is
// empty. A missing default file is not an error.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("h26xmux")
		v.SetConfigType("yaml")
		for _, p := range []string{".", "$HOME/.h26xmux", "/etc/h26xmux"} {
			v.AddConfigPath(os.ExpandEnv(p))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}
