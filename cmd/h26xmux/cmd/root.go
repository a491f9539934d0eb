package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cleoag/h26xmux/internal/logging"
)

type app struct {
	v   *viper.Viper
	log *logrus.Logger
}

func Execute() error {
	return NewRootCommand().Execute()
}

func NewRootCommand() *cobra.Command {
	a := &app{v: newConfig(), log: logrus.StandardLogger()}
	var configPath string

	root := &cobra.Command{
		Use:           "h26xmux",
		Short:         "Multiplex raw H.264/H.265 streams into MP4",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfig(a.v, configPath); err != nil {
				return err
			}
			lc := logging.Config{
				Path:       a.v.GetString("log.file"),
				MaxAgeDays: a.v.GetInt("log.max_age_days"),
				Level:      a.v.GetString("log.level"),
				Format:     a.v.GetString("log.format"),
			}
			log, err := lc.NewLogger()
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default h26xmux.yaml in ., $HOME/.h26xmux or /etc/h26xmux)")
	pf.String("log-level", "info", "log level")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-file", "", "write logs to this file, rotated daily, instead of stderr")
	a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	a.v.BindPFlag("log.format", pf.Lookup("log-format"))
	a.v.BindPFlag("log.file", pf.Lookup("log-file"))

	root.AddCommand(a.newMuxCommand())
	root.AddCommand(a.newBatchCommand())
	return root
}
