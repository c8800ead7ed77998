package main

import (
	"os"

	"github.com/Sternrassler/dashboard-news/internal/config"
	"github.com/Sternrassler/dashboard-news/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// options holds flags that do not belong to the configuration file.
type options struct {
	verbose     int
	pretty      bool
	metricsAddr string
	failOnError bool

	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &options{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "dashboard-news",
		Short: "Build your own newspaper from Sumo Logic dashboard exports",
		Long: `dashboard-news exports every dashboard listed in the [Dashboards] section
of the config file, converts the exports into page images and assembles
them into one timestamped PDF report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup(logging.Config{
				Level:  logging.LevelFromVerbosity(opts.verbose),
				Pretty: opts.pretty || logging.IsTerminal(os.Stderr),
				Output: cmd.ErrOrStderr(),
			})
			return config.BindFlags(opts.v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	config.RegisterFlags(pf)
	pf.IntVarP(&opts.verbose, "verbose", "v", 0, "increase verbosity (4 debug, 8 trace)")
	pf.BoolVar(&opts.pretty, "pretty", false, "human readable log output")
	_ = rootCmd.MarkPersistentFlagRequired(config.KeyConfig)
	addRunFlags(rootCmd, opts)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDashboardsCmd(opts),
		newLastRunCmd(opts),
	)

	return rootCmd
}

func addRunFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "exit with status 2 when any dashboard failed")
}
