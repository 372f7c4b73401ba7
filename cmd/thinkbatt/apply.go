package main

import (
	"github.com/spf13/cobra"

	"github.com/charlie0129/thinkbatt/pkg/threshold"
)

func NewApplyCommand() *cobra.Command {
	verbose := false

	cmd := &cobra.Command{
		Use:     "apply",
		GroupID: gBasic,
		Short:   "Apply the charge thresholds from the configuration file",
		Long: `Apply START_CHARGE_THRESH_<BAT> and STOP_CHARGE_THRESH_<BAT> from the configuration file to every battery.

Batteries without configured thresholds are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			b, err := detectBackend(conf)
			if err != nil {
				return err
			}

			results := threshold.New(b).ApplyConfig(conf)
			for _, res := range results {
				printResult(cmd.OutOrStdout(), res, verbose)
			}
			if threshold.Worst(results).Failed() {
				return errOutcome
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the result of every register")

	return cmd
}
