package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paratune/paratune/internal/launcher"
	"github.com/paratune/paratune/internal/options"
	"github.com/paratune/paratune/pkg/config"
	"github.com/paratune/paratune/pkg/logger"
)

func newLocalCmd() *cobra.Command {
	v := viper.New()
	defaults := options.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "local",
		Short: "run a whole tuning group in this process",
		Args:  cobra.NoArgs,
	}
	registerCommonFlags(cmd.Flags(), v, defaults)
	cmd.Flags().Int("ranks", 2, "number of ranks to run, the master included")
	bindFlag(v, cmd.Flags(), "size", "ranks")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		opts, err := loadOptions(v)
		if err != nil {
			return err
		}
		logger.SetLogrus(opts.Log)
		logOptions(opts)

		tf, err := config.Load(opts.TuningFile)
		if err != nil {
			return err
		}
		graphs, err := launcher.RunLocal(cmd.Context(), tf, opts.Size, nil)
		if err != nil {
			return err
		}

		t := graphs[0].Tuner
		fmt.Fprintf(cmd.OutOrStdout(), "best parameters %v with value %g after %d iterations\n",
			t.FinalParameters(), t.FinalValue(), t.Iterations())
		return nil
	}

	return cmd
}
