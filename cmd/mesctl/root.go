package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd --site/--part 也可由 MESCTL_SITE / MESCTL_PART 环境变量提供
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("mesctl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "mesctl",
		Short:        "Serial number template tooling",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("site", "", "Site code substituted for {SITE}")
	cmd.PersistentFlags().String("part", "", "Part number substituted for {PART}")
	_ = v.BindPFlag("site", cmd.PersistentFlags().Lookup("site"))
	_ = v.BindPFlag("part", cmd.PersistentFlags().Lookup("part"))

	cmd.AddCommand(
		newValidateCmd(),
		newParseCmd(),
		newRenderCmd(v),
		newMatchCmd(),
	)
	return cmd
}
