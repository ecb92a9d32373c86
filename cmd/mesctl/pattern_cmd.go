package main

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/pattern"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type validateOutput struct {
	Template string           `json:"template"`
	IsValid  bool             `json:"is_valid"`
	Errors   []string         `json:"errors"`
	Metadata pattern.Metadata `json:"metadata"`
}

type componentOutput struct {
	Type pattern.TokenType `json:"type"`
	Raw  string            `json:"raw"`
	Span pattern.Span      `json:"span"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TEMPLATE",
		Short: "Check template syntax and report every error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := pattern.ValidatePatternSyntax(args[0])
			if err := writeJSON(cmd.OutOrStdout(), validateOutput{
				Template: args[0],
				IsValid:  res.IsValid,
				Errors:   res.Errors,
				Metadata: pattern.GetPatternMetadata(args[0]),
			}); err != nil {
				return err
			}
			if !res.IsValid {
				return fmt.Errorf("template has %d error(s)", len(res.Errors))
			}
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse TEMPLATE",
		Short: "List the tokens of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps := pattern.ExtractComponents(args[0])
			out := make([]componentOutput, 0, len(comps))
			for _, c := range comps {
				out = append(out, componentOutput{Type: c.Type(), Raw: c.Raw(), Span: c.Span()})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newRenderCmd(v *viper.Viper) *cobra.Command {
	var (
		sequence int64
		count    int
		at       string
	)
	cmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render serials from a template without touching any counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			ts := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				ts = parsed
			}
			p := pattern.ParsePattern(args[0])
			serials := make([]string, 0, count)
			for i := 0; i < count; i++ {
				serials = append(serials, pattern.BuildSerial(p, pattern.Context{
					SiteCode:   v.GetString("site"),
					PartNumber: v.GetString("part"),
					Sequence:   sequence + int64(i),
					Timestamp:  ts,
				}))
			}
			return writeJSON(cmd.OutOrStdout(), serials)
		},
	}
	cmd.Flags().Int64Var(&sequence, "seq", 1, "First sequence value")
	cmd.Flags().IntVar(&count, "count", 1, "Number of consecutive serials")
	cmd.Flags().StringVar(&at, "at", "", "Generation date (UTC, YYYY-MM-DD), defaults to now")
	return cmd
}

func newMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match TEMPLATE SERIAL...",
		Short: "Check serials against the shape of a template",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := make(map[string]bool, len(args)-1)
			mismatched := 0
			for _, serial := range args[1:] {
				ok := pattern.ValidateAgainstPattern(serial, args[0])
				result[serial] = ok
				if !ok {
					mismatched++
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if mismatched > 0 {
				return fmt.Errorf("%d serial(s) do not match", mismatched)
			}
			return nil
		},
	}
}
