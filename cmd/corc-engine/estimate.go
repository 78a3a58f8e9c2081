package main

import (
	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/corc"
)

func newEstimateCommand(o *rootOptions) *cobra.Command {
	var (
		output                  string
		mass, corgPct, hPct, tC float64
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate CORCs from biochar mass and composition only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			calc, err := o.cfg.NewCalculator(o.logger)
			if err != nil {
				return err
			}
			est, err := calc.Estimate(mass, corgPct, hPct, tC)
			if err != nil {
				return err
			}
			q := corc.Quantification{Kind: corc.KindEstimate, Estimate: &est}
			return writeQuantification(cmd.OutOrStdout(), output, "", q)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&mass, "mass", 0, "biochar dry mass in tonnes")
	flags.Float64Var(&corgPct, "corg", 0, "organic carbon content in percent")
	flags.Float64Var(&hPct, "h", 0, "hydrogen content in percent")
	flags.Float64Var(&tC, "temp", corc.DefaultSoilTempC, "mean annual soil temperature in °C")
	flags.StringVarP(&output, "output", "o", outputText, "output format (text, json)")
	_ = cmd.MarkFlagRequired("mass")
	_ = cmd.MarkFlagRequired("corg")
	_ = cmd.MarkFlagRequired("h")
	return cmd
}
