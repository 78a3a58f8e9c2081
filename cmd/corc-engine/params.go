package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/corc"
)

// paramsView is the JSON form of the active methodology and factors.
type paramsView struct {
	Name                       string                       `json:"name"`
	PermanenceModel            string                       `json:"permanenceModel"`
	GWP                        corc.GWPSet                  `json:"gwp"`
	TemperatureRangePolicy     string                       `json:"temperatureRangePolicy"`
	QualityThreshold           float64                      `json:"qualityThreshold"`
	EstimatedEmissionsFraction float64                      `json:"estimatedEmissionsFraction"`
	PersistenceTable           []corc.PersistenceParameters `json:"persistenceTable"`
	TransportKgCO2ePerTonneKm  float64                      `json:"transportKgCO2ePerTonneKm"`
	EnergyFactors              map[string]float64           `json:"energyFactors"`
}

func newParamsCommand(o *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show the methodology parameters and emission factors in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			calc, err := o.cfg.NewCalculator(o.logger)
			if err != nil {
				return err
			}
			m := calc.Methodology()
			factors := o.cfg.EmissionFactors

			if output == outputJSON {
				data, err := json.MarshalIndent(paramsView{
					Name:                       m.Name,
					PermanenceModel:            m.PermanenceModel,
					GWP:                        m.GWP,
					TemperatureRangePolicy:     m.RangePolicy.String(),
					QualityThreshold:           m.QualityThreshold,
					EstimatedEmissionsFraction: m.EstimatedEmissionsFraction,
					PersistenceTable:           m.Persistence.Rows(),
					TransportKgCO2ePerTonneKm:  factors.TransportKgCO2ePerTonneKm,
					EnergyFactors:              factors.Energy,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode parameters: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Methodology:\t%s\n", m.Name)
			fmt.Fprintf(tw, "GWP (%s):\tCH4 %g, N2O %g\n", m.GWP.Version, m.GWP.CH4, m.GWP.N2O)
			fmt.Fprintf(tw, "Temperature range policy:\t%s\n", m.RangePolicy)
			fmt.Fprintf(tw, "Quality threshold (H/Corg):\t%g\n", m.QualityThreshold)
			fmt.Fprintf(tw, "Estimated emissions fraction:\t%g\n", m.EstimatedEmissionsFraction)
			fmt.Fprintf(tw, "Transport factor:\t%g kg CO2e/t·km\n", factors.TransportKgCO2ePerTonneKm)
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "TEMP °C\tM\ta")
			for _, row := range m.Persistence.Rows() {
				fmt.Fprintf(tw, "%g\t%g\t%g\n", row.TempC, row.M, row.A)
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "ENERGY TYPE\tkg CO2e/unit")
			for _, k := range factors.EnergyTypes() {
				fmt.Fprintf(tw, "%s\t%g\n", k, factors.Energy[k])
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json)")
	return cmd
}
