package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rshade/biochar-corc/internal/corc"
	"github.com/rshade/biochar-corc/internal/report"
)

func newCalculateCommand(o *rootOptions) *cobra.Command {
	var (
		output string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "calculate <input.json|input.yaml|->",
		Short: "Calculate net CORCs for an assembled calculation input",
		Long: `Calculate net CORCs for an assembled calculation input.

When the input fails validation the estimate path is used instead and the
result is marked approximate. Use --strict to fail instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			in, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			calc, err := o.cfg.NewCalculator(o.logger)
			if err != nil {
				return err
			}

			var q corc.Quantification
			if strict {
				res, err := calc.Calculate(in)
				if err != nil {
					return err
				}
				q = corc.Quantification{Kind: corc.KindFull, Result: &res}
			} else {
				q = calc.Quantify(in)
			}

			if err := writeQuantification(cmd.OutOrStdout(), output, "", q); err != nil {
				return err
			}
			if q.Kind == corc.KindFailed {
				return q.Cause
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on invalid input instead of estimating")
	return cmd
}

// readInput decodes a CalculationInput from a YAML or JSON file, or JSON on
// stdin when path is "-".
func readInput(path string, stdin io.Reader) (corc.CalculationInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return corc.CalculationInput{}, fmt.Errorf("failed to read input: %w", err)
	}

	var in corc.CalculationInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &in)
	default:
		err = json.Unmarshal(data, &in)
	}
	if err != nil {
		return corc.CalculationInput{}, fmt.Errorf("failed to parse input %s: %w", path, err)
	}
	return in, nil
}

func writeQuantification(w io.Writer, format, periodID string, q corc.Quantification) error {
	if format == outputJSON {
		data, err := report.JSON(periodID, q)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := io.WriteString(w, report.AuditText(periodID, q))
	return err
}
