// Package report renders quantification outcomes for auditors and projects
// them onto monitoring-period records.
package report

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/rshade/biochar-corc/internal/corc"
)

// AuditText renders the five-term breakdown and persistence fraction of q.
func AuditText(periodID string, q corc.Quantification) string {
	var b strings.Builder
	if periodID != "" {
		fmt.Fprintf(&b, "Monitoring period: %s\n", periodID)
	}
	fmt.Fprintf(&b, "Outcome: %s\n", q.Kind)

	switch {
	case q.Kind == corc.KindFull && q.Result != nil:
		writeResult(&b, *q.Result)
	case q.Kind == corc.KindEstimate && q.Estimate != nil:
		writeEstimate(&b, *q.Estimate)
	}
	if q.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", q.Cause)
	}
	return b.String()
}

func writeResult(b *strings.Builder, r corc.CalculationResult) {
	fmt.Fprintf(b, "Methodology: %s (%s)\n", r.Methodology, r.PermanenceType)
	fmt.Fprintf(b, "H/Corg: %.4f (quality valid: %t)\n", r.HOverCorg, r.QualityValid)
	fmt.Fprintf(b, "Persistence fraction: %.2f%%", r.PersistenceFractionPercent)
	if r.TemperatureClamped {
		b.WriteString(" (soil temperature clamped)")
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "  C stored     %12.4f tCO2e\n", r.CStoredTCO2e)
	fmt.Fprintf(b, "- C baseline   %12.4f tCO2e\n", r.CBaselineTCO2e)
	fmt.Fprintf(b, "- C loss       %12.4f tCO2e\n", r.CLossTCO2e)
	fmt.Fprintf(b, "- E project    %12.4f tCO2e\n", r.EProjectTCO2e)
	fmt.Fprintf(b, "    biomass    %12.4f tCO2e\n", r.Breakdown.BiomassEmissionsTCO2e)
	fmt.Fprintf(b, "    production %12.4f tCO2e\n", r.Breakdown.ProductionEmissionsTCO2e)
	fmt.Fprintf(b, "    embodied   %12.4f tCO2e\n", r.Breakdown.EmbodiedEmissionsTCO2e)
	fmt.Fprintf(b, "    end use    %12.4f tCO2e\n", r.Breakdown.EndUseEmissionsTCO2e)
	fmt.Fprintf(b, "- E leakage    %12.4f tCO2e\n", r.ELeakageTCO2e)
	fmt.Fprintf(b, "= Net CORCs    %12.4f tCO2e\n", r.NetCORCsTCO2e)
}

func writeEstimate(b *strings.Builder, e corc.EstimateResult) {
	b.WriteString("Approximate: estimate path, no emissions breakdown\n")
	fmt.Fprintf(b, "Persistence fraction: %.2f%%\n", e.PersistenceFractionPercent)
	fmt.Fprintf(b, "  C stored     %12.4f tCO2e\n", e.CStoredTCO2e)
	fmt.Fprintf(b, "- C loss       %12.4f tCO2e\n", e.CLossTCO2e)
	fmt.Fprintf(b, "- E estimated  %12.4f tCO2e\n", e.EstimatedEmissionsTCO2e)
	fmt.Fprintf(b, "= CORCs (est.) %12.4f tCO2e\n", e.EstimatedCORCsTCO2e)
}

// Document is the JSON form of a quantification outcome.
type Document struct {
	PeriodID    string                  `json:"periodId,omitempty"`
	Kind        corc.QuantificationKind `json:"kind"`
	Approximate bool                    `json:"approximate"`
	Result      *corc.CalculationResult `json:"result,omitempty"`
	Estimate    *corc.EstimateResult    `json:"estimate,omitempty"`
	Cause       string                  `json:"cause,omitempty"`
}

// NewDocument converts q to its JSON form.
func NewDocument(periodID string, q corc.Quantification) Document {
	d := Document{
		PeriodID:    periodID,
		Kind:        q.Kind,
		Approximate: q.Approximate(),
		Result:      q.Result,
		Estimate:    q.Estimate,
	}
	if q.Cause != nil {
		d.Cause = q.Cause.Error()
	}
	return d
}

// JSON renders q as indented JSON.
func JSON(periodID string, q corc.Quantification) ([]byte, error) {
	data, err := json.MarshalIndent(NewDocument(periodID, q), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode quantification: %w", err)
	}
	return data, nil
}
