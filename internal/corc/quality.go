package corc

// QualityAssessment is the advisory eligibility check on biochar composition.
type QualityAssessment struct {
	HOverCorg float64
	Threshold float64
	Valid     bool
}

// AssessQuality flags a batch as eligible when its H/Corg ratio does not
// exceed threshold. An ineligible batch is not an error.
func AssessQuality(hydrogenPercent, organicCarbonPercent, threshold float64) (QualityAssessment, error) {
	ratio, err := HOverCorg(hydrogenPercent, organicCarbonPercent)
	if err != nil {
		return QualityAssessment{}, err
	}
	return QualityAssessment{
		HOverCorg: ratio,
		Threshold: threshold,
		Valid:     ratio <= threshold,
	}, nil
}
