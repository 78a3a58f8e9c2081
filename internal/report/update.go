package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rshade/biochar-corc/internal/corc"
)

// Status values of a MonitoringPeriodUpdate.
const (
	StatusCalculated = "CALCULATED"
	StatusEstimated  = "ESTIMATED"
)

// ErrNothingToRecord is returned for a failed quantification.
var ErrNothingToRecord = errors.New("quantification produced no result")

// MonitoringPeriodUpdate holds the scalar fields a monitoring-period record
// keeps ahead of certificate issuance. Estimates are labelled so they are
// never mistaken for certified figures.
type MonitoringPeriodUpdate struct {
	ID                         uuid.UUID `json:"id"`
	PeriodID                   string    `json:"periodId"`
	Status                     string    `json:"status"`
	Approximate                bool      `json:"approximate"`
	NetCORCsTCO2e              float64   `json:"netCORCsTCO2e"`
	CStoredTCO2e               float64   `json:"cStoredTCO2e"`
	CLossTCO2e                 float64   `json:"cLossTCO2e"`
	PersistenceFractionPercent float64   `json:"persistenceFractionPercent"`

	// QualityValid is nil for estimates, which do not assess quality.
	QualityValid *bool `json:"qualityValid,omitempty"`

	Methodology string    `json:"methodology"`
	ComputedAt  time.Time `json:"computedAt"`
}

// NewMonitoringPeriodUpdate projects q onto a monitoring-period update.
// methodology labels the calculation and computedAt stamps it.
func NewMonitoringPeriodUpdate(periodID string, q corc.Quantification, methodology string, computedAt time.Time) (MonitoringPeriodUpdate, error) {
	u := MonitoringPeriodUpdate{
		ID:          uuid.New(),
		PeriodID:    periodID,
		Methodology: methodology,
		ComputedAt:  computedAt.UTC(),
	}

	switch {
	case q.Kind == corc.KindFull && q.Result != nil:
		r := q.Result
		valid := r.QualityValid
		u.Status = StatusCalculated
		u.NetCORCsTCO2e = r.NetCORCsTCO2e
		u.CStoredTCO2e = r.CStoredTCO2e
		u.CLossTCO2e = r.CLossTCO2e
		u.PersistenceFractionPercent = r.PersistenceFractionPercent
		u.QualityValid = &valid
		if r.Methodology != "" {
			u.Methodology = r.Methodology
		}
	case q.Kind == corc.KindEstimate && q.Estimate != nil:
		e := q.Estimate
		u.Status = StatusEstimated
		u.Approximate = true
		u.NetCORCsTCO2e = e.EstimatedCORCsTCO2e
		u.CStoredTCO2e = e.CStoredTCO2e
		u.CLossTCO2e = e.CLossTCO2e
		u.PersistenceFractionPercent = e.PersistenceFractionPercent
	default:
		if q.Cause != nil {
			return MonitoringPeriodUpdate{}, fmt.Errorf("monitoring period %q: %w: %w", periodID, ErrNothingToRecord, q.Cause)
		}
		return MonitoringPeriodUpdate{}, fmt.Errorf("monitoring period %q: %w", periodID, ErrNothingToRecord)
	}
	return u, nil
}
