package corc

// StoredCarbonTCO2e returns the gross CO2e held in the biochar:
// dryMassTonnes × (organicCarbonPercent / 100) × 44/12.
func StoredCarbonTCO2e(dryMassTonnes, organicCarbonPercent float64) float64 {
	return dryMassTonnes * (organicCarbonPercent / 100) * CO2PerCarbon
}

// CarbonLossTCO2e returns the share of stored carbon expected to be lost
// over the accounting horizon: cStored × (100 - PF) / 100.
func CarbonLossTCO2e(cStoredTCO2e, persistenceFractionPercent float64) (float64, error) {
	if !isFinite(persistenceFractionPercent) {
		return 0, newValidationError("persistenceFractionPercent", "must be finite, got %v", persistenceFractionPercent)
	}
	return cStoredTCO2e * (100 - persistenceFractionPercent) / 100, nil
}
