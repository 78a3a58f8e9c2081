package corc

// ProjectEmissionsKg holds project emission subtotals in kg CO2e.
type ProjectEmissionsKg struct {
	Biomass    float64
	Production float64
	Embodied   float64
	EndUse     float64
}

// Total returns the sum of the four categories.
func (p ProjectEmissionsKg) Total() float64 {
	return p.Biomass + p.Production + p.Embodied + p.EndUse
}

// Breakdown converts the subtotals to tonnes.
func (p ProjectEmissionsKg) Breakdown() EmissionsBreakdown {
	return EmissionsBreakdown{
		BiomassEmissionsTCO2e:    kgToTonnes(p.Biomass),
		ProductionEmissionsTCO2e: kgToTonnes(p.Production),
		EmbodiedEmissionsTCO2e:   kgToTonnes(p.Embodied),
		EndUseEmissionsTCO2e:     kgToTonnes(p.EndUse),
	}
}

// SumProjectEmissionsKg totals project emissions by category. Stack CH4 and
// N2O masses are converted to CO2e with gwp before they are added.
func SumProjectEmissionsKg(in ProjectEmissionsInput, gwp GWPSet) ProjectEmissionsKg {
	b := in.BiomassEmissions
	p := in.ProductionEmissions
	e := in.EmbodiedEmissions
	u := in.EndUseEmissions

	stackCO2e := p.StackCH4Kg*gwp.CH4 + p.StackN2OKg*gwp.N2O

	return ProjectEmissionsKg{
		Biomass:    b.Cultivation + b.Collection + b.Transport + b.Preprocessing,
		Production: p.Energy + p.Materials + p.Waste + stackCO2e + p.FossilCO2Kg + p.Maintenance,
		Embodied:   e.Infrastructure + e.DLUC,
		EndUse:     u.Transport + u.Packaging + u.Incorporation,
	}
}

// SumLeakageKg totals ecological and market-activity leakage in kg CO2e.
func SumLeakageKg(in LeakageInput) float64 {
	e := in.EcologicalLeakage
	m := in.MarketActivityLeakage
	return e.Facility + e.BiomassSourcing + m.AFOLU + m.EnergyMaterial + m.ILUC
}
