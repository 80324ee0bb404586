package layout

// Field names of the built-in layouts.
const (
	FieldTemperature = "temperature"
	FieldIrradiance  = "irradiance"

	FieldNutrient      = "nutrient"
	FieldDetritus      = "detritus"
	FieldPhytoplankton = "phytoplankton"

	FieldBinCounts = "bin_counts"
	FieldAux0      = "aux0"
	FieldAux1      = "aux1"
)

// DistBins is the number of trait classes in a distribution record.
const DistBins = 201

var (
	// Env is the environment trace: water temperature and irradiance.
	Env = MustNew("env", 16,
		Float(FieldTemperature),
		Float(FieldIrradiance),
	)

	// Eco is the ecosystem trace: nutrient, detritus and phytoplankton
	// concentrations.
	Eco = MustNew("eco", 24,
		Float(FieldNutrient),
		Float(FieldDetritus),
		Float(FieldPhytoplankton),
	)

	// Dist is the trait distribution trace: agent counts per trait class
	// followed by two growth diagnostics.
	Dist = MustNew("dist", 820,
		Int32s(FieldBinCounts, DistBins),
		Float(FieldAux0),
		Float(FieldAux1),
	)
)

// ByName returns a built-in layout.
func ByName(name string) (Layout, bool) {
	switch name {
	case Env.Name():
		return Env, true
	case Eco.Name():
		return Eco, true
	case Dist.Name():
		return Dist, true
	default:
		return Layout{}, false
	}
}
