package tables

import "github.com/JonMunkholm/thermoextract/internal/core"

func init() {
	registerSamples()
	registerFTDatapoints()
	registerHeDatapoints()
	registerFTTrackLengths()
	registerHeWholeGrain()
}

func bounds(lo, hi float64) *core.Rule {
	return &core.Rule{Min: &lo, Max: &hi}
}

func atLeast(lo float64) *core.Rule {
	return &core.Rule{Min: &lo}
}

// Identifier fields shared by the datapoint tables.
var (
	datapointName = core.FieldMapping{
		Name: "datapointName", Description: "Unique datapoint identifier",
		Type: core.FieldString, Required: true,
		Aliases: []string{"Datapoint", "Analysis", "Session", "ID"},
	}
	datapointSampleID = core.FieldMapping{
		Name: "sampleID", Description: "Associated sample ID",
		Type: core.FieldString, Required: true,
		Aliases: []string{"Sample", "Sample ID", "Sample Name"},
	}
	parentDatapoint = core.FieldMapping{
		Name: "datapointName", Description: "Associated datapoint identifier",
		Type: core.FieldString, Required: true,
		Aliases: []string{"Datapoint", "Sample", "Analysis"},
	}
)

func registerSamples() {
	core.Register(core.TableMapping{
		Key:         core.MappingSamples,
		Label:       "Samples",
		Description: "Sample metadata (location, lithology, elevation)",
		Tags:        []string{"Sample metadata", "Samples", "Sample locations"},
		Fields: []core.FieldMapping{
			{Name: "sampleID", Description: "Unique sample identifier", Type: core.FieldString, Required: true,
				Aliases: []string{"Sample", "Sample ID", "Sample Name", "ID", "Sample No."}},
			{Name: "latitude", Description: "Latitude in decimal degrees", Type: core.FieldNumber, Unit: "degrees",
				Aliases: []string{"Lat", "Latitude", "Lat.", "Lat (DD)", "Latitude (°N)"},
				Rule:    bounds(-90, 90)},
			{Name: "longitude", Description: "Longitude in decimal degrees", Type: core.FieldNumber, Unit: "degrees",
				Aliases: []string{"Lon", "Long", "Longitude", "Long.", "Lon (DD)", "Longitude (°E)"},
				Rule:    bounds(-180, 180)},
			{Name: "elevation", Description: "Elevation in meters", Type: core.FieldNumber, Unit: "m",
				Aliases: []string{"Elev", "Elevation", "Elev.", "Alt", "Altitude", "Elev (m)", "Elevation (m)"}},
			{Name: "lithology", Description: "Rock type/lithology", Type: core.FieldString,
				Aliases: []string{"Lithology", "Rock Type", "Lith", "Rock"}},
			{Name: "mineral", Description: "Mineral analyzed (Apatite, Zircon)", Type: core.FieldString,
				Aliases: []string{"Mineral", "Min", "Phase"}},
		},
	})
}

func registerFTDatapoints() {
	core.Register(core.TableMapping{
		Key:         core.MappingFTDatapoints,
		Label:       "FT Datapoints",
		Description: "Fission-track analytical session data",
		Tags:        []string{"AFT ages", "FT ages", "Fission-track ages", "ZFT ages"},
		Fields: []core.FieldMapping{
			datapointName,
			datapointSampleID,
			{Name: "centralAgeMa", Description: "Central age in Ma", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"Central Age", "Central Age (Ma)", "Age", "Age (Ma)", "FT Age"},
				Rule:    bounds(0, 4500)},
			{Name: "centralAgeErr", Description: "Central age error (1σ)", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"±", "± (Ma)", "Error", "1σ", "Uncertainty"}},
			{Name: "pooledAgeMa", Description: "Pooled age in Ma", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"Pooled Age", "Pooled Age (Ma)", "Pool Age"},
				Rule:    bounds(0, 4500)},
			{Name: "pooledAgeErr", Description: "Pooled age error (1σ)", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"Pooled ±", "Pool ±", "Pooled Error"}},
			{Name: "numGrains", Description: "Number of grains analyzed", Type: core.FieldInteger,
				Aliases: []string{"N", "No. Grains", "Grains", "# Grains", "N grains"},
				Rule:    bounds(1, 1000)},
			{Name: "meanTrackLength", Description: "Mean track length in µm", Type: core.FieldNumber, Unit: "µm",
				Aliases: []string{"MTL", "Mean Length", "Track Length", "MTL (µm)", "Mean TL"},
				Rule:    bounds(5, 20)},
			{Name: "stdDevTrackLength", Description: "Standard deviation of track length", Type: core.FieldNumber, Unit: "µm",
				Aliases: []string{"SD", "Std Dev", "σ", "St. Dev", "SD (µm)"}},
			{Name: "numTracksLength", Description: "Number of tracks measured for length", Type: core.FieldInteger,
				Aliases: []string{"N TL", "N tracks", "No. Tracks", "# Tracks"},
				Rule:    bounds(1, 1000)},
			{Name: "dpar", Description: "Dpar (etch pit diameter) in µm", Type: core.FieldNumber, Unit: "µm",
				Aliases: []string{"Dpar", "Dpar (µm)", "Etch Pit", "D-par"},
				Rule:    bounds(1, 5)},
		},
	})
}

func registerHeDatapoints() {
	core.Register(core.TableMapping{
		Key:         core.MappingHeDatapoints,
		Label:       "He Datapoints",
		Description: "(U-Th)/He analytical session data",
		Tags:        []string{"He ages", "(U-Th)/He ages", "AHe ages", "ZHe ages"},
		Fields: []core.FieldMapping{
			datapointName,
			datapointSampleID,
			{Name: "meanAgeMa", Description: "Mean (U-Th)/He age in Ma", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"Mean Age", "Age", "He Age", "Mean Age (Ma)", "Age (Ma)"},
				Rule:    bounds(0, 4500)},
			{Name: "meanAgeErr", Description: "Mean age error (1σ)", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"±", "± (Ma)", "Error", "1σ", "Uncertainty"}},
			{Name: "numAliquots", Description: "Number of aliquots/grains analyzed", Type: core.FieldInteger,
				Aliases: []string{"N", "No. Aliquots", "Aliquots", "# Grains", "N grains"},
				Rule:    bounds(1, 100)},
		},
	})
}

func registerFTTrackLengths() {
	core.Register(core.TableMapping{
		Key:         core.MappingFTTrackLengths,
		Label:       "FT Track Lengths",
		Description: "Individual fission-track length measurements",
		Tags:        []string{"Track lengths", "Track length data", "Confined track lengths"},
		Fields: []core.FieldMapping{
			parentDatapoint,
			{Name: "trackLengthMicrons", Description: "Track length in µm", Type: core.FieldNumber, Required: true, Unit: "µm",
				Aliases: []string{"Length", "Track Length", "TL", "Length (µm)", "TL (µm)"},
				Rule:    bounds(5, 20)},
			{Name: "angleToC", Description: "Angle to c-axis in degrees", Type: core.FieldNumber, Unit: "degrees",
				Aliases: []string{"Angle", "Angle (°)", "θ", "C-axis angle"},
				Rule:    bounds(0, 90)},
		},
	})
}

func registerHeWholeGrain() {
	core.Register(core.TableMapping{
		Key:         core.MappingHeWholeGrain,
		Label:       "He Whole Grain",
		Description: "Individual (U-Th)/He grain data with chemistry",
		Tags:        []string{"He chemistry", "He grain data", "Single grain He"},
		Fields: []core.FieldMapping{
			parentDatapoint,
			{Name: "aliquotName", Description: "Grain/aliquot identifier", Type: core.FieldString, Required: true,
				Aliases: []string{"Grain", "Aliquot", "Grain ID", "ID"}},
			{Name: "rawAgeMa", Description: "Raw (uncorrected) age in Ma", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"Raw Age", "Uncorrected Age", "Raw Age (Ma)"},
				Rule:    bounds(0, 4500)},
			{Name: "correctedAgeMa", Description: "Corrected age (Ft-corrected) in Ma", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"Corrected Age", "Age", "He Age", "Corr. Age (Ma)", "Age (Ma)"},
				Rule:    bounds(0, 4500)},
			{Name: "correctedAgeErr", Description: "Corrected age error (1σ)", Type: core.FieldNumber, Unit: "Ma",
				Aliases: []string{"±", "± (Ma)", "Error", "1σ"}},
			{Name: "ft", Description: "Alpha ejection correction factor", Type: core.FieldNumber,
				Aliases: []string{"Ft", "F_T", "Alpha Correction", "Ejection"},
				Rule:    bounds(0, 1)},
			{Name: "uPpm", Description: "Uranium concentration in ppm", Type: core.FieldNumber, Unit: "ppm",
				Aliases: []string{"U", "[U]", "U (ppm)", "U ppm"},
				Rule:    atLeast(0)},
			{Name: "thPpm", Description: "Thorium concentration in ppm", Type: core.FieldNumber, Unit: "ppm",
				Aliases: []string{"Th", "[Th]", "Th (ppm)", "Th ppm"},
				Rule:    atLeast(0)},
			{Name: "smPpm", Description: "Samarium concentration in ppm", Type: core.FieldNumber, Unit: "ppm",
				Aliases: []string{"Sm", "[Sm]", "Sm (ppm)", "Sm ppm"},
				Rule:    atLeast(0)},
			{Name: "eU", Description: "Effective uranium in ppm", Type: core.FieldNumber, Unit: "ppm",
				Aliases: []string{"[eU]", "eU (ppm)", "Effective U"},
				Rule:    atLeast(0)},
		},
	})
}
