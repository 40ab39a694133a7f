package risk

import (
	"math"
	"strconv"
)

// featureCount is the fixed width of the trained model's input vector:
// 13 one-hot fuel models, 5 terrain, 2 moisture, 5 weather, 2 history and
// 3 derived indices.
const featureCount = 30

// featureNames mirrors the layout of extractFeatures, used to key the
// contributing-factor output.
var featureNames = buildFeatureNames()

func buildFeatureNames() []string {
	names := make([]string, 0, featureCount)
	for i := 1; i <= 13; i++ {
		names = append(names, "fuel_model_"+strconv.Itoa(i))
	}
	names = append(names,
		"slope_normalized",
		"aspect_sin",
		"aspect_cos",
		"canopy_cover",
		"elevation_normalized",
		"soil_moisture",
		"fuel_moisture",
		"temperature_normalized",
		"humidity_normalized",
		"wind_speed_normalized",
		"wind_direction_sin",
		"wind_direction_cos",
		"lightning_strikes_normalized",
		"historical_ignitions_normalized",
		"fire_weather_index",
		"energy_release_component",
		"burning_index",
	)
	return names
}

// extractFeatures produces the raw (unscaled) feature vector for a cell.
// The normalization denominators are fixed wire constants shared with the
// training corpus.
func extractFeatures(c Conditions) []float64 {
	features := make([]float64, 0, featureCount)

	oneHot := make([]float64, 13)
	if c.FuelModel >= 1 && c.FuelModel <= 13 {
		oneHot[c.FuelModel-1] = 1
	}
	features = append(features, oneHot...)

	aspectRad := c.AspectDeg * math.Pi / 180
	features = append(features,
		c.SlopeDeg/90,
		math.Sin(aspectRad),
		math.Cos(aspectRad),
		c.CanopyCover,
		c.ElevationM/4000,
	)

	features = append(features, c.SoilMoisture, c.FuelMoisture)

	windRad := c.WindDirectionDeg * math.Pi / 180
	features = append(features,
		c.TemperatureC/50,
		c.RelativeHumidity/100,
		c.WindSpeedMPS/30,
		math.Sin(windRad),
		math.Cos(windRad),
	)

	features = append(features,
		math.Min(float64(c.LightningStrikes)/10, 1),
		math.Min(float64(c.HistoricalIgnition)/5, 1),
	)

	features = append(features,
		FireWeatherIndex(c),
		EnergyReleaseComponent(c),
		BurningIndex(c),
	)

	return features
}

// FireWeatherIndex is a simplified FWI: a fine-fuel moisture proxy scaled by
// wind, normalized to [0, 1].
func FireWeatherIndex(c Conditions) float64 {
	ffmc := 101 - c.RelativeHumidity
	if c.TemperatureC > 20 {
		ffmc += (c.TemperatureC - 20) * 2
	}
	windFactor := 1 + c.WindSpeedMPS/20
	return clip01(ffmc * windFactor / 100)
}

// EnergyReleaseComponent is a simplified ERC from temperature, humidity and
// wind, normalized to [0, 1].
func EnergyReleaseComponent(c Conditions) float64 {
	base := (c.TemperatureC - 10) / 30 * (100 - c.RelativeHumidity) / 100
	windFactor := 1 + c.WindSpeedMPS/15
	return clip01(base * windFactor)
}

// BurningIndex is a simplified BI from temperature, humidity, wind and
// slope, normalized to [0, 1].
func BurningIndex(c Conditions) float64 {
	base := c.TemperatureC / 40 * (100 - c.RelativeHumidity) / 100
	windSlopeFactor := 1 + c.WindSpeedMPS/20 + c.SlopeDeg/45
	return clip01(base * windSlopeFactor)
}
