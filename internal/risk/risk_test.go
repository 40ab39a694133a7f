package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moderateConditions() Conditions {
	return Conditions{
		Latitude:         40.0,
		Longitude:        -120.0,
		Timestamp:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		FuelModel:        5,
		SlopeDeg:         15,
		AspectDeg:        180,
		CanopyCover:      0.4,
		SoilMoisture:     0.3,
		FuelMoisture:     0.2,
		TemperatureC:     25,
		RelativeHumidity: 40,
		WindSpeedMPS:     5,
		WindDirectionDeg: 270,
		ElevationM:       1200,
	}
}

func TestHeuristicScoreBounds(t *testing.T) {
	t.Parallel()

	score := Heuristic{}.Score(moderateConditions())
	assert.GreaterOrEqual(t, score.RiskScore, 0.0)
	assert.LessOrEqual(t, score.RiskScore, 1.0)
	assert.InDelta(t, 0.7, score.Confidence, 1e-9)
	assert.Contains(t, score.ContributingFactors, "fuel_model")
	assert.Contains(t, score.ContributingFactors, "weather")
}

func TestHeuristicHighVsLowRisk(t *testing.T) {
	t.Parallel()

	high := moderateConditions()
	high.FuelModel = 9
	high.SlopeDeg = 40
	high.SoilMoisture = 0.05
	high.FuelMoisture = 0.03
	high.TemperatureC = 42
	high.RelativeHumidity = 8
	high.WindSpeedMPS = 18
	high.LightningStrikes = 6
	high.HistoricalIgnition = 4

	low := moderateConditions()
	low.FuelModel = 1
	low.SlopeDeg = 2
	low.SoilMoisture = 0.9
	low.FuelMoisture = 0.8
	low.TemperatureC = 8
	low.RelativeHumidity = 90
	low.WindSpeedMPS = 1

	highScore := Heuristic{}.Score(high)
	lowScore := Heuristic{}.Score(low)
	assert.Greater(t, highScore.RiskScore, 0.7)
	assert.Less(t, lowScore.RiskScore, 0.3)
	assert.Greater(t, highScore.RiskScore, lowScore.RiskScore)
}

func TestHeuristicMonotonicInTemperature(t *testing.T) {
	t.Parallel()

	prev := -1.0
	for _, temp := range []float64{5, 15, 22, 28, 35, 45} {
		c := moderateConditions()
		c.TemperatureC = temp
		score := Heuristic{}.Score(c)
		assert.GreaterOrEqual(t, score.RiskScore, prev, "risk must not fall as temperature rises")
		prev = score.RiskScore
	}
}

func TestHeuristicConfidenceDiscounts(t *testing.T) {
	t.Parallel()

	c := moderateConditions()
	c.FuelModel = 0
	c.WindSpeedMPS = 0
	score := Heuristic{}.Score(c)
	// 0.7 baseline x 0.8 missing fuel x 0.8 missing wind.
	assert.InDelta(t, 0.7*0.8*0.8, score.Confidence, 1e-9)

	c = moderateConditions()
	c.TemperatureC = 70
	c.RelativeHumidity = 2
	score = Heuristic{}.Score(c)
	assert.InDelta(t, 0.7*0.7*0.7, score.Confidence, 1e-9)
}

func TestDerivedIndicesClip(t *testing.T) {
	t.Parallel()

	extreme := moderateConditions()
	extreme.TemperatureC = 55
	extreme.RelativeHumidity = 3
	extreme.WindSpeedMPS = 30
	extreme.SlopeDeg = 45

	for name, v := range map[string]float64{
		"fwi": FireWeatherIndex(extreme),
		"erc": EnergyReleaseComponent(extreme),
		"bi":  BurningIndex(extreme),
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}

	cold := moderateConditions()
	cold.TemperatureC = -10
	cold.RelativeHumidity = 100
	cold.WindSpeedMPS = 0
	assert.Equal(t, 0.0, EnergyReleaseComponent(cold))
	assert.Equal(t, 0.0, BurningIndex(cold))
}

func TestFeatureVectorLayout(t *testing.T) {
	t.Parallel()

	features := extractFeatures(moderateConditions())
	require.Len(t, features, featureCount)
	require.Len(t, featureNames, featureCount)

	// Fuel model 5 sets exactly one one-hot slot.
	hot := 0
	for _, v := range features[:13] {
		if v == 1 {
			hot++
		}
	}
	assert.Equal(t, 1, hot)
	assert.Equal(t, 1.0, features[4])
	assert.Equal(t, "fuel_model_5", featureNames[4])
	assert.Equal(t, "burning_index", featureNames[featureCount-1])

	// Unknown fuel model leaves the one-hot block empty.
	c := moderateConditions()
	c.FuelModel = 0
	features = extractFeatures(c)
	for i, v := range features[:13] {
		assert.Zero(t, v, "one-hot slot %d", i)
	}
}

func trainingSamples() []Sample {
	var samples []Sample
	// Six clearly dangerous cells and six benign ones, with mild variation
	// so the features are not collinear.
	for i := 0; i < 6; i++ {
		hot := moderateConditions()
		hot.FuelModel = 9
		hot.TemperatureC = 38 + float64(i)
		hot.RelativeHumidity = 10 + float64(i)
		hot.WindSpeedMPS = 15 + float64(i)
		hot.SoilMoisture = 0.05
		hot.FuelMoisture = 0.05
		samples = append(samples, Sample{Conditions: hot, Risk: 0.85 + float64(i)*0.02})

		wet := moderateConditions()
		wet.FuelModel = 1
		wet.TemperatureC = 5 + float64(i)
		wet.RelativeHumidity = 85 - float64(i)
		wet.WindSpeedMPS = 1 + float64(i)*0.5
		wet.SoilMoisture = 0.8
		wet.FuelMoisture = 0.7
		samples = append(samples, Sample{Conditions: wet, Risk: 0.05 + float64(i)*0.02})
	}
	return samples
}

func TestTrainSwitchesEngineMode(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	assert.False(t, engine.Trained())

	require.NoError(t, engine.Train(trainingSamples()))
	assert.True(t, engine.Trained())

	hot := moderateConditions()
	hot.FuelModel = 9
	hot.TemperatureC = 40
	hot.RelativeHumidity = 12
	hot.WindSpeedMPS = 16
	hot.SoilMoisture = 0.05
	hot.FuelMoisture = 0.05

	wet := moderateConditions()
	wet.FuelModel = 1
	wet.TemperatureC = 6
	wet.RelativeHumidity = 82
	wet.SoilMoisture = 0.8
	wet.FuelMoisture = 0.7

	hotScore := engine.Score(hot)
	wetScore := engine.Score(wet)
	assert.Greater(t, hotScore.RiskScore, wetScore.RiskScore)
	assert.GreaterOrEqual(t, wetScore.RiskScore, 0.0)
	assert.LessOrEqual(t, hotScore.RiskScore, 1.0)
}

func TestTrainRejectsSmallOrDegenerateSets(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	err := engine.Train(trainingSamples()[:4])
	assert.ErrorIs(t, err, ErrInsufficientSamples)

	// All labels on one side of the binarization threshold.
	uniform := make([]Sample, 12)
	for i := range uniform {
		c := moderateConditions()
		c.TemperatureC = 30 + float64(i)
		uniform[i] = Sample{Conditions: c, Risk: 0.9}
	}
	assert.Error(t, engine.Train(uniform))
	assert.False(t, engine.Trained())
}

func TestIsotonicCalibrationMonotonic(t *testing.T) {
	t.Parallel()

	iso := fitIsotonic(
		[]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		[]float64{0.05, 0.3, 0.2, 0.5, 0.45, 0.9},
	)

	prev := -1.0
	for v := 0.0; v <= 1.0; v += 0.05 {
		got := iso.predict(v)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}

	// Out-of-range inputs clip to the end values.
	assert.Equal(t, iso.predict(0.1), iso.predict(-5.0))
	assert.Equal(t, iso.predict(0.6), iso.predict(5.0))
}
