// Package risk scores wildfire ignition risk for a grid cell from its
// environmental conditions. Two model variants exist: a fixed-weight
// heuristic used until enough labelled cells are available, and a trained
// logistic classifier with isotonic probability calibration.
package risk

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrInsufficientSamples is returned by Train when fewer than MinTrainingSamples
// labelled cells are supplied.
var ErrInsufficientSamples = errors.New("risk training requires at least 10 samples")

// MinTrainingSamples is the floor below which Train refuses to fit.
const MinTrainingSamples = 10

// Conditions describes the environment of one grid cell.
type Conditions struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Timestamp          time.Time `json:"timestamp"`
	FuelModel          int       `json:"fuel_model"`
	SlopeDeg           float64   `json:"slope_deg"`
	AspectDeg          float64   `json:"aspect_deg"`
	CanopyCover        float64   `json:"canopy_cover"`
	SoilMoisture       float64   `json:"soil_moisture"`
	FuelMoisture       float64   `json:"fuel_moisture"`
	TemperatureC       float64   `json:"temperature_c"`
	RelativeHumidity   float64   `json:"relative_humidity"`
	WindSpeedMPS       float64   `json:"wind_speed_mps"`
	WindDirectionDeg   float64   `json:"wind_direction_deg"`
	ElevationM         float64   `json:"elevation_m"`
	LightningStrikes   int       `json:"lightning_strikes_24h"`
	HistoricalIgnition int       `json:"historical_ignitions"`
}

// Score is the computed risk for one cell.
type Score struct {
	Latitude            float64            `json:"latitude"`
	Longitude           float64            `json:"longitude"`
	RiskScore           float64            `json:"risk_score"`
	Confidence          float64            `json:"confidence"`
	ContributingFactors map[string]float64 `json:"contributing_factors"`
	Timestamp           time.Time          `json:"timestamp"`
}

// Sample is one labelled training cell.
type Sample struct {
	Conditions Conditions `json:"conditions"`
	Risk       float64    `json:"risk"`
}

// FuelRisk is the Anderson 13 per-model risk coefficient. The spread engine
// shares these values as base rates.
var FuelRisk = map[int]float64{
	1: 0.1, 2: 0.2, 3: 0.3, 4: 0.4, 5: 0.5, 6: 0.6, 7: 0.7,
	8: 0.8, 9: 0.9, 10: 0.8, 11: 0.6, 12: 0.7, 13: 0.8,
}

// fuelRiskOrDefault resolves the coefficient for unknown models to 0.5.
func fuelRiskOrDefault(model int) float64 {
	if v, ok := FuelRisk[model]; ok {
		return v
	}
	return 0.5
}

// Scorer is implemented by both model variants.
type Scorer interface {
	Score(c Conditions) Score
}

// Engine dispatches scoring to the active model variant. It starts in
// heuristic mode and switches to the trained model after a successful Train.
type Engine struct {
	mu    sync.RWMutex
	model Scorer
}

// NewEngine returns an engine in heuristic mode.
func NewEngine() *Engine {
	return &Engine{model: Heuristic{}}
}

// Score computes the risk for one cell with the active model.
func (e *Engine) Score(c Conditions) Score {
	e.mu.RLock()
	model := e.model
	e.mu.RUnlock()
	return model.Score(c)
}

// Trained reports whether the calibrated model is active.
func (e *Engine) Trained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.model.(*TrainedModel)
	return ok
}

// Train fits the logistic model on the given samples and swaps it in. The
// previous model keeps serving concurrent Score calls until the swap.
func (e *Engine) Train(samples []Sample) error {
	model, err := FitModel(samples)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()
	return nil
}

// Heuristic is the untrained fallback: a fixed weighted sum over fuel,
// terrain, moisture, weather and fire-history components.
type Heuristic struct{}

// Score computes the weighted-sum risk. The component weights
// (0.3/0.2/0.2/0.2/0.1) and scaling constants must match the stored scores
// already in the field, so they are not tunable.
func (Heuristic) Score(c Conditions) Score {
	fuelRisk := fuelRiskOrDefault(c.FuelModel)
	slopeRisk := math.Min(1, c.SlopeDeg/45)
	moistureRisk := (1-c.SoilMoisture)*0.5 + (1-c.FuelMoisture)*0.5

	tempRisk := clip01((c.TemperatureC - 20) / 30)
	humidityRisk := (100 - c.RelativeHumidity) / 100
	windRisk := math.Min(1, c.WindSpeedMPS/20)
	weatherRisk := (tempRisk + humidityRisk + windRisk) / 3

	historyRisk := math.Min(1, float64(c.LightningStrikes+c.HistoricalIgnition)/10)

	score := fuelRisk*0.3 + slopeRisk*0.2 + moistureRisk*0.2 + weatherRisk*0.2 + historyRisk*0.1

	return Score{
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
		RiskScore:  clip01(score),
		Confidence: 0.7 * qualityFactor(c),
		ContributingFactors: map[string]float64{
			"fuel_model": fuelRisk,
			"slope":      slopeRisk,
			"moisture":   moistureRisk,
			"weather":    weatherRisk,
			"history":    historyRisk,
		},
		Timestamp: c.Timestamp,
	}
}

// qualityFactor discounts confidence for absent or implausible inputs.
// Zero-valued fields are indistinguishable from unreported ones, so they
// count as missing.
func qualityFactor(c Conditions) float64 {
	factor := 1.0
	if c.FuelModel == 0 {
		factor *= 0.8
	}
	if c.SoilMoisture == 0 {
		factor *= 0.9
	}
	if c.FuelMoisture == 0 {
		factor *= 0.9
	}
	if c.WindSpeedMPS == 0 {
		factor *= 0.8
	}
	if c.TemperatureC < -20 || c.TemperatureC > 60 {
		factor *= 0.7
	}
	if c.RelativeHumidity < 5 || c.RelativeHumidity > 100 {
		factor *= 0.7
	}
	return factor
}

func clip01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
