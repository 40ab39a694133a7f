// Package spread projects wildfire growth with a stochastic cellular
// automaton on a 100 m grid. Each simulation runs the automaton many times
// (Monte Carlo) and reports the aggregate area, rate and isochrone contours
// with a consistency-based confidence.
package spread

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/emberwatch/fireline/internal/geo"
	"github.com/emberwatch/fireline/internal/risk"
	"github.com/emberwatch/fireline/internal/units"
)

// Parameter bounds enforced by Validate.
const (
	MaxSimulationHours = 168
	MaxTimeStepMinutes = 60
	MaxMonteCarloRuns  = 1000
)

// maxMarginCells caps how far the grid extends past the ignition bounding
// box, regardless of the step budget.
const maxMarginCells = 100

// defaultBaseRate is the m/s base spread rate for fuel models outside the
// Anderson 13 table.
const defaultBaseRate = 0.1

// neighborIgnitionFactor scales the per-neighbor ignition probability by the
// diagonal cell distance: 1/(1 + sqrt(2)*100/1000).
var neighborIgnitionFactor = 1.0 / (1.0 + math.Sqrt2*units.CellSizeMeters/1000.0)

// ErrNoIgnitionPoints is returned when a simulation is requested without any
// ignition point.
var ErrNoIgnitionPoints = errors.New("spread simulation requires at least one ignition point")

// Point is a geographic vertex of an isochrone or perimeter.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Parameters describes one simulation request.
type Parameters struct {
	IgnitionPoints   []Point            `json:"ignition_points"`
	Conditions       risk.Conditions    `json:"conditions"`
	SimulationHours  float64            `json:"simulation_hours"`
	TimeStepMinutes  float64            `json:"time_step_minutes"`
	MonteCarloRuns   int                `json:"monte_carlo_runs"`
	CustomParameters map[string]float64 `json:"custom_parameters,omitempty"`
}

// Validate checks the request bounds before any work is scheduled.
func (p Parameters) Validate() error {
	if len(p.IgnitionPoints) == 0 {
		return ErrNoIgnitionPoints
	}
	if p.SimulationHours <= 0 || p.SimulationHours > MaxSimulationHours {
		return fmt.Errorf("simulation_hours must be in (0, %d], got %v", MaxSimulationHours, p.SimulationHours)
	}
	if p.TimeStepMinutes <= 0 || p.TimeStepMinutes > MaxTimeStepMinutes {
		return fmt.Errorf("time_step_minutes must be in (0, %d], got %v", MaxTimeStepMinutes, p.TimeStepMinutes)
	}
	if p.MonteCarloRuns <= 0 || p.MonteCarloRuns > MaxMonteCarloRuns {
		return fmt.Errorf("monte_carlo_runs must be in (0, %d], got %d", MaxMonteCarloRuns, p.MonteCarloRuns)
	}
	return nil
}

// Isochrone is the projected burn contour at a fixed offset from ignition.
type Isochrone struct {
	HoursFromStart int     `json:"hours_from_start"`
	Geometry       []Point `json:"geometry"`
	AreaHectares   float64 `json:"area_hectares"`
	PerimeterKm    float64 `json:"perimeter_km"`
}

// Statistics aggregates the per-run outcomes.
type Statistics struct {
	MeanAreaHectares  float64 `json:"mean_area_hectares"`
	StdAreaHectares   float64 `json:"std_area_hectares"`
	MeanSpreadRateMPH float64 `json:"mean_spread_rate_mph"`
	MaxSpreadRateMPH  float64 `json:"max_spread_rate_mph"`
	MinSpreadRateMPH  float64 `json:"min_spread_rate_mph"`
	RunsCompleted     int     `json:"runs_completed"`
}

// Confidence describes how consistent the Monte Carlo runs were.
type Confidence struct {
	OverallConfidence float64 `json:"overall_confidence"`
	WeatherConfidence float64 `json:"weather_confidence"`
	FuelConfidence    float64 `json:"fuel_confidence"`
	TerrainConfidence float64 `json:"terrain_confidence"`
	ConfidenceFactors string  `json:"confidence_factors"`
}

// Result is the aggregate outcome of one simulation.
type Result struct {
	SimulationID            string      `json:"simulation_id"`
	CreatedAt               time.Time   `json:"created_at"`
	Isochrones              []Isochrone `json:"isochrones"`
	Perimeter               []Point     `json:"perimeter"`
	TotalAreaHectares       float64     `json:"total_area_hectares"`
	MaxSpreadRateMPH        float64     `json:"max_spread_rate_mph"`
	SimulationDurationHours float64     `json:"simulation_duration_hours"`
	Statistics              Statistics  `json:"statistics"`
	Confidence              Confidence  `json:"confidence"`
}

// TerrainFunc resolves (slope degrees, aspect degrees) at a location. The
// default returns flat terrain everywhere; a DEM-backed hook can replace it.
type TerrainFunc func(lat, lon float64) (slopeDeg, aspectDeg float64)

func flatTerrain(lat, lon float64) (float64, float64) { return 0, 0 }

// Option configures an Engine.
type Option func(*Engine)

// WithTerrain installs a terrain source.
func WithTerrain(fn TerrainFunc) Option {
	return func(e *Engine) { e.terrain = fn }
}

// WithWorkers bounds the Monte Carlo worker pool.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithSeed makes simulations deterministic. Each run derives its own
// sub-seed, so run results stay independent of worker scheduling.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

// Engine runs spread simulations. Safe for concurrent use.
type Engine struct {
	terrain TerrainFunc
	workers int
	seed    int64 // 0 means time-seeded
}

// NewEngine returns an engine with flat terrain and one worker per CPU.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		terrain: flatTerrain,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Simulate runs the full Monte Carlo set and aggregates the outcome. The
// context is checked between runs, so cancellation aborts promptly even for
// large run counts.
func (e *Engine) Simulate(ctx context.Context, params Parameters) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	seed := e.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := buildGrid(params)

	type runOutcome struct {
		cells   []gridCell
		areaHa  float64
		maxRate float64
	}
	outcomes := make([]runOutcome, params.MonteCarloRuns)

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := e.workers
	if workers > params.MonteCarloRuns {
		workers = params.MonteCarloRuns
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for run := range jobs {
				rng := rand.New(rand.NewSource(seed + int64(run)))
				cells, areaHa, maxRate := e.simulateRun(g, params, rng)
				outcomes[run] = runOutcome{cells: cells, areaHa: areaHa, maxRate: maxRate}
			}
		}()
	}

	for run := 0; run < params.MonteCarloRuns; run++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- run:
		}
	}
	close(jobs)
	wg.Wait()

	areas := make([]float64, len(outcomes))
	rates := make([]float64, len(outcomes))
	union := make(map[gridCell]struct{})
	for i, o := range outcomes {
		areas[i] = o.areaHa
		rates[i] = o.maxRate
		for _, c := range o.cells {
			union[c] = struct{}{}
		}
	}

	meanArea := stat.Mean(areas, nil)
	meanRate := stat.Mean(rates, nil)

	perimeter := g.points(union)

	idRNG := rand.New(rand.NewSource(seed))
	result := &Result{
		SimulationID:            fmt.Sprintf("sim_%d", 1000+idRNG.Intn(9000)),
		CreatedAt:               time.Now().UTC(),
		Isochrones:              isochrones(params.SimulationHours, perimeter, len(union)),
		Perimeter:               perimeter,
		TotalAreaHectares:       meanArea,
		MaxSpreadRateMPH:        meanRate,
		SimulationDurationHours: params.SimulationHours,
		Statistics: Statistics{
			MeanAreaHectares:  meanArea,
			StdAreaHectares:   math.Sqrt(stat.PopVariance(areas, nil)),
			MeanSpreadRateMPH: meanRate,
			MaxSpreadRateMPH:  maxOf(rates),
			MinSpreadRateMPH:  minOf(rates),
			RunsCompleted:     params.MonteCarloRuns,
		},
		Confidence: runConfidence(areas, rates),
	}
	return result, nil
}

// simulateRun executes one automaton run and returns the burned cells, the
// burned area in hectares and the maximum spread rate seen, in mph.
func (e *Engine) simulateRun(g grid, params Parameters, rng *rand.Rand) ([]gridCell, float64, float64) {
	burned := make(map[gridCell]struct{})
	front := make(map[gridCell]struct{})
	for _, p := range params.IgnitionPoints {
		c, ok := g.cellAt(p.Latitude, p.Longitude)
		if !ok {
			continue
		}
		burned[c] = struct{}{}
		front[c] = struct{}{}
	}

	timeSteps := int(params.SimulationHours * 60 / params.TimeStepMinutes)
	maxRate := 0.0

	for step := 0; step < timeSteps && len(front) > 0; step++ {
		next := make(map[gridCell]struct{})
		for c := range front {
			lat, lon := g.latLon(c)
			rate := e.spreadRateMPH(lat, lon, params.Conditions)
			if rate > maxRate {
				maxRate = rate
			}

			baseProb := math.Min(1, rate/10)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					n := gridCell{X: c.X + dx, Y: c.Y + dy}
					if !g.inBounds(n) {
						continue
					}
					if _, ok := burned[n]; ok {
						continue
					}
					// Two independent draws: the first scales the
					// probability, the second decides. The product keeps
					// the run-to-run variance the stored results were
					// calibrated against.
					prob := baseProb * neighborIgnitionFactor * rng.Float64()
					if rng.Float64() < prob {
						burned[n] = struct{}{}
						next[n] = struct{}{}
					}
				}
			}
		}
		front = next
	}

	cells := make([]gridCell, 0, len(burned))
	for c := range burned {
		cells = append(cells, c)
	}
	return cells, units.BurnedCellsToHectares(len(burned)), maxRate
}

// spreadRateMPH evaluates the Rothermel-style rate at a location.
func (e *Engine) spreadRateMPH(lat, lon float64, c risk.Conditions) float64 {
	slope, aspect := e.terrain(lat, lon)

	baseRate := defaultBaseRate
	if v, ok := risk.FuelRisk[c.FuelModel]; ok {
		baseRate = v
	}

	rate := baseRate *
		windFactor(c.WindSpeedMPS, c.WindDirectionDeg, aspect) *
		slopeFactor(slope, aspect, c.WindDirectionDeg) *
		moistureFactor(c.FuelMoisture, c.RelativeHumidity) *
		temperatureFactor(c.TemperatureC)

	return units.MetersPerSecondToMPH(rate)
}

func windFactor(windSpeed, windDirection, aspect float64) float64 {
	if windSpeed == 0 {
		return 1.0
	}
	rel := math.Mod(windDirection-aspect+360, 360)
	speedFactor := 1 + windSpeed/10
	var directionFactor float64
	if rel <= 180 {
		directionFactor = 1 + rel/180*0.5
	} else {
		directionFactor = 1 - (rel-180)/180*0.3
	}
	return speedFactor * directionFactor
}

func slopeFactor(slope, aspect, windDirection float64) float64 {
	if slope == 0 {
		return 1.0
	}
	factor := 1 + slope/45*0.5
	rel := math.Abs(aspect - windDirection)
	if rel > 180 {
		rel = 360 - rel
	}
	if rel < 90 {
		factor *= 1 + (90-rel)/90*0.3
	}
	return factor
}

func moistureFactor(fuelMoisture, humidity float64) float64 {
	fuelFactor := 1 - fuelMoisture*0.8
	humidityFactor := 1 - humidity/100*0.5
	return math.Max(0.1, fuelFactor*humidityFactor)
}

func temperatureFactor(temperature float64) float64 {
	switch {
	case temperature < 0:
		return 0.1
	case temperature < 10:
		return 0.5
	case temperature < 30:
		return 1 + (temperature-10)/20*0.5
	default:
		return 1.5
	}
}

// isochrones reports the standard {6,12,18,24} h contours that fit in the
// simulation window. Per-cell burn times are not tracked, so every contour
// shares the union of final burned cells; the contours differ only by hour.
func isochrones(simulationHours float64, geometry []Point, cellCount int) []Isochrone {
	var out []Isochrone
	for _, hours := range []int{6, 12, 18, 24} {
		if float64(hours) > simulationHours || cellCount == 0 {
			continue
		}
		out = append(out, Isochrone{
			HoursFromStart: hours,
			Geometry:       geometry,
			AreaHectares:   units.IsochroneAreaHectares(cellCount),
			PerimeterKm:    units.IsochronePerimeterKm(cellCount),
		})
	}
	return out
}

// runConfidence derives confidence from the coefficient of variation of the
// per-run areas and rates. Tight agreement across runs scores high.
func runConfidence(areas, rates []float64) Confidence {
	cv := func(values []float64) float64 {
		mean := stat.Mean(values, nil)
		if mean <= 0 {
			return 1.0
		}
		return math.Sqrt(stat.PopVariance(values, nil)) / mean
	}
	overall := 1 - (cv(areas)+cv(rates))/2
	overall = math.Max(0, math.Min(1, overall))
	return Confidence{
		OverallConfidence: overall,
		WeatherConfidence: overall,
		FuelConfidence:    overall,
		TerrainConfidence: overall,
		ConfidenceFactors: "heuristic",
	}
}

// gridCell indexes one 100 m cell.
type gridCell struct{ X, Y int }

// grid is a local equirectangular frame around the ignition bounding box.
// Cell (0,0) sits at the expanded south-west corner; distances within the
// frame treat latitude/longitude as a flat metric plane, which holds well at
// fire scales.
type grid struct {
	originLat float64
	originLon float64
	mPerDeg   float64 // meters per degree latitude
	mPerDegE  float64 // meters per degree longitude at the centroid
	width     int
	height    int
}

func buildGrid(params Parameters) grid {
	minLat, maxLat := params.IgnitionPoints[0].Latitude, params.IgnitionPoints[0].Latitude
	minLon, maxLon := params.IgnitionPoints[0].Longitude, params.IgnitionPoints[0].Longitude
	for _, p := range params.IgnitionPoints[1:] {
		minLat = math.Min(minLat, p.Latitude)
		maxLat = math.Max(maxLat, p.Latitude)
		minLon = math.Min(minLon, p.Longitude)
		maxLon = math.Max(maxLon, p.Longitude)
	}

	centroidLat := (minLat + maxLat) / 2
	mPerDeg := geo.EarthRadius * math.Pi / 180
	mPerDegE := mPerDeg * math.Cos(centroidLat*math.Pi/180)

	timeSteps := int(params.SimulationHours * 60 / params.TimeStepMinutes)
	margin := timeSteps
	if margin > maxMarginCells {
		margin = maxMarginCells
	}
	marginDegLat := float64(margin) * units.CellSizeMeters / mPerDeg
	marginDegLon := float64(margin) * units.CellSizeMeters / mPerDegE

	g := grid{
		originLat: minLat - marginDegLat,
		originLon: minLon - marginDegLon,
		mPerDeg:   mPerDeg,
		mPerDegE:  mPerDegE,
	}
	g.width = int((maxLon+marginDegLon-g.originLon)*mPerDegE/units.CellSizeMeters) + 1
	g.height = int((maxLat+marginDegLat-g.originLat)*mPerDeg/units.CellSizeMeters) + 1
	return g
}

func (g grid) cellAt(lat, lon float64) (gridCell, bool) {
	c := gridCell{
		X: int((lon - g.originLon) * g.mPerDegE / units.CellSizeMeters),
		Y: int((lat - g.originLat) * g.mPerDeg / units.CellSizeMeters),
	}
	return c, g.inBounds(c)
}

func (g grid) inBounds(c gridCell) bool {
	return c.X >= 0 && c.X < g.width && c.Y >= 0 && c.Y < g.height
}

// latLon returns the geographic center of a cell.
func (g grid) latLon(c gridCell) (float64, float64) {
	lat := g.originLat + (float64(c.Y)+0.5)*units.CellSizeMeters/g.mPerDeg
	lon := g.originLon + (float64(c.X)+0.5)*units.CellSizeMeters/g.mPerDegE
	return lat, lon
}

// points converts a burned-cell set to geographic points in deterministic
// south-west to north-east order.
func (g grid) points(cells map[gridCell]struct{}) []Point {
	out := make([]Point, 0, len(cells))
	for c := range cells {
		lat, lon := g.latLon(c)
		out = append(out, Point{Latitude: lat, Longitude: lon})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Latitude != out[j].Latitude {
			return out[i].Latitude < out[j].Latitude
		}
		return out[i].Longitude < out[j].Longitude
	})
	return out
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
