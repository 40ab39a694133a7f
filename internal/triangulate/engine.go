// Package triangulate implements bearing-only localization of a target from
// two or more spatially separated camera observations. Three estimators run
// per request (direct ray intersection, RANSAC over 3-subsets, and a
// least-squares refinement) and the highest-confidence result wins.
package triangulate

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/emberwatch/fireline/internal/geo"
)

// ErrInsufficientObservations is returned when fewer than two observations
// survive the confidence filter.
var ErrInsufficientObservations = errors.New("triangulation requires at least 2 observations")

const (
	// minObservationConfidence is the filter threshold below which an
	// observation is ignored entirely.
	minObservationConfidence = 0.3

	// maxRayGapMeters rejects ray pairs whose closest-approach points are
	// further apart than this.
	maxRayGapMeters = 1000.0

	// inlierThresholdDeg is the RANSAC back-projection bearing tolerance.
	inlierThresholdDeg = 5.0
)

// Method identifies which estimator produced a result.
const (
	MethodSimple       = "simple"
	MethodRANSAC       = "ransac"
	MethodLeastSquares = "least_squares"
)

// Observation is a single bearing sighting from a camera or device.
type Observation struct {
	DeviceID      string  `json:"device_id"`
	Latitude      float64 `json:"device_latitude"`
	Longitude     float64 `json:"device_longitude"`
	Altitude      float64 `json:"device_altitude"`
	CameraHeading float64 `json:"camera_heading"`
	CameraPitch   float64 `json:"camera_pitch"`
	Bearing       float64 `json:"bearing"`
	Confidence    float64 `json:"confidence"`
	DetectionID   string  `json:"detection_id"`
}

// Result is a fused position estimate.
type Result struct {
	Latitude          float64            `json:"latitude"`
	Longitude         float64            `json:"longitude"`
	Altitude          float64            `json:"altitude"`
	Confidence        float64            `json:"confidence"`
	UncertaintyMeters float64            `json:"uncertainty_meters"`
	ObservationIDs    []string           `json:"observation_ids"`
	Method            string             `json:"method"`
	QualityMetrics    map[string]float64 `json:"quality_metrics"`
}

// Engine fuses bearing observations into point estimates. The zero value is
// not usable; construct with NewEngine.
type Engine struct {
	maxDistanceKm   float64
	minConfidence   float64
	maxRayGap       float64
	inlierTolerance float64
}

// Option adjusts engine thresholds.
type Option func(*Engine)

// WithMaxDistanceKm caps the assumed sighting range, reserved for terrain
// aware filtering.
func WithMaxDistanceKm(km float64) Option {
	return func(e *Engine) { e.maxDistanceKm = km }
}

// WithMinConfidence overrides the default observation confidence filter.
func WithMinConfidence(c float64) Option {
	return func(e *Engine) { e.minConfidence = c }
}

// WithMaxIntersectionGap overrides the closest-approach gap, in meters,
// beyond which a ray pair is rejected.
func WithMaxIntersectionGap(m float64) Option {
	return func(e *Engine) { e.maxRayGap = m }
}

// WithBearingTolerance overrides the RANSAC inlier bearing tolerance in
// degrees.
func WithBearingTolerance(deg float64) Option {
	return func(e *Engine) { e.inlierTolerance = deg }
}

// NewEngine returns a triangulation engine with default thresholds.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxDistanceKm:   50.0,
		minConfidence:   minObservationConfidence,
		maxRayGap:       maxRayGapMeters,
		inlierTolerance: inlierThresholdDeg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Triangulate fuses the given observations into at most one position
// estimate. Observations below the confidence floor are dropped first; if
// fewer than two remain the call fails with ErrInsufficientObservations.
func (e *Engine) Triangulate(observations []Observation) (*Result, error) {
	valid := e.filter(observations)
	if len(valid) < 2 {
		return nil, ErrInsufficientObservations
	}

	// Candidate order matters: on an exact confidence tie the later,
	// better-conditioned estimator wins.
	var candidates []*Result
	if r := e.simpleIntersection(valid); r != nil {
		candidates = append(candidates, r)
	}
	if r := e.ransac(valid); r != nil {
		candidates = append(candidates, r)
	}
	if r := e.leastSquares(valid); r != nil {
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil, ErrInsufficientObservations
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence >= best.Confidence {
			best = c
		}
	}
	return best, nil
}

func (e *Engine) filter(observations []Observation) []Observation {
	out := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if obs.Confidence < e.minConfidence {
			continue
		}
		out = append(out, obs)
	}
	return out
}

// localFrame is an east-north-up tangent plane centered on the observation
// set. Ray solving happens here rather than in geocentric coordinates: the
// bearing direction vectors are expressed in the local frame, so the
// positions must be too, or rays from nearby cameras miss each other by
// kilometers.
type localFrame struct {
	lat0, lon0 float64
	cosLat0    float64
}

func newLocalFrame(observations []Observation) localFrame {
	var latSum, lonSum float64
	for _, obs := range observations {
		latSum += obs.Latitude
		lonSum += obs.Longitude
	}
	lat0 := latSum / float64(len(observations))
	lon0 := lonSum / float64(len(observations))
	return localFrame{lat0: lat0, lon0: lon0, cosLat0: math.Cos(lat0 * math.Pi / 180)}
}

func (f localFrame) toLocal(lat, lon, alt float64) geo.Vec3 {
	return geo.Vec3{
		X: (lon - f.lon0) * math.Pi / 180 * f.cosLat0 * geo.EarthRadius,
		Y: (lat - f.lat0) * math.Pi / 180 * geo.EarthRadius,
		Z: alt,
	}
}

func (f localFrame) toGeodetic(p geo.Vec3) (lat, lon, alt float64) {
	lat = f.lat0 + p.Y/geo.EarthRadius*180/math.Pi
	lon = f.lon0 + p.X/(geo.EarthRadius*f.cosLat0)*180/math.Pi
	return lat, lon, p.Z
}

// simpleIntersection solves the closest-approach point of the rays cast by
// the first two observations.
func (e *Engine) simpleIntersection(observations []Observation) *Result {
	if len(observations) < 2 {
		return nil
	}
	obs1, obs2 := observations[0], observations[1]
	frame := newLocalFrame(observations[:2])

	p1 := frame.toLocal(obs1.Latitude, obs1.Longitude, obs1.Altitude)
	p2 := frame.toLocal(obs2.Latitude, obs2.Longitude, obs2.Altitude)
	d1 := geo.BearingToDirection(obs1.Bearing, obs1.CameraPitch)
	d2 := geo.BearingToDirection(obs2.Bearing, obs2.CameraPitch)

	point, ok := rayIntersection(p1, d1, p2, d2, e.maxRayGap)
	if !ok {
		return nil
	}
	lat, lon, alt := frame.toGeodetic(point)

	pair := observations[:2]
	return &Result{
		Latitude:          lat,
		Longitude:         lon,
		Altitude:          alt,
		Confidence:        combinedConfidence(pair),
		UncertaintyMeters: uncertaintyMeters(pair),
		ObservationIDs:    []string{obs1.DetectionID, obs2.DetectionID},
		Method:            MethodSimple,
		QualityMetrics: map[string]float64{
			"angular_spread":    angularSpread(pair),
			"baseline_distance": baselineDistance(obs1, obs2),
		},
	}
}

// rayIntersection returns the midpoint of the closest-approach segment
// between two rays, or false when the rays are parallel or pass more than
// maxGap meters apart.
func rayIntersection(p1, d1, p2, d2 geo.Vec3, maxGap float64) (geo.Vec3, bool) {
	w0 := p1.Sub(p2)
	a := d1.Dot(d1)
	b := d1.Dot(d2)
	c := d2.Dot(d2)
	d := d1.Dot(w0)
	f := d2.Dot(w0)

	denom := a*c - b*b
	if math.Abs(denom) < 1e-10 {
		return geo.Vec3{}, false
	}

	t1 := (b*f - c*d) / denom
	t2 := (a*f - b*d) / denom

	i1 := p1.Add(d1.Scale(t1))
	i2 := p2.Add(d2.Scale(t2))
	if i1.Sub(i2).Norm() > maxGap {
		return geo.Vec3{}, false
	}
	return i1.Midpoint(i2), true
}

// ransac tries every 3-subset, scores candidates by inlier count weighted by
// candidate confidence, and refits the winner on its inliers.
func (e *Engine) ransac(observations []Observation) *Result {
	if len(observations) < 3 {
		return nil
	}

	var best *Result
	var bestInliers []Observation
	bestScore := 0.0

	for i := 0; i < len(observations); i++ {
		for j := i + 1; j < len(observations); j++ {
			for k := j + 1; k < len(observations); k++ {
				subset := []Observation{observations[i], observations[j], observations[k]}
				candidate := e.simpleIntersection(subset)
				if candidate == nil {
					continue
				}
				inliers := countInliers(candidate, observations, e.inlierTolerance)
				score := float64(len(inliers)) * candidate.Confidence
				if score > bestScore {
					bestScore = score
					best = candidate
					bestInliers = inliers
				}
			}
		}
	}

	if best == nil || len(bestInliers) < 2 {
		return nil
	}

	ids := make([]string, len(bestInliers))
	for i, obs := range bestInliers {
		ids[i] = obs.DetectionID
	}
	best.ObservationIDs = ids
	best.Confidence = combinedConfidence(bestInliers)
	best.UncertaintyMeters = uncertaintyMeters(bestInliers)
	best.Method = MethodRANSAC
	best.QualityMetrics = map[string]float64{
		"angular_spread":    angularSpread(bestInliers),
		"baseline_distance": baselineDistance(bestInliers[0], bestInliers[len(bestInliers)-1]),
	}
	return best
}

// leastSquares refines the simple-intersection seed by minimizing the sum of
// squared confidence-weighted bearing residuals over (lat, lon, alt).
func (e *Engine) leastSquares(observations []Observation) *Result {
	if len(observations) < 2 {
		return nil
	}
	seed := e.simpleIntersection(observations[:2])
	if seed == nil {
		return nil
	}

	objective := func(x []float64) float64 {
		lat, lon := x[0], x[1]
		total := 0.0
		for _, obs := range observations {
			expected := geo.InitialBearing(obs.Latitude, obs.Longitude, lat, lon)
			residual := geo.AngleDifference(obs.Bearing, expected) * obs.Confidence
			total += residual * residual
		}
		return total
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, nil)
		},
	}

	initial := []float64{seed.Latitude, seed.Longitude, seed.Altitude}
	solution, err := optimize.Minimize(problem, initial, nil, &optimize.BFGS{})
	if err != nil || solution == nil {
		return nil
	}
	if err := solution.Status.Err(); err != nil {
		return nil
	}

	ids := make([]string, len(observations))
	for i, obs := range observations {
		ids[i] = obs.DetectionID
	}
	return &Result{
		Latitude:          solution.X[0],
		Longitude:         solution.X[1],
		Altitude:          solution.X[2],
		Confidence:        combinedConfidence(observations),
		UncertaintyMeters: uncertaintyMeters(observations),
		ObservationIDs:    ids,
		Method:            MethodLeastSquares,
		QualityMetrics: map[string]float64{
			"angular_spread":    angularSpread(observations),
			"baseline_distance": baselineDistance(observations[0], observations[len(observations)-1]),
			"residual_error":    solution.F,
		},
	}
}

// countInliers returns the observations whose stated bearing agrees with the
// bearing back-projected from their position to the candidate point.
func countInliers(candidate *Result, observations []Observation, toleranceDeg float64) []Observation {
	var inliers []Observation
	for _, obs := range observations {
		expected := geo.InitialBearing(obs.Latitude, obs.Longitude, candidate.Latitude, candidate.Longitude)
		if geo.AngleDifference(obs.Bearing, expected) < toleranceDeg {
			inliers = append(inliers, obs)
		}
	}
	return inliers
}

// combinedConfidence blends mean observation confidence with geometry
// factors: wider angular spread, longer baseline and more observations all
// raise it. The weights are load-bearing for downstream thresholds.
func combinedConfidence(observations []Observation) float64 {
	if len(observations) == 0 {
		return 0
	}
	var sum float64
	for _, obs := range observations {
		sum += obs.Confidence
	}
	base := sum / float64(len(observations))

	spreadFactor := math.Min(1, angularSpread(observations)/90)

	baselineFactor := 0.5
	if len(observations) >= 2 {
		baseline := baselineDistance(observations[0], observations[len(observations)-1])
		baselineFactor = math.Min(1, baseline/10000)
	}

	countFactor := math.Min(1, float64(len(observations))/4)

	confidence := base*0.4 + spreadFactor*0.3 + baselineFactor*0.2 + countFactor*0.1
	return math.Min(1, math.Max(0, confidence))
}

// uncertaintyMeters maps angular spread to a coarse 95% radius. A narrow
// spread means the rays are nearly parallel and the fix is poorly
// conditioned.
func uncertaintyMeters(observations []Observation) float64 {
	if len(observations) < 2 {
		return 1000
	}
	spread := angularSpread(observations)
	switch {
	case spread < 30:
		return 2000
	case spread < 60:
		return 1000
	default:
		return 500
	}
}

// angularSpread returns the largest circular gap between the sorted
// observation bearings, in degrees.
func angularSpread(observations []Observation) float64 {
	if len(observations) < 2 {
		return 0
	}
	bearings := make([]float64, len(observations))
	for i, obs := range observations {
		bearings[i] = obs.Bearing
	}
	sort.Float64s(bearings)

	maxGap := 0.0
	for i := range bearings {
		next := (i + 1) % len(bearings)
		gap := bearings[next] - bearings[i]
		if gap < 0 {
			gap += 360
		}
		if gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

func baselineDistance(obs1, obs2 Observation) float64 {
	return geo.Haversine(obs1.Latitude, obs1.Longitude, obs2.Latitude, obs2.Longitude)
}
