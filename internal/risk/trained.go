package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// TrainedModel is a standardized logistic classifier whose probability
// output is recalibrated with a monotonic (isotonic) map fitted against the
// raw training labels.
type TrainedModel struct {
	scaler     scaler
	weights    []float64 // one per feature
	intercept  float64
	calibrator isotonic
}

// FitModel trains the calibrated classifier. Labels are binarized at 0.5 for
// the logistic stage with balanced class weights; the isotonic stage
// calibrates the predicted probabilities against the raw continuous labels.
func FitModel(samples []Sample) (*TrainedModel, error) {
	if len(samples) < MinTrainingSamples {
		return nil, ErrInsufficientSamples
	}

	features := make([][]float64, len(samples))
	labels := make([]float64, len(samples))
	for i, s := range samples {
		features[i] = extractFeatures(s.Conditions)
		labels[i] = s.Risk
	}

	sc := fitScaler(features)
	scaled := make([][]float64, len(features))
	for i, f := range features {
		scaled[i] = sc.transform(f)
	}

	binary := make([]float64, len(labels))
	positives := 0
	for i, y := range labels {
		if y >= 0.5 {
			binary[i] = 1
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return nil, fmt.Errorf("risk training needs both low and high risk samples, got %d/%d positive", positives, len(labels))
	}

	weights, intercept, err := fitLogistic(scaled, binary)
	if err != nil {
		return nil, fmt.Errorf("logistic fit: %w", err)
	}

	model := &TrainedModel{scaler: sc, weights: weights, intercept: intercept}

	predicted := make([]float64, len(scaled))
	for i, x := range scaled {
		predicted[i] = model.probability(x)
	}
	model.calibrator = fitIsotonic(predicted, labels)

	return model, nil
}

// Score predicts the calibrated risk for one cell.
func (m *TrainedModel) Score(c Conditions) Score {
	raw := extractFeatures(c)
	prob := m.probability(m.scaler.transform(raw))

	return Score{
		Latitude:            c.Latitude,
		Longitude:           c.Longitude,
		RiskScore:           m.calibrator.predict(prob),
		Confidence:          qualityFactor(c),
		ContributingFactors: m.contributingFactors(raw),
		Timestamp:           c.Timestamp,
	}
}

// Coefficients returns the fitted weights keyed by feature name.
func (m *TrainedModel) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(m.weights))
	for i, w := range m.weights {
		out[featureNames[i]] = w
	}
	return out
}

func (m *TrainedModel) probability(x []float64) float64 {
	z := m.intercept
	for i, w := range m.weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

// contributingFactors reports coefficient x raw-feature products for
// coefficients large enough to matter.
func (m *TrainedModel) contributingFactors(raw []float64) map[string]float64 {
	factors := make(map[string]float64)
	for i, w := range m.weights {
		if math.Abs(w) > 0.1 {
			factors[featureNames[i]] = w * raw[i]
		}
	}
	return factors
}

// scaler standardizes features to zero mean and unit variance. Constant
// features keep a unit deviation so transform stays defined.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(features [][]float64) scaler {
	n := len(features[0])
	sc := scaler{mean: make([]float64, n), std: make([]float64, n)}
	column := make([]float64, len(features))
	for j := 0; j < n; j++ {
		for i := range features {
			column[i] = features[i][j]
		}
		sc.mean[j] = stat.Mean(column, nil)
		sc.std[j] = math.Sqrt(stat.PopVariance(column, nil))
		if sc.std[j] == 0 {
			sc.std[j] = 1
		}
	}
	return sc
}

func (s scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.mean[i]) / s.std[i]
	}
	return out
}

// fitLogistic minimizes the class-weight-balanced cross entropy with an L2
// penalty on the weights (not the intercept) by quasi-Newton descent.
func fitLogistic(x [][]float64, y []float64) (weights []float64, intercept float64, err error) {
	n := len(x)
	dim := len(x[0])

	positives := 0.0
	for _, v := range y {
		positives += v
	}
	negatives := float64(n) - positives
	// Balanced class weights: n / (2 * class count).
	wPos := float64(n) / (2 * positives)
	wNeg := float64(n) / (2 * negatives)

	const l2 = 1.0

	// Parameter vector: weights then intercept.
	loss := func(params []float64) float64 {
		total := 0.0
		for i := range x {
			z := params[dim]
			for j, v := range x[i] {
				z += params[j] * v
			}
			p := sigmoid(z)
			w := wNeg
			if y[i] == 1 {
				w = wPos
			}
			total -= w * (y[i]*math.Log(p+1e-12) + (1-y[i])*math.Log(1-p+1e-12))
		}
		for j := 0; j < dim; j++ {
			total += 0.5 * l2 * params[j] * params[j]
		}
		return total
	}

	grad := func(g, params []float64) {
		for j := range g {
			g[j] = 0
		}
		for i := range x {
			z := params[dim]
			for j, v := range x[i] {
				z += params[j] * v
			}
			p := sigmoid(z)
			w := wNeg
			if y[i] == 1 {
				w = wPos
			}
			delta := w * (p - y[i])
			for j, v := range x[i] {
				g[j] += delta * v
			}
			g[dim] += delta
		}
		for j := 0; j < dim; j++ {
			g[j] += l2 * params[j]
		}
	}

	problem := optimize.Problem{Func: loss, Grad: grad}
	settings := &optimize.Settings{MajorIterations: 1000}

	result, err := optimize.Minimize(problem, make([]float64, dim+1), settings, &optimize.BFGS{})
	if err != nil {
		return nil, 0, err
	}
	if err := result.Status.Err(); err != nil {
		return nil, 0, err
	}
	return result.X[:dim], result.X[dim], nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// isotonic is a monotonic non-decreasing step map fitted with the
// pool-adjacent-violators algorithm, evaluated by linear interpolation with
// out-of-range inputs clipped to the end values.
type isotonic struct {
	x []float64
	y []float64
}

func fitIsotonic(predicted, target []float64) isotonic {
	type pair struct{ x, y float64 }
	pairs := make([]pair, len(predicted))
	for i := range predicted {
		pairs[i] = pair{predicted[i], target[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].x < pairs[j].x })

	// Pool adjacent violators over blocks of equal fitted value.
	type block struct {
		sum    float64
		count  float64
		minX   float64
		maxX   float64
		fitted float64
	}
	var blocks []block
	for _, p := range pairs {
		blocks = append(blocks, block{sum: p.y, count: 1, minX: p.x, maxX: p.x, fitted: p.y})
		for len(blocks) > 1 && blocks[len(blocks)-2].fitted > blocks[len(blocks)-1].fitted {
			b := blocks[len(blocks)-1]
			a := blocks[len(blocks)-2]
			merged := block{
				sum:   a.sum + b.sum,
				count: a.count + b.count,
				minX:  a.minX,
				maxX:  b.maxX,
			}
			merged.fitted = merged.sum / merged.count
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, merged)
		}
	}

	iso := isotonic{}
	for _, b := range blocks {
		iso.x = append(iso.x, b.minX, b.maxX)
		iso.y = append(iso.y, b.fitted, b.fitted)
	}
	return iso
}

// predict evaluates the calibration map at v.
func (iso isotonic) predict(v float64) float64 {
	if len(iso.x) == 0 {
		return clip01(v)
	}
	if v <= iso.x[0] {
		return iso.y[0]
	}
	if v >= iso.x[len(iso.x)-1] {
		return iso.y[len(iso.y)-1]
	}
	i := sort.SearchFloat64s(iso.x, v)
	x0, x1 := iso.x[i-1], iso.x[i]
	y0, y1 := iso.y[i-1], iso.y[i]
	if x1 == x0 {
		return y1
	}
	t := (v - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}
