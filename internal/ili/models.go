package ili

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Non-linear growth-curve fitting for anomalies observed in 3+ surveys.
// Candidate models are fit by least squares against (years since first
// survey, depth) pairs; the winner minimizes an information criterion.

// Growth model names.
const (
	ModelLinear      = "linear"
	ModelExponential = "exponential"
	ModelPower       = "power"
	ModelQuadratic   = "quadratic"
	// ModelLinear2pt is the two-observation fallback: a plain rate, no fit.
	ModelLinear2pt = "linear_2pt"
)

// ModelNames lists the candidate models in fitting order.
var ModelNames = []string{ModelLinear, ModelExponential, ModelPower, ModelQuadratic}

// Criterion selects between information criteria for model selection.
type Criterion string

const (
	CriterionBIC Criterion = "bic"
	CriterionAIC Criterion = "aic"
)

// ModelFit is one fitted candidate model.
type ModelFit struct {
	Name   string
	Params []float64
	RSS    float64
	N      int
	AIC    float64
	BIC    float64
}

// Eval evaluates the fitted curve at time t (years since first survey).
func (m *ModelFit) Eval(t float64) float64 {
	p := m.Params
	switch m.Name {
	case ModelLinear:
		return p[0] + p[1]*t
	case ModelExponential:
		return p[0] * math.Exp(p[1]*t)
	case ModelPower:
		// Shifted by one year so the first survey at t=0 is defined.
		return p[0] * math.Pow(t+1, p[1])
	case ModelQuadratic:
		return p[0] + p[1]*t + p[2]*t*t
	}
	return math.NaN()
}

func modelParamCount(name string) int {
	if name == ModelQuadratic {
		return 3
	}
	return 2
}

// ComputeAIC returns n*ln(RSS/n) + 2k, or +Inf for degenerate inputs
// (n <= 0 or RSS <= 0), which rules such fits out of model selection.
func ComputeAIC(n, k int, rss float64) float64 {
	if n <= 0 || rss <= 0 {
		return math.Inf(1)
	}
	return float64(n)*math.Log(rss/float64(n)) + 2*float64(k)
}

// ComputeBIC returns n*ln(RSS/n) + k*ln(n), with the same degenerate rule.
func ComputeBIC(n, k int, rss float64) float64 {
	if n <= 0 || rss <= 0 {
		return math.Inf(1)
	}
	return float64(n)*math.Log(rss/float64(n)) + float64(k)*math.Log(float64(n))
}

func residualSumSquares(m *ModelFit, times, depths []float64) float64 {
	var rss float64
	for i := range times {
		r := depths[i] - m.Eval(times[i])
		rss += r * r
	}
	return rss
}

// polyFit solves the least-squares polynomial a0 + a1 t + ... via QR.
func polyFit(times, depths []float64, degree int) ([]float64, error) {
	n := len(times)
	a := mat.NewDense(n, degree+1, nil)
	for i, t := range times {
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= t
		}
	}
	b := mat.NewVecDense(n, depths)

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, err
	}
	params := make([]float64, degree+1)
	for j := range params {
		params[j] = x.AtVec(j)
	}
	return params, nil
}

// refineFit polishes a seeded parameter vector by minimizing RSS with
// Nelder-Mead. Falls back to the seed when the optimizer fails: the seed is
// already a usable (if rough) fit.
func refineFit(name string, seed, times, depths []float64) []float64 {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			m := ModelFit{Name: name, Params: x}
			return residualSumSquares(&m, times, depths)
		},
	}
	result, err := optimize.Minimize(problem, seed, nil, &optimize.NelderMead{})
	if err != nil || result == nil || !floatsFinite(result.X) {
		return seed
	}
	if result.F > problem.Func(seed) {
		return seed
	}
	return result.X
}

func floatsFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// FitSingleModel fits one named model to the observations. Returns nil when
// the fit is infeasible: no more observations than parameters (a saturated
// fit carries no information), a model whose transform rejects the data
// (exponential and power need positive depths), or a numerically failed
// solve.
func FitSingleModel(times, depths []float64, name string) *ModelFit {
	k := modelParamCount(name)
	n := len(times)
	if n <= k || n != len(depths) {
		return nil
	}

	var params []float64
	switch name {
	case ModelLinear:
		alpha, beta := stat.LinearRegression(times, depths, nil, false)
		params = []float64{alpha, beta}
	case ModelQuadratic:
		p, err := polyFit(times, depths, 2)
		if err != nil {
			return nil
		}
		params = p
	case ModelExponential:
		// Seed from log-linear regression: ln d = ln a + b t.
		logs := make([]float64, n)
		for i, d := range depths {
			if d <= 0 {
				return nil
			}
			logs[i] = math.Log(d)
		}
		lnA, b := stat.LinearRegression(times, logs, nil, false)
		params = refineFit(name, []float64{math.Exp(lnA), b}, times, depths)
	case ModelPower:
		// Seed from log-log regression on the shifted time axis.
		logT := make([]float64, n)
		logD := make([]float64, n)
		for i := range times {
			if depths[i] <= 0 {
				return nil
			}
			logT[i] = math.Log(times[i] + 1)
			logD[i] = math.Log(depths[i])
		}
		lnA, b := stat.LinearRegression(logT, logD, nil, false)
		params = refineFit(name, []float64{math.Exp(lnA), b}, times, depths)
	default:
		return nil
	}

	if !floatsFinite(params) {
		return nil
	}
	fit := &ModelFit{Name: name, Params: params, N: n}
	fit.RSS = residualSumSquares(fit, times, depths)
	if math.IsNaN(fit.RSS) || math.IsInf(fit.RSS, 0) {
		return nil
	}
	fit.AIC = ComputeAIC(n, k, fit.RSS)
	fit.BIC = ComputeBIC(n, k, fit.RSS)
	return fit
}

// ModelSelection is the outcome of fitting all candidates to one track.
type ModelSelection struct {
	Best    *ModelFit
	AllFits []ModelFit
}

// SelectBestModel fits every candidate model and picks the one minimizing
// the chosen information criterion (BIC by default). Models that fail to
// fit are excluded; nil Best means every candidate failed.
func SelectBestModel(times, depths []float64, criterion Criterion) ModelSelection {
	var sel ModelSelection
	bestScore := math.Inf(1)
	for _, name := range ModelNames {
		fit := FitSingleModel(times, depths, name)
		if fit == nil {
			continue
		}
		sel.AllFits = append(sel.AllFits, *fit)
		score := fit.BIC
		if criterion == CriterionAIC {
			score = fit.AIC
		}
		// A perfect fit has RSS ~ 0 and an undefined criterion; prefer it
		// over any imperfect one, lowest parameter count first.
		if fit.RSS < 1e-12 && math.IsInf(score, 1) {
			score = math.Inf(-1)
		}
		if score < bestScore || (score == bestScore && sel.Best == nil) {
			bestScore = score
			sel.Best = &sel.AllFits[len(sel.AllFits)-1]
		}
	}
	// AllFits appends can reallocate; repair the Best pointer.
	if sel.Best != nil {
		for i := range sel.AllFits {
			if sel.AllFits[i].Name == sel.Best.Name {
				sel.Best = &sel.AllFits[i]
				break
			}
		}
	}
	return sel
}

// ForecastNonlinear evaluates the selected model forecastYears past the
// last observed time.
func ForecastNonlinear(fit *ModelFit, lastObservedTime, forecastYears float64) *float64 {
	if fit == nil {
		return nil
	}
	v := fit.Eval(lastObservedTime + forecastYears)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// remainingLifeSearchs are the forward-stepping parameters for the
// non-linear remaining-life search.
const (
	remainingLifeStepYears    = 0.1
	remainingLifeHorizonYears = 200.0
)

// NonlinearRemainingLife steps the fitted curve forward from the last
// observed time until it crosses the critical depth. No crossing within the
// bounded horizon means effectively infinite remaining life.
func NonlinearRemainingLife(fit *ModelFit, lastObservedTime, criticalDepthPct float64) float64 {
	if fit == nil {
		return math.Inf(1)
	}
	if fit.Eval(lastObservedTime) >= criticalDepthPct {
		return 0
	}
	for dt := remainingLifeStepYears; dt <= remainingLifeHorizonYears; dt += remainingLifeStepYears {
		if fit.Eval(lastObservedTime+dt) >= criticalDepthPct {
			return dt
		}
	}
	return math.Inf(1)
}
