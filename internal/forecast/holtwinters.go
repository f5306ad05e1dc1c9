package forecast

import "math"

// Smoothing parameters are searched over 0.05, 0.15, ..., 0.95.
const gridSteps = 10

func gridValue(i int) float64 {
	return 0.05 + 0.1*float64(i)
}

// fit is a fitted exponential smoothing model.
type fit struct {
	alpha, beta, gamma float64
	level, trend       float64
	season             []float64 // indexed by period position; nil for trend-only
	sse                float64
	residuals          int
	n                  int
}

func (m *fit) predict(h int) float64 {
	v := m.level + float64(h)*m.trend
	if len(m.season) > 0 {
		v += m.season[(m.n-1+h)%len(m.season)]
	}
	return v
}

func (m *fit) residualSD() float64 {
	if m.residuals == 0 {
		return 0
	}
	return math.Sqrt(m.sse / float64(m.residuals))
}

// fitHoltWinters fits additive level, trend and seasonality of length m. The
// first two seasons initialize the state; later points contribute to the SSE.
func fitHoltWinters(y []float64, m int, alpha, beta, gamma float64) *fit {
	var first, second float64
	for i := 0; i < m; i++ {
		first += y[i]
		second += y[m+i]
	}
	first /= float64(m)
	second /= float64(m)

	season := make([]float64, m)
	for i := 0; i < m; i++ {
		season[i] = y[i] - first
	}
	trend := (second - first) / float64(m)
	fm := &fit{
		alpha: alpha, beta: beta, gamma: gamma,
		// The first season's mean sits at its midpoint; carry it to t=m-1.
		level:  first + float64(m-1)/2*trend,
		trend:  trend,
		season: season,
		n:      len(y),
	}

	for t := m; t < len(y); t++ {
		s := season[t%m]
		fitted := fm.level + fm.trend + s
		e := y[t] - fitted
		fm.sse += e * e
		fm.residuals++

		level := alpha*(y[t]-s) + (1-alpha)*(fm.level+fm.trend)
		fm.trend = beta*(level-fm.level) + (1-beta)*fm.trend
		season[t%m] = gamma*(y[t]-level) + (1-gamma)*s
		fm.level = level
	}
	return fm
}

// fitHolt fits additive level and trend without seasonality.
func fitHolt(y []float64, alpha, beta float64) *fit {
	fm := &fit{alpha: alpha, beta: beta, level: y[0], trend: y[1] - y[0], n: len(y)}
	for t := 1; t < len(y); t++ {
		fitted := fm.level + fm.trend
		e := y[t] - fitted
		fm.sse += e * e
		fm.residuals++

		level := alpha*y[t] + (1-alpha)*(fm.level+fm.trend)
		fm.trend = beta*(level-fm.level) + (1-beta)*fm.trend
		fm.level = level
	}
	return fm
}

// bestHoltWinters grid-searches the smoothing parameters. The first parameter
// set with the lowest SSE wins, so the fit is deterministic.
func bestHoltWinters(y []float64, m int) *fit {
	var best *fit
	for i := 0; i < gridSteps; i++ {
		for j := 0; j < gridSteps; j++ {
			for k := 0; k < gridSteps; k++ {
				fm := fitHoltWinters(y, m, gridValue(i), gridValue(j), gridValue(k))
				if best == nil || fm.sse < best.sse {
					best = fm
				}
			}
		}
	}
	return best
}

func bestHolt(y []float64) *fit {
	var best *fit
	for i := 0; i < gridSteps; i++ {
		for j := 0; j < gridSteps; j++ {
			fm := fitHolt(y, gridValue(i), gridValue(j))
			if best == nil || fm.sse < best.sse {
				best = fm
			}
		}
	}
	return best
}
