package marketdata

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var errTooFewPoints = errors.New("need at least two observations")

// projectClose fits close = alpha + beta*days (days since the first observation) by
// least squares and evaluates it daysAhead days after the last observation.
func projectClose(bars []Bar, daysAhead int) (float64, error) {
	if len(bars) < 2 {
		return 0, errTooFewPoints
	}
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	first := sorted[0].Date
	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, b := range sorted {
		xs[i] = b.Date.Sub(first).Hours() / 24
		ys[i] = b.Close
	}
	lastDay := xs[len(xs)-1]
	if lastDay == 0 {
		// All observations on one day: the best fit is their mean.
		return stat.Mean(ys, nil), nil
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return alpha + beta*(lastDay+float64(daysAhead)), nil
}
