package stats

import (
	"math"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a population of samples.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// Median returns the middle value of values, averaging the two middle values
// for even-length input. Empty input returns 0. The input is not modified.
func Median(values []float64) float64 {
	m, err := mstats.Median(values)
	if err != nil {
		return 0
	}
	return m
}

// Summarize computes population mean, median and standard deviation.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	return Summary{
		Count:  len(values),
		Mean:   mean,
		Median: Median(values),
		StdDev: math.Sqrt(variance),
	}
}
