// Package anomaly holds the stateless outlier detectors shared by the
// detection components. Detectors never error: a sample that is too small
// yields a Result with Insufficient set.
package anomaly

import (
	"math"
	"sort"
)

const (
	MethodZScore        = "z_score"
	MethodIQR           = "iqr"
	MethodMovingAverage = "moving_average"
	MethodComposite     = "composite"
)

type Result struct {
	Method       string  `json:"method"`
	Anomalous    bool    `json:"anomalous"`
	Score        float64 `json:"score"`
	Threshold    float64 `json:"threshold"`
	SampleSize   int     `json:"sample_size"`
	Insufficient bool    `json:"insufficient,omitempty"`
}

// ZScore flags values more than Threshold sample standard deviations from
// the sample mean. Needs at least 2 points.
type ZScore struct {
	Threshold float64
}

func (d ZScore) Detect(value float64, sample []float64) Result {
	res := Result{Method: MethodZScore, Threshold: d.Threshold, SampleSize: len(sample)}
	if len(sample) < 2 {
		res.Insufficient = true
		return res
	}
	mean := Mean(sample)
	std := StdDev(sample)
	if std == 0 {
		if value != mean {
			res.Anomalous = true
			res.Score = math.Inf(1)
		}
		return res
	}
	res.Score = math.Abs(value-mean) / std
	res.Anomalous = res.Score > d.Threshold
	return res
}

// IQR flags values outside [Q1 - k*IQR, Q3 + k*IQR]. Needs at least 4 points.
type IQR struct {
	Multiplier float64
}

func (d IQR) Detect(value float64, sample []float64) Result {
	res := Result{Method: MethodIQR, Threshold: d.Multiplier, SampleSize: len(sample)}
	if len(sample) < 4 {
		res.Insufficient = true
		return res
	}
	q1 := Percentile(sample, 25)
	q3 := Percentile(sample, 75)
	iqr := q3 - q1
	lower := q1 - d.Multiplier*iqr
	upper := q3 + d.Multiplier*iqr
	res.Anomalous = value < lower || value > upper
	if !res.Anomalous {
		return res
	}
	if iqr == 0 {
		res.Score = math.Inf(1)
		return res
	}
	if value < lower {
		res.Score = (lower - value) / iqr
	} else {
		res.Score = (value - upper) / iqr
	}
	return res
}

// MovingAverage is a z-score over only the last Window points of the sample.
// Needs at least Window points.
type MovingAverage struct {
	Window    int
	Threshold float64
}

func (d MovingAverage) Detect(value float64, sample []float64) Result {
	res := Result{Method: MethodMovingAverage, Threshold: d.Threshold, SampleSize: len(sample)}
	window := d.Window
	if window <= 0 {
		window = 24
	}
	if len(sample) < window {
		res.Insufficient = true
		return res
	}
	recent := sample[len(sample)-window:]
	mean := Mean(recent)
	std := StdDev(recent)
	if std == 0 {
		if value != mean {
			res.Anomalous = true
			res.Score = math.Inf(1)
		}
		return res
	}
	res.Score = math.Abs(value-mean) / std
	res.Anomalous = res.Score > d.Threshold
	return res
}

// Composite runs all three detectors and flags the value only when at least
// MinAgree of them agree. Its score is the mean of the non-zero individual
// scores.
type Composite struct {
	ZScore        ZScore
	IQR           IQR
	MovingAverage MovingAverage
	MinAgree      int
}

func (d Composite) Detect(value float64, sample []float64) (Result, []Result) {
	parts := []Result{
		d.ZScore.Detect(value, sample),
		d.IQR.Detect(value, sample),
		d.MovingAverage.Detect(value, sample),
	}
	minAgree := d.MinAgree
	if minAgree <= 0 {
		minAgree = 2
	}
	res := Result{Method: MethodComposite, Threshold: float64(minAgree), SampleSize: len(sample)}
	insufficient := 0
	agree := 0
	sum := 0.0
	scored := 0
	for _, p := range parts {
		if p.Insufficient {
			insufficient++
		}
		if p.Anomalous {
			agree++
		}
		if p.Score != 0 {
			sum += p.Score
			scored++
		}
	}
	if insufficient == len(parts) {
		res.Insufficient = true
		return res, parts
	}
	res.Anomalous = agree >= minAgree
	if scored > 0 {
		res.Score = sum / float64(scored)
	}
	return res, parts
}

// OutlierByZScore is the quick check used when a precomputed snapshot
// already carries mean and standard deviation.
func OutlierByZScore(value, mean, stdDev, threshold float64) (bool, float64) {
	if stdDev == 0 {
		return value != mean, 0
	}
	z := math.Abs(value-mean) / stdDev
	return z > threshold, z
}

// OutlierByIQR is the quick check against precomputed quartiles.
func OutlierByIQR(value, q1, q3, multiplier float64) bool {
	iqr := q3 - q1
	return value < q1-multiplier*iqr || value > q3+multiplier*iqr
}

func Mean(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range sample {
		sum += v
	}
	return sum / float64(len(sample))
}

// StdDev is the sample standard deviation (N-1 denominator).
func StdDev(sample []float64) float64 {
	if len(sample) < 2 {
		return 0
	}
	mean := Mean(sample)
	sum := 0.0
	for _, v := range sample {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(sample)-1))
}

// Percentile computes the p-th percentile with linear interpolation between
// the two nearest ranks.
func Percentile(sample []float64, p float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	IQR    float64 `json:"iqr"`
}

// Describe summarizes a sample for alert payloads and the stats endpoints.
func Describe(sample []float64) Summary {
	s := Summary{Count: len(sample)}
	if len(sample) == 0 {
		return s
	}
	s.Mean = Mean(sample)
	s.Median = Percentile(sample, 50)
	s.StdDev = StdDev(sample)
	s.Min = sample[0]
	s.Max = sample[0]
	for _, v := range sample {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Q1 = Percentile(sample, 25)
	s.Q3 = Percentile(sample, 75)
	s.IQR = s.Q3 - s.Q1
	return s
}
