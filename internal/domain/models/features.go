package models

import "time"

// FeatureVector holds the indicator values derived from the trailing candle
// window ending at Timestamp. Every value is computable from candle history
// alone; nothing leaks from future candles.
type FeatureVector struct {
	Timestamp time.Time
	Values    map[string]float64
}

// FeatureFrame is a chronological sequence of fully-defined feature vectors.
type FeatureFrame struct {
	Rows []FeatureVector
}

func (f *FeatureFrame) Len() int {
	return len(f.Rows)
}

// Last returns the most recent vector, or nil for an empty frame.
func (f *FeatureFrame) Last() *FeatureVector {
	if len(f.Rows) == 0 {
		return nil
	}
	return &f.Rows[len(f.Rows)-1]
}

// Column extracts one named feature across all rows. Missing values are 0;
// builders guarantee presence for every declared feature.
func (f *FeatureFrame) Column(name string) []float64 {
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row.Values[name]
	}
	return out
}

// Matrix extracts the named columns row-major, the layout regression models
// train on.
func (f *FeatureFrame) Matrix(columns []string) [][]float64 {
	out := make([][]float64, len(f.Rows))
	for i, row := range f.Rows {
		vec := make([]float64, len(columns))
		for j, col := range columns {
			vec[j] = row.Values[col]
		}
		out[i] = vec
	}
	return out
}
