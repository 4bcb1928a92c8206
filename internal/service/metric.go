package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"env_automation/internal/models"
)

// equalityTolerance is the absolute tolerance for == and !=.
const equalityTolerance = 0.001

// ExtractMetric resolves the numeric value of metric from a reading: the scalar
// value first, then the payload by key, then the context by key.
func ExtractMetric(rd models.Reading, metric string) (float64, bool) {
	if rd.Value != nil && !math.IsNaN(*rd.Value) {
		return *rd.Value, true
	}
	if v, ok := rd.Payload[metric]; ok {
		if f, err := toFloat(v); err == nil {
			return f, true
		}
	}
	if v, ok := rd.Context[metric]; ok {
		if f, err := toFloat(v); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Compare applies op to value and threshold. The second result is false for an
// unrecognised operator, in which case the comparison is false.
func Compare(op models.Operator, value, threshold float64) (bool, bool) {
	switch op {
	case models.OpGreater:
		return value > threshold, true
	case models.OpLess:
		return value < threshold, true
	case models.OpGreaterEqual:
		return value >= threshold, true
	case models.OpLessEqual:
		return value <= threshold, true
	case models.OpEqual:
		return math.Abs(value-threshold) < equalityTolerance, true
	case models.OpNotEqual:
		return math.Abs(value-threshold) >= equalityTolerance, true
	default:
		return false, false
	}
}

func toFloat(val any) (float64, error) {
	var f float64
	switch t := val.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		v, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = v
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, err
		}
		f = v
	default:
		return 0, fmt.Errorf("unsupported metric type %T", val)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("metric is not finite")
	}
	return f, nil
}
