// Package normalizer turns raw feed frames into fully defaulted samples.
//
// Partial telemetry is normal while the simulator warms up, so every field
// that is missing or carries the wrong JSON type falls back to its documented
// default. The only rejected input is a frame that is not a JSON object.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"

	"EnergyDash/internal/domain/models"
	"EnergyDash/internal/services/features"
)

// ErrMalformed marks frames that are not a JSON object.
var ErrMalformed = errors.New("malformed payload")

// Options carries the configuration the derived figures depend on.
type Options struct {
	StorageCapacityKWh float64
}

// Normalize parses one frame. It has no side effects: identical input and
// options always produce an identical Sample.
func Normalize(raw []byte, opts Options) (models.Sample, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Sample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return models.Sample{}, fmt.Errorf("%w: top-level %s, want object", ErrMalformed, jsonKind(v))
	}
	return FromObject(obj, opts), nil
}

// FromObject builds a Sample from an already decoded JSON object.
func FromObject(obj map[string]interface{}, opts Options) models.Sample {
	s := models.Sample{
		Datetime:           str(obj, "datetime", ""),
		Storage:            num(obj, "storage"),
		Real:               flows(object(obj, "real")),
		Predicted:          flows(object(obj, "predict")),
		FutureStorageCurve: curve(obj, "future_storages"),
		Recommendation:     recommendation(object(obj, "recommendation")),
		StorageStats:       storageStats(object(obj, "storage_stats")),
	}

	s.MinFutureStorage, s.MaxFutureStorage = features.FutureStorageBounds(s.FutureStorageCurve)
	s.StoragePercent = features.CapacityPercent(s.Storage, opts.StorageCapacityKWh)
	s.Min24hPercent = features.CapacityPercent(s.StorageStats.Min24h, opts.StorageCapacityKWh)
	s.Max24hPercent = features.CapacityPercent(s.StorageStats.Max24h, opts.StorageCapacityKWh)
	return s
}

func flows(m map[string]interface{}) models.EnergyFlows {
	return models.EnergyFlows{
		Wind:        num(m, "P_wind"),
		Solar:       num(m, "P_solar"),
		Consumption: num(m, "house_consumption"),
	}
}

func recommendation(m map[string]interface{}) models.Recommendation {
	r := models.DefaultRecommendation()
	if m == nil {
		return r
	}
	if a, ok := models.ParseAction(str(m, "action", "")); ok {
		r.Action = a
	}
	r.Amount = num(m, "amount")
	r.Confidence = num(m, "confidence")
	r.Reason = str(m, "reason", models.DefaultReason)
	return r
}

func storageStats(m map[string]interface{}) models.StorageStats {
	return models.StorageStats{
		Current: num(m, "current"),
		Min24h:  num(m, "min_24h"),
		Max24h:  num(m, "max_24h"),
	}
}

// curve keeps numeric entries in order; non-numeric entries are skipped.
func curve(m map[string]interface{}, key string) []float64 {
	arr, _ := m[key].([]interface{})
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		if f, ok := e.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

func object(m map[string]interface{}, key string) map[string]interface{} {
	o, _ := m[key].(map[string]interface{})
	return o
}

func num(m map[string]interface{}, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func str(m map[string]interface{}, key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
