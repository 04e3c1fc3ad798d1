package service

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

func jsonMap(in map[string]interface{}) datatypes.JSONMap {
	if in == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(in)
}

// cloneMap deep-copies nested maps and slices so question code cannot alter
// the caller's values through shared references.
func cloneMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return cloneMap(v)
	case datatypes.JSONMap:
		return datatypes.JSONMap(cloneMap(v))
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// plainMap copies in with every number held as float64, the form
// encoding/json decodes into. Rows read back through datatypes.JSONMap carry
// json.Number instead.
func plainMap(in map[string]interface{}) datatypes.JSONMap {
	if in == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(in))
	for key, value := range in {
		out[key] = plainValue(value)
	}
	return out
}

func plainValue(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case map[string]interface{}:
		return map[string]interface{}(plainMap(v))
	case datatypes.JSONMap:
		return plainMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

func plainSubmission(submission models.Submission) models.Submission {
	submission.RawSubmittedAnswer = plainMap(submission.RawSubmittedAnswer)
	submission.SubmittedAnswer = plainMap(submission.SubmittedAnswer)
	submission.FormatErrors = plainMap(submission.FormatErrors)
	return submission
}

func plainVariant(variant models.Variant) models.Variant {
	variant.Params = plainMap(variant.Params)
	variant.TrueAnswer = plainMap(variant.TrueAnswer)
	variant.Options = plainMap(variant.Options)
	return variant
}
