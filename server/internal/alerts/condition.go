package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biomirror/biomirror/pkg/types"
)

// Fields that may appear on the left of a condition.
var numericFields = map[string]func(types.Output) float64{
	"heart_rate":           func(o types.Output) float64 { return float64(o.HeartRate.BPM) },
	"stability_score":      func(o types.Output) float64 { return o.StabilityScore },
	"distortion_intensity": func(o types.Output) float64 { return o.DistortionIntensity },
	"eda_variation":        func(o types.Output) float64 { return o.EDAVariation },
	"resp_variation":       func(o types.Output) float64 { return o.RespVariation },
}

// ValidateCondition reports why cond cannot be evaluated, or nil.
func ValidateCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	if field == "heart_rate" && rhs == types.Unavailable {
		if op != "==" && op != "!=" {
			return fmt.Errorf("condition %q: unavailable only supports == and !=", cond)
		}
		return nil
	}
	if _, ok := numericFields[field]; !ok {
		return fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return fmt.Errorf("condition %q: unknown operator %q", cond, op)
	}
	if _, err := strconv.ParseFloat(rhs, 64); err != nil {
		return fmt.Errorf("condition %q: value %q is not a number", cond, rhs)
	}
	return nil
}

// evalCondition evaluates a rule condition string against one output tuple.
//
// Supported expressions (field operator value):
//
//	stability_score > 5
//	distortion_intensity >= 10
//	heart_rate > 120
//	heart_rate < 45
//	heart_rate == unavailable
//	eda_variation > 0.5
//
// A numeric heart_rate comparison never fires while the rate is unavailable.
// Returns (fires bool, triggering value float64); (false, 0) if the
// expression cannot be parsed.
func evalCondition(cond string, out types.Output) (bool, float64) {
	if ValidateCondition(cond) != nil {
		return false, 0
	}
	parts := strings.Fields(cond)
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "heart_rate" {
		if rhs == types.Unavailable {
			unavailable := !out.HeartRate.Available
			if op == "!=" {
				return !unavailable, float64(out.HeartRate.BPM)
			}
			return unavailable, 0
		}
		if !out.HeartRate.Available {
			return false, 0
		}
	}

	v := numericFields[field](out)
	threshold, _ := strconv.ParseFloat(rhs, 64)
	return compareFloat(v, op, threshold), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
