package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/measurestack/measurestack/pkg/spc"
)

// condition is a parsed "field op value" rule expression.
type condition struct {
	field string
	op    string
	num   float64
	str   string
}

var numericFields = map[string]func(spc.Summary) float64{
	"cpk":               func(s spc.Summary) float64 { return s.Cpk },
	"yield_pct":         func(s spc.Summary) float64 { return s.YieldPct },
	"out_of_spec_count": func(s spc.Summary) float64 { return float64(s.OutOfSpecCount) },
	"upper_exceeded":    func(s spc.Summary) float64 { return float64(s.UpperExceeded) },
	"lower_exceeded":    func(s spc.Summary) float64 { return float64(s.LowerExceeded) },
	"std_dev":           func(s spc.Summary) float64 { return s.StdDev },
	"mean":              func(s spc.Summary) float64 { return s.Mean },
	"count":             func(s spc.Summary) float64 { return float64(s.Count) },
}

// parseCondition parses a rule condition string.
//
// Supported expressions (field operator value):
//
//	cpk < 1.33
//	yield_pct < 99
//	out_of_spec_count > 0
//	std_dev > 0.5
//	mean >= 10.2
//	count < 30
//	grade == poor
//	grade != excellent
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("alerts: condition %q: want \"field op value\"", cond)
	}
	c := condition{field: parts[0], op: parts[1]}

	if c.field == "grade" {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("alerts: condition %q: grade supports == and != only", cond)
		}
		switch parts[2] {
		case spc.GradeExcellent, spc.GradeMarginal, spc.GradePoor:
			c.str = parts[2]
			return c, nil
		}
		return condition{}, fmt.Errorf("alerts: condition %q: unknown grade %q", cond, parts[2])
	}

	if _, ok := numericFields[c.field]; !ok {
		return condition{}, fmt.Errorf("alerts: condition %q: unknown field %q", cond, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("alerts: condition %q: unknown operator %q", cond, c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("alerts: condition %q: %w", cond, err)
	}
	c.num = v
	return c, nil
}

// eval returns whether the condition holds for sum, and the triggering value.
// An empty working set only satisfies conditions on count.
func (c condition) eval(sum spc.Summary) (bool, float64) {
	if sum.Count == 0 && c.field != "count" {
		return false, 0
	}
	if c.field == "grade" {
		eq := sum.Grade == c.str
		if c.op == "!=" {
			return !eq, sum.Cpk
		}
		return eq, sum.Cpk
	}
	v := numericFields[c.field](sum)
	return compareFloat(v, c.op, c.num), v
}

// ValidateCondition reports whether cond is a well-formed rule expression.
func ValidateCondition(cond string) error {
	_, err := parseCondition(cond)
	return err
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
