package spc

// Capability grades returned by Grade.
const (
	GradeExcellent = "excellent"
	GradeMarginal  = "marginal"
	GradePoor      = "poor"
)

// Thresholds that map Cpk to a grade. 1.33 corresponds to ±4σ inside the
// nearer limit.
const (
	ThresholdExcellent = 1.33
	ThresholdMarginal  = 1.0
)

// Grade maps a capability index to a named grade.
func Grade(cpk float64) string {
	switch {
	case cpk >= ThresholdExcellent:
		return GradeExcellent
	case cpk >= ThresholdMarginal:
		return GradeMarginal
	default:
		return GradePoor
	}
}
