package application

import (
	"math"

	"github.com/ahrav/go-evoprompt/internal/domain"
)

// CompositeFitness reduces a task result to a scalar in [0,1]:
//
//	w.Score*OverallScore + w.SuccessRate*SuccessRate + w.ExecutionTime*timeScore
//
// where timeScore = max(0, 1 - total/(n*maxReasonableMs)). A non-positive
// n or maxReasonableMs zeroes the time component. A NaN result is 0.
func CompositeFitness(result domain.TaskEvaluationResult, n int, maxReasonableMs int64, w FitnessWeights) float64 {
	timeScore := 0.0
	if n > 0 && maxReasonableMs > 0 {
		budget := float64(n) * float64(maxReasonableMs)
		timeScore = 1 - float64(result.TotalExecutionTimeMs)/budget
		if timeScore < 0 {
			timeScore = 0
		}
	}

	f := w.Score*result.OverallScore + w.SuccessRate*result.SuccessRate + w.ExecutionTime*timeScore
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
