package scoring

import (
	"math"

	"github.com/noah-isme/teacher-eval-api/internal/models"
)

// Weights are the per-component shares of the final score.
type Weights struct {
	Student  float64
	Peer     float64
	DeptHead float64
}

// DefaultWeights is the 50/35/15 split.
var DefaultWeights = Weights{Student: 0.50, Peer: 0.35, DeptHead: 0.15}

// Normalize converts one submission's answers into a 0-100 score.
// Only answers carrying a score other than N/A count, in both the sum and the
// denominator, so skipped questions never pull the score down. ratingCount is
// the number of rated questions on the form and does not affect the result.
func Normalize(answers []models.Answer, ratingCount int) float64 {
	var sum, count int
	for _, a := range answers {
		if !a.Ratable() {
			continue
		}
		sum += *a.Score
		count++
	}
	if count == 0 {
		return 0
	}

	normalized := float64(sum) / float64(count*MaxRating) * 100
	return clamp(normalized, 0, 100)
}

// FinalScore combines the component averages with fixed weights. A component
// without data contributes 0 against its full weight.
func (w Weights) FinalScore(student, peer, deptHead float64) float64 {
	return Round2(student*w.Student + peer*w.Peer + deptHead*w.DeptHead)
}

// ForType returns the weight applied to an evaluation type.
func (w Weights) ForType(t models.EvaluationType) float64 {
	switch t {
	case models.EvaluationTypeStudent:
		return w.Student
	case models.EvaluationTypePeer:
		return w.Peer
	case models.EvaluationTypeDepartmentHead:
		return w.DeptHead
	}
	return 0
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Mean is the arithmetic mean, 0 for an empty set.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
