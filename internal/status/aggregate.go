package status

import "sampleflow/pkg/domain"

// Aggregate is the composite lifecycle status of one sample.
type Aggregate struct {
	Status domain.SampleStatus `json:"status"`
	// AllDone is set when at least one method exists and every method is
	// completed, independent of Status. Cards with AllDone are auto-completable.
	AllDone bool `json:"all_done"`
}

// Reduce folds merged methods and the sample's fallback status (canonical or
// override) into one Aggregate. Rules apply in order:
//
//  1. no methods: fallback
//  2. fallback review: review (explicit pin)
//  3. fallback done and every method completed: done
//  4. any method review or failed: review
//  5. every method completed: progress
//  6. any method in progress: progress
//  7. otherwise: fallback
func Reduce(methods []domain.Method, fallback domain.SampleStatus) Aggregate {
	if len(methods) == 0 {
		return Aggregate{Status: fallback}
	}
	allDone := true
	anyAttention := false
	anyRunning := false
	for _, m := range methods {
		switch m.Status {
		case domain.AnalysisCompleted:
		case domain.AnalysisReview, domain.AnalysisFailed:
			anyAttention = true
			allDone = false
		case domain.AnalysisInProgress:
			anyRunning = true
			allDone = false
		default:
			allDone = false
		}
	}
	agg := Aggregate{Status: fallback, AllDone: allDone}
	switch {
	case fallback == domain.SampleStatusReview:
		agg.Status = domain.SampleStatusReview
	case fallback == domain.SampleStatusDone && allDone:
		agg.Status = domain.SampleStatusDone
	case anyAttention:
		agg.Status = domain.SampleStatusReview
	case allDone:
		agg.Status = domain.SampleStatusProgress
	case anyRunning:
		agg.Status = domain.SampleStatusProgress
	}
	return agg
}

// CompletedCount returns how many merged methods are completed.
func CompletedCount(methods []domain.Method) int {
	n := 0
	for _, m := range methods {
		if m.Status == domain.AnalysisCompleted {
			n++
		}
	}
	return n
}
