package core

import (
	"context"
	"time"

	"sampleflow/internal/backend"
	"sampleflow/pkg/domain"
)

// MutationState tracks an accepted mutation through reconciliation.
type MutationState string

// Mutation states. A mutation starts pending and settles exactly once.
const (
	MutationPending    MutationState = "pending"
	MutationApplied    MutationState = "applied"
	MutationRolledBack MutationState = "rolled_back"
	MutationFailed     MutationState = "failed"
)

// Mutation is the record of one accepted action.
type Mutation struct {
	ID        string        `json:"id"`
	Kind      ActionKind    `json:"kind"`
	Role      domain.Role   `json:"role,omitempty"`
	EntityID  string        `json:"entity_id"`
	State     MutationState `json:"state"`
	Error     string        `json:"error,omitempty"`
	Stale     int           `json:"stale_responses,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	SettledAt time.Time     `json:"settled_at,omitempty"`
}

// Settled reports whether the mutation left the pending state.
func (m Mutation) Settled() bool { return m.State != MutationPending }

// Outcome is the reconciliation decision for a settled mutation.
type Outcome struct {
	State    MutationState
	Rollback bool
}

// Reconcile decides how a mutation settles given the backend error, if any.
// Only kinds with a safe inverse roll back; the rest keep the optimistic
// state and are reported as failed.
func Reconcile(kind ActionKind, err error) Outcome {
	if err == nil {
		return Outcome{State: MutationApplied}
	}
	if kind.RollsBack() {
		return Outcome{State: MutationRolledBack, Rollback: true}
	}
	return Outcome{State: MutationFailed}
}

// stepEnv is what a remote step calls the backend through.
type stepEnv struct {
	api backend.API
	ids *localIDs
}

// stepResult carries a backend response back to the store. merge runs only
// while the step's sequence is the latest, except for creates of local
// analyses, whose id swap always runs and is told whether it is fresh.
type stepResult struct {
	merge    func(st *domain.State, fresh bool)
	remoteID string
}

type remoteFunc func(ctx context.Context, env stepEnv) (stepResult, error)

// remoteStep is one backend call issued after the optimistic apply.
type remoteStep struct {
	key      string
	seq      uint64
	call     remoteFunc
	rollback func(st *domain.State)
	// creates is the local analysis id this step replaces with a backend id.
	creates string
}

func patchSampleStep(id string, patch backend.SamplePatch) remoteStep {
	return remoteStep{
		key: sampleKey(id),
		call: func(ctx context.Context, env stepEnv) (stepResult, error) {
			resp, err := env.api.UpdateSample(ctx, id, patch)
			if err != nil {
				return stepResult{}, err
			}
			return stepResult{merge: mergeSample(id, resp)}, nil
		},
	}
}

func createSampleStep(s domain.Sample) remoteStep {
	id := s.SampleID
	return remoteStep{
		key: sampleKey(id),
		call: func(ctx context.Context, env stepEnv) (stepResult, error) {
			resp, err := env.api.CreateSample(ctx, s)
			if err != nil {
				return stepResult{}, err
			}
			return stepResult{merge: mergeSample(id, resp)}, nil
		},
		rollback: func(st *domain.State) {
			delete(st.Samples, id)
			delete(st.Overrides.CreatedMarkers, id)
		},
	}
}

func deleteSampleStep(id string) remoteStep {
	return remoteStep{
		key: sampleKey(id),
		call: func(ctx context.Context, env stepEnv) (stepResult, error) {
			if err := env.api.DeleteSample(ctx, id); err != nil && !backend.IsNotFound(err) {
				return stepResult{}, err
			}
			return stepResult{}, nil
		},
	}
}

func mergeSample(id string, resp domain.Sample) func(*domain.State, bool) {
	if resp.SampleID != id {
		return nil
	}
	return func(st *domain.State, _ bool) {
		if _, ok := st.Samples[id]; ok {
			st.Samples[id] = resp
		}
	}
}

// patchAnalysisStep patches one analysis. A patch on a locally planned
// analysis waits for its create and goes to the backend id.
func patchAnalysisStep(id string, patch backend.AnalysisPatch) remoteStep {
	return remoteStep{
		key: analysisKey(id),
		call: func(ctx context.Context, env stepEnv) (stepResult, error) {
			target, err := env.ids.resolve(ctx, id)
			if err != nil {
				return stepResult{}, err
			}
			resp, err := env.api.UpdateAnalysis(ctx, target, patch)
			if err != nil {
				return stepResult{}, err
			}
			if resp.ID != target {
				return stepResult{}, nil
			}
			return stepResult{merge: func(st *domain.State, _ bool) {
				if _, ok := st.Analyses[target]; ok {
					st.Analyses[target] = resp.Clone()
				}
			}}, nil
		},
	}
}

// createAnalysisStep posts a locally planned analysis and swaps its temporary
// id for the one assigned by the backend. When the analysis changed locally
// while the create was in flight, the local status and assignees are kept;
// the held patches carrying those changes follow the swap.
func createAnalysisStep(a domain.PlannedAnalysis) remoteStep {
	localID := a.ID
	return remoteStep{
		key:     analysisKey(localID),
		creates: localID,
		call: func(ctx context.Context, env stepEnv) (stepResult, error) {
			req := a.Clone()
			req.ID = ""
			resp, err := env.api.CreateAnalysis(ctx, req)
			if err != nil {
				return stepResult{}, err
			}
			if resp.ID == "" {
				return stepResult{}, nil
			}
			return stepResult{remoteID: resp.ID, merge: func(st *domain.State, fresh bool) {
				cur, ok := st.Analyses[localID]
				if !ok {
					return
				}
				next := resp.Clone()
				if !fresh {
					next.Status = cur.Status
					next.AssignedTo = append([]string{}, cur.AssignedTo...)
				}
				delete(st.Analyses, localID)
				st.Analyses[resp.ID] = next
			}}, nil
		},
		rollback: func(st *domain.State) {
			delete(st.Analyses, localID)
		},
	}
}

func patchConflictStep(id string, patch backend.ConflictPatch) remoteStep {
	return remoteStep{
		key: conflictKey(id),
		call: func(ctx context.Context, env stepEnv) (stepResult, error) {
			resp, err := env.api.UpdateConflict(ctx, id, patch)
			if err != nil {
				return stepResult{}, err
			}
			if resp.ID != id {
				return stepResult{}, nil
			}
			return stepResult{merge: func(st *domain.State, _ bool) {
				if _, ok := st.Conflicts[id]; ok {
					st.Conflicts[id] = resp
				}
			}}, nil
		},
	}
}
