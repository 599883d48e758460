package backend

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sampleflow/pkg/domain"
)

//go:embed fallback.json
var fallbackJSON []byte

// Dataset is the full canonical entity set fetched at startup or on refresh.
type Dataset struct {
	Samples   []domain.Sample          `json:"samples"`
	Analyses  []domain.PlannedAnalysis `json:"analyses"`
	Batches   []domain.ActionBatch     `json:"batches"`
	Conflicts []domain.Conflict        `json:"conflicts"`
}

// Fallback returns the embedded demo dataset used when the backend is
// unreachable during the initial load.
func Fallback() (Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(fallbackJSON, &ds); err != nil {
		return Dataset{}, fmt.Errorf("decode fallback dataset: %w", err)
	}
	return ds, nil
}

// FetchAll loads the four canonical collections concurrently. The first
// failure cancels the remaining requests.
func FetchAll(ctx context.Context, api API) (Dataset, error) {
	var ds Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := api.ListSamples(gctx)
		ds.Samples = out
		return err
	})
	g.Go(func() error {
		out, err := api.ListAnalyses(gctx)
		ds.Analyses = out
		return err
	})
	g.Go(func() error {
		out, err := api.ListBatches(gctx)
		ds.Batches = out
		return err
	})
	g.Go(func() error {
		out, err := api.ListConflicts(gctx)
		ds.Conflicts = out
		return err
	})
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// State converts the dataset into a State with empty overrides.
func (ds Dataset) State() domain.State {
	st := domain.NewState()
	for _, s := range ds.Samples {
		st.Samples[s.SampleID] = s
	}
	for _, a := range ds.Analyses {
		st.Analyses[a.ID] = a.Clone()
	}
	for _, b := range ds.Batches {
		st.Batches[b.ID] = b
	}
	for _, c := range ds.Conflicts {
		st.Conflicts[c.ID] = c
	}
	return st
}
