package api

import (
	"github.com/measurestack/measurestack/server/internal/store"
)

// BuildSummary reads the cached working-set summary from repo.
// The websocket hub uses it so both surfaces share one schema.
func BuildSummary(repo *store.Repository) SummaryResponse {
	return SummaryFrom(repo.Snapshot())
}

// SummaryFrom builds the response from one repository snapshot.
func SummaryFrom(snap store.Snapshot) SummaryResponse {
	if snap.Err != nil {
		return SummaryResponse{State: StateEmpty}
	}
	sum := snap.Summary
	return SummaryResponse{
		Summary:  &sum,
		Count:    sum.Count,
		State:    StateOK,
		Datasets: len(snap.Datasets),
	}
}
