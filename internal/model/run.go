package model

import "time"

// RunOutcome classifies one watch's result inside a batch.
type RunOutcome string

const (
	OutcomeOK      RunOutcome = "ok"
	OutcomeNoRules RunOutcome = "no_criteria"
	OutcomeFailed  RunOutcome = "failed"
)

// RunTrace is the per-watch line of a batch report.
type RunTrace struct {
	WatchID string     `json:"watch_id"`
	Outcome RunOutcome `json:"outcome"`
	New     int        `json:"new"`
	Total   int        `json:"total"`
	Error   string     `json:"error,omitempty"`
}

// BatchReport summarizes one run over every runnable watch.
type BatchReport struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Traces     []RunTrace `json:"traces"`
}

// Failed counts the traces that ended in an error.
func (r *BatchReport) Failed() int {
	n := 0
	for _, t := range r.Traces {
		if t.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

// NewMatches sums the new listings found across the batch.
func (r *BatchReport) NewMatches() int {
	n := 0
	for _, t := range r.Traces {
		n += t.New
	}
	return n
}
