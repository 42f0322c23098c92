// Package dispatch implements the daily route optimizer: skill-aware job
// assignment, per-worker route sequencing, and ETA projection.
package dispatch

import (
	"fieldops/internal/model"
)

// WorkerState is one worker's accumulating route for the optimization
// day. It is owned exclusively by a single run.
type WorkerState struct {
	Worker     model.Worker
	StartPoint model.Coordinate
	HasStart   bool
	Jobs       []model.Job

	newlyAssigned map[string]bool
}

// WorkingSet threads the in-memory worker→jobs mapping through the
// assignment loop. Assignments made early in a pass are visible to cost
// computations for later jobs in the same pass; that order dependence is
// by construction, not an accident of shared mutable state.
type WorkingSet struct {
	Office    model.Coordinate
	HasOffice bool
	Workers   []*WorkerState

	byID map[string]*WorkerState
}

// NewWorkingSet builds per-worker state with resolved start points
// (home location, else provider office, else none).
func NewWorkingSet(workers []model.Worker, office model.Coordinate) *WorkingSet {
	ws := &WorkingSet{
		Office:    office,
		HasOffice: !office.IsZero(),
		byID:      make(map[string]*WorkerState, len(workers)),
	}
	for _, w := range workers {
		st := &WorkerState{Worker: w, newlyAssigned: map[string]bool{}}
		switch {
		case !w.HomeLocation.IsZero():
			st.StartPoint = w.HomeLocation
			st.HasStart = true
		case ws.HasOffice:
			st.StartPoint = office
			st.HasStart = true
		}
		ws.Workers = append(ws.Workers, st)
		ws.byID[w.ID] = st
	}
	return ws
}

// Get returns the state for a worker id, or nil when the worker is not
// part of this run.
func (ws *WorkingSet) Get(workerID string) *WorkerState { return ws.byID[workerID] }

// Attach adds an already-assigned job to a worker's route.
func (ws *WorkingSet) Attach(st *WorkerState, job model.Job) {
	st.Jobs = append(st.Jobs, job)
}

// Assign appends a newly auto-assigned job, marking it for persistence of
// the new assignee list.
func (ws *WorkingSet) Assign(st *WorkerState, job model.Job) {
	job.AssignedWorkerIDs = []string{st.Worker.ID}
	st.Jobs = append(st.Jobs, job)
	st.newlyAssigned[job.ID] = true
}

// NewlyAssigned reports whether the job was auto-assigned during this run.
func (st *WorkerState) NewlyAssigned(jobID string) bool { return st.newlyAssigned[jobID] }
