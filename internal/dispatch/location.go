package dispatch

import (
	"fieldops/internal/model"
)

// CurrentLocation resolves where a worker effectively is right now, for
// cost evaluation during assignment. Priority, highest first:
//
//  1. a job assigned to the worker that is in progress or on the way
//  2. the worker's most recent completed job today (last by array order)
//  3. the last job of the route accumulated so far this run
//  4. the worker's static start point
//
// The boolean is false when none of the chain yields a usable location.
func CurrentLocation(st *WorkerState, jobsToday []model.Job) (model.Coordinate, bool) {
	for _, j := range jobsToday {
		if !assignedTo(j, st.Worker.ID) {
			continue
		}
		if j.Status == model.JobStatusInProgress || j.Status == model.JobStatusOnTheWay {
			if !j.Location.IsZero() {
				return j.Location, true
			}
		}
	}
	var lastDone model.Coordinate
	haveDone := false
	for _, j := range jobsToday {
		if assignedTo(j, st.Worker.ID) && j.Status == model.JobStatusCompleted && !j.Location.IsZero() {
			lastDone = j.Location
			haveDone = true
		}
	}
	if haveDone {
		return lastDone, true
	}
	return LastRouteLocation(st)
}

// LastRouteLocation is the simpler chain used by route sequencing, which
// runs after assignment on an already-built day: the tail of the current
// route, else the static start point.
func LastRouteLocation(st *WorkerState) (model.Coordinate, bool) {
	for i := len(st.Jobs) - 1; i >= 0; i-- {
		if !st.Jobs[i].Location.IsZero() {
			return st.Jobs[i].Location, true
		}
	}
	if st.HasStart {
		return st.StartPoint, true
	}
	return model.Coordinate{}, false
}

func assignedTo(j model.Job, workerID string) bool {
	for _, id := range j.AssignedWorkerIDs {
		if id == workerID {
			return true
		}
	}
	return false
}
