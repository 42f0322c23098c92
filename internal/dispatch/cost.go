package dispatch

import (
	"math"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// Cost scores adding job to the worker's day. Lower is better; +Inf means
// the worker is unusable for further assignments this run.
//
// The score is greedy and single-pass: travel miles from the worker's
// resolved current location plus a workload-balance penalty for each job
// the worker already holds over the day's average. Ties are broken by the
// caller's iteration order over workers.
func Cost(st *WorkerState, job model.Job, avgJobsPerWorker float64, jobsToday []model.Job, policy config.DispatchPolicy) float64 {
	if len(st.Jobs) >= policy.MaxJobsPerWorker {
		return math.Inf(1)
	}
	distanceCost := 0.0
	if loc, ok := CurrentLocation(st, jobsToday); ok && !job.Location.IsZero() {
		distanceCost = geo.Miles(loc, job.Location)
	}
	workloadCost := math.Max(0, float64(len(st.Jobs))-avgJobsPerWorker) * policy.WorkloadPenaltyPerJob
	return distanceCost + workloadCost
}
