package dispatch

import (
	"sort"
	"time"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// Sequence orders a worker's day. Anchor jobs (fixed or window
// appointments) keep their relative order by scheduled start time;
// flexible jobs are greedily inserted nearest-neighbor into the gaps
// before each anchor when they fit with headroom, and the remainder is
// appended nearest-neighbor after the last anchor.
//
// This is an insertion heuristic, not an optimal scheduler: anchors are
// never moved or reordered relative to each other.
func Sequence(st *WorkerState, day time.Time, policy config.DispatchPolicy) []model.Job {
	jobs := st.Jobs
	if len(jobs) <= 1 {
		return jobs
	}

	var anchors, flexible []model.Job
	for _, j := range jobs {
		if j.IsAnchor() {
			anchors = append(anchors, j)
		} else {
			flexible = append(flexible, j)
		}
	}

	if len(anchors) == 0 {
		cur, haveCur := st.StartPoint, st.HasStart
		if !haveCur {
			cur = flexible[0].Location
		}
		return nearestNeighborOrder(cur, flexible)
	}

	sort.SliceStable(anchors, func(i, k int) bool {
		return anchors[i].ScheduledStart.Before(anchors[k].ScheduledStart)
	})

	buffer := time.Duration(policy.AnchorBufferMinutes) * time.Minute
	ordered := make([]model.Job, 0, len(jobs))
	remaining := append([]model.Job(nil), flexible...)
	cur, haveCur := st.StartPoint, st.HasStart
	var clock time.Time // lazily started at the day's default start hour

	for _, anchor := range anchors {
		for len(remaining) > 0 {
			idx := nearestIndex(cur, haveCur, remaining)
			cand := remaining[idx]
			travel := 0
			if haveCur {
				travel = geo.TravelMinutes(geo.Miles(cur, cand.Location), policy.AverageSpeedMPH)
			}
			if clock.IsZero() {
				clock = dayStart(day, policy)
			}
			finish := clock.Add(time.Duration(travel)*time.Minute + jobDuration(cand, policy))
			if finish.After(anchor.ScheduledStart.Add(-buffer)) {
				break
			}
			ordered = append(ordered, cand)
			clock = finish
			cur, haveCur = cand.Location, true
			remaining = append(remaining[:idx], remaining[idx+1:]...)
		}
		ordered = append(ordered, anchor)
		cur, haveCur = anchor.Location, true
		clock = anchorEnd(anchor, policy)
	}

	ordered = append(ordered, nearestNeighborOrder(cur, remaining)...)
	return ordered
}

// nearestNeighborOrder repeatedly picks the unplaced job closest to the
// current location.
func nearestNeighborOrder(start model.Coordinate, jobs []model.Job) []model.Job {
	out := make([]model.Job, 0, len(jobs))
	remaining := append([]model.Job(nil), jobs...)
	cur := start
	for len(remaining) > 0 {
		idx := nearestIndex(cur, true, remaining)
		out = append(out, remaining[idx])
		cur = remaining[idx].Location
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

// nearestIndex returns the index of the job closest to cur. Without a
// reference location the first job wins, which keeps selection
// deterministic.
func nearestIndex(cur model.Coordinate, haveCur bool, jobs []model.Job) int {
	if !haveCur {
		return 0
	}
	best := 0
	bestMiles := geo.Miles(cur, jobs[0].Location)
	for i := 1; i < len(jobs); i++ {
		if d := geo.Miles(cur, jobs[i].Location); d < bestMiles {
			best, bestMiles = i, d
		}
	}
	return best
}

func dayStart(day time.Time, policy config.DispatchPolicy) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, policy.DefaultStartHour, 0, 0, 0, day.Location())
}

func jobDuration(j model.Job, policy config.DispatchPolicy) time.Duration {
	hours := j.DurationHours
	if hours <= 0 {
		// floor applies only when no duration was recorded
		hours = policy.MinJobDurationHours
	}
	return time.Duration(hours * float64(time.Hour))
}

func anchorEnd(j model.Job, policy config.DispatchPolicy) time.Time {
	if !j.ScheduledEnd.IsZero() {
		return j.ScheduledEnd
	}
	return j.ScheduledStart.Add(jobDuration(j, policy))
}
