package dispatch

import (
	"time"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// ScheduledJob is a job enriched with projected timing. It lives only
// within one run; its fields are flattened back onto the job record by
// the orchestrator's persistence step.
type ScheduledJob struct {
	Job           model.Job
	Arrival       time.Time
	Departure     time.Time
	TravelMinutes int
}

// ProjectETAs walks a sequenced route and stamps arrival/departure times.
// The running clock starts at the day's default start hour and advances
// by travel time plus job duration per stop. Anchor jobs are not
// special-cased: projection always stamps sequential times, and the
// orchestrator alone decides which of them are persisted.
func ProjectETAs(ordered []model.Job, start model.Coordinate, haveStart bool, day time.Time, policy config.DispatchPolicy) []ScheduledJob {
	out := make([]ScheduledJob, 0, len(ordered))
	clock := dayStart(day, policy)
	cur, haveCur := start, haveStart
	for _, j := range ordered {
		travel := 0
		if haveCur && !j.Location.IsZero() {
			travel = geo.TravelMinutes(geo.Miles(cur, j.Location), policy.AverageSpeedMPH)
		}
		arrival := clock.Add(time.Duration(travel) * time.Minute)
		departure := arrival.Add(jobDuration(j, policy))
		out = append(out, ScheduledJob{Job: j, Arrival: arrival, Departure: departure, TravelMinutes: travel})
		clock = departure
		if !j.Location.IsZero() {
			cur, haveCur = j.Location, true
		}
	}
	return out
}

// routeMiles measures a route as driven: start point to first stop, then
// consecutive stops.
func routeMiles(start model.Coordinate, haveStart bool, jobs []model.Job) float64 {
	stops := make([]model.Coordinate, 0, len(jobs))
	for _, j := range jobs {
		stops = append(stops, j.Location)
	}
	return geo.PathMiles(start, haveStart, stops)
}
