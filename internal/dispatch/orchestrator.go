package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/skills"
	"fieldops/internal/store"
)

// ErrMissingProvider is returned when a run is requested without a
// provider id. It is the only request-level validation failure.
var ErrMissingProvider = errors.New("providerId is required")

// EventFunc receives per-run notifications (job.assigned,
// job.needs_review, skill.mismatch, run.completed) for fan-out to SSE,
// websockets, and webhooks. It may be nil.
type EventFunc func(eventType string, data map[string]any)

// Optimizer runs one synchronous optimization pass per call. Runs are not
// coordinated with each other; callers must serialize per (provider, day)
// or accept last-writer-wins on the persisted rows.
type Optimizer struct {
	Store  store.Store
	Policy config.DispatchPolicy
	Engine *skills.Engine
	Events EventFunc
}

// New builds an Optimizer over a store with the given policy.
func New(s store.Store, policy config.DispatchPolicy) *Optimizer {
	return &Optimizer{Store: s, Policy: policy, Engine: skills.NewEngine(policy.SkillKeywords)}
}

// Run executes the full per-day procedure: load the snapshot, classify
// jobs, greedily assign the unassigned pool, re-sequence every worker's
// route, project ETAs, persist, and summarize. Per-job persistence
// failures are logged and skipped; the run completes with partial
// success. Reruns on an unmodified snapshot are deterministic, so a rerun
// is a safe correction pass.
func (o *Optimizer) Run(ctx context.Context, req model.OptimizeRequest) (model.OptimizeResponse, error) {
	if req.ProviderID == "" {
		return model.OptimizeResponse{}, ErrMissingProvider
	}
	day, err := parseDay(req.Day)
	if err != nil {
		return model.OptimizeResponse{}, fmt.Errorf("optimize: %w", err)
	}

	provider, err := o.Store.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return model.OptimizeResponse{}, fmt.Errorf("optimize: load provider %s: %w", req.ProviderID, err)
	}
	workers, err := o.Store.ListActiveWorkers(ctx, req.ProviderID, req.WorkerIDs)
	if err != nil {
		return model.OptimizeResponse{}, fmt.Errorf("optimize: load workers: %w", err)
	}

	resp := model.OptimizeResponse{
		Success:          true,
		RunID:            uuid.New().String(),
		Workers:          []model.WorkerRoute{},
		UnassignableJobs: []model.UnassignableJob{},
		SkillMismatches:  []model.SkillMismatch{},
		NeedsReview:      []model.NeedsReview{},
	}
	if len(workers) == 0 {
		resp.Message = "No active field workers found"
		return resp, nil
	}

	allJobs, err := o.Store.ListJobsForDay(ctx, req.ProviderID, day)
	if err != nil {
		return model.OptimizeResponse{}, fmt.Errorf("optimize: load jobs: %w", err)
	}
	jobs := make([]model.Job, 0, len(allJobs))
	for _, j := range allJobs {
		if j.Status == model.JobStatusCancelled {
			continue
		}
		if j.Location.IsZero() {
			continue // unknown location, cannot be routed
		}
		jobs = append(jobs, j)
	}

	skillNames := o.loadSkillNames(ctx, req.ProviderID)
	ws := NewWorkingSet(workers, provider.OfficeLocation)

	// Classification. reviewOnly holds unassigned multi-worker jobs: they
	// are never auto-assigned, but with auto-assign off they still count
	// as unassigned work for the report.
	var pool, reviewOnly []model.Job
	for _, job := range jobs {
		if job.RequiredWorkerCount > 1 {
			resp.NeedsReview = append(resp.NeedsReview, model.NeedsReview{
				JobID:               job.ID,
				JobTitle:            job.Title,
				ServiceType:         job.ServiceType,
				Reason:              model.ReviewMultiWorkerRequired,
				Message:             fmt.Sprintf("Job requires %d workers and must be assigned manually", job.RequiredWorkerCount),
				RequiredWorkerCount: job.RequiredWorkerCount,
				RequiredSkillIDs:    job.RequiredSkillIDs,
				RequiredSkillNames:  namesFor(job.RequiredSkillIDs, skillNames),
			})
			o.emit("job.needs_review", map[string]any{"jobId": job.ID, "reason": model.ReviewMultiWorkerRequired})
			if len(job.AssignedWorkerIDs) == 0 {
				reviewOnly = append(reviewOnly, job)
			}
			// Keep existing assignees on their routes; never auto-assign.
			for _, wid := range job.AssignedWorkerIDs {
				if st := ws.Get(wid); st != nil {
					ws.Attach(st, job)
				}
			}
			continue
		}
		if len(job.AssignedWorkerIDs) > 0 {
			for _, wid := range job.AssignedWorkerIDs {
				st := ws.Get(wid)
				if st == nil {
					continue
				}
				ws.Attach(st, job)
				if !job.AllowUnqualified && !o.Engine.IsQualified(st.Worker, job) {
					missing := o.Engine.MissingSkills(st.Worker, job)
					resp.SkillMismatches = append(resp.SkillMismatches, model.SkillMismatch{
						JobID:              job.ID,
						JobTitle:           job.Title,
						ServiceType:        job.ServiceType,
						AssignedWorkerID:   st.Worker.ID,
						AssignedWorkerName: st.Worker.Name,
						WorkerSkills:       st.Worker.SkillNames,
						WorkerSkillIDs:     st.Worker.SkillIDs,
						RequiredSkills:     namesFor(job.RequiredSkillIDs, skillNames),
						RequiredSkillIDs:   job.RequiredSkillIDs,
						MissingSkillIDs:    missing,
						MissingSkillNames:  namesFor(missing, skillNames),
					})
					o.emit("skill.mismatch", map[string]any{"jobId": job.ID, "workerId": st.Worker.ID})
				}
			}
			continue
		}
		pool = append(pool, job)
	}

	autoAssign := req.AutoAssign == nil || *req.AutoAssign
	avgJobs := float64(len(jobs)) / float64(len(workers))

	switch {
	case !autoAssign:
		for _, job := range append(reviewOnly, pool...) {
			resp.UnassignableJobs = append(resp.UnassignableJobs, model.UnassignableJob{
				ID: job.ID, Service: job.ServiceType, Customer: job.CustomerName,
				Reason: "Auto-assign disabled",
			})
		}
	case len(pool) > 0:
		// Fixed appointments claim workers first, then earliest start.
		sort.SliceStable(pool, func(i, k int) bool {
			fi, fk := pool[i].Appointment == model.AppointmentFixed, pool[k].Appointment == model.AppointmentFixed
			if fi != fk {
				return fi
			}
			return pool[i].ScheduledStart.Before(pool[k].ScheduledStart)
		})
		for _, job := range pool {
			o.assignOne(job, ws, jobs, avgJobs, skillNames, &resp)
		}
	}

	// Sequencing, ETA projection, persistence.
	for _, st := range ws.Workers {
		route := o.optimizeRoute(ctx, req.ProviderID, st, day)
		resp.Workers = append(resp.Workers, route)
		resp.TotalSavedMiles += route.SavedMiles
		resp.TotalSavedMinutes += route.SavedMinutes
	}
	resp.TotalSavedMiles = round2(resp.TotalSavedMiles)

	resp.Summary = model.RunSummary{
		TotalWorkers:       len(workers),
		TotalJobs:          len(jobs),
		UnassignedCount:    len(resp.UnassignableJobs),
		SkillMismatchCount: len(resp.SkillMismatches),
		NeedsReviewCount:   len(resp.NeedsReview),
		AvgJobsPerWorker:   round2(avgJobs),
	}

	rec := model.RunRecord{
		ID:           resp.RunID,
		ProviderID:   req.ProviderID,
		Day:          day.Format("2006-01-02"),
		CreatedAt:    time.Now().UTC(),
		SavedMiles:   resp.TotalSavedMiles,
		SavedMinutes: resp.TotalSavedMinutes,
		Summary:      resp.Summary,
	}
	if err := o.Store.SaveRunSummary(ctx, rec); err != nil {
		log.Printf("optimize: save run summary: %v", err)
	}
	o.emit("run.completed", map[string]any{
		"runId":       resp.RunID,
		"providerId":  req.ProviderID,
		"day":         rec.Day,
		"savedMiles":  resp.TotalSavedMiles,
		"totalJobs":   len(jobs),
		"needsReview": len(resp.NeedsReview),
	})
	return resp, nil
}

// assignOne picks the cheapest qualified worker for one pooled job, or
// records why none could take it.
func (o *Optimizer) assignOne(job model.Job, ws *WorkingSet, jobsToday []model.Job, avgJobs float64, skillNames map[string]string, resp *model.OptimizeResponse) {
	var qualified []*WorkerState
	for _, st := range ws.Workers {
		if o.Engine.IsQualified(st.Worker, job) {
			qualified = append(qualified, st)
		}
	}
	if len(qualified) == 0 {
		resp.NeedsReview = append(resp.NeedsReview, model.NeedsReview{
			JobID:              job.ID,
			JobTitle:           job.Title,
			ServiceType:        job.ServiceType,
			Reason:             model.ReviewNoQualifiedWorkers,
			Message:            "No active worker holds the required skills",
			RequiredSkillIDs:   job.RequiredSkillIDs,
			RequiredSkillNames: namesFor(job.RequiredSkillIDs, skillNames),
		})
		resp.UnassignableJobs = append(resp.UnassignableJobs, model.UnassignableJob{
			ID: job.ID, Service: job.ServiceType, Customer: job.CustomerName,
			Reason: "No qualified workers available",
		})
		o.emit("job.needs_review", map[string]any{"jobId": job.ID, "reason": model.ReviewNoQualifiedWorkers})
		return
	}

	var best *WorkerState
	bestCost := math.Inf(1)
	for _, st := range qualified {
		// First minimal-cost worker encountered wins ties.
		if c := Cost(st, job, avgJobs, jobsToday, o.Policy); c < bestCost {
			best, bestCost = st, c
		}
	}
	if best == nil || math.IsInf(bestCost, 1) {
		resp.UnassignableJobs = append(resp.UnassignableJobs, model.UnassignableJob{
			ID: job.ID, Service: job.ServiceType, Customer: job.CustomerName,
			Reason: "All eligible workers at maximum capacity",
		})
		return
	}
	ws.Assign(best, job)
	o.emit("job.assigned", map[string]any{"jobId": job.ID, "workerId": best.Worker.ID})
}

// optimizeRoute sequences one worker's day, projects ETAs, and writes the
// results back through the store. Write failures are logged per job and
// do not abort the run.
func (o *Optimizer) optimizeRoute(ctx context.Context, providerID string, st *WorkerState, day time.Time) model.WorkerRoute {
	before := routeMiles(st.StartPoint, st.HasStart, st.Jobs)
	ordered := Sequence(st, day, o.Policy)
	after := routeMiles(st.StartPoint, st.HasStart, ordered)
	scheduled := ProjectETAs(ordered, st.StartPoint, st.HasStart, day, o.Policy)

	saved := before - after
	if saved < 0 {
		saved = 0
	}

	route := model.WorkerRoute{
		ID:           st.Worker.ID,
		Name:         st.Worker.Name,
		Color:        st.Worker.Color,
		JobCount:     len(scheduled),
		Jobs:         make([]model.JobETA, 0, len(scheduled)),
		BeforeMiles:  round2(before),
		AfterMiles:   round2(after),
		SavedMiles:   round2(saved),
		SavedMinutes: geo.TravelMinutes(saved, o.Policy.AverageSpeedMPH),
		TotalMiles:   round2(after),
	}

	for i, sj := range scheduled {
		route.Jobs = append(route.Jobs, model.JobETA{
			ID:            sj.Job.ID,
			Service:       sj.Job.ServiceType,
			Customer:      sj.Job.CustomerName,
			ETA:           sj.Arrival.Format(time.Kitchen),
			ETAEnd:        sj.Departure.Format(time.Kitchen),
			TravelMinutes: sj.TravelMinutes,
		})
		route.TotalMinutes += sj.TravelMinutes

		idx := i
		upd := model.JobRouteUpdate{RouteOrder: &idx}
		if st.NewlyAssigned(sj.Job.ID) {
			upd.AssignedWorkerIDs = []string{st.Worker.ID}
		}
		if !sj.Job.IsAnchor() {
			// Flexible jobs move to their projected slot; fixed and window
			// jobs keep their stored times even though ETAs were computed.
			arrival, departure := sj.Arrival, sj.Departure
			upd.ScheduledStart = &arrival
			upd.ScheduledEnd = &departure
		}
		if err := o.Store.UpdateJobRoute(ctx, providerID, sj.Job.ID, upd); err != nil {
			log.Printf("optimize: persist job %s for worker %s: %v", sj.Job.ID, st.Worker.ID, err)
		}
	}
	return route
}

func (o *Optimizer) loadSkillNames(ctx context.Context, providerID string) map[string]string {
	names := map[string]string{}
	list, err := o.Store.ListSkills(ctx, providerID)
	if err != nil {
		log.Printf("optimize: load skills: %v", err)
		return names
	}
	for _, s := range list {
		names[s.ID] = s.Name
	}
	return names
}

func (o *Optimizer) emit(eventType string, data map[string]any) {
	if o.Events != nil {
		o.Events(eventType, data)
	}
}

func namesFor(ids []string, names map[string]string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		} else {
			out = append(out, id)
		}
	}
	return out
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q (want YYYY-MM-DD)", s)
	}
	return day, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
