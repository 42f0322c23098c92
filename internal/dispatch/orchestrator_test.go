package dispatch

import (
	"context"
	"errors"
	"testing"

	"fieldops/internal/config"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

// fixture seeds a provider with two workers: a plumber and a chainsaw
// operator, both active, homes a few miles apart.
func fixture(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	m.SeedProvider(model.Provider{ID: "p1", Name: "Test Co", OfficeLocation: model.Coordinate{Lat: 33.45, Lng: -112.07}})
	m.SeedSkill("p1", model.Skill{ID: "sk_p", Name: "Plumbing"})
	m.SeedSkill("p1", model.Skill{ID: "sk_c", Name: "Chainsaw Operation"})
	m.SeedWorker(model.Worker{ID: "w_plumber", ProviderID: "p1", Name: "Ana", Active: true,
		HomeLocation: model.Coordinate{Lat: 33.40, Lng: -112.00},
		SkillIDs:     []string{"sk_p"}, SkillNames: []string{"Plumbing"}})
	m.SeedWorker(model.Worker{ID: "w_sawyer", ProviderID: "p1", Name: "Ben", Active: true,
		HomeLocation: model.Coordinate{Lat: 33.50, Lng: -112.10},
		SkillIDs:     []string{"sk_c"}, SkillNames: []string{"Chainsaw Operation"}})
	return m
}

func runDay(t *testing.T, m *store.Memory, req model.OptimizeRequest) model.OptimizeResponse {
	t.Helper()
	o := New(m, config.Default())
	resp, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRunRequiresProvider(t *testing.T) {
	o := New(store.NewMemory(), config.Default())
	if _, err := o.Run(context.Background(), model.OptimizeRequest{}); !errors.Is(err, ErrMissingProvider) {
		t.Fatalf("err: %v", err)
	}
}

func TestRunUnknownProvider(t *testing.T) {
	o := New(store.NewMemory(), config.Default())
	if _, err := o.Run(context.Background(), model.OptimizeRequest{ProviderID: "nope"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err: %v", err)
	}
}

func TestRunRejectsBadDay(t *testing.T) {
	o := New(fixture(t), config.Default())
	if _, err := o.Run(context.Background(), model.OptimizeRequest{ProviderID: "p1", Day: "03/02/2026"}); err == nil {
		t.Fatal("expected day parse error")
	}
}

func TestRunNoActiveWorkers(t *testing.T) {
	m := store.NewMemory()
	m.SeedProvider(model.Provider{ID: "p1"})
	m.SeedWorker(model.Worker{ID: "w1", ProviderID: "p1", Active: false})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1"})
	if !resp.Success || resp.Message != "No active field workers found" {
		t.Fatalf("resp: %+v", resp)
	}
}

func TestRunAssignsBySkillNotDistance(t *testing.T) {
	m := fixture(t)
	// plumbing job right next to the sawyer's home; only the plumber qualifies
	m.SeedJob(model.Job{ID: "j_leak", ProviderID: "p1", ServiceType: "plumbing",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(12, 0),
		Location:         model.Coordinate{Lat: 33.50, Lng: -112.099},
		RequiredSkillIDs: []string{"sk_p"}})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})

	var plumberRoute model.WorkerRoute
	for _, wr := range resp.Workers {
		if wr.ID == "w_plumber" {
			plumberRoute = wr
		}
	}
	if plumberRoute.JobCount != 1 || plumberRoute.Jobs[0].ID != "j_leak" {
		t.Fatalf("plumber route: %+v", plumberRoute)
	}
	if len(resp.UnassignableJobs) != 0 || len(resp.NeedsReview) != 0 {
		t.Fatalf("unexpected leftovers: %+v", resp)
	}

	got, err := m.GetJob(context.Background(), "p1", "j_leak")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.AssignedWorkerIDs) != 1 || got.AssignedWorkerIDs[0] != "w_plumber" {
		t.Fatalf("persisted assignees: %v", got.AssignedWorkerIDs)
	}
	if got.Status != model.JobStatusAssigned {
		t.Fatalf("status not promoted: %s", got.Status)
	}
}

func TestRunRetimesFlexibleButNotAnchors(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j_flex", ProviderID: "p1", ServiceType: "cleaning",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(15, 0),
		Location: model.Coordinate{Lat: 33.41, Lng: -112.01}})
	m.SeedJob(model.Job{ID: "j_appt", ProviderID: "p1", ServiceType: "tree service",
		Appointment: model.AppointmentFixed, ScheduledStart: at(13, 0), ScheduledEnd: at(15, 0),
		Location:         model.Coordinate{Lat: 33.51, Lng: -112.11},
		RequiredSkillIDs: []string{"sk_c"}})
	runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})

	flex, _ := m.GetJob(context.Background(), "p1", "j_flex")
	if !flex.ScheduledStart.Before(at(15, 0)) {
		t.Fatalf("flexible job not retimed: %v", flex.ScheduledStart)
	}
	appt, _ := m.GetJob(context.Background(), "p1", "j_appt")
	if !appt.ScheduledStart.Equal(at(13, 0)) || !appt.ScheduledEnd.Equal(at(15, 0)) {
		t.Fatalf("anchor retimed: %v %v", appt.ScheduledStart, appt.ScheduledEnd)
	}
}

func TestRunCapacityCap(t *testing.T) {
	m := store.NewMemory()
	m.SeedProvider(model.Provider{ID: "p1"})
	m.SeedWorker(model.Worker{ID: "w1", ProviderID: "p1", Name: "Solo", Active: true,
		HomeLocation: model.Coordinate{Lat: 33.4, Lng: -112.0}})
	for _, id := range []string{"j1", "j2", "j3"} {
		m.SeedJob(model.Job{ID: id, ProviderID: "p1", ServiceType: "cleaning",
			Appointment: model.AppointmentAnytime, ScheduledStart: at(9, 0),
			Location: model.Coordinate{Lat: 33.41, Lng: -112.01}})
	}
	policy := config.Default()
	policy.MaxJobsPerWorker = 2
	o := New(m, policy)
	resp, err := o.Run(context.Background(), model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.UnassignableJobs) != 1 {
		t.Fatalf("unassignable: %+v", resp.UnassignableJobs)
	}
	if resp.UnassignableJobs[0].Reason != "All eligible workers at maximum capacity" {
		t.Fatalf("reason: %s", resp.UnassignableJobs[0].Reason)
	}
	if resp.Workers[0].JobCount != 2 {
		t.Fatalf("route size: %d", resp.Workers[0].JobCount)
	}
}

func TestRunMultiWorkerJobNeedsReview(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j_crew", ProviderID: "p1", Title: "Stump removal", ServiceType: "tree service",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location:            model.Coordinate{Lat: 33.46, Lng: -112.05},
		RequiredWorkerCount: 3, AssignedWorkerIDs: []string{"w_sawyer"}})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})

	if len(resp.NeedsReview) != 1 || resp.NeedsReview[0].Reason != model.ReviewMultiWorkerRequired {
		t.Fatalf("needs review: %+v", resp.NeedsReview)
	}
	if resp.NeedsReview[0].RequiredWorkerCount != 3 {
		t.Fatalf("worker count: %d", resp.NeedsReview[0].RequiredWorkerCount)
	}
	// the existing assignee keeps the job on their route, nobody new is added
	for _, wr := range resp.Workers {
		if wr.ID == "w_sawyer" && wr.JobCount != 1 {
			t.Fatalf("sawyer route: %+v", wr)
		}
		if wr.ID == "w_plumber" && wr.JobCount != 0 {
			t.Fatalf("plumber route: %+v", wr)
		}
	}
	got, _ := m.GetJob(context.Background(), "p1", "j_crew")
	if len(got.AssignedWorkerIDs) != 1 || got.AssignedWorkerIDs[0] != "w_sawyer" {
		t.Fatalf("assignees changed: %v", got.AssignedWorkerIDs)
	}
}

func TestRunNoQualifiedWorkers(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j_hazmat", ProviderID: "p1", ServiceType: "pest control",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location:         model.Coordinate{Lat: 33.46, Lng: -112.05},
		RequiredSkillIDs: []string{"sk_fumigation"}})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})

	if len(resp.NeedsReview) != 1 || resp.NeedsReview[0].Reason != model.ReviewNoQualifiedWorkers {
		t.Fatalf("needs review: %+v", resp.NeedsReview)
	}
	if len(resp.UnassignableJobs) != 1 || resp.UnassignableJobs[0].Reason != "No qualified workers available" {
		t.Fatalf("unassignable: %+v", resp.UnassignableJobs)
	}
}

func TestRunAutoAssignDisabled(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j1", ProviderID: "p1", ServiceType: "cleaning",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location: model.Coordinate{Lat: 33.46, Lng: -112.05}})
	off := false
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02", AutoAssign: &off})
	if len(resp.UnassignableJobs) != 1 || resp.UnassignableJobs[0].Reason != "Auto-assign disabled" {
		t.Fatalf("unassignable: %+v", resp.UnassignableJobs)
	}
	got, _ := m.GetJob(context.Background(), "p1", "j1")
	if len(got.AssignedWorkerIDs) != 0 {
		t.Fatalf("job assigned despite autoAssign=false: %v", got.AssignedWorkerIDs)
	}
}

func TestRunAutoAssignDisabledCoversMultiWorkerJobs(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j_crew", ProviderID: "p1", ServiceType: "tree service",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location:            model.Coordinate{Lat: 33.46, Lng: -112.05},
		RequiredWorkerCount: 2})
	m.SeedJob(model.Job{ID: "j_solo", ProviderID: "p1", ServiceType: "cleaning",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(11, 0),
		Location: model.Coordinate{Lat: 33.47, Lng: -112.06}})
	off := false
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02", AutoAssign: &off})

	if len(resp.NeedsReview) != 1 || resp.NeedsReview[0].Reason != model.ReviewMultiWorkerRequired {
		t.Fatalf("needs review: %+v", resp.NeedsReview)
	}
	if len(resp.UnassignableJobs) != 2 {
		t.Fatalf("unassignable: %+v", resp.UnassignableJobs)
	}
	seen := map[string]bool{}
	for _, u := range resp.UnassignableJobs {
		if u.Reason != "Auto-assign disabled" {
			t.Fatalf("reason: %s", u.Reason)
		}
		seen[u.ID] = true
	}
	if !seen["j_crew"] || !seen["j_solo"] {
		t.Fatalf("jobs covered: %v", seen)
	}
}

func TestRunSkillMismatchOnExistingAssignment(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j_wrong", ProviderID: "p1", ServiceType: "plumbing",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location:          model.Coordinate{Lat: 33.46, Lng: -112.05},
		RequiredSkillIDs:  []string{"sk_p"},
		AssignedWorkerIDs: []string{"w_sawyer"}})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})

	if len(resp.SkillMismatches) != 1 {
		t.Fatalf("mismatches: %+v", resp.SkillMismatches)
	}
	mm := resp.SkillMismatches[0]
	if mm.AssignedWorkerID != "w_sawyer" || len(mm.MissingSkillIDs) != 1 || mm.MissingSkillIDs[0] != "sk_p" {
		t.Fatalf("mismatch detail: %+v", mm)
	}
	if mm.MissingSkillNames[0] != "Plumbing" {
		t.Fatalf("skill name not resolved: %v", mm.MissingSkillNames)
	}
	// mismatches are diagnostic only
	got, _ := m.GetJob(context.Background(), "p1", "j_wrong")
	if got.AssignedWorkerIDs[0] != "w_sawyer" {
		t.Fatalf("assignment changed: %v", got.AssignedWorkerIDs)
	}
}

func TestRunIgnoresCancelledAndUnlocatedJobs(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j_cancelled", ProviderID: "p1", Status: model.JobStatusCancelled,
		ScheduledStart: at(10, 0), Location: model.Coordinate{Lat: 33.46, Lng: -112.05}})
	m.SeedJob(model.Job{ID: "j_nowhere", ProviderID: "p1",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0)})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})
	if resp.Summary.TotalJobs != 0 {
		t.Fatalf("jobs counted: %d", resp.Summary.TotalJobs)
	}
	if len(resp.UnassignableJobs) != 0 {
		t.Fatalf("unassignable: %+v", resp.UnassignableJobs)
	}
}

func TestRunEmitsEventsAndSavesSummary(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j1", ProviderID: "p1", ServiceType: "cleaning",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location: model.Coordinate{Lat: 33.46, Lng: -112.05}})
	o := New(m, config.Default())
	var events []string
	o.Events = func(eventType string, data map[string]any) { events = append(events, eventType) }
	resp, err := o.Run(context.Background(), model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})
	if err != nil {
		t.Fatal(err)
	}

	var sawAssigned, sawCompleted bool
	for _, e := range events {
		if e == "job.assigned" {
			sawAssigned = true
		}
		if e == "run.completed" {
			sawCompleted = true
		}
	}
	if !sawAssigned || !sawCompleted {
		t.Fatalf("events: %v", events)
	}

	recs, err := m.ListRunSummaries(context.Background(), "p1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != resp.RunID || recs[0].Day != "2026-03-02" {
		t.Fatalf("run records: %+v", recs)
	}
}

func TestRunIsSafeToRepeat(t *testing.T) {
	m := fixture(t)
	for i, lng := range []float64{-112.02, -112.03, -112.04} {
		m.SeedJob(model.Job{ID: "j" + string(rune('a'+i)), ProviderID: "p1", ServiceType: "cleaning",
			Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
			Location: model.Coordinate{Lat: 33.41, Lng: lng}})
	}
	first := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})
	second := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02"})

	if first.TotalSavedMiles < 0 || second.TotalSavedMiles < 0 {
		t.Fatalf("negative savings: %f %f", first.TotalSavedMiles, second.TotalSavedMiles)
	}
	routeIDs := func(resp model.OptimizeResponse) map[string][]string {
		out := map[string][]string{}
		for _, wr := range resp.Workers {
			for _, j := range wr.Jobs {
				out[wr.ID] = append(out[wr.ID], j.ID)
			}
		}
		return out
	}
	r1, r2 := routeIDs(first), routeIDs(second)
	for wid, jobs := range r1 {
		if len(jobs) != len(r2[wid]) {
			t.Fatalf("rerun changed route sizes: %v vs %v", r1, r2)
		}
		for i := range jobs {
			if jobs[i] != r2[wid][i] {
				t.Fatalf("rerun changed order for %s: %v vs %v", wid, jobs, r2[wid])
			}
		}
	}
	if second.Summary.TotalJobs != first.Summary.TotalJobs {
		t.Fatalf("job counts drifted: %d vs %d", first.Summary.TotalJobs, second.Summary.TotalJobs)
	}
}

func TestRunScopesToRequestedWorkers(t *testing.T) {
	m := fixture(t)
	m.SeedJob(model.Job{ID: "j1", ProviderID: "p1", ServiceType: "cleaning",
		Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0),
		Location: model.Coordinate{Lat: 33.50, Lng: -112.099}})
	resp := runDay(t, m, model.OptimizeRequest{ProviderID: "p1", Day: "2026-03-02", WorkerIDs: []string{"w_plumber"}})
	if len(resp.Workers) != 1 || resp.Workers[0].ID != "w_plumber" {
		t.Fatalf("workers: %+v", resp.Workers)
	}
	if resp.Workers[0].JobCount != 1 {
		t.Fatalf("job not assigned within the scoped set: %+v", resp.Workers[0])
	}
}
