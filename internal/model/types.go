package model

import "time"

// Coordinate is a lat/lng pair in degrees. The zero value (0,0) means
// "location unknown" by convention and is filtered out before optimization.
type Coordinate struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinate carries no usable location.
func (c Coordinate) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }

// Appointment kinds. Fixed and window jobs anchor a route; anytime jobs
// may be freely reordered and retimed.
const (
    AppointmentFixed   = "fixed"
    AppointmentWindow  = "window"
    AppointmentAnytime = "anytime"
)

// Job statuses seen by the optimizer.
const (
    JobStatusScheduled  = "scheduled"
    JobStatusAssigned   = "assigned"
    JobStatusOnTheWay   = "on_the_way"
    JobStatusInProgress = "in_progress"
    JobStatusCompleted  = "completed"
    JobStatusCancelled  = "cancelled"
)

// Needs-review reason codes.
const (
    ReviewMultiWorkerRequired = "MULTI_WORKER_REQUIRED"
    ReviewNoQualifiedWorkers  = "NO_QUALIFIED_WORKERS"
)

// Job is one unit of field work for a calendar day.
type Job struct {
    ID                  string     `json:"id"`
    ProviderID          string     `json:"providerId"`
    Title               string     `json:"title,omitempty"`
    ServiceType         string     `json:"serviceType,omitempty"`
    CustomerName        string     `json:"customerName,omitempty"`
    Status              string     `json:"status"`
    Appointment         string     `json:"appointment,omitempty"` // fixed, window, anytime
    ScheduledStart      time.Time  `json:"scheduledStart"`
    ScheduledEnd        time.Time  `json:"scheduledEnd,omitempty"`
    DurationHours       float64    `json:"durationHours,omitempty"`
    Location            Coordinate `json:"location"`
    AssignedWorkerIDs   []string   `json:"assignedWorkerIds,omitempty"`
    RequiredSkillIDs    []string   `json:"requiredSkillIds,omitempty"`
    RequiredWorkerCount int        `json:"requiredWorkerCount,omitempty"`
    AllowUnqualified    bool       `json:"allowUnqualified,omitempty"`
    EstimatedValue      float64    `json:"estimatedValue,omitempty"`
    RouteOrder          int        `json:"routeOrder,omitempty"`
}

// IsAnchor reports whether the job pins a point in the day's route.
func (j Job) IsAnchor() bool {
    return j.Appointment == AppointmentFixed || j.Appointment == AppointmentWindow
}

// Worker is a field operative read fresh for each optimization run.
type Worker struct {
    ID           string     `json:"id"`
    ProviderID   string     `json:"providerId"`
    Name         string     `json:"name"`
    Color        string     `json:"color,omitempty"`
    HomeLocation Coordinate `json:"homeLocation"`
    SkillIDs     []string   `json:"skillIds,omitempty"`
    SkillNames   []string   `json:"skillNames,omitempty"`
    Active       bool       `json:"active"`
}

// Provider owns the office location used as the fallback start point.
type Provider struct {
    ID             string     `json:"id"`
    Name           string     `json:"name,omitempty"`
    OfficeLocation Coordinate `json:"officeLocation"`
}

// Skill is an identifier/name pair.
type Skill struct {
    ID   string `json:"id"`
    Name string `json:"name"`
}

// OptimizeRequest is the body of POST /v1/dispatch/optimize.
type OptimizeRequest struct {
    ProviderID string   `json:"providerId"`
    Day        string   `json:"day"` // YYYY-MM-DD
    WorkerIDs  []string `json:"workerIds,omitempty"`
    AutoAssign *bool    `json:"autoAssign,omitempty"` // default true
}

// JobETA is one stop of an optimized worker route as returned to callers.
type JobETA struct {
    ID            string `json:"id"`
    Service       string `json:"service,omitempty"`
    Customer      string `json:"customer,omitempty"`
    ETA           string `json:"eta"`
    ETAEnd        string `json:"etaEnd"`
    TravelMinutes int    `json:"travelMinutes"`
}

// WorkerRoute is the per-worker slice of an optimization result.
type WorkerRoute struct {
    ID           string   `json:"id"`
    Name         string   `json:"name"`
    Color        string   `json:"color,omitempty"`
    JobCount     int      `json:"jobCount"`
    Jobs         []JobETA `json:"jobs"`
    BeforeMiles  float64  `json:"beforeMiles"`
    AfterMiles   float64  `json:"afterMiles"`
    SavedMiles   float64  `json:"savedMiles"`
    SavedMinutes int      `json:"savedMinutes"`
    TotalMiles   float64  `json:"totalMiles"`
    TotalMinutes int      `json:"totalMinutes"`
}

// UnassignableJob records a job the run could not place.
type UnassignableJob struct {
    ID       string `json:"id"`
    Service  string `json:"service,omitempty"`
    Customer string `json:"customer,omitempty"`
    Reason   string `json:"reason"`
}

// SkillMismatch flags an already-assigned job whose worker lacks a
// required skill. Mismatches are surfaced, never auto-corrected.
type SkillMismatch struct {
    JobID              string   `json:"jobId"`
    JobTitle           string   `json:"jobTitle,omitempty"`
    ServiceType        string   `json:"serviceType,omitempty"`
    AssignedWorkerID   string   `json:"assignedWorkerId"`
    AssignedWorkerName string   `json:"assignedWorkerName,omitempty"`
    WorkerSkills       []string `json:"workerSkills,omitempty"`
    WorkerSkillIDs     []string `json:"workerSkillIds,omitempty"`
    RequiredSkills     []string `json:"requiredSkills,omitempty"`
    RequiredSkillIDs   []string `json:"requiredSkillIds,omitempty"`
    MissingSkillIDs    []string `json:"missingSkillIds,omitempty"`
    MissingSkillNames  []string `json:"missingSkillNames,omitempty"`
}

// NeedsReview is a job the run deliberately will not auto-assign.
type NeedsReview struct {
    JobID               string   `json:"jobId"`
    JobTitle            string   `json:"jobTitle,omitempty"`
    ServiceType         string   `json:"serviceType,omitempty"`
    Reason              string   `json:"reason"`
    Message             string   `json:"message,omitempty"`
    RequiredWorkerCount int      `json:"requiredWorkerCount,omitempty"`
    RequiredSkillIDs    []string `json:"requiredSkillIds,omitempty"`
    RequiredSkillNames  []string `json:"requiredSkillNames,omitempty"`
}

// RunSummary aggregates a whole run.
type RunSummary struct {
    TotalWorkers       int     `json:"totalWorkers"`
    TotalJobs          int     `json:"totalJobs"`
    UnassignedCount    int     `json:"unassignedCount"`
    SkillMismatchCount int     `json:"skillMismatchCount"`
    NeedsReviewCount   int     `json:"needsReviewCount"`
    AvgJobsPerWorker   float64 `json:"avgJobsPerWorker"`
}

// OptimizeResponse is the full result of one optimization run.
type OptimizeResponse struct {
    Success           bool              `json:"success"`
    Message           string            `json:"message,omitempty"`
    RunID             string            `json:"runId,omitempty"`
    Workers           []WorkerRoute     `json:"workers"`
    UnassignableJobs  []UnassignableJob `json:"unassignableJobs"`
    SkillMismatches   []SkillMismatch   `json:"skillMismatches"`
    NeedsReview       []NeedsReview     `json:"needsReview"`
    TotalSavedMiles   float64           `json:"totalSavedMiles"`
    TotalSavedMinutes int               `json:"totalSavedMinutes"`
    Summary           RunSummary        `json:"summary"`
}

// JobRouteUpdate is the generic per-job write-back applied after a run.
// Nil fields are left untouched.
type JobRouteUpdate struct {
    RouteOrder        *int       `json:"routeOrder,omitempty"`
    AssignedWorkerIDs []string   `json:"assignedWorkerIds,omitempty"`
    ScheduledStart    *time.Time `json:"scheduledStart,omitempty"`
    ScheduledEnd      *time.Time `json:"scheduledEnd,omitempty"`
}

// RunRecord is a persisted run summary for the admin surface.
type RunRecord struct {
    ID           string     `json:"id"`
    ProviderID   string     `json:"providerId"`
    Day          string     `json:"day"`
    CreatedAt    time.Time  `json:"createdAt"`
    SavedMiles   float64    `json:"savedMiles"`
    SavedMinutes int        `json:"savedMinutes"`
    Summary      RunSummary `json:"summary"`
}

// WorkerLocationPing is a live position update from a worker device.
type WorkerLocationPing struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
    TS  string  `json:"ts,omitempty"`
}

// SubscriptionRequest registers a webhook endpoint.
type SubscriptionRequest struct {
    ProviderID string   `json:"providerId"`
    URL        string   `json:"url"`
    Events     []string `json:"events"`
    Secret     string   `json:"secret"`
}

// Subscription is a stored webhook subscription.
type Subscription struct {
    ID         string   `json:"id"`
    ProviderID string   `json:"providerId"`
    URL        string   `json:"url"`
    Events     []string `json:"events"`
    Secret     string   `json:"secret,omitempty"`
}
