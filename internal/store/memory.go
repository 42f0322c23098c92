package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "fieldops/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    providers map[string]model.Provider       // id -> provider
    workers   map[string]model.Worker         // id -> worker
    workByPrv map[string][]string             // provider -> worker ids
    jobs      map[string]model.Job            // id -> job
    jobsByPrv map[string][]string             // provider -> job ids
    skills    map[string][]model.Skill        // provider -> skills
    runs      map[string][]model.RunRecord    // provider -> run records, newest first
    subs      map[string][]model.Subscription // provider -> subscriptions
    // Webhooks queue state
    deliveries      map[string]*memDelivery // id -> delivery state
    deliveriesByPrv map[string][]string     // provider -> delivery ids
}

func NewMemory() *Memory {
    return &Memory{
        providers: map[string]model.Provider{},
        workers: map[string]model.Worker{},
        workByPrv: map[string][]string{},
        jobs: map[string]model.Job{},
        jobsByPrv: map[string][]string{},
        skills: map[string][]model.Skill{},
        runs: map[string][]model.RunRecord{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByPrv: map[string][]string{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

// Seed helpers used by the demo server and tests.

func (m *Memory) SeedProvider(p model.Provider) {
    m.mu.Lock(); defer m.mu.Unlock()
    if p.ID == "" { p.ID = uuid.New().String() }
    m.providers[p.ID] = p
}

func (m *Memory) SeedWorker(w model.Worker) string {
    m.mu.Lock(); defer m.mu.Unlock()
    if w.ID == "" { w.ID = uuid.New().String() }
    if _, ok := m.workers[w.ID]; !ok {
        m.workByPrv[w.ProviderID] = append(m.workByPrv[w.ProviderID], w.ID)
    }
    m.workers[w.ID] = w
    return w.ID
}

func (m *Memory) SeedJob(j model.Job) string {
    m.mu.Lock(); defer m.mu.Unlock()
    if j.ID == "" { j.ID = uuid.New().String() }
    if j.Status == "" { j.Status = model.JobStatusScheduled }
    if _, ok := m.jobs[j.ID]; !ok {
        m.jobsByPrv[j.ProviderID] = append(m.jobsByPrv[j.ProviderID], j.ID)
    }
    m.jobs[j.ID] = j
    return j.ID
}

func (m *Memory) SeedSkill(providerID string, s model.Skill) string {
    m.mu.Lock(); defer m.mu.Unlock()
    if s.ID == "" { s.ID = uuid.New().String() }
    m.skills[providerID] = append(m.skills[providerID], s)
    return s.ID
}

func (m *Memory) GetProvider(ctx context.Context, providerID string) (model.Provider, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    p, ok := m.providers[providerID]
    if !ok { return model.Provider{}, ErrNotFound }
    return p, nil
}

func (m *Memory) ListWorkers(ctx context.Context, providerID string) ([]model.Worker, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Worker{}
    for _, id := range m.workByPrv[providerID] {
        out = append(out, m.workers[id])
    }
    return out, nil
}

func (m *Memory) ListActiveWorkers(ctx context.Context, providerID string, workerIDs []string) ([]model.Worker, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    want := map[string]bool{}
    for _, id := range workerIDs { want[id] = true }
    out := []model.Worker{}
    for _, id := range m.workByPrv[providerID] {
        w := m.workers[id]
        if !w.Active { continue }
        if len(want) > 0 && !want[w.ID] { continue }
        out = append(out, w)
    }
    return out, nil
}

func (m *Memory) ListJobsForDay(ctx context.Context, providerID string, day time.Time) ([]model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    y, mo, d := day.Date()
    out := []model.Job{}
    for _, id := range m.jobsByPrv[providerID] {
        j := m.jobs[id]
        jy, jmo, jd := j.ScheduledStart.Date()
        if jy == y && jmo == mo && jd == d { out = append(out, j) }
    }
    return out, nil
}

func (m *Memory) GetJob(ctx context.Context, providerID, jobID string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[jobID]
    if !ok || j.ProviderID != providerID { return model.Job{}, ErrNotFound }
    return j, nil
}

func (m *Memory) UpdateJobRoute(ctx context.Context, providerID, jobID string, upd model.JobRouteUpdate) error {
    m.mu.Lock(); defer m.mu.Unlock()
    j, ok := m.jobs[jobID]
    if !ok || j.ProviderID != providerID { return ErrNotFound }
    if upd.RouteOrder != nil { j.RouteOrder = *upd.RouteOrder }
    if upd.AssignedWorkerIDs != nil {
        j.AssignedWorkerIDs = upd.AssignedWorkerIDs
        if j.Status == model.JobStatusScheduled { j.Status = model.JobStatusAssigned }
    }
    if upd.ScheduledStart != nil { j.ScheduledStart = *upd.ScheduledStart }
    if upd.ScheduledEnd != nil { j.ScheduledEnd = *upd.ScheduledEnd }
    m.jobs[jobID] = j
    return nil
}

func (m *Memory) ListSkills(ctx context.Context, providerID string) ([]model.Skill, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]model.Skill(nil), m.skills[providerID]...), nil
}

func (m *Memory) SaveRunSummary(ctx context.Context, rec model.RunRecord) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.runs[rec.ProviderID] = append(m.runs[rec.ProviderID], rec)
    sort.SliceStable(m.runs[rec.ProviderID], func(i, k int) bool {
        return m.runs[rec.ProviderID][i].CreatedAt.After(m.runs[rec.ProviderID][k].CreatedAt)
    })
    return nil
}

func (m *Memory) ListRunSummaries(ctx context.Context, providerID string, limit int) ([]model.RunRecord, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    recs := m.runs[providerID]
    if limit <= 0 || limit > len(recs) { limit = len(recs) }
    return append([]model.RunRecord(nil), recs[:limit]...), nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), ProviderID: req.ProviderID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.ProviderID] = append(m.subs[req.ProviderID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, providerID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[providerID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, providerID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[providerID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, providerID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[providerID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    m.subs[providerID] = out
    return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, providerID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, ProviderID: providerID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByPrv[providerID] = append(m.deliveriesByPrv[providerID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, lst := range m.deliveriesByPrv {
        for _, id := range lst {
            d := m.deliveries[id]
            if d == nil { continue }
            if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
                out = append(out, d.WebhookDelivery)
                if limit > 0 && len(out) >= limit { return out, nil }
            }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, providerID, status string, limit int) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.deliveriesByPrv[providerID] {
        d := m.deliveries[id]
        if d == nil { continue }
        if status != "" && d.Status != status { continue }
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
        if d.LastError != "" { item["lastError"] = d.LastError }
        out = append(out, item)
        if limit > 0 && len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, providerID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil && d.ProviderID == providerID {
        d.Status = "pending"
        d.NextAttemptAt = time.Now()
    }
    return nil
}
