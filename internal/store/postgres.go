package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "fieldops/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// Ping reports database connectivity; used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Statements
// are idempotent (CREATE TABLE IF NOT EXISTS), so reapplying is safe.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        b, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil { return err }
    }
    return nil
}

func (p *Postgres) GetProvider(ctx context.Context, providerID string) (model.Provider, error) {
    var pr model.Provider
    row := p.db.QueryRowContext(ctx, `SELECT id::text, COALESCE(name,''), COALESCE(office_lat,0), COALESCE(office_lng,0) FROM providers WHERE id=$1`, providerID)
    if err := row.Scan(&pr.ID, &pr.Name, &pr.OfficeLocation.Lat, &pr.OfficeLocation.Lng); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return pr, ErrNotFound }
        return pr, err
    }
    return pr, nil
}

func (p *Postgres) ListWorkers(ctx context.Context, providerID string) ([]model.Worker, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, COALESCE(color,''), COALESCE(home_lat,0), COALESCE(home_lng,0), skill_ids, skill_names, active FROM workers WHERE provider_id=$1 ORDER BY name`, providerID)
    if err != nil { return nil, err }
    defer rows.Close()
    return scanWorkers(rows, providerID, nil)
}

func (p *Postgres) ListActiveWorkers(ctx context.Context, providerID string, workerIDs []string) ([]model.Worker, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, COALESCE(color,''), COALESCE(home_lat,0), COALESCE(home_lng,0), skill_ids, skill_names, active FROM workers WHERE provider_id=$1 AND active ORDER BY name`, providerID)
    if err != nil { return nil, err }
    defer rows.Close()
    want := map[string]bool{}
    for _, id := range workerIDs { want[id] = true }
    return scanWorkers(rows, providerID, want)
}

func scanWorkers(rows *sql.Rows, providerID string, want map[string]bool) ([]model.Worker, error) {
    out := []model.Worker{}
    for rows.Next() {
        var w model.Worker
        var skillIDs, skillNames []byte
        if err := rows.Scan(&w.ID, &w.Name, &w.Color, &w.HomeLocation.Lat, &w.HomeLocation.Lng, &skillIDs, &skillNames, &w.Active); err != nil { return nil, err }
        w.ProviderID = providerID
        _ = json.Unmarshal(skillIDs, &w.SkillIDs)
        _ = json.Unmarshal(skillNames, &w.SkillNames)
        if len(want) > 0 && !want[w.ID] { continue }
        out = append(out, w)
    }
    return out, rows.Err()
}

func (p *Postgres) ListJobsForDay(ctx context.Context, providerID string, day time.Time) ([]model.Job, error) {
    from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
    to := from.AddDate(0, 0, 1)
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(title,''), COALESCE(service_type,''), COALESCE(customer_name,''), status, COALESCE(appointment,''), scheduled_start, scheduled_end, COALESCE(duration_hours,0), COALESCE(lat,0), COALESCE(lng,0), assigned_worker_ids, required_skill_ids, COALESCE(required_worker_count,0), COALESCE(allow_unqualified,false), COALESCE(estimated_value,0), COALESCE(route_order,0)
        FROM jobs WHERE provider_id=$1 AND scheduled_start >= $2 AND scheduled_start < $3 ORDER BY scheduled_start, id`, providerID, from, to)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Job{}
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, err }
        j.ProviderID = providerID
        out = append(out, j)
    }
    return out, rows.Err()
}

func (p *Postgres) GetJob(ctx context.Context, providerID, jobID string) (model.Job, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, COALESCE(title,''), COALESCE(service_type,''), COALESCE(customer_name,''), status, COALESCE(appointment,''), scheduled_start, scheduled_end, COALESCE(duration_hours,0), COALESCE(lat,0), COALESCE(lng,0), assigned_worker_ids, required_skill_ids, COALESCE(required_worker_count,0), COALESCE(allow_unqualified,false), COALESCE(estimated_value,0), COALESCE(route_order,0)
        FROM jobs WHERE provider_id=$1 AND id=$2`, providerID, jobID)
    j, err := scanJob(row)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Job{}, ErrNotFound }
        return model.Job{}, err
    }
    j.ProviderID = providerID
    return j, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(row rowScanner) (model.Job, error) {
    var j model.Job
    var end sql.NullTime
    var assigned, required []byte
    err := row.Scan(&j.ID, &j.Title, &j.ServiceType, &j.CustomerName, &j.Status, &j.Appointment, &j.ScheduledStart, &end, &j.DurationHours, &j.Location.Lat, &j.Location.Lng, &assigned, &required, &j.RequiredWorkerCount, &j.AllowUnqualified, &j.EstimatedValue, &j.RouteOrder)
    if err != nil { return j, err }
    if end.Valid { j.ScheduledEnd = end.Time }
    _ = json.Unmarshal(assigned, &j.AssignedWorkerIDs)
    _ = json.Unmarshal(required, &j.RequiredSkillIDs)
    return j, nil
}

func (p *Postgres) UpdateJobRoute(ctx context.Context, providerID, jobID string, upd model.JobRouteUpdate) error {
    sets := []string{}
    args := []any{providerID, jobID}
    add := func(expr string, v any) {
        args = append(args, v)
        sets = append(sets, strings.Replace(expr, "?", fmt.Sprintf("$%d", len(args)), 1))
    }
    if upd.RouteOrder != nil { add("route_order=?", *upd.RouteOrder) }
    if upd.AssignedWorkerIDs != nil {
        ids, _ := json.Marshal(upd.AssignedWorkerIDs)
        add("assigned_worker_ids=?", ids)
        sets = append(sets, `status=CASE WHEN status='scheduled' THEN 'assigned' ELSE status END`)
    }
    if upd.ScheduledStart != nil { add("scheduled_start=?", *upd.ScheduledStart) }
    if upd.ScheduledEnd != nil { add("scheduled_end=?", *upd.ScheduledEnd) }
    if len(sets) == 0 { return nil }
    q := `UPDATE jobs SET ` + strings.Join(sets, ", ") + ` WHERE provider_id=$1 AND id=$2`
    res, err := p.db.ExecContext(ctx, q, args...)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) ListSkills(ctx context.Context, providerID string) ([]model.Skill, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name FROM skills WHERE provider_id=$1 ORDER BY name`, providerID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Skill{}
    for rows.Next() {
        var s model.Skill
        if err := rows.Scan(&s.ID, &s.Name); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) SaveRunSummary(ctx context.Context, rec model.RunRecord) error {
    summary, _ := json.Marshal(rec.Summary)
    _, err := p.db.ExecContext(ctx, `INSERT INTO dispatch_runs (id, provider_id, day, created_at, saved_miles, saved_minutes, summary) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
        rec.ID, rec.ProviderID, rec.Day, rec.CreatedAt, rec.SavedMiles, rec.SavedMinutes, summary)
    return err
}

func (p *Postgres) ListRunSummaries(ctx context.Context, providerID string, limit int) ([]model.RunRecord, error) {
    if limit <= 0 || limit > 500 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, day, created_at, saved_miles, saved_minutes, summary FROM dispatch_runs WHERE provider_id=$1 ORDER BY created_at DESC LIMIT $2`, providerID, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.RunRecord{}
    for rows.Next() {
        var r model.RunRecord
        var summary []byte
        if err := rows.Scan(&r.ID, &r.Day, &r.CreatedAt, &r.SavedMiles, &r.SavedMinutes, &summary); err != nil { return nil, err }
        r.ProviderID = providerID
        _ = json.Unmarshal(summary, &r.Summary)
        out = append(out, r)
    }
    return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, provider_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.ProviderID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, ProviderID: req.ProviderID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, providerID, eventType string) ([]model.Subscription, error) {
    ev, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE provider_id=$1 AND events @> $2::jsonb`, providerID, ev)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.ProviderID = providerID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, providerID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE provider_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, providerID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE provider_id=$1 ORDER BY id LIMIT $2`, providerID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.ProviderID = providerID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, providerID, id string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE provider_id=$1 AND id=$2`, providerID, id)
    return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, providerID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, provider_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`, id, providerID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, provider_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.ProviderID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`, id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, providerID, status string, limit int) ([]map[string]any, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE provider_id=$1`
    var rows *sql.Rows
    var err error
    if status != "" {
        q += ` AND status=$2 ORDER BY id LIMIT $3`
        rows, err = p.db.QueryContext(ctx, q, providerID, status, limit)
    } else {
        q += ` ORDER BY id LIMIT $2`
        rows, err = p.db.QueryContext(ctx, q, providerID, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, typ, st, lastErr, url string
        var attempts int
        var nextAt sql.NullTime
        if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, err }
        m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { m["nextAttemptAt"] = nextAt.Time }
        if lastErr != "" { m["lastError"] = lastErr }
        out = append(out, m)
    }
    return out, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, providerID, id string) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE provider_id=$1 AND id=$2`, providerID, id)
    return err
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
