package api

import (
    "context"
    "net/http"
    "os"
    "strings"
    "time"

    "fieldops/internal/auth"
    "fieldops/internal/config"
    "fieldops/internal/model"
    "fieldops/internal/store"
    "fieldops/internal/webhooks"
)

type Server struct {
    Store  store.Store
    Pub    *webhooks.Publisher
    Auth   *auth.Verifier
    Broker EventBroker
    Policy config.DispatchPolicy

    Locations *WorkerLocationCache
    limiter   *providerLimiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        mem := store.NewMemory()
        if os.Getenv("DEMO_SEED") != "false" { seedDemo(mem) }
        s = mem
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }
    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    policy, err := config.FromEnv()
    if err != nil {
        return nil, err
    }
    return &Server{
        Store: s,
        Pub: webhooks.NewPublisher(s),
        Auth: auth.NewVerifierFromEnv(),
        Broker: broker,
        Policy: policy,
        Locations: NewWorkerLocationCache(),
        limiter: newProviderLimiter(),
    }, nil
}

func (s *Server) withProvider(r *http.Request) (context.Context, string) {
    // For now, get provider from header; in production decode from JWT.
    provider := r.Header.Get("X-Provider-Id")
    if provider == "" { provider = "p_demo" }
    ctx := context.WithValue(r.Context(), ctxKeyProvider{}, provider)
    return ctx, provider
}

type ctxKeyProvider struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}

// seedDemo loads a small provider dataset into the memory store so the
// API is usable out of the box without a database.
func seedDemo(m *store.Memory) {
    day := time.Now().UTC()
    at := func(h, min int) time.Time {
        return time.Date(day.Year(), day.Month(), day.Day(), h, min, 0, 0, time.UTC)
    }
    m.SeedProvider(model.Provider{ID: "p_demo", Name: "Demo Field Services", OfficeLocation: model.Coordinate{Lat: 33.4484, Lng: -112.0740}})
    plumb := m.SeedSkill("p_demo", model.Skill{ID: "sk_plumbing", Name: "Plumbing"})
    chain := m.SeedSkill("p_demo", model.Skill{ID: "sk_chainsaw", Name: "Chainsaw Operation"})
    m.SeedWorker(model.Worker{ID: "w_ana", ProviderID: "p_demo", Name: "Ana", Color: "#1f77b4", Active: true,
        HomeLocation: model.Coordinate{Lat: 33.46, Lng: -112.05}, SkillIDs: []string{plumb}, SkillNames: []string{"Plumbing"}})
    m.SeedWorker(model.Worker{ID: "w_ben", ProviderID: "p_demo", Name: "Ben", Color: "#ff7f0e", Active: true,
        HomeLocation: model.Coordinate{Lat: 33.43, Lng: -112.10}, SkillIDs: []string{chain}, SkillNames: []string{"Chainsaw Operation"}})
    m.SeedJob(model.Job{ID: "j_leak", ProviderID: "p_demo", Title: "Kitchen leak", ServiceType: "plumbing", CustomerName: "Ortiz",
        Appointment: model.AppointmentAnytime, ScheduledStart: at(9, 0), DurationHours: 1,
        Location: model.Coordinate{Lat: 33.45, Lng: -112.06}, RequiredSkillIDs: []string{plumb}})
    m.SeedJob(model.Job{ID: "j_tree", ProviderID: "p_demo", Title: "Oak removal", ServiceType: "tree service", CustomerName: "Webb",
        Appointment: model.AppointmentFixed, ScheduledStart: at(13, 0), ScheduledEnd: at(15, 0), DurationHours: 2,
        Location: model.Coordinate{Lat: 33.42, Lng: -112.11}, RequiredSkillIDs: []string{chain}})
    m.SeedJob(model.Job{ID: "j_clean", ProviderID: "p_demo", Title: "Move-out clean", ServiceType: "cleaning", CustomerName: "Ito",
        Appointment: model.AppointmentAnytime, ScheduledStart: at(10, 0), DurationHours: 2,
        Location: model.Coordinate{Lat: 33.47, Lng: -112.03}})
}
