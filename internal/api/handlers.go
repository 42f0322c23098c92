package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "fieldops/internal/dispatch"
    "fieldops/internal/metrics"
    "fieldops/internal/model"
    "fieldops/internal/store"
)

// DispatchOptimizeHandler handles POST /v1/dispatch/optimize
func (s *Server) DispatchOptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanDispatch() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    var req model.OptimizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.ProviderID == "" { req.ProviderID = r.Header.Get("X-Provider-Id") }
    if req.ProviderID == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", dispatch.ErrMissingProvider.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    if !s.limiter.allow(req.ProviderID) {
        writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimization rate limit exceeded for provider", r.URL.Path)
        return
    }

    s.Broker.Publish(req.ProviderID, SSEEvent{Type: "run.started", Data: map[string]any{"providerId": req.ProviderID, "day": req.Day, "ts": time.Now().UTC().Format(time.RFC3339)}})

    opt := dispatch.New(s.Store, s.Policy)
    opt.Events = func(eventType string, data map[string]any) {
        s.Broker.Publish(req.ProviderID, SSEEvent{Type: eventType, Data: data})
        s.Pub.Emit(r.Context(), req.ProviderID, eventType, data)
        if eventType == "job.assigned" { metrics.JobsAssigned.Inc() }
    }
    start := time.Now()
    resp, err := opt.Run(r.Context(), req)
    metrics.DispatchRunDuration.Observe(time.Since(start).Seconds())
    if err != nil {
        metrics.DispatchRuns.WithLabelValues("error").Inc()
        switch {
        case errors.Is(err, dispatch.ErrMissingProvider):
            writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        case errors.Is(err, store.ErrNotFound):
            writeProblem(w, http.StatusNotFound, "Provider not found", err.Error(), r.URL.Path)
        default:
            writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
        }
        return
    }
    metrics.DispatchRuns.WithLabelValues("ok").Inc()
    metrics.SavedMiles.Add(resp.TotalSavedMiles)
    for _, u := range resp.UnassignableJobs {
        metrics.JobsUnassignable.WithLabelValues(u.Reason).Inc()
    }
    writeJSON(w, http.StatusOK, resp)
}

// DispatchRunsHandler handles GET /v1/dispatch/runs
func (s *Server) DispatchRunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/dispatch/runs" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.CanDispatch() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    limit := 50
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, err := s.Store.ListRunSummaries(r.Context(), p.Provider, limit)
    if err != nil { writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// JobsHandler handles GET /v1/jobs?day=YYYY-MM-DD
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/jobs" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    _, provider := s.withProvider(r)
    day := time.Now().UTC()
    if v := r.URL.Query().Get("day"); v != "" {
        d, err := time.Parse("2006-01-02", v)
        if err != nil { writeProblem(w, 400, "Invalid day", "want YYYY-MM-DD", r.URL.Path); return }
        day = d
    }
    items, err := s.Store.ListJobsForDay(r.Context(), provider, day)
    if err != nil { writeProblem(w, 500, "List jobs failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// WorkersHandler handles GET /v1/workers
func (s *Server) WorkersHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/workers" || r.Method != http.MethodGet { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    _, provider := s.withProvider(r)
    items, err := s.Store.ListWorkers(r.Context(), provider)
    if err != nil { writeProblem(w, 500, "List workers failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// WorkerByIDHandler handles POST /v1/workers/{id}/location
func (s *Server) WorkerByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/workers/")
    if rest == r.URL.Path || rest == "" { writeProblem(w, 404, "Not Found", "missing id", r.URL.Path); return }
    parts := strings.Split(rest, "/")
    workerID := parts[0]
    if len(parts) > 1 && parts[1] == "location" {
        if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
        pr := s.getPrincipal(r)
        // workers may only report their own position
        if pr.Role == "worker" && pr.WorkerID != workerID {
            writeProblem(w, 403, "Forbidden", "cannot report another worker's position", r.URL.Path)
            return
        }
        var ping model.WorkerLocationPing
        if err := json.NewDecoder(r.Body).Decode(&ping); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        _, provider := s.withProvider(r)
        ts := ping.TS
        if ts == "" { ts = time.Now().UTC().Format(time.RFC3339) }
        s.Locations.Upsert(provider, workerID, ping.Lat, ping.Lng, ts)
        s.Broker.Publish(provider, SSEEvent{Type: "worker.location", Data: map[string]any{"workerId": workerID, "lat": ping.Lat, "lng": ping.Lng, "ts": ts}})
        writeJSON(w, http.StatusAccepted, map[string]any{"workerId": workerID, "ts": ts})
        return
    }
    writeProblem(w, 404, "Not Found", "", r.URL.Path)
}

// WorkerLocationsHandler handles GET /v1/workers/locations
func (s *Server) WorkerLocationsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, provider := s.withProvider(r)
    writeJSON(w, 200, map[string]any{"items": s.Locations.ListByProvider(provider)})
}

// DispatchEventsStreamHandler streams dispatch events for a provider over SSE.
func (s *Server) DispatchEventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    if !(pr.CanDispatch() || pr.Role == "worker") {
        writeProblem(w, 403, "Forbidden", "not authorized for dispatch events", r.URL.Path)
        return
    }
    _, provider := s.withProvider(r)
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(provider)
    defer s.Broker.Unsubscribe(provider, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"providerId\":\"%s\",\"ts\":\"%s\"}\n\n", provider, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"providerId\":\"%s\",\"ts\":\"%s\"}\n\n", provider, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.ProviderID == "" { req.ProviderID = p.Provider }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p := s.getPrincipal(r)
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Provider, cursor, limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Provider, id); err != nil { writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path); return }
    w.WriteHeader(204)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    status := r.URL.Query().Get("status")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, err := s.Store.ListWebhookDeliveries(r.Context(), p.Provider, status, limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Provider, id); err != nil { writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}
