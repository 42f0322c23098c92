package store

import (
    "context"
    "errors"
    "time"

    "fieldops/internal/model"
)

// Store is the persistence interface used by the API server and the
// dispatch optimizer.
type Store interface {
    // Providers
    GetProvider(ctx context.Context, providerID string) (model.Provider, error)

    // Workers
    ListWorkers(ctx context.Context, providerID string) ([]model.Worker, error)
    ListActiveWorkers(ctx context.Context, providerID string, workerIDs []string) ([]model.Worker, error)

    // Jobs
    ListJobsForDay(ctx context.Context, providerID string, day time.Time) ([]model.Job, error)
    GetJob(ctx context.Context, providerID, jobID string) (model.Job, error)
    UpdateJobRoute(ctx context.Context, providerID, jobID string, upd model.JobRouteUpdate) error

    // Skills
    ListSkills(ctx context.Context, providerID string) ([]model.Skill, error)

    // Run history
    SaveRunSummary(ctx context.Context, rec model.RunRecord) error
    ListRunSummaries(ctx context.Context, providerID string, limit int) ([]model.RunRecord, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, providerID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, providerID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, providerID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, providerID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, providerID, status string, limit int) ([]map[string]any, error)
    RetryWebhookDelivery(ctx context.Context, providerID, id string) error
}

var ErrNotFound = errors.New("not found")
