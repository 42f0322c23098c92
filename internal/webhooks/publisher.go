package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldops/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for every subscription of the provider that
// listens for this event type. Delivery happens asynchronously in the
// worker; Emit never blocks on the network.
func (p *Publisher) Emit(ctx context.Context, providerID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, providerID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":         fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":       eventType,
		"providerId": providerID,
		"ts":         time.Now().UTC().Format(time.RFC3339),
		"data":       data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, providerID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
