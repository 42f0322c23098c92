package api

import (
    "context"
    "encoding/json"
    "os"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
    Subscribe(providerID string) chan SSEEvent
    Unsubscribe(providerID string, ch chan SSEEvent)
    Publish(providerID string, evt SSEEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so that dispatch
// events reach SSE/WS listeners connected to other API instances.
type RedisBroker struct {
    rdb  *redis.Client
    mu   sync.Mutex
    subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker() (*RedisBroker, error) {
    url := os.Getenv("REDIS_URL")
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    return &RedisBroker{rdb: rdb, subs: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(providerID string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(providerID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go forwardMessages(ps.Channel(), ch)
    return ch
}

// forwardMessages decodes pub/sub payloads onto the event channel. The
// event channel is closed here, after the source drains, so Unsubscribe
// never races a send against a close.
func forwardMessages(msgs <-chan *redis.Message, ch chan SSEEvent) {
    defer close(ch)
    for msg := range msgs {
        var evt SSEEvent
        if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
            select { case ch <- evt: default: }
        }
    }
}

func (b *RedisBroker) Unsubscribe(providerID string, ch chan SSEEvent) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    // closing the PubSub ends its message channel; the forwarder then
    // closes ch and exits
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(providerID string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(providerID), data).Err()
}

func (b *RedisBroker) chanName(providerID string) string { return "dispatch:" + providerID }
