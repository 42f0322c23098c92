package api

import (
    "sync"
)

type SSEEvent struct {
    Type string
    Data map[string]any
}

// Broker fans dispatch events out to SSE and WebSocket listeners,
// keyed by provider id.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan SSEEvent]struct{} // providerId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(providerID string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[providerID] == nil { b.subs[providerID] = map[chan SSEEvent]struct{}{} }
    b.subs[providerID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(providerID string, ch chan SSEEvent) {
    b.mu.Lock()
    if m := b.subs[providerID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, providerID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(providerID string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[providerID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
