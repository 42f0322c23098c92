package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("p1")
    b.Publish("p1", SSEEvent{Type: "run.started", Data: map[string]any{"day": "2026-03-02"}})
    select {
    case evt := <-ch:
        if evt.Type != "run.started" {
            t.Fatalf("type: %s", evt.Type)
        }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("no event received")
    }
    b.Unsubscribe("p1", ch)
}

func TestBrokerIsolatesProviders(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("p1")
    defer b.Unsubscribe("p1", ch)
    b.Publish("p2", SSEEvent{Type: "job.assigned"})
    select {
    case evt := <-ch:
        t.Fatalf("leaked event: %+v", evt)
    case <-time.After(50 * time.Millisecond):
    }
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("p1")
    b.Unsubscribe("p1", ch)
    select {
    case _, ok := <-ch:
        if ok {
            t.Fatal("expected closed channel")
        }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("channel not closed")
    }
    // publishing after the last unsubscribe must not panic
    b.Publish("p1", SSEEvent{Type: "run.completed"})
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("p1")
    defer b.Unsubscribe("p1", ch)
    // buffer is 8; pushing more must not block the publisher
    for i := 0; i < 20; i++ {
        b.Publish("p1", SSEEvent{Type: "worker.location"})
    }
    n := 0
    for {
        select {
        case <-ch:
            n++
        default:
            if n == 0 || n > 8 {
                t.Fatalf("buffered events: %d", n)
            }
            return
        }
    }
}
