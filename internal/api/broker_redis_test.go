package api

import (
    "encoding/json"
    "testing"
    "time"

    redis "github.com/redis/go-redis/v9"
)

func redisMsg(t *testing.T, evt SSEEvent) *redis.Message {
    t.Helper()
    b, err := json.Marshal(evt)
    if err != nil {
        t.Fatal(err)
    }
    return &redis.Message{Channel: "dispatch:p1", Payload: string(b)}
}

func TestForwardMessagesDecodesAndCloses(t *testing.T) {
    msgs := make(chan *redis.Message, 4)
    ch := make(chan SSEEvent, 16)
    go forwardMessages(msgs, ch)

    msgs <- redisMsg(t, SSEEvent{Type: "job.assigned", Data: map[string]any{"jobId": "j1"}})
    msgs <- &redis.Message{Channel: "dispatch:p1", Payload: "not json"}
    msgs <- redisMsg(t, SSEEvent{Type: "run.completed"})
    close(msgs)

    var got []string
    deadline := time.After(time.Second)
    for {
        select {
        case evt, ok := <-ch:
            if !ok {
                if len(got) != 2 || got[0] != "job.assigned" || got[1] != "run.completed" {
                    t.Fatalf("events: %v", got)
                }
                return
            }
            got = append(got, evt.Type)
        case <-deadline:
            t.Fatal("event channel never closed after source drained")
        }
    }
}

func TestForwardMessagesDropsWhenFullWithoutBlocking(t *testing.T) {
    msgs := make(chan *redis.Message)
    ch := make(chan SSEEvent, 2)
    done := make(chan struct{})
    go func() { forwardMessages(msgs, ch); close(done) }()

    // nobody draining ch; sends beyond the buffer must be dropped, not block
    for i := 0; i < 10; i++ {
        msgs <- redisMsg(t, SSEEvent{Type: "worker.location"})
    }
    close(msgs)

    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("forwarder blocked on a full event channel")
    }
    n := 0
    for range ch {
        n++
    }
    if n != 2 {
        t.Fatalf("buffered events: %d", n)
    }
}

func TestRedisBrokerUnsubscribeUnknownChannel(t *testing.T) {
    b := &RedisBroker{subs: map[chan SSEEvent]*redis.PubSub{}}
    ch := make(chan SSEEvent)
    // must be a no-op for a channel it never handed out
    b.Unsubscribe("p1", ch)
}
