package sse_test

import (
	"testing"

	"github.com/YannKr/certstamp/internal/sse"
)

func TestPublishReachesTopicOnly(t *testing.T) {
	h := sse.New()
	a, unsubA := h.Subscribe("batch:a")
	defer unsubA()
	b, unsubB := h.Subscribe("batch:b")
	defer unsubB()

	h.Publish("batch:a", sse.Event{Type: "progress", Data: `{"done":1}`})

	select {
	case evt := <-a:
		if evt.Type != "progress" {
			t.Errorf("type = %q", evt.Type)
		}
	default:
		t.Fatal("subscriber on batch:a got nothing")
	}
	select {
	case evt := <-b:
		t.Fatalf("batch:b received %+v", evt)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := sse.New()
	_, unsub := h.Subscribe("t")
	defer unsub()
	for i := 0; i < 100; i++ {
		h.Publish("t", sse.Event{Type: "progress"})
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := sse.New()
	ch, unsub := h.Subscribe("t")
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	if n := h.Subscribers("t"); n != 0 {
		t.Errorf("subscribers = %d", n)
	}
	h.Publish("t", sse.Event{Type: "late"})
}

func TestCloseTopic(t *testing.T) {
	h := sse.New()
	ch, unsub := h.Subscribe("t")
	h.CloseTopic("t")
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	unsub()
}
