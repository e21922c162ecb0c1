package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu      sync.Mutex
	topics  []string
	payload [][]byte
	closed  bool
	err     error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payload = append(p.payload, payload)
	return p.err
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payload)
}

func TestFormatSliderPayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	b, err := FormatSliderPayload(SliderUpdate{Position: PositionTop, Mode: ModeTotalSilence, At: at})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"slider":{"timestamp":"2026-01-02T02:04:05Z","position":"top","mode":"total_silence"}}`
	if string(b) != want {
		t.Errorf("payload = %s\nwant      %s", b, want)
	}
}

func TestMQTTNotifier_PublishesAndCloses(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMQTTNotifier(pub, "home/phone/slider", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.SliderUpdated(SliderUpdate{Position: PositionMiddle, Mode: ModeVibrate, At: time.Now()})
	waitUntil(t, time.Second, func() bool { return pub.count() == 1 }, "update not published")

	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topics[0] != "home/phone/slider" {
		t.Errorf("topic = %q", pub.topics[0])
	}
	var got sliderPayload
	if err := json.Unmarshal(pub.payload[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.Slider.Mode != "vibrate" || got.Slider.Position != "middle" {
		t.Errorf("payload = %+v", got)
	}
	if !pub.closed {
		t.Error("publisher not closed on shutdown")
	}
}

func TestMQTTNotifier_PublishErrorDoesNotStop(t *testing.T) {
	pub := &fakePublisher{err: errFake}
	n := NewMQTTNotifier(pub, "t", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.SliderUpdated(SliderUpdate{Mode: ModeSilent})
	n.SliderUpdated(SliderUpdate{Mode: ModeNormal})
	waitUntil(t, time.Second, func() bool { return pub.count() == 2 }, "publisher stopped after an error")
}

func TestMQTTNotifier_DropsWhenQueueFull(t *testing.T) {
	n := NewMQTTNotifier(&fakePublisher{}, "t", discardLogger())
	for i := 0; i < cap(n.queue)+5; i++ {
		n.SliderUpdated(SliderUpdate{Mode: ModeSilent})
	}
	if len(n.queue) != cap(n.queue) {
		t.Errorf("queue len = %d, want %d", len(n.queue), cap(n.queue))
	}
}

func TestMultiNotifier_FansOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	MultiNotifier{a, nil, b, logNotifier{logger: discardLogger()}}.SliderUpdated(SliderUpdate{Mode: ModeNormal})
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d, %d", a.count(), b.count())
	}
}
