package loop

import (
	"context"
	"testing"
	"time"

	logx "popengine/pkg/logx"
)

func TestVirtualPostRunsOnNextTurnOnly(t *testing.T) {
	t.Parallel()
	v := NewVirtual(time.Unix(1000, 0))
	ran := false
	v.Post(func() { ran = true })
	if ran {
		t.Fatal("Post ran synchronously")
	}
	if n := v.RunUntilIdle(); n != 1 || !ran {
		t.Fatalf("RunUntilIdle = %d, ran = %v", n, ran)
	}
}

func TestVirtualAdvanceOrdersByDueThenSequence(t *testing.T) {
	t.Parallel()
	v := NewVirtual(time.Unix(0, 0))
	var got []string
	v.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	v.AfterFunc(time.Second, func() { got = append(got, "a") })
	v.AfterFunc(2*time.Second, func() { got = append(got, "c") })

	v.Advance(1500 * time.Millisecond)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("after 1.5s got %v", got)
	}
	v.Advance(time.Second)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if now := v.Now(); !now.Equal(time.Unix(2, 500_000_000)) {
		t.Fatalf("Now = %v", now)
	}
}

func TestVirtualCallbackSeesDueTime(t *testing.T) {
	t.Parallel()
	start := time.Unix(10, 0)
	v := NewVirtual(start)
	var at time.Time
	v.AfterFunc(3*time.Second, func() { at = v.Now() })
	v.Advance(time.Minute)
	if !at.Equal(start.Add(3 * time.Second)) {
		t.Fatalf("callback saw %v", at)
	}
}

func TestVirtualStop(t *testing.T) {
	t.Parallel()
	v := NewVirtual(time.Time{})
	ran := false
	tm := v.AfterFunc(time.Second, func() { ran = true })
	if !tm.Stop() {
		t.Fatal("first Stop should report true")
	}
	if tm.Stop() {
		t.Fatal("second Stop should report false")
	}
	v.Advance(2 * time.Second)
	if ran {
		t.Fatal("stopped timer ran")
	}
	if v.Pending() != 0 {
		t.Fatalf("Pending = %d", v.Pending())
	}
}

func TestEventLoopRunsPostedAndTimers(t *testing.T) {
	l := NewEventLoop(logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { _ = l.Run(ctx) }()

	order := make(chan string, 3)
	l.AfterFunc(20*time.Millisecond, func() {
		order <- "timer"
		close(done)
	})
	l.Post(func() { order <- "post" })

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timer never fired")
	}
	if first := <-order; first != "post" {
		t.Fatalf("first = %s, want post", first)
	}
}

func TestEventLoopStoppedTimerNeverRuns(t *testing.T) {
	l := NewEventLoop(logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	ran := make(chan struct{}, 1)
	stopped := make(chan bool, 1)
	l.Post(func() {
		tm := l.AfterFunc(10*time.Millisecond, func() { ran <- struct{}{} })
		stopped <- tm.Stop()
	})
	if !<-stopped {
		t.Fatal("Stop should succeed before firing")
	}
	select {
	case <-ran:
		t.Fatal("stopped timer ran")
	case <-time.After(60 * time.Millisecond):
	}
}
