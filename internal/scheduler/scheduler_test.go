package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickWithOffset(t *testing.T) {
	s := New(Options{Interval: 24 * time.Hour, Offset: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2024, 3, 10, 0, 2, 0, 0, time.UTC)
	want := time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("00:02 应在当日 00:05 触发, got %s", got)
	}

	now = time.Date(2024, 3, 10, 0, 5, 0, 0, time.UTC)
	want = time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("00:05 整点应顺延到次日, got %s", got)
	}

	if got := s.bucketStart(want); !got.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bucket 应去掉 offset, got %s", got)
	}
}

func TestNextTickMinuteAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 3, 10, 12, 30, 15, 0, time.UTC)
	want := time.Date(2024, 3, 10, 12, 31, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRunAtStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	s := New(Options{Name: "discovery", Interval: time.Hour, RunAtStart: true}, zerolog.Nop())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, bucket time.Time) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("启动时应执行一次, got %d", calls)
	}
}

func TestInvalidOffsetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("offset >= interval should panic")
		}
	}()
	New(Options{Interval: time.Minute, Offset: time.Minute}, zerolog.Nop())
}
