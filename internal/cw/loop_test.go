package cw

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSource struct {
	closedFor int64
	calls     atomic.Int64
}

func (s *countingSource) Closed() bool {
	return s.calls.Add(1) <= s.closedFor
}

type recordingIndicator struct {
	mu     sync.Mutex
	levels []bool
}

func (r *recordingIndicator) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, active)
}

func (r *recordingIndicator) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.levels...)
}

func TestRun_InvalidArguments(t *testing.T) {
	d, _ := newTestDecoder(t)
	ctx := context.Background()

	if err := Run(ctx, d, nil, nil, time.Millisecond); err != ErrNilSource {
		t.Errorf("Run(nil source) error = %v, want %v", err, ErrNilSource)
	}
	if err := Run(ctx, d, &countingSource{}, nil, 0); err != ErrInvalidPollInterval {
		t.Errorf("Run(0 interval) error = %v, want %v", err, ErrInvalidPollInterval)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	d, _ := newTestDecoder(t)
	ind := &recordingIndicator{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Run(ctx, d, &countingSource{}, ind, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}

	levels := ind.snapshot()
	if len(levels) == 0 {
		t.Fatal("indicator was never driven")
	}
	if levels[len(levels)-1] {
		t.Error("indicator should be released on exit")
	}
}

func TestRun_FeedsDecoderAndIndicator(t *testing.T) {
	d, _ := newTestDecoder(t)
	ind := &recordingIndicator{}
	src := &countingSource{closedFor: 20}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, d, src, ind, time.Millisecond)
	}()

	deadline := time.After(5 * time.Second)
	for d.Pending() == "" {
		select {
		case <-deadline:
			cancel()
			t.Fatal("closure never reached the decoder")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(d.Pending()) != 1 {
		t.Errorf("Pending() = %q, want one mark", d.Pending())
	}
	levels := ind.snapshot()
	if len(levels) < 21 || !levels[0] || levels[20] {
		t.Errorf("indicator levels do not follow the key: first=%v count=%d", levels[0], len(levels))
	}
}

func TestMultiIndicator(t *testing.T) {
	a := &recordingIndicator{}
	var got []bool
	m := MultiIndicator{a, nil, IndicatorFunc(func(v bool) { got = append(got, v) })}

	m.SetActive(true)
	m.SetActive(false)

	if levels := a.snapshot(); len(levels) != 2 || !levels[0] || levels[1] {
		t.Errorf("first indicator levels = %v, want [true false]", levels)
	}
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("func indicator levels = %v, want [true false]", got)
	}
}
