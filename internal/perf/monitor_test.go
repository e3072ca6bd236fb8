package perf

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestReportPerfectScore(t *testing.T) {
	m := NewMonitor(10, nil)
	m.RecordRender(10 * time.Millisecond)
	m.RecordScroll(2 * time.Millisecond)
	m.RecordSearch(50 * time.Millisecond)
	m.RecordCache(true)

	r := m.Report()
	if r.Score != 100 || r.Grade != "A+" {
		t.Errorf("expected A+/100, got %s/%d", r.Grade, r.Score)
	}
	if len(r.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %v", r.Recommendations)
	}
	if r.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", r.Samples)
	}
}

func TestReportPenalties(t *testing.T) {
	m := NewMonitor(10, nil)
	m.RecordRender(150 * time.Millisecond)
	m.RecordScroll(20 * time.Millisecond)
	m.RecordSearch(300 * time.Millisecond)
	m.RecordCache(true)
	m.RecordCache(false)

	r := m.Report()
	if r.Score != 40 {
		t.Errorf("expected score 40, got %d", r.Score)
	}
	if r.Grade != "D" {
		t.Errorf("expected grade D, got %s", r.Grade)
	}
	if len(r.Recommendations) != 4 {
		t.Errorf("expected 4 recommendations, got %v", r.Recommendations)
	}
	if r.CacheHitRate != 50 {
		t.Errorf("expected 50%% hit rate, got %v", r.CacheHitRate)
	}
	md := r.Markdown()
	if !strings.Contains(md, "## Performance: D (40/100)") || !strings.Contains(md, "### Recommendations") {
		t.Errorf("unexpected markdown:\n%s", md)
	}
}

func TestHitRateIgnoredWithoutLookups(t *testing.T) {
	m := NewMonitor(10, nil)
	if r := m.Report(); r.Score != 100 {
		t.Errorf("expected no cache penalty without lookups, got %d", r.Score)
	}
}

func TestGrades(t *testing.T) {
	cases := map[int]string{100: "A+", 95: "A+", 94: "A", 90: "A", 85: "B", 80: "B", 75: "C", 70: "C", 65: "D", 0: "D"}
	for score, want := range cases {
		if got := grade(score); got != want {
			t.Errorf("grade(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestRollingWindow(t *testing.T) {
	m := NewMonitor(3, nil)
	m.RecordRender(time.Second)
	for i := 0; i < 3; i++ {
		m.RecordRender(10 * time.Millisecond)
	}
	// The one-second sample has rolled out of the window.
	if avg := m.Report().AverageRender; avg != 10*time.Millisecond {
		t.Errorf("expected 10ms average, got %v", avg)
	}

	m.Reset()
	if r := m.Report(); r.Samples != 0 || r.CacheRequests != 0 {
		t.Errorf("expected empty report after reset, got %+v", r)
	}
}

func TestDebouncerRunsLastOnly(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls, last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := i
		d.Call(func() {
			calls.Add(1)
			last.Store(int32(i))
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("expected last call to win, got %d", last.Load())
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	d.Call(func() { calls.Add(1) })
	if !d.Stop() {
		t.Error("expected pending call to be stopped")
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("expected stopped call not to run")
	}
	if d.Stop() {
		t.Error("expected nothing pending")
	}
}

func TestThrottler(t *testing.T) {
	th := NewThrottler(50 * time.Millisecond)
	allowed := 0
	for i := 0; i < 10; i++ {
		if th.Allow() {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("expected 1 event in a burst, got %d", allowed)
	}
	time.Sleep(60 * time.Millisecond)
	if !th.Allow() {
		t.Error("expected an event after the interval")
	}
}
