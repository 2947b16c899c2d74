package run

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
)

func newTestResult() *enclosure.Result {
	return &enclosure.Result{Snapshots: []enclosure.Snapshot{
		{Step: 0, Time: 0, Temperatures: []float64{10, 20}, HeatersOn: []bool{false, false}},
		{Step: 1, Time: 0.5, Temperatures: []float64{12, 18}, HeatersOn: []bool{true, false}},
		{Step: 2, Time: 1, Temperatures: []float64{14, 16}, HeatersOn: []bool{true, false}},
		{Step: 3, Time: 1.5, Temperatures: []float64{13, 15}, HeatersOn: []bool{false, false}},
		{Step: 4, Time: 2, Temperatures: []float64{15, 14}, HeatersOn: []bool{true, false}},
	}}
}

func TestNewRun(t *testing.T) {
	r := New("test-id", 0.5)
	if r.ID != "test-id" {
		t.Errorf("Expected run ID to be %s, got %s", "test-id", r.ID)
	}
	if r.Status() != StatusPending {
		t.Errorf("expected pending, got %v", r.Status())
	}
	if _, err := r.Step(0); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("expected ErrNotCompleted, got %v", err)
	}
	if _, err := r.Zone(1); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("expected ErrNotCompleted, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected no records, got %d", r.Len())
	}
}

func TestRunComplete(t *testing.T) {
	r := New("test-id", 0.5)
	r.Complete(newTestResult(), nil)

	if r.Status() != StatusCompleted || r.Err() != nil {
		t.Fatalf("expected completed without error, got %v %v", r.Status(), r.Err())
	}
	if r.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", r.Len())
	}
	snap, err := r.Step(2)
	if err != nil || snap.Time != 1 {
		t.Fatalf("Step(2) = %+v, %v", snap, err)
	}
	if _, err := r.Step(5); !errors.Is(err, ErrStepOutOfRange) {
		t.Fatalf("expected ErrStepOutOfRange, got %v", err)
	}
	if _, err := r.Step(-1); !errors.Is(err, ErrStepOutOfRange) {
		t.Fatalf("expected ErrStepOutOfRange, got %v", err)
	}
	if _, err := r.Zone(3); !errors.Is(err, enclosure.ErrUnknownZoneTopology) {
		t.Fatalf("expected ErrUnknownZoneTopology, got %v", err)
	}
}

func TestRunAborted(t *testing.T) {
	r := New("test-id", 0.5)
	stepErr := &enclosure.StepError{Step: 5, Time: 2.5, Zone: 1, Err: enclosure.ErrNumericalDivergence}
	r.Complete(newTestResult(), stepErr)

	s := r.Summary()
	if s.Status != StatusAborted {
		t.Fatalf("expected aborted, got %v", s.Status)
	}
	if s.Error == "" || s.Steps != 5 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize("id", 0.5, newTestResult())
	if s.Zones != 2 || s.Steps != 5 || s.EndTime != 2 {
		t.Fatalf("unexpected summary header %+v", s)
	}
	z1 := s.Stats[0]
	if z1.Min != 10 || z1.Max != 15 || z1.Final != 15 {
		t.Fatalf("zone 1 stats = %+v", z1)
	}
	if math.Abs(z1.Mean-12.8) > 1e-9 {
		t.Fatalf("zone 1 mean = %v, want 12.8", z1.Mean)
	}
	if z1.HeaterHours != 1.5 || z1.HeaterSwitches != 2 {
		t.Fatalf("zone 1 heater stats = %v h / %d switches", z1.HeaterHours, z1.HeaterSwitches)
	}
	if s.Stats[1].HeaterHours != 0 {
		t.Fatalf("zone 2 heater never ran, got %v", s.Stats[1].HeaterHours)
	}

	empty := Summarize("id", 0.5, nil)
	if empty.Steps != 0 || empty.Stats != nil {
		t.Fatalf("empty summary = %+v", empty)
	}
}

func TestRunConcurrentReads(t *testing.T) {
	r := New("test-id", 0.5)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Summary()
			_, _ = r.Step(1)
		}()
	}
	r.Complete(newTestResult(), nil)
	wg.Wait()
	if r.Len() != 5 {
		t.Fatalf("expected 5 records, got %d", r.Len())
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusCompleted, StatusAborted} {
		b, _ := s.MarshalText()
		var back Status
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Fatalf("round trip of %v gave %v, %v", s, back, err)
		}
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
