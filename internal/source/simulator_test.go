package source

import (
	"context"
	"testing"
	"time"
)

func TestSimulator_ReadAllCoversEveryPID(t *testing.T) {
	s := NewSimulator(1)

	readings := s.ReadAll()
	if len(readings) != len(pidSpecs) {
		t.Fatalf("len(readings) = %d, want %d", len(readings), len(pidSpecs))
	}
	for i, spec := range pidSpecs {
		if readings[i].PID != spec.Name {
			t.Errorf("readings[%d].PID = %q, want %q (emit order)", i, readings[i].PID, spec.Name)
		}
		if readings[i].Unit != spec.Unit {
			t.Errorf("%s unit = %q, want %q", spec.Name, readings[i].Unit, spec.Unit)
		}
		if readings[i].Timestamp.IsZero() {
			t.Errorf("%s has zero timestamp", spec.Name)
		}
	}
}

func TestSimulator_ValuesStayInRange(t *testing.T) {
	s := NewSimulator(42)

	specByName := make(map[string]pidSpec, len(pidSpecs))
	for _, spec := range pidSpecs {
		specByName[spec.Name] = spec
	}

	for _, scenario := range scenarioNames {
		s.SetScenario(scenario)
		for i := 0; i < 200; i++ {
			for _, r := range s.ReadAll() {
				spec := specByName[r.PID]
				if r.Value < spec.Min || r.Value > spec.Max {
					t.Fatalf("scenario %s: %s = %g outside [%g, %g]",
						scenario, r.PID, r.Value, spec.Min, spec.Max)
				}
			}
		}
	}
}

func TestSimulator_DeterministicForSeed(t *testing.T) {
	a := NewSimulator(7)
	b := NewSimulator(7)

	ra := a.ReadAll()
	rb := b.ReadAll()
	for i := range ra {
		if ra[i].Value != rb[i].Value {
			t.Fatalf("same seed diverged at %s: %g != %g", ra[i].PID, ra[i].Value, rb[i].Value)
		}
	}
}

func TestSimulator_StreamClosesOnCancel(t *testing.T) {
	s := NewSimulator(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Stream(ctx, 100)

	select {
	case batch := <-ch:
		if len(batch) != len(pidSpecs) {
			t.Errorf("batch size = %d, want %d", len(batch), len(pidSpecs))
		}
	case <-time.After(time.Second):
		t.Fatal("no batch within a second at 100 Hz")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}
