package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"st-telemetry/gateway/internal/domain"
)

// pidSpec bounds one simulated PID.
type pidSpec struct {
	Name     string
	Min      float64
	Max      float64
	Unit     string
	Variance float64
}

// pidSpecs lists the simulated OBD-II PIDs with realistic ranges for a
// turbocharged inline-four. Order is emit order.
var pidSpecs = []pidSpec{
	{"RPM", 800, 6500, "RPM", 100},
	{"SPEED", 0, 155, "MPH", 5},
	{"THROTTLE", 0, 100, "%", 10},
	{"ENGINE_LOAD", 0, 100, "%", 5},
	{"COOLANT_TEMP", 80, 220, "°F", 2},
	{"INTAKE_TEMP", 60, 180, "°F", 3},
	{"MAF", 2, 250, "g/s", 10},
	{"INTAKE_PRESSURE", 10, 25, "PSI", 2},
	{"TIMING_ADVANCE", -10, 30, "°", 2},
	{"FUEL_PRESSURE", 40, 65, "PSI", 1},
	{"BOOST", -5, 22, "PSI", 1},
	{"OIL_TEMP", 80, 280, "°F", 2},
	{"TURBO_SPEED", 0, 240000, "RPM", 5000},
	{"AFR", 10, 16, "ratio", 0.5},
	{"FUEL_LEVEL", 0, 100, "%", 0},
	{"BATTERY_VOLTAGE", 12.0, 14.8, "V", 0.2},
}

// scenarioTargets drive the simulation toward characteristic operating
// points. PIDs without a target settle at mid-range.
var scenarioTargets = map[string]map[string]float64{
	"idle": {
		"RPM": 850, "SPEED": 0, "THROTTLE": 0, "ENGINE_LOAD": 15,
		"BOOST": -3, "TURBO_SPEED": 0,
	},
	"cruising": {
		"RPM": 2500, "SPEED": 60, "THROTTLE": 25, "ENGINE_LOAD": 30,
		"BOOST": 0, "TURBO_SPEED": 80000,
	},
	"acceleration": {
		"RPM": 4500, "SPEED": 80, "THROTTLE": 75, "ENGINE_LOAD": 80,
		"BOOST": 18, "TURBO_SPEED": 200000,
	},
	"hard_driving": {
		"RPM": 5500, "SPEED": 100, "THROTTLE": 95, "ENGINE_LOAD": 95,
		"BOOST": 21, "TURBO_SPEED": 230000, "OIL_TEMP": 240,
	},
}

var scenarioNames = []string{"idle", "cruising", "acceleration", "hard_driving"}

// Simulator generates synthetic OBD-II telemetry. Values drift toward the
// active scenario's targets with bounded noise, clamped to each PID's range.
type Simulator struct {
	mu       sync.Mutex
	current  map[string]float64
	scenario string
	rng      *rand.Rand
}

// NewSimulator seeds every PID at mid-range in the idle scenario.
func NewSimulator(seed int64) *Simulator {
	s := &Simulator{
		current:  make(map[string]float64, len(pidSpecs)),
		scenario: "idle",
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, spec := range pidSpecs {
		s.current[spec.Name] = (spec.Min + spec.Max) / 2
	}
	return s
}

// SetScenario switches the driving scenario.
func (s *Simulator) SetScenario(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario = name
}

// PIDs returns the simulated PID names in emit order.
func (s *Simulator) PIDs() []string {
	names := make([]string, len(pidSpecs))
	for i, spec := range pidSpecs {
		names[i] = spec.Name
	}
	return names
}

func (s *Simulator) target(spec pidSpec) float64 {
	if targets, ok := scenarioTargets[s.scenario]; ok {
		if t, ok := targets[spec.Name]; ok {
			return t
		}
	}
	return (spec.Min + spec.Max) / 2
}

// ReadAll samples every PID once, in emit order.
func (s *Simulator) ReadAll() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]domain.Reading, 0, len(pidSpecs))
	for _, spec := range pidSpecs {
		current := s.current[spec.Name]
		target := s.target(spec)

		// drift toward target with bounded noise, clamped to range
		delta := (target - current) * 0.1
		noise := (s.rng.Float64()*2 - 1) * spec.Variance
		value := current + delta + noise
		if value < spec.Min {
			value = spec.Min
		}
		if value > spec.Max {
			value = spec.Max
		}

		// cross-PID heat effects
		if spec.Name == "RPM" && value > 3000 {
			s.current["OIL_TEMP"] += 0.5
		}
		if spec.Name == "BOOST" && value > 15 {
			s.current["INTAKE_TEMP"] += 0.3
		}

		s.current[spec.Name] = value
		out = append(out, domain.Reading{
			PID:       spec.Name,
			Value:     value,
			Unit:      spec.Unit,
			Timestamp: now,
		})
	}
	return out
}

// Stream emits one batch per tick at the target rate until ctx is cancelled.
// The scenario occasionally changes on its own for variety.
func (s *Simulator) Stream(ctx context.Context, rateHz float64) <-chan []domain.Reading {
	if rateHz <= 0 {
		rateHz = 10
	}
	out := make(chan []domain.Reading)

	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.rng.Float64() < 0.01 {
					s.scenario = scenarioNames[s.rng.Intn(len(scenarioNames))]
				}
				s.mu.Unlock()

				select {
				case out <- s.ReadAll():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
