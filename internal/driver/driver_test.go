package driver

import (
	"context"
	"testing"

	"github.com/Zapadenec1982/ModESP-sub004/internal/domain"
)

func TestSensorRegistryRegisterAndNew(t *testing.T) {
	reg := NewSensorRegistry()
	calls := 0
	reg.Register("noop", func() Sensor { calls++; return &stubSensor{} })

	if _, err := reg.New("noop"); err != nil {
		t.Fatalf("New: %v", err)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
}

func TestSensorRegistryUnknownType(t *testing.T) {
	reg := NewSensorRegistry()
	if _, err := reg.New("missing"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestSensorRegistryDoubleRegisterReplaces(t *testing.T) {
	reg := NewSensorRegistry()
	reg.Register("dup", func() Sensor { return &stubSensor{tag: "first"} })
	reg.Register("dup", func() Sensor { return &stubSensor{tag: "second"} })

	s, _ := reg.New("dup")
	if s.(*stubSensor).tag != "second" {
		t.Fatalf("expected replaced factory to win")
	}
}

func TestActuatorRegistryUnknownType(t *testing.T) {
	reg := NewActuatorRegistry()
	if _, err := reg.New("missing"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

type stubSensor struct{ tag string }

func (s *stubSensor) Init(ctx context.Context, config map[string]any) error { return nil }
func (s *stubSensor) Read(ctx context.Context) (domain.SensorReading, error) {
	return domain.SensorReading{IsValid: true}, nil
}
func (s *stubSensor) Update(ctx context.Context) error              { return nil }
func (s *stubSensor) GetType() string                               { return "" }
func (s *stubSensor) GetDescription() string                        { return "" }
func (s *stubSensor) IsAvailable() bool                             { return true }
func (s *stubSensor) GetConfig() map[string]any                     { return nil }
func (s *stubSensor) SetConfig(config map[string]any) error         { return nil }
func (s *stubSensor) GetUISchema() []UISchemaField                  { return nil }
func (s *stubSensor) GetDiagnostics() map[string]any                { return nil }
func (s *stubSensor) Calibrate(ctx context.Context, p map[string]any) error { return nil }
