package sensors

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

type stubRotation struct {
	deg   float64
	err   error
	reset int
}

func (s *stubRotation) Position() (float64, error) { return s.deg, s.err }
func (s *stubRotation) ResetPosition() error {
	s.reset++
	s.deg = 0
	return nil
}

type stubIMU struct {
	deg      float64
	err      error
	failures int
	calls    int
}

func (s *stubIMU) Rotation() (float64, error) { return s.deg, s.err }
func (s *stubIMU) Calibrate(ctx context.Context) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("still moving")
	}
	return nil
}

func TestTrackingWheelDistance(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		diameter float64
		ratio    float64
		expected float64
	}{
		{"one revolution", 360, Omni275, 1, math.Pi * 2.75},
		{"half revolution", 180, 2, 1, math.Pi},
		{"zero ratio means direct", 360, 2, 0, 2 * math.Pi},
		{"geared", 720, 2, 2, 2 * math.Pi},
		{"backwards", -360, 2, 1, -2 * math.Pi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewTrackingWheel(&stubRotation{deg: tt.deg}, tt.diameter, 0, tt.ratio)
			if got := w.Distance(); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestTrackingWheelCarriesForwardOnError(t *testing.T) {
	s := &stubRotation{deg: 360}
	w := NewTrackingWheel(s, 2, -4.5, 1)

	first := w.Distance()
	s.err = ErrDisconnected
	s.deg = 9999
	if got := w.Distance(); got != first {
		t.Errorf("expected carried value %f, got %f", first, got)
	}
	if w.Offset() != -4.5 {
		t.Errorf("expected offset -4.5, got %f", w.Offset())
	}
}

func TestTrackingWheelReset(t *testing.T) {
	s := &stubRotation{deg: 360}
	w := NewTrackingWheel(s, 2, 0, 1)
	w.Distance()

	if err := w.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.reset != 1 {
		t.Errorf("expected sensor reset, got %d calls", s.reset)
	}
	if got := w.Distance(); got != 0 {
		t.Errorf("expected 0 after reset, got %f", got)
	}
}

func TestHeadingCarriesForward(t *testing.T) {
	imu := &stubIMU{deg: 90}
	h := NewHeading(imu)

	if got := h.Radians(); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("expected pi/2, got %f", got)
	}
	imu.err = ErrDisconnected
	imu.deg = 0
	if got := h.Radians(); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Errorf("expected last heading, got %f", got)
	}
}

func TestCalibrateInertialRetries(t *testing.T) {
	imu := &stubIMU{failures: 2}
	if err := CalibrateInertial(context.Background(), imu, 5, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imu.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", imu.calls)
	}
}

func TestCalibrateInertialExhausted(t *testing.T) {
	imu := &stubIMU{failures: 10}
	err := CalibrateInertial(context.Background(), imu, 3, time.Millisecond)
	if !errors.Is(err, ErrCalibrationFailed) {
		t.Fatalf("expected ErrCalibrationFailed, got %v", err)
	}
	if imu.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", imu.calls)
	}
}

func TestCalibrateInertialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imu := &stubIMU{}
	if err := CalibrateInertial(ctx, imu, 5, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if imu.calls != 0 {
		t.Errorf("expected no attempts, got %d", imu.calls)
	}
}
