package sensors

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/dynodom/internal/log"
)

const (
	CalibrationAttempts = 5
	CalibrationBackoff  = 500 * time.Millisecond
)

// CalibrateInertial runs imu.Calibrate up to attempts times, waiting
// backoff between tries. The last device error is wrapped together with
// ErrCalibrationFailed.
func CalibrateInertial(ctx context.Context, imu InertialSensor, attempts int, backoff time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = imu.Calibrate(ctx)
		if lastErr == nil {
			if i > 1 {
				log.Info("inertial sensor calibrated", "attempt", i)
			}
			return nil
		}
		log.Warn("inertial calibration attempt failed", "attempt", i, "of", attempts, "err", lastErr)

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrCalibrationFailed, attempts, lastErr)
}
