package actuator

import (
	"context"
	"time"

	"github.com/nerrad567/whereabouts/internal/zone"
)

// Self-test timing.
const (
	sweepPause = 1500 * time.Millisecond
	zonePause  = 1 * time.Second

	restAngle = 90
)

// sweepAngles are visited by every hand before the zone pass.
var sweepAngles = []int{MinAngle, 90, MaxAngle}

// PauseFunc waits for d or until ctx is done.
type PauseFunc func(ctx context.Context, d time.Duration) error

// SelfTest exercises every channel.
//
// Sequence:
//  1. Sweep 0, 90, 180 (pausing after each move)
//  2. Point at every zone in iteration order (pausing after each move)
//  3. Return every hand to 90
//
// A nil pause uses a context-aware sleep.
//
// Returns:
//   - error: ctx.Err() if cancelled part way; hands are left where they are
func SelfTest(ctx context.Context, act Actuator, channels []int, zones []zone.Zone, logger Logger, pause PauseFunc) error {
	if logger == nil {
		logger = noopLogger{}
	}
	if pause == nil {
		pause = sleepContext
	}

	logger.Info("sweep tests for all servos", "channels", channels)
	for _, angle := range sweepAngles {
		for _, ch := range channels {
			logger.Debug("sweep", "channel", ch, "angle", angle)
			act.SetChannelPosition(ch, angle)
			if err := pause(ctx, sweepPause); err != nil {
				return err
			}
		}
	}

	for _, z := range zones {
		for _, ch := range channels {
			logger.Info("testing zone position", "channel", ch, "zone", z.Name, "angle", z.Angle)
			act.SetChannelPosition(ch, z.Angle)
			if err := pause(ctx, zonePause); err != nil {
				return err
			}
		}
	}

	for _, ch := range channels {
		logger.Debug("resetting servo", "channel", ch, "angle", restAngle)
		act.SetChannelPosition(ch, restAngle)
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
