package control

import (
	"context"
	"fmt"
	"time"

	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// Renderers need settling time between dependent commands; sending them
// back-to-back corrupts transport state on real devices. These delays are
// part of the device contract, not tuning knobs.
const (
	interCommandDelay = 100 * time.Millisecond
	preSeekDelay      = 3 * time.Second
)

// step is one timed transition of the cast sequence.
type step struct {
	name  string
	delay time.Duration
	run   func(ctx context.Context) error
}

// playSteps builds the ordered sequence for one cast. The loaded-URI mark is
// set inside the SetAVTransportURI step so a later Play failure still leaves
// the transport resumable.
func (c *Controller) playSteps(req types.MediaRequest, mediaURL, metadata string, avt types.Service) []step {
	steps := []step{
		{
			name: "Stop",
			run:  func(ctx context.Context) error { return c.soap.Stop(ctx, avt) },
		},
		{
			name:  "SetAVTransportURI",
			delay: interCommandDelay,
			run: func(ctx context.Context) error {
				if err := c.soap.SetAVTransportURI(ctx, avt, mediaURL, metadata); err != nil {
					return err
				}
				c.markURILoaded(mediaURL)
				return nil
			},
		},
		{
			name:  "Play",
			delay: interCommandDelay,
			run:   func(ctx context.Context) error { return c.soap.Play(ctx, avt) },
		},
	}
	if req.StartPositionMs > 0 {
		target := tool.FormatClock(req.StartPositionMs)
		steps = append(steps, step{
			name:  "Seek",
			delay: preSeekDelay,
			run:   func(ctx context.Context) error { return c.soap.Seek(ctx, avt, target) },
		})
	}
	return steps
}

// runSteps executes steps in order, waiting each step's settle delay first.
// Any failure short-circuits; completed steps are not rolled back.
func (c *Controller) runSteps(ctx context.Context, steps []step) error {
	for _, s := range steps {
		if s.delay > 0 {
			if err := c.wait(ctx, s.delay); err != nil {
				return fmt.Errorf("%s aborted: %v", s.name, err)
			}
		}
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s failed: %v", s.name, err)
		}
	}
	return nil
}
