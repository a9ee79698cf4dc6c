package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Run drives repeated dispatch cycles until context cancellation. Cycles fire
// on the poll interval, on an optional cron schedule, and whenever the wake
// channel signals. Infrastructure errors are logged and the loop keeps going;
// the next cycle retries from scratch.
func (d *Dispatcher) Run(ctx context.Context, wakeCh <-chan struct{}) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	var cronJobs *cron.Cron
	cronCh := make(chan struct{}, 1)
	if d.cfg.DispatchCron != "" {
		cronJobs = cron.New()
		if _, err := cronJobs.AddFunc(d.cfg.DispatchCron, func() {
			select {
			case cronCh <- struct{}{}:
			default:
			}
		}); err != nil {
			d.log.Error().Err(err).Str("schedule", d.cfg.DispatchCron).Msg("invalid dispatch cron, falling back to interval polling")
		} else {
			cronJobs.Start()
			defer cronJobs.Stop()
		}
	}

	d.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.cycle(ctx)
		case <-cronCh:
			d.cycle(ctx)
		case _, ok := <-wakeCh:
			if !ok {
				wakeCh = nil
				continue
			}
			d.cycle(ctx)
		}
	}
}

func (d *Dispatcher) cycle(ctx context.Context) {
	if _, err := d.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.log.Error().Err(err).Msg("dispatch cycle aborted")
	}
}
