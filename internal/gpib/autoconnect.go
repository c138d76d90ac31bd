package gpib

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// AutoConnect connects every instrument flagged for auto-connect, at most
// workers at a time, and returns how many ended up connected. Handshake
// failures are not retried.
func (m *Manager) AutoConnect(ctx context.Context, instruments []*models.Instrument, workers int) int {
	if workers <= 0 {
		workers = 4
	}

	var connected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, inst := range instruments {
		if !inst.AutoConnect {
			continue
		}
		inst := inst
		g.Go(func() error {
			if m.ConnectInstrument(gctx, inst) {
				connected.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int64("connected", connected.Load()).
		Int("candidates", len(instruments)).
		Msg("Auto-connect finished")

	return int(connected.Load())
}
