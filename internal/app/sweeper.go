/**
 * @description
 * Background sweeper for expired stock reservations. Runs on a cron schedule,
 * deleting stale soft holds and the cart lines that referenced them so carts
 * never imply availability that has lapsed. A failed tick is logged and the
 * next tick retries; the sweep is idempotent.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/robfig/cron/v3: For scheduled execution.
 * - internal/store: For the sweep transaction.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/streamhub/store-service/internal/store"
)

// Sweeper periodically clears expired reservations.
type Sweeper struct {
	repo store.Repository
	cron *cron.Cron
}

// NewSweeper creates a sweeper with panic recovery on its jobs.
func NewSweeper(repo store.Repository) *Sweeper {
	return &Sweeper{
		repo: repo,
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the sweep job on the given schedule (e.g. "@every 1m") and
// starts the cron loop.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("level=info component=sweeper msg=\"reservation sweeper started\" schedule=%q", schedule)
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("level=info component=sweeper msg=\"reservation sweeper stopped\"")
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reservations, cartLines, err := s.repo.SweepExpiredReservations(ctx, time.Now())
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"sweep failed\" err=%v", err)
		return
	}
	if reservations > 0 || cartLines > 0 {
		log.Printf("level=info component=sweeper msg=\"sweep completed\" reservations=%d cart_lines=%d", reservations, cartLines)
	}
}
