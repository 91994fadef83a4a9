package signaler

import (
	"context"
	"time"

	"github.com/holomesh/holomesh/pkg/logger"
)

// Sweeper periodically runs a maintenance pass independently of
// request handling.
type Sweeper struct {
	name string
	t    *time.Ticker
	fn   func()
	done chan struct{}
	log  *logger.Logger
}

func NewSweeper(name string, period time.Duration, fn func(), log *logger.Logger) *Sweeper {
	return &Sweeper{
		name: name,
		t:    time.NewTicker(period),
		fn:   fn,
		done: make(chan struct{}),
		log:  log,
	}
}

func (s *Sweeper) Run() {
	go func() {
		for {
			select {
			case <-s.t.C:
				s.fn()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Sweeper) Shutdown(context.Context) error {
	s.t.Stop()
	close(s.done)
	s.log.Debug().Msgf("%s sweeper stopped", s.name)
	return nil
}
