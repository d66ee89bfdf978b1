package dispatcher

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/gateway"
)

// Conn is one live gateway session as the supervisor sees it.
type Conn interface {
	Join() error
	Read() (gateway.Message, error)
	Close() error
}

// Dialer establishes a new transport connection. Each call returns a
// fresh session; failed ones are discarded.
type Dialer func(ctx context.Context) (Conn, error)

// SupervisorConfig holds reconnection parameters.
type SupervisorConfig struct {
	InitialDelay time.Duration // First retry delay
	MaxDelay     time.Duration // Backoff cap
}

// Supervisor keeps the dispatcher subscribed. On transport loss it
// reconnects with capped-exponential backoff and rejoins the same room;
// events emitted while disconnected are lost by design.
type Supervisor struct {
	dialer     Dialer
	dispatcher *Dispatcher
	config     SupervisorConfig
}

// NewSupervisor creates a supervisor driving the given dispatcher.
func NewSupervisor(dialer Dialer, d *Dispatcher, cfg SupervisorConfig) *Supervisor {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Supervisor{dialer: dialer, dispatcher: d, config: cfg}
}

// Run connects, subscribes and dispatches until ctx is cancelled by a
// user-initiated shutdown. Only a rejected room join is returned as an
// error; transport loss is retried indefinitely.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.config.InitialDelay
	attempt := 0

	for {
		if ctx.Err() != nil {
			s.dispatcher.setStatus(StatusDisconnected)
			return nil
		}

		s.dispatcher.setStatus(StatusConnecting)
		conn, err := s.dialer(ctx)
		if err != nil {
			s.dispatcher.setStatus(StatusDisconnected)
			attempt++
			zlog.Warn().Msgf("connect attempt %d failed: %v (retrying in %s)", attempt, err, delay)
			if !s.sleep(ctx, delay) {
				return nil
			}
			delay = s.nextDelay(delay)
			continue
		}
		s.dispatcher.setStatus(StatusConnected)

		if err := conn.Join(); err != nil {
			_ = conn.Close()
			s.dispatcher.setStatus(StatusDisconnected)

			// The room not existing will not fix itself by retrying.
			if errors.Is(err, gateway.ErrJoinRejected) {
				return err
			}

			attempt++
			zlog.Warn().Msgf("subscribe attempt %d failed: %v (retrying in %s)", attempt, err, delay)
			if !s.sleep(ctx, delay) {
				return nil
			}
			delay = s.nextDelay(delay)
			continue
		}

		s.dispatcher.setStatus(StatusSubscribed)
		delay = s.config.InitialDelay
		attempt = 0
		zlog.Info().Msg("joined room, listening for game events")
		s.dispatcher.onSubscribed(ctx)

		// Unblock the read loop when the user shuts down.
		pumpDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-pumpDone:
			}
		}()

		err = s.dispatcher.pump(ctx, conn)
		close(pumpDone)
		_ = conn.Close()
		s.dispatcher.setStatus(StatusDisconnected)

		if ctx.Err() != nil {
			return nil
		}
		zlog.Warn().Msgf("connection lost: %v (reconnecting)", err)
	}
}

// sleep waits for the delay unless the context ends first.
func (s *Supervisor) sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > s.config.MaxDelay {
		delay = s.config.MaxDelay
	}
	return delay
}
