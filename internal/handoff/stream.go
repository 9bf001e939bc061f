package handoff

import (
	"context"
	"time"

	"github.com/framestack/framestack/internal/frame"
)

// StatusStream returns a finite sequence of progress snapshots for one
// request. A snapshot is emitted immediately, then on every poll tick where
// the record changed; the channel closes after a terminal snapshot has been
// delivered or when ctx is cancelled. Consumers cancel by cancelling ctx or
// simply abandoning the channel.
//
// Polling keeps the stream decoupled from workflow internals; a per-request
// publish/subscribe channel is the replacement if poll latency ever
// matters.
func (m *Manager) StatusStream(ctx context.Context, requestID string) (<-chan frame.HandoffProgress, error) {
	first, err := m.store.GetProgress(requestID)
	if err != nil {
		return nil, err
	}

	ch := make(chan frame.HandoffProgress, 1)
	go func() {
		defer close(ch)

		last := *first
		select {
		case ch <- last:
		case <-ctx.Done():
			return
		}
		if last.Status.IsTerminal() {
			return
		}

		ticker := time.NewTicker(m.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			progress, err := m.store.GetProgress(requestID)
			if err != nil {
				m.log.Error().Err(err).Str("request", requestID).Msg("status stream poll failed")
				return
			}
			if progress.Status == last.Status &&
				progress.CurrentStep == last.CurrentStep &&
				progress.TransferredFrames == last.TransferredFrames &&
				len(progress.Errors) == len(last.Errors) {
				continue
			}

			last = *progress
			select {
			case ch <- last:
			case <-ctx.Done():
				return
			}
			if last.Status.IsTerminal() {
				return
			}
		}
	}()
	return ch, nil
}
