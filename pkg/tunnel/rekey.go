// rekey.go implements the periodic rekey task described in SPEC_FULL.md
// §4.8/§5: on a configurable interval the task advances the session's
// epoch, re-derives directional keys from the unchanged master secret, and
// resets sequence counters and the replay window. No wire messages are
// exchanged; the operation is unilateral and symmetric since both peers
// hold the same master secret and advance on the same schedule.
package tunnel

import (
	"context"
	"time"
)

// RunRekeyTask runs the periodic rekey loop for t's session until ctx is
// cancelled or the tunnel is closed. Callers typically run this in its own
// goroutine alongside a ReceiveAndDispatch loop.
func RunRekeyTask(ctx context.Context, t *Tunnel) {
	interval := t.config.RekeyInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closed:
			return
		case <-ticker.C:
			rctx, done := t.observer.OnRekeyStart(ctx)
			err := t.session.rekey()
			done(err)
			if err != nil {
				t.observer.OnProtocolError(err)
			}
			_ = rctx
		}
	}
}
