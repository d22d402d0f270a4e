package cli

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// SignalContext is cancelled by SIGINT or SIGTERM and remembers which one
// arrived, so a command can tell an interrupt from a finished run.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc
	caught atomic.Pointer[os.Signal]
}

// NewSignalContext is signal.NotifyContext plus Signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			sc.caught.Store(&sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	if sig := sc.caught.Load(); sig != nil {
		return *sig
	}
	return nil
}
