package tunnel

import "context"

// Observer provides hooks for tunnel lifecycle, metrics, and tracing.
// Implementations should be lightweight; callbacks may run on hot paths.
type Observer interface {
	OnSessionStart()
	OnSessionEnd()
	OnSessionFailed(err error)
	OnHandshakeStart(ctx context.Context) (context.Context, func(error))
	OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error))
	OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error))
	OnReplayDetected()
	OnAuthFailure()
	OnRekeyStart(ctx context.Context) (context.Context, func(error))
	OnProtocolError(err error)
}

// ObserverFactory builds a per-session observer.
type ObserverFactory func(session *Session) Observer

func observerFromConfig(config Config, session *Session) Observer {
	if config.ObserverFactory != nil {
		return config.ObserverFactory(session)
	}
	if config.Observer != nil {
		return config.Observer
	}
	return noopObserver{}
}

// noopObserver is the default Observer used when a Tunnel is constructed
// without an explicit one.
type noopObserver struct{}

func (noopObserver) OnSessionStart()          {}
func (noopObserver) OnSessionEnd()            {}
func (noopObserver) OnSessionFailed(error)     {}
func (noopObserver) OnReplayDetected()         {}
func (noopObserver) OnAuthFailure()            {}
func (noopObserver) OnProtocolError(error)     {}
func (noopObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (noopObserver) OnEncrypt(ctx context.Context, _ int) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (noopObserver) OnDecrypt(ctx context.Context, _ int) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (noopObserver) OnRekeyStart(ctx context.Context) (context.Context, func(error)) {
	return ctx, func(error) {}
}
