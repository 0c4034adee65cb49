package command

import "sync/atomic"

// Session carries the per-client state a command execution depends on. The
// engine keeps one non-networked Session for the lifetime of its interpreter
// and resynchronizes it from the invoking client's session before every
// delegated call.
type Session struct {
	ID            int64
	DB            int
	Authenticated bool
	InMulti       bool
	ReadOnly      bool
	// InScript marks the engine's bound non-networked session.
	InScript bool
}

// SyncFrom copies the caller-visible fields one way, from the invoking
// session into the bound session. Authentication is sticky: a session never
// loses it by synchronization.
func (s *Session) SyncFrom(caller *Session) {
	if caller == nil {
		return
	}
	if !s.Authenticated && caller.Authenticated {
		s.Authenticated = true
	}
	if s.DB != caller.DB {
		s.DB = caller.DB
	}
	s.InMulti = caller.InMulti
}

// ControlState is a reference Control implementation backed by atomics, safe
// to flip from any goroutine while a script is running.
type ControlState struct {
	kill     atomic.Bool
	stopping atomic.Bool
}

// RequestKill asks the next monitor poll to abort the running script.
func (c *ControlState) RequestKill() { c.kill.Store(true) }

// ClearKill withdraws a pending kill request.
func (c *ControlState) ClearKill() { c.kill.Store(false) }

// Shutdown marks the server as stopping.
func (c *ControlState) Shutdown() { c.stopping.Store(true) }

func (c *ControlState) KillRequested() bool  { return c.kill.Load() }
func (c *ControlState) ServerStopping() bool { return c.stopping.Load() }
