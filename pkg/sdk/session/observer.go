package session

import (
	"context"
	"strings"
	"sync"
)

// Default navigation targets.
const (
	DefaultProtectedPath   = "/dashboard.html"
	DefaultProtectedMarker = "dashboard"
	DefaultSignInPath      = "/auth/login.html"
)

// EventKind is an identity-state transition reported by the authority's
// client session tracker.
type EventKind int

const (
	SignedOut EventKind = iota
	SignedIn
)

func (k EventKind) String() string {
	if k == SignedIn {
		return "signed-in"
	}
	return "signed-out"
}

// Event carries the snapshot of the signed-in identity. Snapshot is ignored
// for SignedOut.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// Navigator exposes the current location and performs redirects.
type Navigator interface {
	Path() string
	Redirect(path string)
}

type observerState int

const (
	stateUnknown observerState = iota
	stateSignedIn
	stateSignedOut
)

// Observer keeps the cache in line with the authority's session state. It
// redirects only on a transition; repeated events of the same kind just
// rewrite the scopes.
type Observer struct {
	ProtectedPath   string
	ProtectedMarker string
	SignInPath      string

	mu    sync.Mutex
	cache *Cache
	nav   Navigator
	state observerState
}

// NewObserver returns an Observer using the default navigation targets.
func NewObserver(cache *Cache, nav Navigator) *Observer {
	return &Observer{
		ProtectedPath:   DefaultProtectedPath,
		ProtectedMarker: DefaultProtectedMarker,
		SignInPath:      DefaultSignInPath,
		cache:           cache,
		nav:             nav,
	}
}

// Run handles events until the channel closes or ctx is done. It may be
// called again afterwards; the last seen state carries over.
func (o *Observer) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := o.Handle(ev); err != nil {
				return err
			}
		}
	}
}

// Handle applies a single event.
func (o *Observer) Handle(ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	inProtected := strings.Contains(o.nav.Path(), o.ProtectedMarker)

	switch ev.Kind {
	case SignedIn:
		if err := o.cache.mirror(ev.Snapshot); err != nil {
			return err
		}
		if o.state != stateSignedIn && !inProtected {
			o.nav.Redirect(o.ProtectedPath)
		}
		o.state = stateSignedIn
	default:
		if err := o.cache.Clear(); err != nil {
			return err
		}
		if o.state != stateSignedOut && inProtected {
			o.nav.Redirect(o.SignInPath)
		}
		o.state = stateSignedOut
	}
	return nil
}
