package backend

import "context"

// Permission is the access mode a GrantMapper maps a page with (§6).
type Permission int

const (
	PermRead      Permission = 1
	PermReadWrite Permission = 3
)

// SignalPort is the interdomain event-channel collaborator a backend binds
// to (§6, deliberately out of scope: named only by interface contract).
type SignalPort interface {
	// Wait blocks until the peer signals this port or ctx is cancelled. The
	// server's periodic poker drains the ring on its own and does not go
	// through the port.
	Wait(ctx context.Context) error
	// Notify signals the peer bound to this port.
	Notify() error
	// FD exposes a file descriptor for integration with an external poller.
	FD() int
	// Unbind releases the port. Safe to call once, on teardown.
	Unbind() error
}

// SignalPortBinder binds a fresh interdomain SignalPort.
type SignalPortBinder interface {
	BindInterdomain(remoteDomID uint16, remotePort uint32) (SignalPort, error)
}

// GrantMapper maps a single grant reference from the remote domain into a
// local page for the duration of body, releasing it on every exit path —
// the "scoped acquisition with guaranteed release" contract of §5.
type GrantMapper interface {
	WithRef(remoteDomID uint16, gref uint32, perm Permission, body func(page []byte) error) error
}
