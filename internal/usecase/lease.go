package usecase

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Leaser hands out leases that keep a refresh alive. When a lease expires
// before it is released, onExpire runs and the lease is released.
type Leaser interface {
	Acquire(name string, onExpire func()) *Lease
}

// Lease is released exactly once, either by its holder or on expiry.
type Lease struct {
	name     string
	once     sync.Once
	released atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
}

// Release ends the lease. Further calls do nothing.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.mu.Lock()
		if l.timer != nil {
			l.timer.Stop()
		}
		l.mu.Unlock()
		l.released.Store(true)
	})
}

// Released reports whether the lease has ended.
func (l *Lease) Released() bool {
	return l.released.Load()
}

// TimedLeaser grants leases that expire after Timeout.
type TimedLeaser struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

func (t TimedLeaser) Acquire(name string, onExpire func()) *Lease {
	l := &Lease{name: name}
	// Held until timer is assigned; an immediate expiry waits in Release.
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timer = time.AfterFunc(t.Timeout, func() {
		if l.Released() {
			return
		}
		t.Logger.Warn("lease expired before release", "lease", name, "timeout", t.Timeout)
		if onExpire != nil {
			onExpire()
		}
		l.Release()
	})
	return l
}

// Reachability reports whether the network is usable.
type Reachability interface {
	Reachable(ctx context.Context) bool
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func(ctx context.Context) bool

func (f ReachabilityFunc) Reachable(ctx context.Context) bool { return f(ctx) }

// DialCheck considers the network reachable when a TCP connection to Address
// can be opened within Timeout.
type DialCheck struct {
	Address string
	Timeout time.Duration
}

func (p DialCheck) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
