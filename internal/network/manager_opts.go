package network

import "time"

type ManagerOpt func(*Manager)

// WithClock replaces the wall clock used for reconnect timing.
func WithClock(now func() time.Time) ManagerOpt {
	return func(m *Manager) {
		m.now = now
	}
}

// WithFatalHandler replaces the process exit taken when the server cannot
// start.
func WithFatalHandler(fn func(error)) ManagerOpt {
	return func(m *Manager) {
		m.fatal = fn
	}
}

// WithReconnectPolicy sets the retry budgets and the delay between attempts.
// initial applies right after Connect; reconnect applies once a connection
// has been confirmed live.
func WithReconnectPolicy(initial, reconnect int, interval time.Duration) ManagerOpt {
	return func(m *Manager) {
		m.initialAttempts = initial
		m.reconnectAttempts = reconnect
		m.reconnectInterval = interval
	}
}

func WithDialTimeout(d time.Duration) ManagerOpt {
	return func(m *Manager) {
		m.dialTimeout = d
	}
}

// WithDefaultTransport names the transport used when none is requested.
func WithDefaultTransport(name string) ManagerOpt {
	return func(m *Manager) {
		m.defaultTransport = name
	}
}
