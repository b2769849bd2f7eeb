package agent

import loggerpkg "github.com/minhyannv/terminal174/pkg/logger"

// Option configures optional runtime dependencies for Agent.
type Option func(*agentDeps)

type agentDeps struct {
	logger      loggerpkg.Logger
	verbose     bool
	display     Display
	confirmer   Confirmer
	maxCommands int
	systemInfo  func() string
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(d *agentDeps) {
		d.logger = l
		d.verbose = verbose
	}
}

// WithDisplay sets where talk text and command notices go.
func WithDisplay(disp Display) Option {
	return func(d *agentDeps) {
		d.display = disp
	}
}

// WithConfirmer asks before every command. Without one, commands run immediately.
func WithConfirmer(c Confirmer) Option {
	return func(d *agentDeps) {
		d.confirmer = c
	}
}

// WithMaxCommands caps the commands one user turn may run. Zero means no cap.
func WithMaxCommands(n int) Option {
	return func(d *agentDeps) {
		d.maxCommands = n
	}
}

// WithSystemInfo replaces the environment block attached to user turns.
func WithSystemInfo(fn func() string) Option {
	return func(d *agentDeps) {
		d.systemInfo = fn
	}
}
