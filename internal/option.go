package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	verbosity int
	recreate  bool
	version   string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput sets where logs are written. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithVerbosity lowers the configured log level: 1 for info, 2 or more for debug.
func WithVerbosity(v int) Option {
	return func(a *application) {
		a.verbosity = v
	}
}

// WithRecreateIndex replaces an index that fails to open as corrupt with an
// empty one instead of failing.
func WithRecreateIndex(recreate bool) Option {
	return func(a *application) {
		a.recreate = recreate
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
