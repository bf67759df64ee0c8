package engine

import "errors"

// ErrConfiguration wraps invalid startup configuration (spec.md §7's
// ConfigurationError). Use errors.Is(err, ErrConfiguration) to detect it.
var ErrConfiguration = errors.New("engine: invalid configuration")

// ErrNotRunning is returned by operations that require a started engine.
var ErrNotRunning = errors.New("engine: not running")

// ErrAlreadyRunning is returned by Start on an engine that is already up.
var ErrAlreadyRunning = errors.New("engine: already running")
