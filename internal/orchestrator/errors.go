package orchestrator

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while another session is live.
	ErrAlreadyRunning = errors.New("a session is already running")
	// ErrMissingCredentials is returned by Start when an agent cannot be configured.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidLanguage is returned by Start for a malformed language tag.
	ErrInvalidLanguage = errors.New("invalid language code")
	// ErrNotActive is returned by operations that need an active session.
	ErrNotActive = errors.New("no active session")
	// ErrStartAborted is returned by Start when the session failed before it became active.
	ErrStartAborted = errors.New("session failed while starting")
)
