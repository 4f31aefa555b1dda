package popup

import (
	"errors"
	"time"
)

const (
	DefaultNamespace   = "kntnt_popup"
	DefaultClassPrefix = "kntnt-popup"
	// DefaultDataGlobal is the window property the server layer publishes
	// the {"popups": [...]} document under.
	DefaultDataGlobal = "kntntPopupData"

	// DefaultRecordRetention bounds how long a close record is kept.
	DefaultRecordRetention = 30 * 24 * time.Hour

	DefaultOpenDuration  = 300 * time.Millisecond
	DefaultCloseDuration = 200 * time.Millisecond

	// ExitIntentDebounce filters pointer jitter along the top edge.
	ExitIntentDebounce = 100 * time.Millisecond

	OpenTriggerAttr  = "data-popup-open"
	CloseTriggerAttr = "data-popup-close"
	OpenClass        = "is-open"

	OpenAnimationAttr  = "data-open-animation"
	CloseAnimationAttr = "data-close-animation"
)

// Lifecycle event suffixes. The dispatched name is "<namespace>:<suffix>".
const (
	EventBeforeOpen = "before_open"
	EventAfterOpen  = "after_open"
	EventAfterClose = "after_close"
)

// EventName returns the document event name for suffix.
func EventName(namespace, suffix string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":" + suffix
}

var (
	ErrNoRenderer         = errors.New("popup: modal renderer not available")
	ErrNoDocument         = errors.New("popup: document not available")
	ErrNoLoop             = errors.New("popup: event loop not available")
	ErrInvalidConfig      = errors.New("popup: invalid configuration")
	ErrAlreadyInitialized = errors.New("popup: engine already initialized")
	ErrDestroyed          = errors.New("popup: engine destroyed")
)

// Config is the validated, immutable configuration of one popup instance.
// Nil pointers and empty animation names mean "absent".
type Config struct {
	InstanceID string

	ShowOnExitIntent bool
	ShowAfterTime    *int // seconds
	ShowAfterScroll  *int // percent, 0..100

	CloseButtonLabel    *string
	CloseOnOutsideClick bool

	ReappearDelaySeconds int
	IsModal              bool
	CloseOnEscape        bool

	OpenAnimation            string
	CloseAnimation           string
	OpenAnimationDurationMs  *int
	CloseAnimationDurationMs *int
}

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusArmed     Status = "armed"
	StatusTriggered Status = "triggered"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
)

// Source names the producer of a trigger attempt.
type Source string

const (
	SourceTimer      Source = "timer"
	SourceScroll     Source = "scroll"
	SourceExitIntent Source = "exit_intent"
	SourceManual     Source = "manual"
	SourceAPI        Source = "api"
)

// Outcome is the arbiter's verdict on a trigger attempt.
type Outcome string

const (
	OutcomeWon        Outcome = "won"
	OutcomeNotArmed   Outcome = "not_armed"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeUnknown    Outcome = "unknown"
)

// IntPtr is a convenience for building configs in code.
func IntPtr(v int) *int { return &v }

// StringPtr is a convenience for building configs in code.
func StringPtr(v string) *string { return &v }
