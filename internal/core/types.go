package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity is an ordered event level. Values follow the monitoring host's
// numeric scale so they compare directly.
type Severity int

const (
	SeverityUnset    Severity = 0
	SeverityDebug    Severity = 10
	SeverityInfo     Severity = 20
	SeverityWarning  Severity = 30
	SeverityError    Severity = 40
	SeverityCritical Severity = 50
)

var severityNames = map[Severity]string{
	SeverityDebug:    "DEBUG",
	SeverityInfo:     "INFO",
	SeverityWarning:  "WARNING",
	SeverityError:    "ERROR",
	SeverityCritical: "CRITICAL",
}

var severityAliases = map[string]Severity{
	"debug":    SeverityDebug,
	"info":     SeverityInfo,
	"warning":  SeverityWarning,
	"warn":     SeverityWarning,
	"error":    SeverityError,
	"critical": SeverityCritical,
	"fatal":    SeverityCritical,
}

// ParseSeverity accepts a level name (case-insensitive) or its numeric value.
// An empty string yields SeverityUnset.
func ParseSeverity(s string) (Severity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SeverityUnset, nil
	}
	if sev, ok := severityAliases[strings.ToLower(s)]; ok {
		return sev, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := severityNames[Severity(n)]; ok {
			return Severity(n), nil
		}
	}
	return SeverityUnset, fmt.Errorf("unknown severity %q", s)
}

// String returns the uppercase level name.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	if s == SeverityUnset {
		return "NOTSET"
	}
	return fmt.Sprintf("LEVEL(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	if s == SeverityUnset {
		return []byte{}, nil
	}
	return []byte(strings.ToLower(s.String())), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// UnmarshalJSON accepts both "error" and 40.
func (s *Severity) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	if text == "null" {
		return nil
	}
	return s.UnmarshalText([]byte(text))
}

// Priority is the provider's message priority.
type Priority int

const (
	PriorityQuiet  Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

// ParsePriority accepts quiet/normal/high, the numeric form, or the legacy
// boolean toggle where true meant high priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "0", "false":
		return PriorityNormal, nil
	case "quiet", "low", "-1":
		return PriorityQuiet, nil
	case "high", "1", "true":
		return PriorityHigh, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) String() string {
	switch p {
	case PriorityQuiet:
		return "quiet"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// FormValue is the scalar the provider expects in the priority field.
func (p Priority) FormValue() string {
	return strconv.Itoa(int(p))
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Sound is a provider notification sound.
type Sound string

// DefaultSound is used when a project does not pick one.
const DefaultSound Sound = "pushover"

// KnownSounds lists the sounds the provider accepts.
var KnownSounds = []Sound{
	"pushover", "bike", "bugle", "cashregister", "classical", "cosmic",
	"falling", "gamelan", "incoming", "intermission", "magic", "mechanical",
	"pianobar", "siren", "spacealarm", "tugboat", "alien", "climb",
	"persistent", "echo", "updown", "none",
}

// ParseSound validates a sound name. Empty selects the default.
func ParseSound(s string) (Sound, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultSound, nil
	}
	for _, known := range KnownSounds {
		if Sound(s) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown sound %q", s)
}

// OrDefault returns s, or DefaultSound when s is empty.
func (s Sound) OrDefault() Sound {
	if s == "" {
		return DefaultSound
	}
	return s
}

// Credentials are the opaque provider keys of a project.
type Credentials struct {
	UserKey  string
	APIToken string
}

// Configuration holds the notification settings of one project.
type Configuration struct {
	Slug            string
	Name            string
	UserKey         string
	APIToken        string
	NotifyOnlyNew   bool
	MinimumSeverity Severity
	Sound           Sound
	Priority        Priority
}

// Configured reports whether the project has everything needed to deliver.
func (c Configuration) Configured() bool {
	return strings.TrimSpace(c.UserKey) != "" &&
		strings.TrimSpace(c.APIToken) != "" &&
		c.MinimumSeverity != SeverityUnset
}

// Credentials returns the provider credentials of the project.
func (c Configuration) Credentials() Credentials {
	return Credentials{UserKey: c.UserKey, APIToken: c.APIToken}
}

// DisplayName is the name used in notification titles.
func (c Configuration) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Slug
}

// Payload is a fully resolved notification ready for delivery.
type Payload struct {
	Title    string
	Body     string
	URL      string
	URLTitle string
	Sound    Sound
	Priority Priority
}

// Receipt describes what the provider answered to a delivery attempt.
type Receipt struct {
	StatusCode   int
	RequestID    string
	Attempts     int
	Diagnostic   string
	AppRemaining int // -1 when the provider did not report it
}

// Outcome summarises a dispatch.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of one dispatch, returned to the caller instead of
// raising.
type Result struct {
	ID         string         `json:"id"`
	Project    string         `json:"project"`
	Kind       OccurrenceKind `json:"kind"`
	Outcome    Outcome        `json:"outcome"`
	Err        *Error         `json:"-"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Title      string         `json:"title,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Diagnostic string         `json:"diagnostic,omitempty"`
	Duration   time.Duration  `json:"duration_ns"`
	At         time.Time      `json:"at"`
}

// Delivered reports whether the provider accepted the notification.
func (r Result) Delivered() bool { return r.Outcome == OutcomeDelivered }

// Skipped reports whether the occurrence was gated out.
func (r Result) Skipped() bool { return r.Outcome == OutcomeSkipped }

// Failed reports whether the dispatch failed.
func (r Result) Failed() bool { return r.Outcome == OutcomeFailed }
