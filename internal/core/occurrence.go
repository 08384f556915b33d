package core

import (
	"fmt"
	"strings"
)

// OccurrenceKind distinguishes the inbound shapes.
type OccurrenceKind string

const (
	KindEvent OccurrenceKind = "event"
	KindAlert OccurrenceKind = "alert"
)

// Occurrence is something that may deserve a notification.
type Occurrence interface {
	Kind() OccurrenceKind
	Level() Severity
	Title(project string) string
	Body() string
	Link() string
}

// Section is one rendered event interface, e.g. a stack trace or request.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ErrorEvent is an error captured by the monitoring host.
type ErrorEvent struct {
	Group      string            `json:"group"`
	GroupID    int64             `json:"group_id,omitempty"`
	Severity   Severity          `json:"level"`
	ServerName string            `json:"server_name"`
	Logger     string            `json:"logger"`
	Message    string            `json:"message"`
	ErrorText  string            `json:"error,omitempty"`
	URL        string            `json:"url,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Sections   []Section         `json:"sections,omitempty"`
}

func (e ErrorEvent) Kind() OccurrenceKind { return KindEvent }

func (e ErrorEvent) Level() Severity { return e.Severity }

func (e ErrorEvent) Title(project string) string {
	return fmt.Sprintf("[%s] %s", project, strings.ToUpper(e.Severity.String()))
}

// Body renders the first line of the error followed by the event metadata
// and every non-empty section.
func (e ErrorEvent) Body() string {
	var sb strings.Builder

	sb.WriteString(firstLine(e.ErrorText))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Server: %s\n", e.ServerName)
	fmt.Fprintf(&sb, "Group: %s\n", e.Group)
	fmt.Fprintf(&sb, "Logger: %s\n", e.Logger)
	fmt.Fprintf(&sb, "Message: %s", e.Message)

	for _, sec := range e.Sections {
		text := strings.TrimSpace(sec.Text)
		if text == "" {
			continue
		}
		sb.WriteString("\n\n")
		if sec.Title != "" {
			sb.WriteString(sec.Title)
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	return sb.String()
}

func (e ErrorEvent) Link() string { return e.URL }

// Alert is a free-text alert raised by the monitoring host.
type Alert struct {
	Message  string   `json:"message"`
	URL      string   `json:"url,omitempty"`
	Severity Severity `json:"level,omitempty"`
}

func (a Alert) Kind() OccurrenceKind { return KindAlert }

// Level defaults to ERROR when the host did not grade the alert.
func (a Alert) Level() Severity {
	if a.Severity == SeverityUnset {
		return SeverityError
	}
	return a.Severity
}

func (a Alert) Title(project string) string {
	return fmt.Sprintf("[%s] ALERT", project)
}

func (a Alert) Body() string { return a.Message }

func (a Alert) Link() string { return a.URL }

// GroupLink builds the host's link to an event group, e.g.
// https://monitor.example.com/backend/group/42/.
func GroupLink(prefix, project string, groupID int64) string {
	if prefix == "" || project == "" || groupID <= 0 {
		return ""
	}
	return fmt.Sprintf("%s/%s/group/%d/", strings.TrimSuffix(prefix, "/"), project, groupID)
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
