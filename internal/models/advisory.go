package models

import "fmt"

// Severity grades a condition raised by the model host during mutation.
type Severity int

const (
	// SeverityWarning is a non-fatal structural warning that may be dismissed.
	SeverityWarning Severity = iota
	// SeverityError is fatal; the enclosing transaction must abort.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Advisory is a condition raised by the host while the graph is being mutated.
type Advisory struct {
	Severity Severity
	Element  string // key of the element the condition refers to
	Message  string
}

// Fatal reports whether the advisory cannot be dismissed.
func (a Advisory) Fatal() bool {
	return a.Severity >= SeverityError
}

func (a Advisory) String() string {
	return fmt.Sprintf("%s: %s: %s", a.Severity, a.Element, a.Message)
}
