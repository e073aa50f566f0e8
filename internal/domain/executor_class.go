package domain

import "errors"

// ExecutorClass determines who performs a queued unit of work: an
// autonomous agent, a human assisted by an agent, or a human alone.
type ExecutorClass string

// Possible executor classes, from most to least automated.
const (
	ExecutorAgent         ExecutorClass = "agent"
	ExecutorHumanAssisted ExecutorClass = "human_assisted"
	ExecutorHumanOnly     ExecutorClass = "human_only"
)

// ErrInvalidExecutorClass is returned when an executor class string does not
// name a known class.
var ErrInvalidExecutorClass = errors.New("invalid executor class")

// ParseExecutorClass converts a string into an ExecutorClass.
// Legacy spellings used by earlier deployments alias onto current classes.
func ParseExecutorClass(s string) (ExecutorClass, error) {
	switch s {
	case string(ExecutorAgent), "ai", "claude-code":
		return ExecutorAgent, nil
	case string(ExecutorHumanAssisted), "human-ai", "claude-ai":
		return ExecutorHumanAssisted, nil
	case string(ExecutorHumanOnly), "human", "de-agent":
		return ExecutorHumanOnly, nil
	default:
		return "", ErrInvalidExecutorClass
	}
}

// IsValid reports whether the class is one of the known executor classes.
func (c ExecutorClass) IsValid() bool {
	switch c {
	case ExecutorAgent, ExecutorHumanAssisted, ExecutorHumanOnly:
		return true
	default:
		return false
	}
}

// AllExecutorClasses returns every known class; the order matches the
// degree of automation, most automated first.
func AllExecutorClasses() []ExecutorClass {
	return []ExecutorClass{ExecutorAgent, ExecutorHumanAssisted, ExecutorHumanOnly}
}
