// Package classify maps task titles to executor classes using an ordered
// list of prefix-tag rules. Classification is pure and total: titles with
// no recognized tag fall back to human-only, because when the system is
// unsure, a person must look at the work.
package classify

import (
	"strings"

	"github.com/cortexops/dispatch/internal/domain"
)

// rule is one classification pattern: a bracketed prefix tag and the class
// it selects. Rules are evaluated in order and the first match wins.
type rule struct {
	tag   string
	class domain.ExecutorClass
}

// rules is the single authoritative tag table. Legacy tag spellings from
// earlier deployments are folded in alongside the current ones.
var rules = []rule{
	// Autonomous-agent work
	{tag: "[implement]", class: domain.ExecutorAgent},
	{tag: "[build]", class: domain.ExecutorAgent},
	{tag: "[fix]", class: domain.ExecutorAgent},
	{tag: "[refactor]", class: domain.ExecutorAgent},
	{tag: "[test]", class: domain.ExecutorAgent},
	{tag: "[code]", class: domain.ExecutorAgent},
	{tag: "[auto]", class: domain.ExecutorAgent},
	{tag: "[claude-code]", class: domain.ExecutorAgent},

	// Human-assisted work
	{tag: "[review]", class: domain.ExecutorHumanAssisted},
	{tag: "[design]", class: domain.ExecutorHumanAssisted},
	{tag: "[pair]", class: domain.ExecutorHumanAssisted},
	{tag: "[draft]", class: domain.ExecutorHumanAssisted},
	{tag: "[research]", class: domain.ExecutorHumanAssisted},
	{tag: "[claude-ai]", class: domain.ExecutorHumanAssisted},

	// Human-only work
	{tag: "[human]", class: domain.ExecutorHumanOnly},
	{tag: "[manual]", class: domain.ExecutorHumanOnly},
	{tag: "[call]", class: domain.ExecutorHumanOnly},
	{tag: "[meet]", class: domain.ExecutorHumanOnly},
	{tag: "[errand]", class: domain.ExecutorHumanOnly},
	{tag: "[de-agent]", class: domain.ExecutorHumanOnly},
}

// Classify returns the executor class for the given task title.
// Matching is a case-insensitive prefix comparison against the bracketed
// tag at the start of the title; leading whitespace is ignored. Titles
// without a recognized tag classify as human-only. This function never
// fails: an absent tag is not an error, it is the default-to-human policy.
func Classify(title string) domain.ExecutorClass {
	normalized := strings.ToLower(strings.TrimSpace(title))

	for _, r := range rules {
		if strings.HasPrefix(normalized, r.tag) {
			return r.class
		}
	}

	return domain.ExecutorHumanOnly
}
