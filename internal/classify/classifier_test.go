package classify

import (
	"testing"

	"github.com/cortexops/dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  domain.ExecutorClass
	}{
		{
			name:  "implement tag routes to agent",
			title: "[implement] Add retry logic",
			want:  domain.ExecutorAgent,
		},
		{
			name:  "fix tag routes to agent",
			title: "[fix] Claim race in runner",
			want:  domain.ExecutorAgent,
		},
		{
			name:  "review tag routes to human assisted",
			title: "[review] Queue store transaction boundaries",
			want:  domain.ExecutorHumanAssisted,
		},
		{
			name:  "human tag routes to human only",
			title: "[human] Sign the vendor contract",
			want:  domain.ExecutorHumanOnly,
		},
		{
			name:  "matching is case insensitive",
			title: "[IMPLEMENT] Add retry logic",
			want:  domain.ExecutorAgent,
		},
		{
			name:  "leading whitespace is ignored",
			title: "  [build] Provision staging database",
			want:  domain.ExecutorAgent,
		},
		{
			name:  "untagged title defaults to human only",
			title: "Write the quarterly report",
			want:  domain.ExecutorHumanOnly,
		},
		{
			name:  "unknown tag defaults to human only",
			title: "[deploy] Push release 1.4",
			want:  domain.ExecutorHumanOnly,
		},
		{
			name:  "tag in the middle of the title does not match",
			title: "Remember to [implement] the thing",
			want:  domain.ExecutorHumanOnly,
		},
		{
			name:  "legacy claude-code tag aliases to agent",
			title: "[claude-code] Migrate config loader",
			want:  domain.ExecutorAgent,
		},
		{
			name:  "legacy claude-ai tag aliases to human assisted",
			title: "[claude-ai] Outline incident postmortem",
			want:  domain.ExecutorHumanAssisted,
		},
		{
			name:  "legacy de-agent tag aliases to human only",
			title: "[de-agent] Approve access request",
			want:  domain.ExecutorHumanOnly,
		},
		{
			name:  "empty title defaults to human only",
			title: "",
			want:  domain.ExecutorHumanOnly,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.title))
		})
	}
}
