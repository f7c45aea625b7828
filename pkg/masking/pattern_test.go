package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	svc := NewService(true, "all")

	assert.Equal(t, len(builtinPatterns()), len(svc.patterns))

	for name, cp := range svc.patterns {
		assert.NotNil(t, cp.Regex, "pattern %s should have a compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "pattern %s should have a replacement", name)
	}
}

func TestResolvePatternsFromGroup(t *testing.T) {
	svc := NewService(true, "security")

	tests := []struct {
		name           string
		group          string
		minRegex       int
		hasCodeMaskers bool
	}{
		{name: "basic group", group: "basic", minRegex: 2},
		{name: "secrets group", group: "secrets", minRegex: 5},
		{name: "security group", group: "security", minRegex: 6},
		{name: "kubernetes group", group: "kubernetes", minRegex: 2, hasCodeMaskers: true},
		{name: "cloud group", group: "cloud", minRegex: 4},
		{name: "all group", group: "all", minRegex: 12},
		{name: "unknown group", group: "nonexistent", minRegex: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := svc.resolvePatternsFromGroup(tt.group)
			assert.GreaterOrEqual(t, len(resolved.regexPatterns), tt.minRegex)
			if tt.hasCodeMaskers {
				assert.Contains(t, resolved.codeMaskerNames, "kubernetes_secret")
			}
		})
	}
}

func TestResolvePatternsFromGroup_Deduplication(t *testing.T) {
	svc := NewService(true, "all")

	resolved := svc.resolvePatternsFromGroup("all")
	seen := make(map[string]int)
	for _, p := range resolved.regexPatterns {
		seen[p.Name]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "pattern %s should appear only once", name)
	}
}
