package masking

import "log/slog"

// Service applies secret masking to intake answers and other free-text
// user input before it is persisted to the Object Store or sent to the
// LLM Gateway. Created once at application startup (singleton).
// Thread-safe and stateless aside from its compiled patterns.
type Service struct {
	patterns      map[string]*CompiledPattern // built-in compiled patterns
	patternGroups map[string][]string         // group name → pattern names
	codeMaskers   map[string]Masker           // registered code-based maskers
	enabled       bool
	patternGroup  string
}

// NewService creates a masking service with every built-in pattern
// compiled eagerly. Invalid patterns are logged and skipped.
func NewService(enabled bool, patternGroup string) *Service {
	s := &Service{
		patterns:      make(map[string]*CompiledPattern),
		patternGroups: builtinPatternGroups(),
		codeMaskers:   make(map[string]Masker),
		enabled:       enabled,
		patternGroup:  patternGroup,
	}

	s.compileBuiltinPatterns()
	s.registerMasker(&KubernetesSecretMasker{})

	slog.Info("Masking service initialized",
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers),
		"enabled", enabled,
		"pattern_group", patternGroup)

	return s
}

// Mask applies the configured pattern group to text, fail-closed: a
// masking failure redacts the whole input rather than risking a leak.
// Satisfies pkg/stages.Masker.
func (s *Service) Mask(text string) string {
	if s == nil || !s.enabled || text == "" {
		return text
	}

	resolved := s.resolvePatternsFromGroup(s.patternGroup)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return text
	}

	masked, err := s.applyMasking(text, resolved)
	if err != nil {
		slog.Error("masking failed, redacting content (fail-closed)", "error", err)
		return "[REDACTED: data masking failure — input could not be safely processed]"
	}
	return masked
}

// applyMasking applies code-based maskers then regex patterns to content.
func (s *Service) applyMasking(content string, resolved *resolvedPatterns) (string, error) {
	masked := content

	for _, maskerName := range resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[maskerName]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	for _, pattern := range resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked, nil
}

func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
