package masking

import (
	"log/slog"
	"regexp"
	"slices"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// resolvedPatterns holds the resolved set of maskers and patterns for a
// masking operation.
type resolvedPatterns struct {
	codeMaskerNames []string
	regexPatterns   []*CompiledPattern
}

// compileBuiltinPatterns compiles every builtinPatterns() entry. Invalid
// patterns are logged and skipped.
func (s *Service) compileBuiltinPatterns() {
	for name, pattern := range builtinPatterns() {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
}

// resolvePatternsFromGroup resolves a single pattern group name into a
// deduplicated resolvedPatterns.
func (s *Service) resolvePatternsFromGroup(groupName string) *resolvedPatterns {
	seen := make(map[string]bool)
	resolved := &resolvedPatterns{}

	groupPatterns, ok := s.patternGroups[groupName]
	if !ok {
		return resolved
	}

	for _, name := range groupPatterns {
		if seen[name] {
			continue
		}
		seen[name] = true
		s.addToResolved(resolved, name)
	}

	return resolved
}

// addToResolved adds a pattern name to the resolved set, categorizing it
// as either a code masker or a regex pattern.
func (s *Service) addToResolved(resolved *resolvedPatterns, name string) {
	if slices.Contains(builtinCodeMaskers(), name) {
		resolved.codeMaskerNames = append(resolved.codeMaskerNames, name)
		return
	}
	if cp, ok := s.patterns[name]; ok {
		resolved.regexPatterns = append(resolved.regexPatterns, cp)
	}
}
