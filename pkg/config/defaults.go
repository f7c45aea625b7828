package config

// Defaults contains system-wide default configurations applied when a
// job admission or section write doesn't specify its own values.
type Defaults struct {
	// DefaultCyclesRequested is used when admit_job omits cycles (clamped
	// to 1-5 regardless, see pkg/kernel.AdmitJob).
	DefaultCyclesRequested int `yaml:"default_cycles_requested,omitempty"`

	// DefaultLengthPages targets a section/document length for the
	// planner and writer prompts. Corresponds to
	// DOCWRITER_DEFAULT_LENGTH_PAGES.
	DefaultLengthPages int `yaml:"default_length_pages,omitempty"`

	// DefaultAudience is used when admit_job omits an audience.
	DefaultAudience string `yaml:"default_audience,omitempty"`

	// Masking settings applied to intake answers and free-text input
	// before persistence or LLM submission.
	Masking *MaskingDefaults `yaml:"masking,omitempty"`
}

// MaskingDefaults holds secret-masking settings applied system-wide to
// intake answers and free-text user input.
type MaskingDefaults struct {
	Enabled      bool   `yaml:"enabled"`
	PatternGroup string `yaml:"pattern_group"`
}

// DefaultDefaults returns the built-in application defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		DefaultCyclesRequested: 2,
		DefaultLengthPages:     60,
		DefaultAudience:        "general",
		Masking: &MaskingDefaults{
			Enabled:      true,
			PatternGroup: "security",
		},
	}
}
