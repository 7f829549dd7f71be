package domain

// RiskRule defines one human-readable risk factor check.
type RiskRule struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`

	// CEL expression over the record variables; must return bool
	Expression string `json:"expression" yaml:"expression"`

	// Reason is the text emitted when Expression holds.
	// "{value}" is replaced with the rendered value of ValueVar.
	Reason   string `json:"reason" yaml:"reason"`
	ValueVar string `json:"valueVar,omitempty" yaml:"valueVar,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled" yaml:"enabled"`
}
