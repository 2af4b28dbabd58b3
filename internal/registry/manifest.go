// Package registry loads and validates the detector manifest: the
// declarative document describing which detectors exist, which wave and
// priority they run at, what trigger condition gates them, and what signal
// keys they are allowed to publish.
package registry

// TriggerKind names one of the trigger condition DSL operators.
type TriggerKind string

const (
	TriggerSignalExists      TriggerKind = "SignalExists"
	TriggerSignalEquals      TriggerKind = "SignalEquals"
	TriggerSignalGreaterThan TriggerKind = "SignalGreaterThan"
	TriggerAnyOf             TriggerKind = "AnyOf"
	TriggerAllOf             TriggerKind = "AllOf"
	TriggerAlways            TriggerKind = "Always"
)

// Trigger is one node of the trigger condition DSL. Leaf nodes
// (SignalExists, SignalEquals, SignalGreaterThan) reference a signal Key;
// composite nodes (AnyOf, AllOf) hold child triggers in Of.
type Trigger struct {
	Kind TriggerKind `yaml:"kind"`
	Key  string      `yaml:"key"`

	// BoolValue/StrValue/RealValue: exactly one is meaningful for
	// SignalEquals, selected by which is set in the manifest (checked in
	// bool, str, real order).
	BoolValue *bool    `yaml:"bool_value,omitempty"`
	StrValue  *string  `yaml:"str_value,omitempty"`
	RealValue *float64 `yaml:"real_value,omitempty"`

	Of []Trigger `yaml:"of,omitempty"`
}

// DetectorManifest describes one registered detector.
type DetectorManifest struct {
	Name       string            `yaml:"name"`
	Wave       int               `yaml:"wave"`
	Priority   int               `yaml:"priority"`
	Enabled    bool              `yaml:"enabled"`
	BudgetMs   int               `yaml:"budget_ms"`
	BotWeight  float64           `yaml:"bot_weight"`
	HumanWeight float64          `yaml:"human_weight"`
	Trigger    Trigger           `yaml:"trigger"`
	Outputs    []string          `yaml:"outputs"`
	Params     map[string]string `yaml:"params"`
}

// Document is the top-level manifest YAML shape.
type Document struct {
	Detectors []DetectorManifest `yaml:"detectors"`
}
