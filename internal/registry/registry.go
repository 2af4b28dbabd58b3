package registry

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/ocx/sentinel/internal/config"
)

//go:embed defaults.yaml
var embeddedFS embed.FS

// Registry holds the validated, override-applied detector manifest and
// exposes it partitioned into priority-ordered waves.
type Registry struct {
	byName map[string]DetectorManifest
	waves  map[int][]DetectorManifest
}

// Load builds a Registry from the embedded default manifest, an optional
// on-disk manifest override file named by cfg.Engine.ManifestPath, and
// per-detector field overrides from cfg.Detection. Returns an error if the
// resulting manifest fails validation.
func Load(cfg *config.Config) (*Registry, error) {
	doc, err := loadDocument(embeddedFS, "defaults.yaml")
	if err != nil {
		return nil, fmt.Errorf("registry: load embedded defaults: %w", err)
	}

	if cfg.Engine.ManifestPath != "" {
		if overrideDoc, err := loadFromDisk(cfg.Engine.ManifestPath); err == nil {
			doc = mergeDocuments(doc, overrideDoc)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("registry: load manifest override %s: %w", cfg.Engine.ManifestPath, err)
		}
	}

	applyConfigOverrides(doc, cfg)

	if err := validate(doc); err != nil {
		return nil, err
	}

	return build(doc), nil
}

func loadDocument(fsys embed.FS, name string) (*Document, error) {
	raw, err := fsys.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func loadFromDisk(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// mergeDocuments overlays override's detectors onto base by name: an
// override entry replaces the base entry of the same name wholesale, and
// any new names are appended.
func mergeDocuments(base, override *Document) *Document {
	merged := make(map[string]DetectorManifest, len(base.Detectors))
	order := make([]string, 0, len(base.Detectors))
	for _, d := range base.Detectors {
		merged[d.Name] = d
		order = append(order, d.Name)
	}
	for _, d := range override.Detectors {
		if _, exists := merged[d.Name]; !exists {
			order = append(order, d.Name)
		}
		merged[d.Name] = d
	}
	out := &Document{Detectors: make([]DetectorManifest, 0, len(order))}
	for _, name := range order {
		out.Detectors = append(out.Detectors, merged[name])
	}
	return out
}

// applyConfigOverrides merges Detection.<Name>.<field> config overrides into
// the manifest in place.
func applyConfigOverrides(doc *Document, cfg *config.Config) {
	for i := range doc.Detectors {
		d := &doc.Detectors[i]
		o, ok := cfg.OverrideFor(d.Name)
		if !ok {
			continue
		}
		if o.Enabled != nil {
			d.Enabled = *o.Enabled
		}
		if o.Priority != nil {
			d.Priority = *o.Priority
		}
		if o.BudgetMs != nil {
			d.BudgetMs = *o.BudgetMs
		}
		if len(o.Params) > 0 {
			if d.Params == nil {
				d.Params = make(map[string]string)
			}
			for k, v := range o.Params {
				d.Params[k] = v
			}
		}
	}
}

// validate enforces the manifest invariants: unique names, non-negative
// waves/budgets, known trigger kinds, exclusive output ownership, and no
// trigger referencing a key that is only published in a later wave. Keys no
// detector outputs are accepted as external signals.
func validate(doc *Document) error {
	seenNames := make(map[string]bool)
	outputOwner := make(map[string]string)
	outputWave := make(map[string]int)

	for _, d := range doc.Detectors {
		if d.Name == "" {
			return fmt.Errorf("registry: detector with empty name")
		}
		if seenNames[d.Name] {
			return fmt.Errorf("registry: duplicate detector name %q", d.Name)
		}
		seenNames[d.Name] = true

		if d.Wave < 0 {
			return fmt.Errorf("registry: detector %q has negative wave", d.Name)
		}
		if d.BudgetMs < 0 {
			return fmt.Errorf("registry: detector %q has negative budget_ms", d.Name)
		}
		for _, out := range d.Outputs {
			if owner, exists := outputOwner[out]; exists {
				return fmt.Errorf("registry: output %q claimed by both %q and %q", out, owner, d.Name)
			}
			outputOwner[out] = d.Name
			outputWave[out] = d.Wave
		}
		if err := validateTrigger(d.Trigger); err != nil {
			return fmt.Errorf("registry: detector %q: %w", d.Name, err)
		}
	}

	for _, d := range doc.Detectors {
		if err := checkTriggerReferences(d, outputOwner, outputWave); err != nil {
			return err
		}
	}

	return nil
}

func validateTrigger(t Trigger) error {
	switch t.Kind {
	case TriggerAlways, TriggerSignalExists:
		return nil
	case TriggerSignalEquals:
		if t.BoolValue == nil && t.StrValue == nil && t.RealValue == nil {
			return fmt.Errorf("SignalEquals on %q has no comparison value", t.Key)
		}
		return nil
	case TriggerSignalGreaterThan:
		if t.RealValue == nil {
			return fmt.Errorf("SignalGreaterThan on %q has no threshold", t.Key)
		}
		return nil
	case TriggerAnyOf, TriggerAllOf:
		if len(t.Of) == 0 {
			return fmt.Errorf("%s has no child triggers", t.Kind)
		}
		for _, child := range t.Of {
			if err := validateTrigger(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
}

func checkTriggerReferences(d DetectorManifest, outputOwner map[string]string, outputWave map[string]int) error {
	return walkTriggerKeys(d.Trigger, func(key string) error {
		wave, exists := outputOwner[key]
		if !exists {
			return nil // external signal (e.g. request metadata key not produced by a detector)
		}
		_ = wave
		if outputWave[key] > d.Wave {
			return fmt.Errorf("registry: detector %q (wave %d) triggers on %q, which is only published in wave %d",
				d.Name, d.Wave, key, outputWave[key])
		}
		return nil
	})
}

func walkTriggerKeys(t Trigger, fn func(string) error) error {
	if t.Key != "" {
		if err := fn(t.Key); err != nil {
			return err
		}
	}
	for _, child := range t.Of {
		if err := walkTriggerKeys(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func build(doc *Document) *Registry {
	r := &Registry{
		byName: make(map[string]DetectorManifest, len(doc.Detectors)),
		waves:  make(map[int][]DetectorManifest),
	}
	for _, d := range doc.Detectors {
		r.byName[d.Name] = d
		r.waves[d.Wave] = append(r.waves[d.Wave], d)
	}
	for wave := range r.waves {
		sort.SliceStable(r.waves[wave], func(i, j int) bool {
			return r.waves[wave][i].Priority < r.waves[wave][j].Priority
		})
	}
	return r
}

// Waves returns the detector manifests partitioned by wave number, in
// ascending wave order. Detectors within a wave are ordered by priority but
// that order carries no scheduling guarantee beyond determinism of this
// slice; the orchestrator runs a wave's detectors concurrently.
func (r *Registry) Waves() [][]DetectorManifest {
	numbers := make([]int, 0, len(r.waves))
	for w := range r.waves {
		numbers = append(numbers, w)
	}
	sort.Ints(numbers)

	out := make([][]DetectorManifest, 0, len(numbers))
	for _, w := range numbers {
		out = append(out, r.waves[w])
	}
	return out
}

// Get returns a detector's manifest by name.
func (r *Registry) Get(name string) (DetectorManifest, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Len returns the total number of registered detectors, enabled or not.
func (r *Registry) Len() int {
	return len(r.byName)
}

// EnabledCount returns the number of detectors currently enabled.
func (r *Registry) EnabledCount() int {
	n := 0
	for _, d := range r.byName {
		if d.Enabled {
			n++
		}
	}
	return n
}
