package pipeline

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// TemplateOptions are used to configure a workflow template.
type TemplateOptions struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Phases     []*Phase `json:"phases" yaml:"phases"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Default    bool     `json:"default,omitempty" yaml:"default,omitempty"`
}

// Template defines an ordered, rarely-changed sequence of phases applicable
// to a category of positions. Phases are not mutated mid-flight for
// candidates already referencing them; changes apply prospectively.
type Template struct {
	id         string
	name       string
	phases     []*Phase
	phasesByID map[string]*Phase
	categories []string
	isDefault  bool
}

// NewTemplate returns a new Template configured with the given options.
func NewTemplate(opts TemplateOptions) (*Template, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("template name required")
	}
	if len(opts.Phases) == 0 {
		return nil, fmt.Errorf("phases required")
	}
	if opts.ID == "" {
		opts.ID = opts.Name
	}

	phasesByID := make(map[string]*Phase, len(opts.Phases))
	ordersSeen := make(map[int]string, len(opts.Phases))
	for _, phase := range opts.Phases {
		if phase.ID == "" {
			return nil, fmt.Errorf("phase id required")
		}
		if _, ok := phasesByID[phase.ID]; ok {
			return nil, fmt.Errorf("duplicate phase id %q", phase.ID)
		}
		if prior, ok := ordersSeen[phase.Order]; ok {
			return nil, fmt.Errorf("phase %q reuses order %d of phase %q", phase.ID, phase.Order, prior)
		}
		phasesByID[phase.ID] = phase
		ordersSeen[phase.Order] = phase.ID
	}

	if err := validateTemplatePhases(phasesByID); err != nil {
		return nil, fmt.Errorf("template validation failed: %w", err)
	}

	phases := make([]*Phase, len(opts.Phases))
	copy(phases, opts.Phases)
	sort.SliceStable(phases, func(i, j int) bool {
		return phases[i].Order < phases[j].Order
	})

	return &Template{
		id:         opts.ID,
		name:       opts.Name,
		phases:     phases,
		phasesByID: phasesByID,
		categories: opts.Categories,
		isDefault:  opts.Default,
	}, nil
}

// validateTemplatePhases validates phase kinds and auto-advance rules.
func validateTemplatePhases(phasesByID map[string]*Phase) error {
	for _, phase := range phasesByID {
		switch phase.Kind {
		case PhaseKindScreening, PhaseKindTechnical, PhaseKindCultural, PhaseKindFinal, PhaseKindCustom:
		default:
			return fmt.Errorf("phase %q has unknown kind %q", phase.ID, phase.Kind)
		}
		for i, rule := range phase.AutoAdvance {
			if _, ok := phasesByID[rule.NextPhase]; !ok {
				return fmt.Errorf("phase %q rule %d targets unknown phase %q", phase.ID, i, rule.NextPhase)
			}
			switch rule.Condition {
			case ConditionScoreThreshold:
				if !rule.Operator.valid() {
					return fmt.Errorf("phase %q rule %d has unknown operator %q", phase.ID, i, rule.Operator)
				}
			case ConditionExpression:
				if rule.Expression == "" {
					return fmt.Errorf("phase %q rule %d requires an expression", phase.ID, i)
				}
			default:
				return fmt.Errorf("phase %q rule %d has unknown condition %q", phase.ID, i, rule.Condition)
			}
		}
	}
	return nil
}

// ID returns the template ID
func (t *Template) ID() string {
	return t.id
}

// Name returns the template name
func (t *Template) Name() string {
	return t.name
}

// Phases returns the template phases ordered by phase order
func (t *Template) Phases() []*Phase {
	return t.phases
}

// ActivePhases returns the active phases ordered by phase order
func (t *Template) ActivePhases() []*Phase {
	var active []*Phase
	for _, phase := range t.phases {
		if phase.Active {
			active = append(active, phase)
		}
	}
	return active
}

// Phase returns a phase by id
func (t *Template) Phase(id string) (*Phase, bool) {
	phase, ok := t.phasesByID[id]
	return phase, ok
}

// FirstPhase returns the entry phase of the template
func (t *Template) FirstPhase() *Phase {
	return t.phases[0]
}

// Categories returns the position categories this template applies to
func (t *Template) Categories() []string {
	return t.categories
}

// IsDefault reports whether this is the default template for new positions
func (t *Template) IsDefault() bool {
	return t.isDefault
}

// PhaseIDs returns the ids of all phases in template order
func (t *Template) PhaseIDs() []string {
	ids := make([]string, 0, len(t.phases))
	for _, phase := range t.phases {
		ids = append(ids, phase.ID)
	}
	return ids
}

// LoadTemplateFile loads a template from a YAML file
func LoadTemplateFile(path string) (*Template, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	var opts TemplateOptions
	if err := yaml.Unmarshal(yamlData, &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template file: %w", err)
	}
	return NewTemplate(opts)
}

// LoadTemplateString loads a template from a YAML string
func LoadTemplateString(data string) (*Template, error) {
	var opts TemplateOptions
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return NewTemplate(opts)
}

// Registry holds the known workflow templates, keyed by template ID.
type Registry struct {
	mutex     sync.RWMutex
	templates map[string]*Template
}

// NewRegistry creates an empty template registry
func NewRegistry() *Registry {
	return &Registry{templates: map[string]*Template{}}
}

// Register adds a template to the registry, replacing any template with the
// same ID. Replacement applies prospectively: existing candidate states keep
// their recorded history.
func (r *Registry) Register(t *Template) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.templates[t.ID()] = t
}

// Get returns a template by ID
func (r *Registry) Get(id string) (*Template, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	t, ok := r.templates[id]
	if !ok {
		return nil, NewNotFoundError("template %q not found", id)
	}
	return t, nil
}

// Default returns the default template, if one is registered
func (r *Registry) Default() (*Template, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, t := range r.templates {
		if t.IsDefault() {
			return t, true
		}
	}
	return nil, false
}

// List returns all registered templates sorted by ID
func (r *Registry) List() []*Template {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	templates := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].ID() < templates[j].ID()
	})
	return templates
}
