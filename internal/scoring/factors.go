package scoring

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// attributeRule matches on a lead attribute. Exactly one of Equals/AtLeast
// may be set; neither means a bare existence check.
type attributeRule struct {
	Key     string   `yaml:"key"`
	Equals  string   `yaml:"equals"`
	AtLeast *float64 `yaml:"at_least"`
}

// eventRule matches on the lead's engagement history: at least AtLeast
// events of Type within the trailing WithinDays.
type eventRule struct {
	Type       string `yaml:"type"`
	WithinDays int    `yaml:"within_days"`
	AtLeast    int    `yaml:"at_least"`
}

// factorSpec is one YAML-authored scoring rule.
type factorSpec struct {
	Name      string         `yaml:"name"`
	Category  string         `yaml:"category"`
	Points    int            `yaml:"points"`
	Decays    bool           `yaml:"decays"`
	Attribute *attributeRule `yaml:"attribute"`
	Event     *eventRule     `yaml:"event"`
}

type factorFile struct {
	Factors []factorSpec `yaml:"factors"`
}

// LoadFactors reads a scoring-factor table from a YAML file. Malformed rules
// are rejected as validation errors at load time; the point table itself is
// configuration, not code.
func LoadFactors(path string) ([]Factor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read factor file: %w", err)
	}

	var file factorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse factor file: %w", err)
	}
	if len(file.Factors) == 0 {
		return nil, &domain.ValidationError{Field: "factors", Reason: "factor file defines no factors"}
	}

	factors := make([]Factor, 0, len(file.Factors))
	for i, spec := range file.Factors {
		factor, err := spec.compile(i)
		if err != nil {
			return nil, err
		}
		factors = append(factors, factor)
	}
	return factors, nil
}

func (spec factorSpec) compile(index int) (Factor, error) {
	if spec.Name == "" {
		return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %d is missing a name", index)}
	}
	category := Category(spec.Category)
	if _, ok := categoryCaps[category]; !ok {
		return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q has unknown category %q", spec.Name, spec.Category)}
	}
	if spec.Points == 0 {
		return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q has zero points", spec.Name)}
	}
	if (spec.Attribute == nil) == (spec.Event == nil) {
		return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q needs exactly one of attribute or event", spec.Name)}
	}

	var applies func(Input) bool
	switch {
	case spec.Attribute != nil:
		rule := *spec.Attribute
		if rule.Key == "" {
			return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q attribute rule is missing a key", spec.Name)}
		}
		if rule.Equals != "" && rule.AtLeast != nil {
			return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q attribute rule sets both equals and at_least", spec.Name)}
		}
		applies = compileAttributeRule(rule)
	case spec.Event != nil:
		rule := *spec.Event
		if !domain.KnownEventTypes[domain.EventType(rule.Type)] {
			return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q has unknown event type %q", spec.Name, rule.Type)}
		}
		if rule.WithinDays <= 0 {
			return Factor{}, &domain.ValidationError{Field: "factors", Reason: fmt.Sprintf("factor %q event rule needs a positive within_days", spec.Name)}
		}
		if rule.AtLeast < 1 {
			rule.AtLeast = 1
		}
		applies = compileEventRule(rule)
	}

	return Factor{
		Name:     spec.Name,
		Category: category,
		Points:   spec.Points,
		Applies:  applies,
		Decays:   spec.Decays,
	}, nil
}

func compileAttributeRule(rule attributeRule) func(Input) bool {
	return func(in Input) bool {
		switch {
		case rule.Equals != "":
			s, ok := in.Attribute(rule.Key)
			return ok && s == rule.Equals
		case rule.AtLeast != nil:
			n, ok := in.NumericAttribute(rule.Key)
			return ok && n >= *rule.AtLeast
		default:
			_, ok := in.Lead.Attributes[rule.Key]
			return ok
		}
	}
}

func compileEventRule(rule eventRule) func(Input) bool {
	eventType := domain.EventType(rule.Type)
	window := time.Duration(rule.WithinDays) * 24 * time.Hour
	return func(in Input) bool {
		// The window anchors on the newest event so scoring stays a pure
		// function of its inputs; decay handles staleness separately.
		var newest time.Time
		for _, e := range in.Events {
			if e.OccurredAt().After(newest) {
				newest = e.OccurredAt()
			}
		}
		if newest.IsZero() {
			return false
		}
		return in.EventCountSince(eventType, newest.Add(-window)) >= rule.AtLeast
	}
}

// DefaultFactors is the built-in factor table used when no YAML table is
// configured. Authoritative point tables are expected to come from
// configuration; these values are a working default, not a contract.
func DefaultFactors() []Factor {
	always := func(rule attributeRule) func(Input) bool { return compileAttributeRule(rule) }
	seniorTitles := map[string]bool{"ceo": true, "cto": true, "vp": true, "director": true, "founder": true}
	minEmployees := 50.0

	return []Factor{
		{
			Name:     "senior_title",
			Category: CategoryDemographic,
			Points:   15,
			Applies: func(in Input) bool {
				title, ok := in.Attribute("title")
				return ok && seniorTitles[title]
			},
		},
		{
			Name:     "company_size",
			Category: CategoryDemographic,
			Points:   10,
			Applies: func(in Input) bool {
				n, ok := in.NumericAttribute("employees")
				return ok && n >= minEmployees
			},
		},
		{
			Name:     "target_industry",
			Category: CategoryDemographic,
			Points:   10,
			Applies:  always(attributeRule{Key: "industry"}),
		},
		{
			Name:     "recent_opens",
			Category: CategoryBehavioral,
			Points:   10,
			Decays:   true,
			Applies:  compileEventRule(eventRule{Type: string(domain.EventOpened), WithinDays: 30, AtLeast: 2}),
		},
		{
			Name:     "recent_clicks",
			Category: CategoryBehavioral,
			Points:   15,
			Decays:   true,
			Applies:  compileEventRule(eventRule{Type: string(domain.EventClicked), WithinDays: 30, AtLeast: 1}),
		},
		{
			Name:     "replied",
			Category: CategoryBehavioral,
			Points:   20,
			Decays:   true,
			Applies:  compileEventRule(eventRule{Type: string(domain.EventReplied), WithinDays: 90, AtLeast: 1}),
		},
		{
			Name:     "budget_confirmed",
			Category: CategoryQualification,
			Points:   20,
			Applies:  always(attributeRule{Key: "budget_confirmed", Equals: "true"}),
		},
		{
			Name:     "decision_maker",
			Category: CategoryQualification,
			Points:   10,
			Applies:  always(attributeRule{Key: "decision_maker", Equals: "true"}),
		},
		{
			Name:     "timeline_known",
			Category: CategoryQualification,
			Points:   10,
			Applies:  always(attributeRule{Key: "timeline"}),
		},
	}
}
