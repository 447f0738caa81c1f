package pipeline

// PhaseKind categorizes a phase within a hiring pipeline.
type PhaseKind string

const (
	PhaseKindScreening PhaseKind = "screening"
	PhaseKindTechnical PhaseKind = "technical"
	PhaseKindCultural  PhaseKind = "cultural"
	PhaseKindFinal     PhaseKind = "final"
	PhaseKindCustom    PhaseKind = "custom"
)

// RuleOperator is the comparison operator of an auto-advance rule.
type RuleOperator string

const (
	OperatorGreater      RuleOperator = ">"
	OperatorGreaterEqual RuleOperator = ">="
	OperatorLess         RuleOperator = "<"
	OperatorLessEqual    RuleOperator = "<="
	OperatorEqual        RuleOperator = "=="
)

// Rule condition kinds. Score-threshold rules compare the incoming score
// against a fixed value. Expression rules evaluate a Risor script with the
// score bound as a global and fire when the result is truthy.
const (
	ConditionScoreThreshold = "score-threshold"
	ConditionExpression     = "expression"
)

// AutoAdvanceRule configures an automatic transition triggered by an
// externally supplied score. Rules are evaluated in declared order and only
// the first satisfied rule fires.
type AutoAdvanceRule struct {
	Condition  string       `json:"condition" yaml:"condition"`
	Operator   RuleOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value      float64      `json:"value,omitempty" yaml:"value,omitempty"`
	Expression string       `json:"expression,omitempty" yaml:"expression,omitempty"`
	NextPhase  string       `json:"next_phase" yaml:"next_phase"`
}

// Phase is one stage of a hiring pipeline.
type Phase struct {
	ID                string             `json:"id" yaml:"id"`
	Name              string             `json:"name" yaml:"name"`
	Order             int                `json:"order" yaml:"order"`
	Kind              PhaseKind          `json:"kind" yaml:"kind"`
	EstimatedHours    float64            `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
	RequiredDocuments []string           `json:"required_documents,omitempty" yaml:"required_documents,omitempty"`
	InterviewerRoles  []string           `json:"interviewer_roles,omitempty" yaml:"interviewer_roles,omitempty"`
	AutoAdvance       []*AutoAdvanceRule `json:"auto_advance,omitempty" yaml:"auto_advance,omitempty"`
	SLAHours          float64            `json:"sla_hours,omitempty" yaml:"sla_hours,omitempty"`
	Active            bool               `json:"active" yaml:"active"`
}

// HasSLA reports whether the phase defines a service-level agreement.
func (p *Phase) HasSLA() bool {
	return p.SLAHours > 0
}

func (op RuleOperator) valid() bool {
	switch op {
	case OperatorGreater, OperatorGreaterEqual, OperatorLess, OperatorLessEqual, OperatorEqual:
		return true
	}
	return false
}

// compare applies the operator to (score, value).
func (op RuleOperator) compare(score, value float64) bool {
	switch op {
	case OperatorGreater:
		return score > value
	case OperatorGreaterEqual:
		return score >= value
	case OperatorLess:
		return score < value
	case OperatorLessEqual:
		return score <= value
	case OperatorEqual:
		return score == value
	}
	return false
}
