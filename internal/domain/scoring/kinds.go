package scoring

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a family of composite scores sharing one weight table.
type Kind string

// Supported score kinds.
const (
	KindDiscipline  Kind = "discipline"
	KindKPI         Kind = "kpi"
	KindGrowth      Kind = "growth"
	KindPerformance Kind = "performance"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindDiscipline, KindKPI, KindGrowth, KindPerformance}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Discipline components.
const (
	ComponentAttendance    = "attendance"
	ComponentCommunication = "communication"
	ComponentMeetings      = "meetings"
	ComponentSubmissions   = "submissions"
)

// Performance components, each a score out of 10 scaled to 100.
const (
	ComponentKPI          = "kpi"
	ComponentLearning     = "learning"
	ComponentRelationship = "relationship"
	ComponentManager      = "manager"
)

// Growth skills.
const (
	SkillSalesPerformance   = "sales_performance"
	SkillClientSatisfaction = "client_satisfaction"
	SkillProjectDelivery    = "project_delivery"
	SkillLearningGrowth     = "learning_growth"
	SkillCommunication      = "communication"
)

// Tables holds one weight table per kind. A nil or empty table means equal
// weights over whatever components the record carries.
type Tables map[Kind]WeightTable

// DefaultTables returns the built-in weight tables.
func DefaultTables() Tables {
	return Tables{
		KindDiscipline: {
			ComponentAttendance:    0.4,
			ComponentCommunication: 0.3,
			ComponentMeetings:      0.2,
			ComponentSubmissions:   0.1,
		},
		KindPerformance: {
			ComponentKPI:          0.4,
			ComponentLearning:     0.3,
			ComponentRelationship: 0.2,
			ComponentManager:      0.1,
		},
		KindGrowth: EqualWeights(
			SkillSalesPerformance,
			SkillClientSatisfaction,
			SkillProjectDelivery,
			SkillLearningGrowth,
			SkillCommunication,
		),
		KindKPI: nil,
	}
}

// WithOverrides returns a copy of t where every kind named in overrides has its
// table replaced. Unknown kinds and invalid tables are rejected.
func (t Tables) WithOverrides(overrides map[string]map[string]float64) (Tables, error) {
	out := make(Tables, len(t))
	for k, w := range t {
		out[k] = w.Clone()
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		table := WeightTable(overrides[name])
		if err := table.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		out[kind] = table.Clone()
	}
	return out, nil
}

// For returns the table for kind and whether the kind is known.
func (t Tables) For(kind Kind) (WeightTable, bool) {
	w, ok := t[kind]
	return w, ok
}
