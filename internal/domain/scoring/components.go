package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/opsboard/pulse/internal/domain/period"
)

// Metric names read from a MetricRecord.
const (
	MetricAttendanceWFO  = "attendance_wfo"
	MetricAttendanceWFH  = "attendance_wfh"
	MetricCommunications = "communications"
	MetricMeetings       = "meetings"
	MetricSubmissions    = "submissions"

	MetricKPIScore          = "kpi_score"
	MetricLearningScore     = "learning_score"
	MetricRelationshipScore = "relationship_score"
	MetricManagerScore      = "manager_score"

	// KPI actuals and targets are paired by suffix: kpi_leads / target_leads.
	KPIActualPrefix = "kpi_"
	KPITargetPrefix = "target_"
)

// Achievement returns current as a percent of target, or 0 when target <= 0.
// The result is not capped; Aggregate clamps it.
func Achievement(current, target float64) float64 {
	if !(target > 0) || math.IsNaN(current) {
		return 0
	}
	return current / target * 100
}

// DisciplineTargets are the monthly counts that earn a full component score.
type DisciplineTargets struct {
	Days           float64
	Communications float64
	Meetings       float64
}

// DefaultDisciplineTargets returns 25 days, 50 communications and 10 meetings.
func DefaultDisciplineTargets() DisciplineTargets {
	return DisciplineTargets{Days: 25, Communications: 50, Meetings: 10}
}

// DisciplineInput carries the raw monthly counts.
type DisciplineInput struct {
	DaysPresent    float64
	Communications float64
	Meetings       float64
	Submissions    float64
}

// DisciplineComponents converts raw counts into the four discipline components.
// Submissions are all-or-nothing: any submission earns 100.
func DisciplineComponents(in DisciplineInput, targets DisciplineTargets) map[string]float64 {
	submissions := 0.0
	if in.Submissions > 0 {
		submissions = 100
	}
	return map[string]float64{
		ComponentAttendance:    Achievement(in.DaysPresent, targets.Days),
		ComponentCommunication: Achievement(in.Communications, targets.Communications),
		ComponentMeetings:      Achievement(in.Meetings, targets.Meetings),
		ComponentSubmissions:   submissions,
	}
}

// KPIComponents pairs each actual with its target by name. Actuals without a
// positive target score 0.
func KPIComponents(values, targets map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for name, current := range values {
		out[name] = Achievement(current, targets[name])
	}
	return out
}

// Extractor turns raw record values into the components of one kind.
type Extractor func(values map[string]float64) map[string]float64

// DefaultExtractors returns the component builders for every kind.
func DefaultExtractors(targets DisciplineTargets) map[Kind]Extractor {
	return map[Kind]Extractor{
		KindDiscipline: func(v map[string]float64) map[string]float64 {
			if !hasAny(v, MetricAttendanceWFO, MetricAttendanceWFH, MetricCommunications, MetricMeetings, MetricSubmissions) {
				return nil
			}
			return DisciplineComponents(DisciplineInput{
				DaysPresent:    v[MetricAttendanceWFO] + v[MetricAttendanceWFH],
				Communications: v[MetricCommunications],
				Meetings:       v[MetricMeetings],
				Submissions:    v[MetricSubmissions],
			}, targets)
		},
		KindKPI: func(v map[string]float64) map[string]float64 {
			actuals := make(map[string]float64)
			goals := make(map[string]float64)
			for name, value := range v {
				switch {
				case strings.HasPrefix(name, KPIActualPrefix) && name != MetricKPIScore:
					actuals[strings.TrimPrefix(name, KPIActualPrefix)] = value
				case strings.HasPrefix(name, KPITargetPrefix):
					goals[strings.TrimPrefix(name, KPITargetPrefix)] = value
				}
			}
			return KPIComponents(actuals, goals)
		},
		KindGrowth: func(v map[string]float64) map[string]float64 {
			return pick(v, SkillSalesPerformance, SkillClientSatisfaction, SkillProjectDelivery, SkillLearningGrowth, SkillCommunication)
		},
		KindPerformance: func(v map[string]float64) map[string]float64 {
			out := make(map[string]float64, 4)
			for component, metric := range map[string]string{
				ComponentKPI:          MetricKPIScore,
				ComponentLearning:     MetricLearningScore,
				ComponentRelationship: MetricRelationshipScore,
				ComponentManager:      MetricManagerScore,
			} {
				if score, ok := v[metric]; ok {
					out[component] = score * 10
				}
			}
			return out
		},
	}
}

func hasAny(v map[string]float64, names ...string) bool {
	for _, n := range names {
		if _, ok := v[n]; ok {
			return true
		}
	}
	return false
}

func pick(v map[string]float64, names ...string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, n := range names {
		if value, ok := v[n]; ok {
			out[n] = value
		}
	}
	return out
}

// Late submission penalty parameters.
const (
	DefaultGraceDays   = 3
	penaltyPerWeek     = 0.5
	maxPenalty         = 2.0
	daysPerPenaltyStep = 7
)

// Penalty describes how late a monthly report was filed.
type Penalty struct {
	DueDate  time.Time `json:"due_date"`
	LateDays int       `json:"late_days"`
	Points   float64   `json:"points"`
}

// LatePenalty computes the discipline penalty for a report on p filed at
// submittedAt. The report is due graceDays after the last day of the month,
// at midnight in submittedAt's location. Each started week late costs 0.5
// points, capped at 2.
func LatePenalty(p period.Key, submittedAt time.Time, graceDays int) Penalty {
	if p.IsZero() {
		return Penalty{}
	}
	if graceDays < 0 {
		graceDays = 0
	}
	due := p.LastDay(submittedAt.Location()).AddDate(0, 0, graceDays)
	late := submittedAt.Sub(due)
	if late <= 0 {
		return Penalty{DueDate: due}
	}
	days := int(math.Ceil(late.Hours() / 24))
	weeks := math.Ceil(float64(days) / daysPerPenaltyStep)
	return Penalty{
		DueDate:  due,
		LateDays: days,
		Points:   math.Min(maxPenalty, weeks*penaltyPerWeek),
	}
}

// Grade bands.
const (
	GradeExcellent        = "Excellent"
	GradeGood             = "Good"
	GradeAverage          = "Average"
	GradeNeedsImprovement = "Needs Improvement"
)

// Grade maps a 0-100 total to its display band.
func Grade(total float64) string {
	switch {
	case total >= 90:
		return GradeExcellent
	case total >= 75:
		return GradeGood
	case total >= 60:
		return GradeAverage
	default:
		return GradeNeedsImprovement
	}
}
