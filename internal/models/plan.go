package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operation is a retrieval operation within a plan step.
type Operation string

const (
	OpList         Operation = "list"
	OpRetrieve     Operation = "retrieve"
	OpListAndCount Operation = "listAndCount"
)

// IsValid reports whether op is one of the three supported operations.
func (op Operation) IsValid() bool {
	return op == OpList || op == OpRetrieve || op == OpListAndCount
}

// CountsResults reports whether the operation returns a total count
// alongside its data.
func (op Operation) CountsResults() bool {
	return op == OpListAndCount
}

// ErrorCode categorizes planning and execution failures. The same taxonomy
// is used by the planner, the executor, and the failure cache.
type ErrorCode string

const (
	ErrNoResults            ErrorCode = "NO_RESULTS"
	ErrAPIError             ErrorCode = "API_ERROR"
	ErrExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrPlanGenerationFailed ErrorCode = "PLAN_GENERATION_FAILED"
	ErrEntityNotFound       ErrorCode = "ENTITY_NOT_FOUND"
	ErrPermissionDenied     ErrorCode = "PERMISSION_DENIED"
	ErrTimeout              ErrorCode = "TIMEOUT"
	ErrValidationError      ErrorCode = "VALIDATION_ERROR"
	ErrUnknown              ErrorCode = "UNKNOWN"
)

// StepError is a categorized error attached to a failed plan step.
// Step is the number of the step that failed, 0 when the failure
// happened outside any step.
type StepError struct {
	Step    int       `json:"step,omitempty"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// stepRefPattern matches back-references of the form $1 or $1.field.path
var stepRefPattern = regexp.MustCompile(`^\$(\d+)(?:\.([\w.]+))?$`)

// StepReference points at the result of an earlier plan step. Field is
// optional; when empty the whole first result of the step is meant.
type StepReference struct {
	Step  int    `json:"step"`
	Field string `json:"field,omitempty"`
}

// String renders the reference back into $N / $N.field form.
func (r StepReference) String() string {
	if r.Field == "" {
		return "$" + strconv.Itoa(r.Step)
	}
	return "$" + strconv.Itoa(r.Step) + "." + r.Field
}

// FilterValue is a tagged value within a step's filter map: either a plain
// literal or a back-reference to an earlier step. Keeping the two cases
// explicit (instead of string interpolation) makes the dependency graph of
// a plan visible to the classifier and the executor.
type FilterValue struct {
	Literal any
	Ref     *StepReference
}

// Literal wraps a plain value.
func Literal(v any) FilterValue {
	return FilterValue{Literal: v}
}

// Reference wraps a back-reference to step n, optionally extracting field.
func Reference(step int, field string) FilterValue {
	return FilterValue{Ref: &StepReference{Step: step, Field: field}}
}

// IsRef reports whether the value is a back-reference.
func (v FilterValue) IsRef() bool {
	return v.Ref != nil
}

// ParseFilterValue converts a raw filter value (as produced by a model) into
// a FilterValue, recognizing the $N / $N.field syntax in strings.
func ParseFilterValue(raw any) FilterValue {
	s, ok := raw.(string)
	if !ok {
		return Literal(raw)
	}
	m := stepRefPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Literal(raw)
	}
	step, err := strconv.Atoi(m[1])
	if err != nil {
		return Literal(raw)
	}
	return Reference(step, m[2])
}

// MarshalJSON renders references in $N form so cached plans round-trip
// through the same syntax the model emits.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	if v.Ref != nil {
		return json.Marshal(v.Ref.String())
	}
	return json.Marshal(v.Literal)
}

// UnmarshalJSON parses either a literal or a $N back-reference string.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ParseFilterValue(raw)
	return nil
}

// PlanStep is one retrieval operation within a QueryPlan.
type PlanStep struct {
	Step       int                    `json:"step"`
	Entity     string                 `json:"entity"`
	Operation  Operation              `json:"operation"`
	Filters    map[string]FilterValue `json:"filters,omitempty"`
	Relations  []string               `json:"relations,omitempty"`
	Extract    string                 `json:"extract,omitempty"`
	AccessHint AccessMethod           `json:"access_method,omitempty"`
}

// Dependencies returns the set of step numbers this step's filters reference.
func (s *PlanStep) Dependencies() []int {
	seen := make(map[int]bool)
	var deps []int
	for _, v := range s.Filters {
		if v.Ref != nil && !seen[v.Ref.Step] {
			seen[v.Ref.Step] = true
			deps = append(deps, v.Ref.Step)
		}
	}
	return deps
}

// QueryPlan is an ordered, dependency-closed list of plan steps.
type QueryPlan struct {
	ID          string     `json:"id,omitempty"`
	Steps       []PlanStep `json:"steps"`
	FinalEntity string     `json:"finalEntity"`
	Explanation string     `json:"explanation,omitempty"`
	Action      string     `json:"action,omitempty"`
	Fallback    bool       `json:"fallback,omitempty"`
}

// Validate checks the structural invariants of a plan: at least one step,
// a final entity, valid sequence numbering, and back-references that only
// point at strictly earlier steps.
func (p *QueryPlan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	if p.FinalEntity == "" {
		return fmt.Errorf("plan has no finalEntity")
	}
	for i, step := range p.Steps {
		if step.Step != i+1 {
			return fmt.Errorf("step %d has sequence number %d, expected %d", i, step.Step, i+1)
		}
		if step.Entity == "" {
			return fmt.Errorf("step %d has no entity", step.Step)
		}
		for field, v := range step.Filters {
			if v.Ref == nil {
				continue
			}
			if v.Ref.Step < 1 || v.Ref.Step >= step.Step {
				return fmt.Errorf("step %d filter %q references step %d, which is not an earlier step",
					step.Step, field, v.Ref.Step)
			}
		}
	}
	return nil
}

// EnrichedStep is a plan step augmented with everything the executor needs:
// the classifier's verdict, the response shape, a readable description, and
// the resolved dependency set.
type EnrichedStep struct {
	PlanStep
	Classification Classification      `json:"classification"`
	Expectation    ResponseExpectation `json:"expectation"`
	Description    string              `json:"description"`
	DependsOn      []int               `json:"depends_on,omitempty"`
}

// EnrichedPlan is the executable form of a QueryPlan.
type EnrichedPlan struct {
	QueryPlan
	Enriched []EnrichedStep `json:"enriched_steps"`
}

// StepResult is one entry of the per-step execution log.
type StepResult struct {
	Step       int        `json:"step"`
	Entity     string     `json:"entity"`
	Success    bool       `json:"success"`
	DurationMs int64      `json:"durationMs"`
	Count      *int64     `json:"count,omitempty"`
	Data       any        `json:"data,omitempty"`
	Error      *StepError `json:"error,omitempty"`
}

// ExecutionResult is what Execute hands back to the caller: the final
// entity's data plus the full provenance log.
type ExecutionResult struct {
	Success     bool         `json:"success"`
	FinalEntity string       `json:"finalEntity"`
	FinalResult any          `json:"finalResult,omitempty"`
	Log         []StepResult `json:"executionLog"`
	Error       *StepError   `json:"error,omitempty"`
}
