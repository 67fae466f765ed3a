// Package plan defines the negotiated plan data model, the pure assembly
// function that applies field defaults to raw structured model output, and
// the textual rendering handed to the downstream execution collaborator.
package plan

// HumanRole describes the level of human involvement a task requires.
type HumanRole string

const (
	// HumanRolePerforms means a human carries out the task themselves.
	HumanRolePerforms HumanRole = "human-performs"
	// HumanRoleVerifies means the agent implements and a human verifies.
	HumanRoleVerifies HumanRole = "human-verifies"
)

// Tier is the shared high/medium/low scale for risk and complexity.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// StatusPending is the progress status stamped on every task at assembly.
const StatusPending = "pending"

// Template is a named work-pattern classification the agent proposes and the
// human accepts before detailed planning.
type Template struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rationale   string `json:"rationale,omitempty"`
}

// GenericTemplate is the fallback attached to plans negotiated without an
// explicitly accepted template.
func GenericTemplate() Template {
	return Template{
		Category:    "new-feature",
		Name:        "generic",
		Description: "General-purpose work pattern used when no template was negotiated",
	}
}

// Task is one unit of work within a Plan.
type Task struct {
	ID                 int       `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	HumanRole          HumanRole `json:"human_role"`
	HumanAction        string    `json:"human_action,omitempty"`
	Instructions       string    `json:"instructions,omitempty"`
	Risk               Tier      `json:"risk"`
	Complexity         Tier      `json:"complexity"`
	DependsOn          []int     `json:"depends_on"`
	Requirements       []string  `json:"requirements,omitempty"`
	AcceptanceCriteria []string  `json:"acceptance_criteria,omitempty"`
	Status             string    `json:"status"`
}

// Plan is the immutable output of a completed negotiation. A refinement
// produces a new Plan value, never an in-place edit.
type Plan struct {
	Title        string   `json:"title"`
	Repository   string   `json:"repository,omitempty"`
	RoleSequence []string `json:"role_sequence,omitempty"`
	Template     Template `json:"template"`
	RawContent   string   `json:"raw_content,omitempty"`
	Tasks        []Task   `json:"tasks"`
}

// TaskByID returns the task with the given id, or nil if absent.
func (p *Plan) TaskByID(id int) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// AcceptanceCriteria returns every task's acceptance criteria in task order.
func (p *Plan) AcceptanceCriteria() []string {
	var out []string
	for i := range p.Tasks {
		out = append(out, p.Tasks[i].AcceptanceCriteria...)
	}
	return out
}
