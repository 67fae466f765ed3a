package plan

import (
	"fmt"
)

// Assemble converts raw submit_plan tool-call parameters into a validated
// Plan, applying the documented defaults for every omitted field. It is pure
// and idempotent: the same raw input always yields an identical Plan.
//
// Defaults: HumanRole human-verifies, Risk and Complexity medium, DependsOn
// empty. Task order is preserved as given. Every task's status is stamped
// "pending". Dependency ids referring to absent tasks are accepted as-is;
// strictness there is a product decision that has not been made.
func Assemble(raw map[string]any, tmpl Template) (*Plan, error) {
	title, _ := raw["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("plan title is required")
	}

	rawTasks, ok := raw["tasks"].([]any)
	if !ok || len(rawTasks) == 0 {
		return nil, fmt.Errorf("plan must contain at least one task")
	}

	p := &Plan{
		Title:    title,
		Template: tmpl,
		Tasks:    make([]Task, 0, len(rawTasks)),
	}

	if repo, ok := raw["repository"].(string); ok {
		p.Repository = repo
	}
	if seq, ok := raw["role_sequence"].([]any); ok {
		p.RoleSequence = toStringSlice(seq)
	}
	if content, ok := raw["raw_content"].(string); ok {
		p.RawContent = content
	}

	for i, rt := range rawTasks {
		taskMap, ok := rt.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("task %d is not an object", i)
		}
		task, err := assembleTask(taskMap, i)
		if err != nil {
			return nil, err
		}
		p.Tasks = append(p.Tasks, task)
	}

	return p, nil
}

func assembleTask(raw map[string]any, index int) (Task, error) {
	id, ok := toInt(raw["id"])
	if !ok {
		return Task{}, fmt.Errorf("task %d is missing a numeric id", index)
	}
	title, _ := raw["title"].(string)
	if title == "" {
		return Task{}, fmt.Errorf("task %d is missing a title", index)
	}

	task := Task{
		ID:         id,
		Title:      title,
		HumanRole:  HumanRoleVerifies,
		Risk:       TierMedium,
		Complexity: TierMedium,
		DependsOn:  []int{},
		Status:     StatusPending,
	}

	if desc, ok := raw["description"].(string); ok {
		task.Description = desc
	}
	if role, ok := raw["human_role"].(string); ok && role != "" {
		task.HumanRole = HumanRole(role)
	}
	if action, ok := raw["human_action"].(string); ok {
		task.HumanAction = action
	}
	if instr, ok := raw["instructions"].(string); ok {
		task.Instructions = instr
	}
	if risk, ok := raw["risk"].(string); ok && risk != "" {
		task.Risk = Tier(risk)
	}
	if complexity, ok := raw["complexity"].(string); ok && complexity != "" {
		task.Complexity = Tier(complexity)
	}
	if deps, ok := raw["depends_on"].([]any); ok {
		for _, d := range deps {
			if depID, ok := toInt(d); ok {
				task.DependsOn = append(task.DependsOn, depID)
			}
		}
	}
	if reqs, ok := raw["requirements"].([]any); ok {
		task.Requirements = toStringSlice(reqs)
	}
	if criteria, ok := raw["acceptance_criteria"].([]any); ok {
		task.AcceptanceCriteria = toStringSlice(criteria)
	}

	if task.HumanRole == HumanRolePerforms && task.Instructions == "" {
		return Task{}, fmt.Errorf("task %d (%q) is human-performs but has no instructions", index, title)
	}

	return task, nil
}

// toInt accepts the numeric encodings a JSON round-trip can produce.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toStringSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
