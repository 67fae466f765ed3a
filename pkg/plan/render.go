package plan

import (
	"fmt"
	"strings"
)

// Render produces the plan's textual document form: a title, a preamble block
// with the repository and execution-role sequence, then one section per task
// with its requirements and checkbox acceptance criteria. This exact shape is
// the payload handed to the downstream execution system, so field placement
// is a compatibility boundary.
func Render(p *Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", p.Title)

	if p.Repository != "" {
		fmt.Fprintf(&b, "Repository: %s\n", p.Repository)
	}
	if len(p.RoleSequence) > 0 {
		fmt.Fprintf(&b, "Role sequence: %s\n", strings.Join(p.RoleSequence, " -> "))
	}
	fmt.Fprintf(&b, "Template: %s (%s)\n\n", p.Template.Name, p.Template.Category)

	if p.RawContent != "" {
		b.WriteString(p.RawContent)
		b.WriteString("\n\n")
	}

	for i := range p.Tasks {
		task := &p.Tasks[i]
		fmt.Fprintf(&b, "## Task %d: %s\n\n", task.ID, task.Title)

		if task.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", task.Description)
		}

		fmt.Fprintf(&b, "- Human role: %s\n", task.HumanRole)
		if task.HumanAction != "" {
			fmt.Fprintf(&b, "- Human action: %s\n", task.HumanAction)
		}
		if task.Instructions != "" {
			fmt.Fprintf(&b, "- Instructions: %s\n", task.Instructions)
		}
		fmt.Fprintf(&b, "- Risk: %s\n", task.Risk)
		fmt.Fprintf(&b, "- Complexity: %s\n", task.Complexity)
		if len(task.DependsOn) > 0 {
			deps := make([]string, len(task.DependsOn))
			for j, d := range task.DependsOn {
				deps[j] = fmt.Sprintf("%d", d)
			}
			fmt.Fprintf(&b, "- Depends on: %s\n", strings.Join(deps, ", "))
		}
		b.WriteString("\n")

		if len(task.Requirements) > 0 {
			b.WriteString("Requirements:\n")
			for _, req := range task.Requirements {
				fmt.Fprintf(&b, "- %s\n", req)
			}
			b.WriteString("\n")
		}

		if len(task.AcceptanceCriteria) > 0 {
			b.WriteString("Acceptance criteria:\n")
			for _, crit := range task.AcceptanceCriteria {
				fmt.Fprintf(&b, "- [ ] %s\n", crit)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
