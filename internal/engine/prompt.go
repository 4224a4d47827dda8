// prompt.go renders the role prompts from the embedded templates.
package engine

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/gantry-dev/gantry/internal/milestone"
	"github.com/gantry-dev/gantry/internal/session"
	"github.com/gantry-dev/gantry/prompts"
)

// Templates are embedded at compile time; a parse failure is a bug.
var (
	analyzeTmpl = template.Must(template.New("analyze").Parse(prompts.AnalyzeTemplate))
	planTmpl    = template.Must(template.New("plan").Parse(prompts.PlanTemplate))
	codeTmpl    = template.Must(template.New("code").Parse(prompts.CodeTemplate))
	reviewTmpl  = template.Must(template.New("review").Parse(prompts.ReviewTemplate))
	repairTmpl  = template.Must(template.New("repair").Parse(prompts.RepairTemplate))
)

type analyzeData struct {
	Idea     string
	Language string
}

type planData struct {
	Idea     string
	Language string
	Analysis string
}

type codeData struct {
	Idea        string
	Language    string
	Milestone   string
	Description string
	Create      []string
	Modify      []string
	Delete      []string
}

type reviewData struct {
	Idea      string
	PlanTitle string
	Diff      string
}

type repairData struct {
	Idea   string
	Step   string
	Output string
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func buildAnalyzePrompt(data analyzeData) (string, error) { return render(analyzeTmpl, data) }
func buildPlanPrompt(data planData) (string, error)       { return render(planTmpl, data) }
func buildReviewPrompt(data reviewData) (string, error)   { return render(reviewTmpl, data) }
func buildRepairPrompt(data repairData) (string, error)   { return render(repairTmpl, data) }

// CoderPrompt builds the milestone runner's prompt builder, closing
// over the session-level context each worker prompt needs.
func CoderPrompt(idea, language string) milestone.PromptBuilder {
	return func(ms *session.Milestone, targets session.FileTargets) (string, error) {
		return render(codeTmpl, codeData{
			Idea:        idea,
			Language:    language,
			Milestone:   ms.Name,
			Description: ms.Description,
			Create:      targets.Create,
			Modify:      targets.Modify,
			Delete:      targets.Delete,
		})
	}
}
