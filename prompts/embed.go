// Package prompts holds the role prompt templates shipped with the
// binary.
package prompts

import _ "embed"

//go:embed analyze.md.tmpl
var AnalyzeTemplate string

//go:embed plan.md.tmpl
var PlanTemplate string

//go:embed code.md.tmpl
var CodeTemplate string

//go:embed review.md.tmpl
var ReviewTemplate string

//go:embed repair.md.tmpl
var RepairTemplate string
