package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// FormatElements formats list_annotated results as markdown.
func FormatElements(out ListAnnotatedOutput, kindFilter string) string {
	if len(out.Elements) == 0 {
		msg := fmt.Sprintf("No elements annotated with `%s`", out.Annotation)
		if kindFilter != "" {
			msg += fmt.Sprintf(" of kind %s", kindFilter)
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Elements annotated with `%s`\n\n", out.Annotation)
	if kindFilter != "" {
		fmt.Fprintf(&sb, "Kind filter: `%s`\n\n", kindFilter)
	}
	sb.WriteString(plural(len(out.Elements), "element"))
	if out.Truncated {
		sb.WriteString(" (truncated, raise limit for more)")
	}
	sb.WriteString("\n\n")

	for i, e := range out.Elements {
		fmt.Fprintf(&sb, "%d. **%s** `%s`", i+1, e.Kind, e.Location)
		if e.Position != "" {
			fmt.Fprintf(&sb, " at %s", e.Position)
		}
		sb.WriteString("\n")
		if len(e.Annotations) > 0 {
			fmt.Fprintf(&sb, "   %s\n", strings.Join(e.Annotations, " "))
		}
	}
	return sb.String()
}

// FormatAnnotations formats list_annotations results as markdown.
func FormatAnnotations(names []string) string {
	if len(names) == 0 {
		return "No annotation indexes found on the classpath. Run 'annodex index' first."
	}

	var sb strings.Builder
	sb.WriteString("## Indexed annotations\n\n")
	sb.WriteString(plural(len(names), "annotation"))
	sb.WriteString("\n\n")
	for _, n := range names {
		fmt.Fprintf(&sb, "- `%s`\n", n)
	}
	return sb.String()
}

// FormatStatus formats index_status results as markdown.
func FormatStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s (%s)\n\n", out.Project.Name, out.Project.Type)
	fmt.Fprintf(&sb, "**Root:** %s\n", out.Project.RootPath)
	fmt.Fprintf(&sb, "**Indexed:** %d files, %d resources, %d locations\n",
		out.Stats.Files, out.Stats.Resources, out.Stats.Locations)
	fmt.Fprintf(&sb, "**Annotations on classpath:** %d\n", out.Stats.Annotations)
	if q := out.Queries; q.Total > 0 {
		fmt.Fprintf(&sb, "**Queries served:** %d (%d with no result)\n", q.Total, q.ZeroResults)
		if len(q.TopAnnotations) > 0 {
			fmt.Fprintf(&sb, "**Most queried:** %s\n", strings.Join(q.TopAnnotations, ", "))
		}
	}

	b := out.LastBuild
	if b == nil {
		sb.WriteString("\nNo build recorded.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "\n### Last build %s\n\n", b.ID)
	fmt.Fprintf(&sb, "- mode: %s\n- status: %s\n- started: %s\n", b.Mode, b.Status, b.StartedAt)
	if b.Message != "" {
		fmt.Fprintf(&sb, "- message: %s\n", b.Message)
	}
	return sb.String()
}

// ToElementOutput converts an element to its output form.
func ToElementOutput(e element.Element) ElementOutput {
	out := ElementOutput{
		Kind: e.Kind().String(),
		Name: e.SimpleName(),
	}
	if loc, err := element.Location(e); err == nil {
		out.Location = loc
	}
	if pos := e.Pos(); pos.IsValid() {
		out.Position = pos.String()
	}
	for _, a := range e.Mirrors() {
		out.Annotations = append(out.Annotations, a.String())
	}
	return out
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("Found 1 %s", noun)
	}
	return fmt.Sprintf("Found %d %ss", n, noun)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
