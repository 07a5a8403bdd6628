package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phroun/mindmap"
)

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#A29BFE"}
	colorLeft    = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#81c784"}
	colorRight   = lipgloss.AdaptiveColor{Light: "#f57c00", Dark: "#ffb74d"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8a8a8a"}

	rootStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	leftStyle   = lipgloss.NewStyle().Foreground(colorLeft)
	rightStyle  = lipgloss.NewStyle().Foreground(colorRight)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#e57373"})
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// renderTree draws the live tree, left subtrees first, with collapse
// markers and a list of cross-references.
func renderTree(d *mindmap.Document) string {
	var sb strings.Builder
	root := d.Root()
	sb.WriteString(rootStyle.Render(label(d, root)))
	sb.WriteString("\n")

	kids := d.Children(root)
	var ordered []mindmap.NodeID
	for _, side := range []mindmap.Side{mindmap.SideLeft, mindmap.SideRight} {
		for _, k := range kids {
			if d.Side(k) == side {
				ordered = append(ordered, k)
			}
		}
	}
	for i, k := range ordered {
		renderNode(&sb, d, k, "", i == len(ordered)-1)
	}

	var refs []string
	for _, e := range d.Edges() {
		if !d.IsCrossReference(e) {
			continue
		}
		info, err := d.Edge(e)
		if err != nil {
			continue
		}
		refs = append(refs, fmt.Sprintf("  %s  %s ~> %s", e, info.Source, info.Target))
	}
	for _, e := range d.HiddenCrossReferences() {
		info, err := d.Edge(e)
		if err != nil {
			continue
		}
		refs = append(refs, fmt.Sprintf("  %s  %s ~> %s (hidden)", e, info.Source, info.Target))
	}
	if len(refs) > 0 {
		sb.WriteString(headerStyle.Render("cross-references"))
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render(strings.Join(refs, "\n")))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderNode(sb *strings.Builder, d *mindmap.Document, n mindmap.NodeID, indent string, last bool) {
	branch, next := "├── ", "│   "
	if last {
		branch, next = "└── ", "    "
	}
	sb.WriteString(mutedStyle.Render(indent + branch))

	style := leftStyle
	if d.Side(n) == mindmap.SideRight {
		style = rightStyle
	}
	sb.WriteString(style.Render(label(d, n)))
	if d.IsCollapsed(n) {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf(" [+%d]", len(d.HiddenEdges(n)))))
	}
	sb.WriteString("\n")

	kids := d.Children(n)
	for i, k := range kids {
		renderNode(sb, d, k, indent+next, i == len(kids)-1)
	}
}

func label(d *mindmap.Document, n mindmap.NodeID) string {
	text, _ := d.Text(n)
	if d.IsRoot(n) {
		return fmt.Sprintf("%s %s", n, text)
	}
	return fmt.Sprintf("%s %s (%s)", n, text, d.Side(n))
}
