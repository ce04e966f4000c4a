package config

import (
	"fmt"

	"github.com/gymbridge/gymbridge/internal/fancy"
)

// String renders the config as a styled tree for the validate command.
func (c *Config) String() string {
	if c == nil {
		return "Config(nil)"
	}

	title := c.Layout.Title
	if title == "" {
		title = "gymbridge"
	}

	t := fancy.Tree().Root(fancy.RootStyle.Render(title))

	scripts := fancy.BranchNode("Scripts", fmt.Sprintf("(%d)", len(c.Scripts)))
	for _, s := range c.Scripts {
		var mode string
		switch s.Type {
		case ScriptTypeStreaming:
			mode = fancy.StreamingStyle.Render("streaming")
		default:
			mode = fancy.DiscreteStyle.Render("discrete")
		}
		node := fancy.Tree().Root(fancy.ScriptStyle.Render(s.Name) + " " + mode)
		node.Child(fancy.InfoStyle.Render(fancy.TruncateString(s.Path, 60)))
		for _, fn := range s.Functions {
			node.Child(fmt.Sprintf("%s %s", fn.Name, fancy.InfoStyle.Render(fn.Display)))
		}
		scripts.Child(node)
	}
	t.Child(scripts)

	widgets := fancy.BranchNode("Widgets",
		fmt.Sprintf("(%d sliders, %d inputs)", len(c.Layout.Sliders), len(c.Layout.InputFields)))
	for _, s := range c.Layout.Sliders {
		widgets.Child(fancy.WidgetStyle.Render(
			fmt.Sprintf("slider %s [%v..%v] = %v", s.ID, s.Min, s.Max, s.Default)))
	}
	for _, f := range c.Layout.InputFields {
		widgets.Child(fancy.WidgetStyle.Render("input " + f.ID))
	}
	t.Child(widgets)

	streams := fancy.BranchNode("Streams", fmt.Sprintf("(%d)", len(c.StreamIDs())))
	for _, p := range c.Layout.Plots {
		streams.Child(fmt.Sprintf("plot %s <- %s", p.Title, fancy.ScriptStyle.Render(p.StreamID)))
	}
	if c.Layout.Table.StreamID != "" {
		streams.Child(fmt.Sprintf("table <- %s", fancy.ScriptStyle.Render(c.Layout.Table.StreamID)))
	}
	t.Child(streams)

	return t.String()
}
