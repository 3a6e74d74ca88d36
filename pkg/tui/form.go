package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"promptarchitect/pkg/prompt"
)

type field int

const (
	fieldObjective field = iota
	fieldContext
	fieldTarget
	fieldTechniques
	fieldCount
)

// form collects a prompt.Request. Techniques are kept in selection order.
type form struct {
	objective  textinput.Model
	context    textarea.Model
	selected   prompt.Request
	err        string
	targetIdx  int
	techCursor int
	focus      field
}

func newForm() form {
	objective := textinput.New()
	objective.Placeholder = "What should the prompt accomplish?"
	objective.CharLimit = 2000
	objective.Width = 72
	objective.Focus()

	ctx := textarea.New()
	ctx.Placeholder = "Audience, constraints, examples... (optional)"
	ctx.ShowLineNumbers = false
	ctx.SetWidth(76)
	ctx.SetHeight(4)

	f := form{objective: objective, context: ctx}
	for i, t := range prompt.AllTargets {
		if t == prompt.TargetGeneric {
			f.targetIdx = i
		}
	}
	return f
}

// request returns the request described by the form.
func (f *form) request() prompt.Request {
	req := f.selected.Clone()
	req.Objective = f.objective.Value()
	req.Context = f.context.Value()
	req.Target = prompt.AllTargets[f.targetIdx]
	return req
}

// acceptsEnter reports whether enter submits rather than editing text.
func (f *form) acceptsEnter() bool {
	return f.focus != fieldContext
}

func (f *form) setFocus(next field) tea.Cmd {
	f.focus = (next + fieldCount) % fieldCount
	f.objective.Blur()
	f.context.Blur()
	switch f.focus {
	case fieldObjective:
		return f.objective.Focus()
	case fieldContext:
		return f.context.Focus()
	}
	return nil
}

func (f *form) setWidth(width int) {
	w := width - 8
	if w < 20 {
		w = 20
	}
	f.objective.Width = w - 4
	f.context.SetWidth(w)
}

func (f form) update(msg tea.Msg) (form, tea.Cmd) {
	key, isKey := msg.(tea.KeyMsg)
	if isKey {
		switch key.String() {
		case "tab":
			return f, f.setFocus(f.focus + 1)
		case "shift+tab":
			return f, f.setFocus(f.focus - 1)
		}
	}

	var cmd tea.Cmd
	switch f.focus {
	case fieldObjective:
		f.objective, cmd = f.objective.Update(msg)
	case fieldContext:
		f.context, cmd = f.context.Update(msg)
	case fieldTarget:
		if isKey {
			switch key.String() {
			case "left", "h":
				f.targetIdx = (f.targetIdx - 1 + len(prompt.AllTargets)) % len(prompt.AllTargets)
			case "right", "l", " ":
				f.targetIdx = (f.targetIdx + 1) % len(prompt.AllTargets)
			}
		}
	case fieldTechniques:
		if isKey {
			switch key.String() {
			case "up", "k":
				if f.techCursor > 0 {
					f.techCursor--
				}
			case "down", "j":
				if f.techCursor < len(prompt.AllTechniques)-1 {
					f.techCursor++
				}
			case " ", "x":
				f.selected.ToggleTechnique(prompt.AllTechniques[f.techCursor])
			}
		}
	}
	return f, cmd
}

func (f *form) view(s Styles) string {
	var b strings.Builder

	label := func(fl field, text string) string {
		if f.focus == fl {
			return s.Focused.Render("› " + text)
		}
		return s.Label.Render("  " + text)
	}

	b.WriteString(label(fieldObjective, "Objective") + "\n")
	b.WriteString("  " + f.objective.View() + "\n\n")

	b.WriteString(label(fieldContext, "Context") + s.Muted.Render(" (optional)") + "\n")
	b.WriteString(indent(f.context.View(), "  ") + "\n\n")

	target := prompt.AllTargets[f.targetIdx].Label()
	if f.focus == fieldTarget {
		target = s.Focused.Render("‹ " + target + " ›")
	}
	b.WriteString(label(fieldTarget, "Target model") + "  " + target + "\n\n")

	b.WriteString(label(fieldTechniques, "Techniques") + "\n")
	for i, t := range prompt.AllTechniques {
		cursor := "  "
		if f.focus == fieldTechniques && i == f.techCursor {
			cursor = s.Focused.Render("> ")
		}
		box := "[ ]"
		line := t.Label()
		if f.selected.HasTechnique(t) {
			box = "[x]"
			line = s.Selected.Render(line)
		}
		b.WriteString(fmt.Sprintf("  %s%s %s\n", cursor, box, line))
	}

	if f.err != "" {
		b.WriteString("\n" + s.Error.Render(f.err) + "\n")
	}
	return b.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
