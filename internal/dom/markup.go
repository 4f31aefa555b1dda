package dom

import (
	"strings"

	"popengine/internal/popup"
)

// Markup describes the server-rendered container of one popup.
type Markup struct {
	ID          string
	ClassPrefix string
	// Class holds extra wrapper classes.
	Class    string
	Modal    bool
	Position string

	OverlayColor string
	Width        string
	MaxHeight    string
	Padding      string

	// CloseButton is the button label; empty renders no button.
	CloseButton         string
	AriaLabelClose      string
	CloseOnOutsideClick bool

	Content string
	// NoDialog renders the container without its dialog, as a broken theme
	// override would.
	NoDialog bool
}

// Parts are the nodes BuildPopup created.
type Parts struct {
	Container   *Element
	Overlay     *Element
	Dialog      *Element
	CloseButton *Element
	Content     *Element
}

// BuildPopup renders m and appends it to the body.
func BuildPopup(d *Document, m Markup) Parts {
	prefix := m.ClassPrefix
	if prefix == "" {
		prefix = popup.DefaultClassPrefix
	}
	position := m.Position
	if position == "" {
		position = "center"
	}

	var p Parts
	p.Container = d.CreateElement("div").SetID(m.ID).AddClass(prefix, m.Class).With("aria-hidden", "true")
	if m.Modal {
		p.Container.AddClass(prefix + "--modal")
	}

	p.Overlay = d.CreateElement("div").
		AddClass(prefix+"__overlay", prefix+"--pos-"+position).
		With("tabindex", "-1")
	if m.CloseOnOutsideClick {
		p.Overlay.SetAttr(popup.CloseTriggerAttr, "")
	}
	if m.OverlayColor != "" {
		p.Overlay.SetStyleProperty("background", m.OverlayColor)
	}
	p.Container.AppendChild(p.Overlay)
	d.body.AppendChild(p.Container)

	if m.NoDialog {
		return p
	}

	p.Dialog = d.CreateElement("div").
		AddClass(prefix+"__dialog").
		With("role", "dialog").
		With("aria-modal", boolAttr(m.Modal)).
		With("aria-labelledby", m.ID+"-title").
		With("aria-describedby", m.ID+"-content")
	for prop, v := range map[string]string{"width": m.Width, "max-height": m.MaxHeight, "padding": m.Padding} {
		if v != "" {
			p.Dialog.SetStyleProperty(prop, v)
		}
	}
	p.Overlay.AppendChild(p.Dialog)

	if label := strings.TrimSpace(m.CloseButton); label != "" {
		aria := m.AriaLabelClose
		if aria == "" {
			aria = "Close popup"
		}
		p.CloseButton = d.CreateElement("button").
			AddClass(prefix+"__close-button").
			With("aria-label", aria).
			With(popup.CloseTriggerAttr, "").
			SetText(label)
		p.Dialog.AppendChild(p.CloseButton)
	}

	p.Content = d.CreateElement("div").
		AddClass(prefix+"__content").
		SetID(m.ID + "-content").
		SetText(m.Content)
	p.Dialog.AppendChild(p.Content)
	return p
}

// OpenLink appends an <a data-popup-open="id"> to the body.
func OpenLink(d *Document, id, text string) *Element {
	a := d.CreateElement("a").With("href", "#").With(popup.OpenTriggerAttr, id).SetText(text)
	d.body.AppendChild(a)
	return a
}

func boolAttr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
