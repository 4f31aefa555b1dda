package dom

import (
	"strings"
	"testing"
	"time"

	"popengine/internal/loop"
	"popengine/internal/popup"
	logx "popengine/pkg/logx"
)

func TestFirePhasesRunCaptureTargetBubble(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	btn := d.CreateElement("button")
	d.Body().AppendChild(btn)

	var got []string
	d.Listen("click", popup.ListenOptions{}, func(popup.Event) { got = append(got, "doc-bubble") })
	d.Listen("click", popup.ListenOptions{Capture: true}, func(popup.Event) { got = append(got, "doc-capture") })
	d.Body().AddEventListener("click", false, false, func(popup.Event) { got = append(got, "body-bubble") })
	btn.AddEventListener("click", false, false, func(popup.Event) { got = append(got, "target") })

	d.Click(btn)
	want := "doc-capture,target,body-bubble,doc-bubble"
	if s := strings.Join(got, ","); s != want {
		t.Fatalf("order = %s, want %s", s, want)
	}
}

func TestSwallowStopsRemainingListeners(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	var bubbled bool
	d.Listen("keydown", popup.ListenOptions{Capture: true}, func(ev popup.Event) { ev.Swallow() })
	d.Listen("keydown", popup.ListenOptions{}, func(popup.Event) { bubbled = true })

	if !d.KeyDown("Escape") {
		t.Fatal("KeyDown not reported as swallowed")
	}
	if bubbled {
		t.Fatal("bubble listener ran after Swallow")
	}
}

func TestListenerRemovedDuringDispatchDoesNotRun(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	var second bool
	var removeSecond func()
	d.Listen("scroll", popup.ListenOptions{}, func(popup.Event) { removeSecond() })
	removeSecond = d.Listen("scroll", popup.ListenOptions{}, func(popup.Event) { second = true })

	d.ScrollTo(0)
	if second {
		t.Fatal("removed listener still ran")
	}
	if n := d.ListenerCount("scroll", false); n != 1 {
		t.Fatalf("ListenerCount = %d, want 1", n)
	}
}

func TestElementByIDMissReturnsNilInterface(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	el, ok := d.ElementByID("nope")
	if ok || el != nil {
		t.Fatalf("ElementByID miss = %v, %v", el, ok)
	}
}

func TestStylePropertyInheritsAndQueryFinds(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	p := BuildPopup(d, Markup{ID: "p1", CloseButton: "x", CloseOnOutsideClick: true})
	p.Container.SetStyleProperty("--kntnt-popup-open-duration", "450ms")

	if v := p.Dialog.StyleProperty("--kntnt-popup-open-duration"); v != "450ms" {
		t.Fatalf("inherited property = %q", v)
	}
	if _, own := p.Dialog.InlineStyle("--kntnt-popup-open-duration"); own {
		t.Fatal("dialog should not carry the property inline")
	}
	got, ok := p.Container.Query(".kntnt-popup__dialog")
	if !ok || got != p.Dialog {
		t.Fatalf("Query dialog = %v, %v", got, ok)
	}
	closest, ok := p.CloseButton.Closest(popup.CloseTriggerAttr)
	if !ok || closest != p.CloseButton {
		t.Fatalf("Closest = %v, %v", closest, ok)
	}
	if _, ok := p.Content.Closest(popup.OpenTriggerAttr); ok {
		t.Fatal("Closest found an open trigger that does not exist")
	}
}

func TestBuildPopupWithoutDialogOrButton(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	p := BuildPopup(d, Markup{ID: "bare", NoDialog: true, Modal: true})
	if p.Dialog != nil || p.CloseButton != nil {
		t.Fatalf("unexpected parts %+v", p)
	}
	if !p.Container.HasClass("kntnt-popup--modal") || !p.Container.Connected() {
		t.Fatalf("container classes %q", p.Container.ClassName())
	}
	if _, ok := p.Overlay.Attr(popup.CloseTriggerAttr); ok {
		t.Fatal("overlay is a close trigger without outside-click")
	}
}

func TestModalShowAndCloseButton(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	v := loop.NewVirtual(time.Unix(0, 0))
	m := NewModal(d, v, "", logx.Logger{})
	p := BuildPopup(d, Markup{ID: "p1", CloseButton: "x"})

	var shown, closed int
	err := m.Show("p1", popup.ShowOptions{
		OnShow:        func(popup.Element) { shown++ },
		OnClose:       func(popup.Element) { closed++ },
		CloseTrigger:  popup.CloseTriggerAttr,
		OpenClass:     popup.OpenClass,
		DisableScroll: true,
	})
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if shown != 1 || !p.Container.HasClass(popup.OpenClass) || !d.ScrollLocked() {
		t.Fatalf("after show: shown=%d open=%v locked=%v", shown, p.Container.HasClass(popup.OpenClass), d.ScrollLocked())
	}
	if d.Focused() != p.CloseButton {
		t.Fatalf("focus = %v, want close button", d.Focused())
	}

	d.Click(p.CloseButton)
	if closed != 1 || p.Container.HasClass(popup.OpenClass) || d.ScrollLocked() {
		t.Fatalf("after close: closed=%d open=%v locked=%v", closed, p.Container.HasClass(popup.OpenClass), d.ScrollLocked())
	}
	if err := m.Close("p1"); err != nil || closed != 1 {
		t.Fatalf("second Close err=%v closed=%d", err, closed)
	}
}

func TestModalEscapeAndAwaitCloseAnimation(t *testing.T) {
	t.Parallel()
	d := NewDocument()
	v := loop.NewVirtual(time.Unix(0, 0))
	m := NewModal(d, v, "", logx.Logger{})
	p := BuildPopup(d, Markup{ID: "p1"})
	p.Dialog.SetStyleProperty("--kntnt-popup-close-duration", "250ms")

	if err := m.Show("p1", popup.ShowOptions{OpenClass: popup.OpenClass, AwaitCloseAnimation: true, DisableFocus: true}); err != nil {
		t.Fatalf("Show: %v", err)
	}
	d.KeyDown("Escape")
	if m.IsActive("p1") {
		t.Fatal("escape did not close")
	}
	if !p.Container.HasClass(popup.OpenClass) {
		t.Fatal("open class removed before the close animation")
	}
	v.Advance(249 * time.Millisecond)
	if !p.Container.HasClass(popup.OpenClass) {
		t.Fatal("open class removed early")
	}
	v.Advance(time.Millisecond)
	if p.Container.HasClass(popup.OpenClass) {
		t.Fatal("open class kept after the close animation")
	}
}

func TestModalShowUnknownID(t *testing.T) {
	t.Parallel()
	m := NewModal(NewDocument(), nil, "", logx.Logger{})
	if err := m.Show("ghost", popup.ShowOptions{}); err == nil {
		t.Fatal("expected ErrModalNotFound")
	}
}
