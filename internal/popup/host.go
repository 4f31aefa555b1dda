package popup

// Document is the page the engine binds to. Every method is called on the
// event loop.
type Document interface {
	// ElementByID returns the element whose id attribute equals id.
	ElementByID(id string) (Element, bool)
	// Scroll reports the current vertical scroll metrics.
	Scroll() ScrollMetrics
	// Listen registers fn for events of kind and returns a function that
	// removes it. Root listeners attach to the document element instead of
	// the document.
	Listen(kind string, opts ListenOptions, fn func(Event)) (remove func())
	// Dispatch fires a bubbling, cancelable custom event on the document.
	Dispatch(name string, detail Detail)
	// TouchPrimary reports whether the device is touch-first.
	TouchPrimary() bool
}

type ListenOptions struct {
	Passive bool
	Capture bool
	Root    bool
}

// Element is the subset of a DOM element the engine touches.
type Element interface {
	ID() string
	HasClass(class string) bool
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)
	// StyleProperty returns the computed value of a custom property ("" when unset).
	StyleProperty(name string) string
	SetStyleProperty(name, value string)
	RemoveStyleProperty(name string)
	// Query returns the first descendant matching a ".class" selector.
	Query(selector string) (Element, bool)
	// Closest returns the nearest ancestor-or-self carrying attr.
	Closest(attr string) (Element, bool)
}

// Event is a host event delivered to a listener.
type Event struct {
	Type    string
	ClientY float64
	Key     string
	Target  Element
	// Detail is set on lifecycle events.
	Detail Detail
	// Swallow prevents the default action and stops propagation. It may be nil.
	Swallow func()
}

// Detail is the payload of lifecycle events.
type Detail struct {
	PopupID string `json:"popupId"`
}

type ScrollMetrics struct {
	ScrollY        float64
	ScrollHeight   float64
	ViewportHeight float64
}

// ShowOptions mirrors the options of a MicroModal-style renderer.
type ShowOptions struct {
	OnShow  func(modal Element)
	OnClose func(modal Element)

	OpenTrigger  string
	CloseTrigger string
	OpenClass    string

	DisableScroll       bool
	DisableFocus        bool
	AwaitOpenAnimation  bool
	AwaitCloseAnimation bool

	// KeepOnEscape leaves the modal open on Escape. Renderers without
	// per-modal support rely on the engine's escape interceptor instead.
	KeepOnEscape bool
}

// Renderer is the modal-rendering capability. Close must invoke the OnClose
// hook registered by Show when the modal is open.
type Renderer interface {
	Show(id string, opts ShowOptions) error
	Close(id string) error
}

// Observer receives lifecycle signals for metrics.
type Observer interface {
	Armed(id string)
	Disarmed(id string)
	TriggerAttempt(id string, src Source, out Outcome)
	Opened(id string)
	Closed(id string)
}

type nopObserver struct{}

func (nopObserver) Armed(string) {}
func (nopObserver) Disarmed(string) {}
func (nopObserver) TriggerAttempt(string, Source, Outcome) {}
func (nopObserver) Opened(string) {}
func (nopObserver) Closed(string) {}
