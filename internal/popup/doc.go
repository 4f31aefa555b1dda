// Package popup coordinates dismissible overlay panels on a page.
//
// Several independent sources (a timer, a scroll threshold, an exit-intent
// gesture, a manual click, the host API) compete to open the same instance.
// The Engine keeps one state record per instance, lets the first source that
// reaches the arbiter while the instance is Armed win, cancels the others and
// hands the winner to the presenter, which sequences the open and close
// transitions and persists the close time through the Guard.
//
// The engine never touches a real browser. It talks to a Document, a
// Renderer and a RecordStore, and runs every callback on a loop.Loop, so the
// same code drives the in-memory page used by tests and the simulator and
// the wasm binding used in browsers.
package popup
