//go:build js && wasm

// Command popupwasm runs the popup engine inside a browser page. The page
// ships the popup configuration as window.kntntPopupData, loads MicroModal,
// then instantiates this module.
//
//	GOOS=js GOARCH=wasm go build -o popup.wasm ./cmd/popupwasm
package main

import (
	"context"
	"strings"
	"syscall/js"
	"time"

	"popengine/internal/dom/jsdom"
	"popengine/internal/popup"
	logx "popengine/pkg/logx"
)

// Overridable at link time:
//
//	-ldflags "-X main.namespace=acme_popup -X main.dataGlobal=acmePopupData"
var (
	namespace   = popup.DefaultNamespace
	classPrefix = popup.DefaultClassPrefix
	dataGlobal  = popup.DefaultDataGlobal
	logLevel    = "warn"
)

type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	js.Global().Get("console").Call("log", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func main() {
	log := logx.NewWriter(consoleWriter{}, logLevel).With(logx.String("comp", "popupwasm"))

	doc := jsdom.NewDocument()
	doc.Ready(func() {
		if err := start(doc, log); err != nil {
			log.Error("popup engine not started", logx.Err(err))
		}
	})
	select {}
}

func start(doc *jsdom.Document, log logx.Logger) error {
	modal, err := jsdom.NewModal()
	if err != nil {
		return err
	}
	store := jsdom.NewLocalStore()
	eng, err := popup.New(popup.Options{
		Namespace:   namespace,
		ClassPrefix: classPrefix,
		Loop:        jsdom.TimeoutLoop{},
		Document:    doc,
		Renderer:    modal,
		Store:       store,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	data := js.Global().Get(dataGlobal)
	if !data.Truthy() {
		log.Warn("no popup data on page", logx.String("global", dataGlobal))
		return nil
	}
	raw := js.Global().Get("JSON").Call("stringify", data).String()
	if err := eng.InitJSON([]byte(raw)); err != nil {
		return err
	}
	expose(eng)
	pruneRecords(store, eng.Namespace(), log)
	return nil
}

// pruneRecords drops close records of this namespace that are malformed or
// older than the retention window, so localStorage does not grow with every
// popup a visitor ever dismissed.
func pruneRecords(store *jsdom.LocalStore, ns string, log logx.Logger) {
	ctx := context.Background()
	keys, err := store.Keys(popup.RecordPrefix(ns))
	if err != nil {
		log.Debug("record listing failed", logx.Err(err))
		return
	}
	cutoff := time.Now().Add(-popup.DefaultRecordRetention)
	deleted := 0
	for _, k := range keys {
		v, ok, err := store.Get(ctx, k)
		if err != nil || !ok || !popup.RecordExpired(v, cutoff) {
			continue
		}
		if store.Delete(ctx, k) == nil {
			deleted++
		}
	}
	if deleted > 0 {
		log.Debug("stale popup records removed", logx.Int("deleted", deleted))
	}
}

// expose publishes window.<namespace> with open, close and status.
func expose(eng *popup.Engine) {
	id := func(args []js.Value) string {
		if len(args) == 0 || args[0].Type() != js.TypeString {
			return ""
		}
		return args[0].String()
	}
	js.Global().Set(namespace, map[string]any{
		"open": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return string(eng.Trigger(id(args)))
		}),
		"close": js.FuncOf(func(_ js.Value, args []js.Value) any {
			return eng.Close(id(args))
		}),
		"status": js.FuncOf(func(_ js.Value, args []js.Value) any {
			st, ok := eng.Status(id(args))
			if !ok {
				return nil
			}
			return string(st)
		}),
	})
}
