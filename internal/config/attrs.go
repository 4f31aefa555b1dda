package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AttrDefault is the pair of defaults for one shortcode-style attribute.
//
// Omitted applies when the attribute is absent. Flag applies when it is
// present without a value (YAML "modal:" or JSON true/""). A nil Flag means
// the attribute has no flag form and a bare flag resolves to true.
type AttrDefault struct {
	Omitted any
	Flag    any
}

// AttrResolver maps attribute names to their defaults. Unknown attributes are
// rejected so typos surface at load time.
type AttrResolver map[string]AttrDefault

// DefaultAttrResolver returns the popup attribute table.
func DefaultAttrResolver() AttrResolver {
	return AttrResolver{
		"id":                       {Omitted: false},
		"show-on-exit-intent":      {Omitted: false, Flag: true},
		"show-after-time":          {Omitted: false, Flag: 30},
		"show-after-scroll":        {Omitted: false, Flag: 80},
		"close-button":             {Omitted: false, Flag: "✖"},
		"close-outside-click":      {Omitted: false, Flag: true},
		"close-on-escape":          {Omitted: true, Flag: true},
		"reappear-delay":           {Omitted: 0, Flag: "1d"},
		"modal":                    {Omitted: false, Flag: true},
		"open-animation":           {Omitted: false, Flag: "tada"},
		"close-animation":          {Omitted: false, Flag: "fade-out"},
		"open-animation-duration":  {Omitted: false},
		"close-animation-duration": {Omitted: false},

		// Presentation attributes; accepted and carried to markup only.
		"overlay-color": {Omitted: "rgba(0,0,0,0.8)"},
		"width":         {Omitted: "clamp(300px, 90vw, 800px)"},
		"max-height":    {Omitted: "95vh"},
		"padding":       {Omitted: "clamp(20px, calc(5.2vw - 20px), 160px)"},
		"position":      {Omitted: "center"},
		"class":         {Omitted: ""},
	}
}

var (
	openAnimations = map[string]bool{
		"tada": true, "fade-in": true, "fade-in-top": true, "fade-in-right": true,
		"fade-in-bottom": true, "fade-in-left": true, "slide-in-top": true,
		"slide-in-right": true, "slide-in-bottom": true, "slide-in-left": true,
	}
	closeAnimations = map[string]bool{
		"fade-out": true, "fade-out-top": true, "fade-out-right": true,
		"fade-out-bottom": true, "fade-out-left": true, "slide-out-top": true,
		"slide-out-right": true, "slide-out-bottom": true, "slide-out-left": true,
	}
)

// Resolve merges raw with the defaults table. Every known attribute is
// present in the result.
func (r AttrResolver) Resolve(raw map[string]any) (map[string]any, error) {
	var unknown []string
	for k := range raw {
		if _, ok := r[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown attributes: %s", strings.Join(unknown, ", "))
	}

	out := make(map[string]any, len(r))
	for name, def := range r {
		v, present := raw[name]
		switch {
		case !present:
			out[name] = def.Omitted
		case isFlag(v):
			if def.Flag != nil {
				out[name] = def.Flag
			} else {
				out[name] = true
			}
		default:
			out[name] = v
		}
	}
	return out, nil
}

// Wire resolves raw and converts it to the engine's camelCase wire record.
// Values that cannot be coerced fall back to the omitted default.
func (r AttrResolver) Wire(raw map[string]any) (map[string]any, error) {
	a, err := r.Resolve(raw)
	if err != nil {
		return nil, err
	}

	w := map[string]any{}
	if id, ok := a["id"].(string); ok && strings.TrimSpace(id) != "" {
		w["instanceId"] = strings.TrimSpace(id)
	}
	w["showOnExitIntent"] = asBool(a["show-on-exit-intent"])
	w["showAfterTime"] = intOrFalse(a["show-after-time"], 0, -1)
	w["showAfterScroll"] = intOrFalse(a["show-after-scroll"], 0, 100)

	if label, ok := a["close-button"].(string); ok {
		w["closeButton"] = true
		w["closeButtonLabel"] = label
	} else {
		w["closeButton"] = false
		w["closeButtonLabel"] = false
	}
	w["closeOutsideClick"] = asBool(a["close-outside-click"])
	w["closeOnEscape"] = asBool(a["close-on-escape"])
	w["reappearDelay"] = ParseTimeString(fmt.Sprint(a["reappear-delay"]), "0")
	w["isModal"] = asBool(a["modal"])
	w["openAnimation"] = animationOrFalse(a["open-animation"], openAnimations)
	w["closeAnimation"] = animationOrFalse(a["close-animation"], closeAnimations)
	w["openAnimationDuration"] = intOrFalse(a["open-animation-duration"], 0, -1)
	w["closeAnimationDuration"] = intOrFalse(a["close-animation-duration"], 0, -1)
	return w, nil
}

func isFlag(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return x
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	case json.Number:
		n, err := x.Int64()
		return err == nil && n != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	}
	return false
}

// intOrFalse returns an int in [lo, hi] (hi < 0 means unbounded) or false.
func intOrFalse(v any, lo, hi int) any {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case float64:
		if x != float64(int(x)) {
			return false
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return false
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return false
		}
		n = i
	default:
		return false
	}
	if n < lo || (hi >= 0 && n > hi) {
		return false
	}
	return n
}

func animationOrFalse(v any, allowed map[string]bool) any {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if !allowed[s] {
		return false
	}
	return s
}
