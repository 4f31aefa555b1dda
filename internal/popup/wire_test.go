package popup_test

import (
	"errors"
	"testing"

	"popengine/internal/popup"
)

func TestDecodeConfigsOptionals(t *testing.T) {
	t.Parallel()
	raw := `{"popups":[{
		"instanceId": "p1",
		"showOnExitIntent": true,
		"showAfterTime": false,
		"showAfterScroll": 80,
		"closeButton": true,
		"closeButtonLabel": "✖",
		"closeOutsideClick": true,
		"reappearDelay": "1d",
		"isModal": true,
		"closeOnEscape": null,
		"openAnimation": "tada",
		"closeAnimation": false,
		"openAnimationDuration": -1,
		"closeAnimationDuration": 250
	}]}`
	cfgs, err := popup.DecodeConfigs([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeConfigs: %v", err)
	}
	c := cfgs[0]
	if c.InstanceID != "p1" || !c.ShowOnExitIntent || !c.CloseOnOutsideClick || !c.IsModal {
		t.Fatalf("flags = %+v", c)
	}
	if c.ShowAfterTime != nil {
		t.Fatalf("showAfterTime = %d, want absent", *c.ShowAfterTime)
	}
	if c.ShowAfterScroll == nil || *c.ShowAfterScroll != 80 {
		t.Fatalf("showAfterScroll = %v", c.ShowAfterScroll)
	}
	if c.CloseButtonLabel == nil || *c.CloseButtonLabel != "✖" {
		t.Fatalf("close label = %v", c.CloseButtonLabel)
	}
	if c.ReappearDelaySeconds != 86400 {
		t.Fatalf("reappearDelay = %d", c.ReappearDelaySeconds)
	}
	if !c.CloseOnEscape {
		t.Fatal("closeOnEscape should default to true")
	}
	if c.OpenAnimation != "tada" || c.CloseAnimation != "" {
		t.Fatalf("animations = %q/%q", c.OpenAnimation, c.CloseAnimation)
	}
	if c.OpenAnimationDurationMs != nil {
		t.Fatal("negative open duration should be absent")
	}
	if c.CloseAnimationDurationMs == nil || *c.CloseAnimationDurationMs != 250 {
		t.Fatalf("close duration = %v", c.CloseAnimationDurationMs)
	}
}

func TestDecodeConfigsCloseButtonDisabled(t *testing.T) {
	t.Parallel()
	cfgs, err := popup.DecodeConfigs([]byte(`{"popups":[{"instanceId":"p1","closeButton":false,"closeButtonLabel":"x","reappearDelay":3600}]}`))
	if err != nil {
		t.Fatalf("DecodeConfigs: %v", err)
	}
	if cfgs[0].CloseButtonLabel != nil {
		t.Fatal("label kept while closeButton is false")
	}
	if cfgs[0].ReappearDelaySeconds != 3600 {
		t.Fatalf("reappearDelay = %d", cfgs[0].ReappearDelaySeconds)
	}
}

func TestDecodeConfigsRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"not json":        `{`,
		"popups missing":  `{}`,
		"popups object":   `{"popups":{}}`,
		"no id":           `{"popups":[{"showAfterTime":3}]}`,
		"empty id":        `{"popups":[{"instanceId":" "}]}`,
		"duplicate ids":   `{"popups":[{"instanceId":"a"},{"instanceId":"a"}]}`,
		"scroll over 100": `{"popups":[{"instanceId":"a","showAfterScroll":101}]}`,
		"unknown field":   `{"popups":[{"instanceId":"a","showAfterClick":true}]}`,
		"fractional time": `{"popups":[{"instanceId":"a","showAfterTime":1.5}]}`,
		"string flag":     `{"popups":[{"instanceId":"a","isModal":"yes"}]}`,
	}
	for name, raw := range cases {
		if _, err := popup.DecodeConfigs([]byte(raw)); !errors.Is(err, popup.ErrInvalidConfig) {
			t.Fatalf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestDecodeConfigsEmptyList(t *testing.T) {
	t.Parallel()
	cfgs, err := popup.DecodeConfigs([]byte(`{"popups":[]}`))
	if err != nil || len(cfgs) != 0 {
		t.Fatalf("DecodeConfigs = %v, %v", cfgs, err)
	}
}

// The server layer localizes {"popups": [...]} as window.kntntPopupData.
func TestDecodeServerPayload(t *testing.T) {
	t.Parallel()
	if popup.DefaultDataGlobal != "kntntPopupData" {
		t.Fatalf("DefaultDataGlobal = %q", popup.DefaultDataGlobal)
	}
	raw := `{"popups":[
		{"instanceId":"kntnt-popup-1","showAfterTime":30,"showAfterScroll":false,"showOnExitIntent":false,
		 "closeButton":true,"closeButtonLabel":"Close","closeOutsideClick":true,"reappearDelay":86400,
		 "isModal":false,"openAnimation":"tada","closeAnimation":"fade-out",
		 "openAnimationDuration":false,"closeAnimationDuration":false}
	]}`
	cfgs, err := popup.DecodeConfigs([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeConfigs: %v", err)
	}
	if len(cfgs) != 1 || cfgs[0].InstanceID != "kntnt-popup-1" || cfgs[0].ShowAfterTime == nil || *cfgs[0].ShowAfterTime != 30 {
		t.Fatalf("cfgs = %+v", cfgs)
	}
}
