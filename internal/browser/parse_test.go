package browser

import (
	"testing"

	"github.com/ducth/stallbot/internal/pipeline"
)

func TestThreadKeyFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/marketplace/t/123456789/", "123456789"},
		{"https://www.messenger.com/marketplace/t/42", "42"},
		{"/t/987654321/?entrypoint=sidebar", "987654321"},
		{"/marketplace/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := threadKeyFromHref(tt.href); got != tt.want {
			t.Errorf("threadKeyFromHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestStripAge(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sure, 7pm works · 2m", "sure, 7pm works"},
		{"is it available? · 3 hrs", "is it available?"},
		{"no timestamp here", "no timestamp here"},
		{"price is $4 · final offer", "price is $4 · final offer"}, // not an age
		{"ok · now", "ok"},
	}
	for _, tt := range tests {
		if got := stripAge(tt.in); got != tt.want {
			t.Errorf("stripAge(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifySide(t *testing.T) {
	tests := []struct {
		name     string
		buyer    string
		preview  string
		wantSide pipeline.Side
		wantText string
	}{
		{"own reply", "Ana Smith", "You: sure, 7pm works · 2m", pipeline.SideSeller, "sure, 7pm works"},
		{"buyer first name prefix", "Ana Smith", "Ana: is it available? · 5m", pipeline.SideBuyer, "is it available?"},
		{"bare preview is ambiguous", "Ana Smith", "is it available?", pipeline.SideUnknown, "is it available?"},
		{"unknown buyer", "", "hello there · 1h", pipeline.SideUnknown, "hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, text := classifySide(tt.buyer, tt.preview)
			if side != tt.wantSide || text != tt.wantText {
				t.Errorf("classifySide(%q, %q) = (%v, %q), want (%v, %q)",
					tt.buyer, tt.preview, side, text, tt.wantSide, tt.wantText)
			}
		})
	}
}

func TestFallbackThreadKey(t *testing.T) {
	if got := fallbackThreadKey(2, "Ana Smith"); got != "row2:Ana Smith" {
		t.Errorf("got %q", got)
	}
	if got := fallbackThreadKey(0, ""); got != "" {
		t.Errorf("nameless row should not get a key, got %q", got)
	}
}

func TestSplitRowText(t *testing.T) {
	name, preview := splitRowText("Ana Smith\nAna: is it available? · 5m\nMarketplace")
	if name != "Ana Smith" {
		t.Errorf("name = %q", name)
	}
	if preview != "Ana: is it available? · 5m" {
		t.Errorf("preview = %q", preview)
	}

	name, preview = splitRowText("Only Name")
	if name != "Only Name" || preview != "" {
		t.Errorf("got (%q, %q)", name, preview)
	}
}
