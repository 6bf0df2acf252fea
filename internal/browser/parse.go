package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ducth/stallbot/internal/pipeline"
)

var (
	threadKeyRe = regexp.MustCompile(`/(?:marketplace/)?t/(\d+)`)
	ageSuffixRe = regexp.MustCompile(`^\d+\s?(?:[smhdw]|min|mins|hr|hrs)$`)
)

// threadKeyFromHref extracts the numeric thread id from a sidebar link such
// as "/marketplace/t/123456789/" or a full URL. Empty when no id is present.
func threadKeyFromHref(href string) string {
	m := threadKeyRe.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}

// fallbackThreadKey keys a row with no resolvable thread id by its sidebar
// position and buyer name. Positional keys are less stable than ids but let
// the pipeline track a conversation the DOM would otherwise hide from us.
func fallbackThreadKey(rowIndex int, buyerName string) string {
	if buyerName == "" {
		return ""
	}
	return fmt.Sprintf("row%d:%s", rowIndex, buyerName)
}

// stripAge removes the trailing relative-age fragment Messenger appends to
// sidebar previews, e.g. "sure, 7pm works · 2m" → "sure, 7pm works".
func stripAge(preview string) string {
	parts := strings.Split(preview, " · ")
	if len(parts) < 2 {
		return strings.TrimSpace(preview)
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if ageSuffixRe.MatchString(last) || last == "now" || last == "Just now" {
		return strings.TrimSpace(strings.Join(parts[:len(parts)-1], " · "))
	}
	return strings.TrimSpace(preview)
}

// classifySide decides who authored a sidebar preview. Messenger prefixes
// our own last message with "You: "; a preview prefixed with the buyer's
// first name is theirs; anything else is ambiguous and left to the jitter
// cache to sort out.
func classifySide(buyerName, preview string) (pipeline.Side, string) {
	preview = stripAge(preview)

	if rest, ok := strings.CutPrefix(preview, "You: "); ok {
		return pipeline.SideSeller, strings.TrimSpace(rest)
	}
	if buyerName != "" {
		first, _, _ := strings.Cut(buyerName, " ")
		if rest, ok := strings.CutPrefix(preview, first+": "); ok {
			return pipeline.SideBuyer, strings.TrimSpace(rest)
		}
	}
	return pipeline.SideUnknown, preview
}

// splitRowText separates a sidebar row's visible text into buyer name and
// preview. Rows render as "Name\npreview" with optional trailing lines
// (listing title, "Marketplace" badge) that are not part of the message.
func splitRowText(raw string) (buyerName, preview string) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) == 0 {
		return "", ""
	}
	buyerName = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		preview = strings.TrimSpace(lines[1])
	}
	return buyerName, preview
}
