package telegram

import "testing"

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data       string
		wantAction string
		wantID     string
	}{
		{"approve_8f14e45f-ceea-4673-9a1b-2c9e8e4f1a2b", "approve", "8f14e45f-ceea-4673-9a1b-2c9e8e4f1a2b"},
		{"decline_abc", "decline", "abc"},
		{"custom_abc", "custom", "abc"},
		{"noseparator", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		action, id := parseCallback(tt.data)
		if action != tt.wantAction || id != tt.wantID {
			t.Errorf("parseCallback(%q) = (%q, %q), want (%q, %q)",
				tt.data, action, id, tt.wantAction, tt.wantID)
		}
	}
}
