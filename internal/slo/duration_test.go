package slo

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"1h", time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"", 0, true},
		{"5", 0, true},
		{"5w", 0, true},
		{"-5m", 0, true},
		{"5m30s", 0, true},
		{"1.5h", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDuration(%q) expected error, got %v", tt.input, d)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) unexpected error: %v", tt.input, err)
			}
			if d.Std() != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, d.Std(), tt.expected)
			}
		})
	}
}

func TestDurationString(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "90s"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{6 * time.Hour, "6h"},
		{24 * time.Hour, "1d"},
		{25 * time.Hour, "25h"},
		{30 * 24 * time.Hour, "30d"},
	}

	for _, tt := range tests {
		if got := Duration(tt.d).String(); got != tt.expected {
			t.Errorf("Duration(%v).String() = %q, want %q", tt.d, got, tt.expected)
		}
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	original := Duration(30 * 24 * time.Hour)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"30d"` {
		t.Errorf("marshaled to %s, want \"30d\"", data)
	}

	var parsed Duration
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed != original {
		t.Errorf("round trip changed value: %v != %v", parsed, original)
	}
}

func TestDurationJSONRejectsNumbers(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`3600`), &d); err == nil {
		t.Error("expected error for numeric duration")
	}
}
