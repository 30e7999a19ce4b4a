package alias

import (
	"strings"
	"testing"
)

const testDeviceID = "8d9f4a3e-5b2c-4d6e-9f1a-2b3c4d5e6f70"

func TestNormalizeAccepts(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"bob", "bob"},
		{"  carl  ", "carl"},
		{"Dana", "dana"},
		{"kitchen-pi_2", "kitchen-pi_2"},
		{strings.Repeat("a", MaxLength), strings.Repeat("a", MaxLength)},
	}

	for _, tc := range cases {
		got, ok, msg := Normalize(testDeviceID, tc.in)
		if !ok {
			t.Errorf("Normalize(%q) rejected: %s", tc.in, msg)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too short", "ab"},
		{"too long", strings.Repeat("a", MaxLength+1)},
		{"leading digit", "1bob"},
		{"spaces inside", "bob smith"},
		{"colon", "bob:1"},
		{"unicode", "böb"},
		{"reserved device", "device"},
		{"reserved alias", "alias"},
		{"reserved scan", "scan"},
		{"equals device id", testDeviceID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, msg := Normalize(testDeviceID, tc.in)
			if ok {
				t.Errorf("Normalize(%q) accepted as %q, want rejection", tc.in, got)
			}
			if msg == "" {
				t.Errorf("Normalize(%q) returned empty rejection message", tc.in)
			}
		})
	}
}

func TestNormalizeIsPure(t *testing.T) {
	// Same input, same output; no hidden state.
	for i := 0; i < 3; i++ {
		got, ok, _ := Normalize(testDeviceID, "Bob")
		if !ok || got != "bob" {
			t.Fatalf("Normalize changed behavior between calls: %q, %v", got, ok)
		}
	}
}
