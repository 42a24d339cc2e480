package core

import "testing"

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"prose before {\"a\": {\"b\": 2}} prose after", `{"a": {"b": 2}}`, true},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"no json here", "", false},
		{"{unbalanced", "", false},
	}
	for _, tc := range cases {
		got, err := extractJSON(tc.in)
		if tc.ok && err != nil {
			t.Errorf("extractJSON(%q) failed: %v", tc.in, err)
			continue
		}
		if !tc.ok && err == nil {
			t.Errorf("extractJSON(%q) should fail, got %q", tc.in, got)
			continue
		}
		if got != tc.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
