package gridauth

import "testing"

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ada@example.com", "a***@example.com"},
		{"a@b.io", "a***@b.io"},
		{"@example.com", "***"},
		{"not-an-email", "***"},
		{"", "***"},
	}
	for _, tc := range tests {
		if got := maskEmail(tc.in); got != tc.want {
			t.Errorf("maskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlaceholderEmail(t *testing.T) {
	got := placeholderEmail(FederatedKey{Provider: "GitHub", Subject: "1906"})
	if want := "1906@github.federated.invalid"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"  Ada King Lovelace ", "Ada", "King Lovelace"},
		{"Hamilton", "Hamilton", ""},
		{"", "", ""},
	}
	for _, tc := range tests {
		first, last := splitName(tc.in)
		if first != tc.first || last != tc.last {
			t.Errorf("splitName(%q) = (%q, %q), want (%q, %q)", tc.in, first, last, tc.first, tc.last)
		}
	}
}
