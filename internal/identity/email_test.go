package identity

import "testing"

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"  Alice@Example.COM ", "alice@example.com"},
		{"", ""},
		{"not-an-email", ""},
		{"René@co.com", "rené@co.com"},
		{"STRASSE@co.com", "strasse@co.com"},
	}
	for _, c := range cases {
		if got := NormalizeEmail(c.in); got != c.want {
			t.Fatalf("NormalizeEmail(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}
