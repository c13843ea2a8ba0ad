package relay

import "testing"

func TestExtractSubdomain(t *testing.T) {
	const base = "alexreader.app"

	tests := []struct {
		host string
		want string
		ok   bool
	}{
		{"sub.alexreader.app", "sub", true},
		{"sub.alexreader.app:443", "sub", true},
		{"alexreader.app", "", false},
		{"a.b.alexreader.app", "", false},
		{"foo.other.app", "", false},
		{"", "", false},
		{".alexreader.app", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got, ok := ExtractSubdomain(tt.host, base)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
