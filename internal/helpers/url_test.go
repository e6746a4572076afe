package helpers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM:443/docs/", "https://example.com/docs"},
		{"http://example.com:80/a/../b", "http://example.com/b"},
		{"example.com/page?b=2&a=1", "https://example.com/page?a=1&b=2"},
		{"https://example.com/page?utm_source=x&gclid=y&id=7", "https://example.com/page?id=7"},
		{"https://example.com/page#section", "https://example.com/page"},
		{"https://example.com", "https://example.com/"},
		{"//cdn.example.com/lib.js", "https://cdn.example.com/lib.js"},
	}
	for _, tc := range cases {
		got, err := CanonicalURL(tc.in)
		if err != nil {
			t.Fatalf("CanonicalURL(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("CanonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalURLRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "ftp://example.com/file", "mailto:a@b.c"} {
		if got, err := CanonicalURL(in); err == nil {
			t.Fatalf("CanonicalURL(%q) = %q, want error", in, got)
		}
	}
}

func TestBlocked(t *testing.T) {
	blocked := []string{
		"https://facebook.com/page",
		"https://www.facebook.com/page",
		"https://m.facebook.com/page",
		"https://x.com/somebody/status/1",
		"https://accounts.google.com/signin",
	}
	for _, u := range blocked {
		if !Blocked(u) {
			t.Fatalf("Blocked(%q) = false, want true", u)
		}
	}
	allowed := []string{
		"https://example.com",
		"https://docs.google.com/document/d/abc", // only the accounts host is blocked
		"https://xn--com.example.net/x.com",
	}
	for _, u := range allowed {
		if Blocked(u) {
			t.Fatalf("Blocked(%q) = true, want false", u)
		}
	}
}

func TestFilterURLs(t *testing.T) {
	in := []string{
		"https://example.com/a?utm_source=feed",
		"https://EXAMPLE.com/a", // duplicate after canonicalization
		"https://twitter.com/somebody",
		"not a url ://",
		"https://example.org/b",
	}
	want := []string{
		"https://example.com/a",
		"https://example.org/b",
	}
	got := FilterURLs(in)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FilterURLs mismatch (-want +got):\n%s", diff)
	}
}
