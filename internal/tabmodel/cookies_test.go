package tabmodel

import (
	"reflect"
	"testing"
)

func TestCookieURL(t *testing.T) {
	tests := []struct {
		name   string
		cookie Cookie
		want   string
	}{
		{"secure with dot domain", Cookie{Domain: ".example.com", Path: "/", Secure: true}, "https://example.com/"},
		{"insecure", Cookie{Domain: "example.com", Path: "/app"}, "http://example.com/app"},
		{"empty path", Cookie{Domain: "example.com", Secure: true}, "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cookie.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParentDomains(t *testing.T) {
	tests := []struct {
		url  string
		want []string
	}{
		{"https://app.mail.example.com/inbox", []string{"app.mail.example.com", "mail.example.com", "example.com"}},
		{"https://example.com/", []string{"example.com"}},
		{"http://localhost:8080/", []string{"localhost"}},
		{"http://127.0.0.1/", []string{"127.0.0.1"}},
		{"::bad::", nil},
	}

	for _, tt := range tests {
		if got := ParentDomains(tt.url); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParentDomains(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDedupeCookies(t *testing.T) {
	in := []Cookie{
		{Name: "sid", Domain: "app.example.com", Path: "/", Value: "exact"},
		{Name: "sid", Domain: ".example.com", Path: "/", Value: "parent"},
		{Name: "sid", Domain: "app.example.com", Path: "/", Value: "dup"},
		{Name: "theme", Domain: "app.example.com", Path: "/", Value: "dark"},
	}

	out := DedupeCookies(in)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	// First occurrence wins.
	if out[0].Value != "exact" {
		t.Errorf("kept %q, want first occurrence", out[0].Value)
	}
}

func TestSerializeParseCookiesRoundTrip(t *testing.T) {
	in := []Cookie{
		{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Secure: true, HTTPOnly: true, SameSite: "lax", ExpirationDate: 1893456000},
	}

	s, err := SerializeCookies(in)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	out, err := ParseCookies(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}
}

func TestParseCookiesEmpty(t *testing.T) {
	out, err := ParseCookies("")
	if err != nil || out != nil {
		t.Errorf("ParseCookies(\"\") = %v, %v", out, err)
	}
	if _, err := ParseCookies("{broken"); err == nil {
		t.Error("expected error for malformed input")
	}
}
