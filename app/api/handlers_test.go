package api

import "testing"

func TestIsBlocked(t *testing.T) {
	h := &Handler{blocklist: []string{"spam.example", "blocked@mail.example", "203.0.113.9"}}

	cases := []struct {
		name    string
		url     string
		email   string
		ip      string
		blocked bool
	}{
		{"clean request", "https://shop.example/feed.xml", "buyer@mail.test", "198.51.100.1", false},
		{"feed host exact", "https://spam.example/feed.xml", "", "", true},
		{"feed host subdomain", "https://cdn.spam.example/feed.xml", "", "", true},
		{"email exact", "https://shop.example/feed.xml", "blocked@mail.example", "", true},
		{"email case folded", "https://shop.example/feed.xml", "Blocked@Mail.Example", "", true},
		{"email domain", "https://shop.example/feed.xml", "anyone@spam.example", "", true},
		{"client ip", "https://shop.example/feed.xml", "", "203.0.113.9", true},
		{"host suffix is not a substring match", "https://notspam.example/feed.xml", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.isBlocked(tc.url, tc.email, tc.ip); got != tc.blocked {
				t.Errorf("isBlocked(%q, %q, %q) = %v, want %v", tc.url, tc.email, tc.ip, got, tc.blocked)
			}
		})
	}
}

func TestIsBlockedEmptyList(t *testing.T) {
	h := &Handler{}
	if h.isBlocked("https://spam.example/feed.xml", "any@spam.example", "203.0.113.9") {
		t.Error("empty blocklist should never block")
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"buyer@mail.test", "first.last+tag@shop.example"}
	for _, email := range valid {
		if !validEmail(email) {
			t.Errorf("validEmail(%q) = false, want true", email)
		}
	}

	invalid := []string{"not-an-email", "@mail.test", "buyer@", "Buyer <buyer@mail.test>", "two@at@signs"}
	for _, email := range invalid {
		if validEmail(email) {
			t.Errorf("validEmail(%q) = true, want false", email)
		}
	}
}
