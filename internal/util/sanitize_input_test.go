package util

import "testing"

func TestSanitizeInput(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Asha  ", "Asha"},
		{"<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"O'Brien", "O&#39;Brien"},
		{"", ""},
	}
	for _, c := range cases {
		if got := SanitizeInput(c.in); got != c.want {
			t.Errorf("SanitizeInput(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+91 12345 67890", "+911234567890"},
		{"+91-12345-67890", "+911234567890"},
		{"(091) 1234567890", "0911234567890"},
		{"  +911234567890  ", "+911234567890"},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestContainsSuspicious(t *testing.T) {
	if !ContainsSuspicious("<img onerror=x>") {
		t.Error("script fragment not flagged")
	}
	if ContainsSuspicious("Asha from Madurai") {
		t.Error("plain text flagged")
	}
}
