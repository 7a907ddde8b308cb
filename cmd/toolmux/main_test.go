package main

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{
			name: "short string unchanged",
			in:   "read a file",
			n:    60,
			want: "read a file",
		},
		{
			name: "exact length unchanged",
			in:   "12345",
			n:    5,
			want: "12345",
		},
		{
			name: "long string truncated",
			in:   "abcdefghij",
			n:    8,
			want: "abcde...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestResolveSettings_FlagsWinOverEnvironment(t *testing.T) {
	t.Setenv("TOOLMUX_LISTEN_ADDR", "0.0.0.0:9999")
	t.Setenv("TOOLMUX_ADMIN_TOKEN", "envtoken")

	oldAddr, oldToken, oldConfig := flagAddr, flagToken, flagConfig
	defer func() { flagAddr, flagToken, flagConfig = oldAddr, oldToken, oldConfig }()

	flagAddr = "127.0.0.1:7777"
	flagToken = ""
	flagConfig = "custom.yaml"

	s, err := resolveSettings()
	if err != nil {
		t.Fatalf("resolveSettings() error = %v", err)
	}

	if s.ListenAddr != "127.0.0.1:7777" {
		t.Errorf("ListenAddr = %q, want the flag value", s.ListenAddr)
	}
	if s.AdminToken != "envtoken" {
		t.Errorf("AdminToken = %q, want the environment value", s.AdminToken)
	}
	if s.ConfigPath != "custom.yaml" {
		t.Errorf("ConfigPath = %q, want the flag value", s.ConfigPath)
	}
}
