package main

import (
	"flag"
	"testing"
)

// TestFlagDefaults verifies every flag is registered with a default that
// defers to the config file.
func TestFlagDefaults(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"config", ""},
		{"port", ""},
		{"dev", "false"},
		{"fixtures", "fixtures.txt"},
		{"pcap", ""},
		{"pcap-port", "0"},
		{"listen", ""},
		{"grpc-listen", ""},
		{"db", ""},
		{"units", ""},
		{"plot-dir", ""},
		{"version", "false"},
		{"verbose", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := flag.Lookup(tt.name)
			if f == nil {
				t.Fatalf("flag --%s not defined", tt.name)
			}
			if f.DefValue != tt.want {
				t.Errorf("--%s default = %q, want %q", tt.name, f.DefValue, tt.want)
			}
		})
	}
}
