package main

import (
	"testing"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		args     []string
		wantCmd  string
		wantArgs []string
	}{
		{[]string{"check", "-H", "ntp.example.org"}, "check", []string{"-H", "ntp.example.org"}},
		{[]string{"benchmark", "-remote", "10.0.0.1:123"}, "benchmark", []string{"-remote", "10.0.0.1:123"}},
		{[]string{"-H", "ntp.example.org", "-t", "2"}, "check", []string{"-H", "ntp.example.org", "-t", "2"}},
		{[]string{"-q"}, "check", []string{"-q"}},
		{[]string{"bogus"}, "bogus", []string{}},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.args)
		if cmd != tt.wantCmd {
			t.Errorf("splitCommand(%v) cmd = %q, want %q", tt.args, cmd, tt.wantCmd)
		}
		if len(args) != len(tt.wantArgs) {
			t.Errorf("splitCommand(%v) args = %v, want %v", tt.args, args, tt.wantArgs)
			continue
		}
		for i := range args {
			if args[i] != tt.wantArgs[i] {
				t.Errorf("splitCommand(%v) args = %v, want %v", tt.args, args, tt.wantArgs)
				break
			}
		}
	}
}
