package main

import (
	"reflect"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		wantCmd  string
		wantRest []string
	}{
		{name: "no args", args: nil, wantCmd: "serve", wantRest: nil},
		{name: "bare subcommand", args: []string{"refresh"}, wantCmd: "refresh", wantRest: []string{}},
		{name: "subcommand with flags", args: []string{"report", "-wallet", "0xabc"}, wantCmd: "report", wantRest: []string{"-wallet", "0xabc"}},
		{name: "leading flag defaults to serve", args: []string{"-config", "x.yaml"}, wantCmd: "serve", wantRest: []string{"-config", "x.yaml"}},
		{name: "empty first argument", args: []string{""}, wantCmd: "serve", wantRest: []string{""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, rest := splitCommand(tc.args)
			if cmd != tc.wantCmd {
				t.Errorf("command: got %q, want %q", cmd, tc.wantCmd)
			}
			if len(rest) != len(tc.wantRest) {
				t.Fatalf("rest: got %v, want %v", rest, tc.wantRest)
			}
			if len(rest) > 0 && !reflect.DeepEqual(rest, tc.wantRest) {
				t.Errorf("rest: got %v, want %v", rest, tc.wantRest)
			}
		})
	}
}
