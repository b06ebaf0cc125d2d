package main

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	origVersion := Version
	Version = "0.1.0-test"
	defer func() { Version = origVersion }()

	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	for _, want := range []string{"nettrace 0.1.0-test", "Git Commit:", runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "probe": false, "spans": false, "validate": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}

	sub := map[string]bool{}
	for _, c := range spansCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, name := range []string{"query", "count", "prune"} {
		if !sub[name] {
			t.Errorf("spans subcommand %q not registered", name)
		}
	}
}
