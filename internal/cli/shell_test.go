package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestDispatchQuit(t *testing.T) {
	var buf bytes.Buffer
	for _, line := range []string{"quit", "exit"} {
		quit, err := dispatch(nil, &buf, line)
		if err != nil {
			t.Fatalf("%s: %v", line, err)
		}
		if !quit {
			t.Fatalf("%s: expected quit", line)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	_, err := dispatch(nil, &buf, "frobnicate")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown-command error, got %v", err)
	}
}

func TestDispatchArgumentCounts(t *testing.T) {
	var buf bytes.Buffer
	for _, line := range []string{
		"select",
		"view",
		"rename onlyone",
		"copy 1",
		"set pagesize",
		"list extra",
		"expunge now",
	} {
		_, err := dispatch(nil, &buf, line)
		if err == nil {
			t.Fatalf("%q: expected argument error", line)
		}
	}
}

func TestDispatchHelp(t *testing.T) {
	var buf bytes.Buffer
	if _, err := dispatch(nil, &buf, "help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(buf.String(), "search <terms...>") {
		t.Fatalf("expected command summary, got %q", buf.String())
	}
}
