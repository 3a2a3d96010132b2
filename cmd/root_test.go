package cmd_test

import (
	"io"
	"strings"
	"testing"

	"github.com/zsprackett/event-reserve/cmd"
)

func TestSubcommands(t *testing.T) {
	root := cmd.New()
	for _, name := range []string{"serve", "client"} {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("expected %s subcommand, got %v (%v)", name, c, err)
		}
	}
}

func TestClientFlags(t *testing.T) {
	root := cmd.New()
	c, _, err := root.Find([]string{"client"})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"url", "reserve", "config", "log-level"} {
		if c.Flag(f) == nil {
			t.Errorf("client: missing --%s", f)
		}
	}
}

func TestUnknownFlag(t *testing.T) {
	root := cmd.New()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--bogus"})
	_, err := root.ExecuteC()
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("expected unknown flag error, got %v", err)
	}
}

func TestClientRejectsEmptyReserve(t *testing.T) {
	root := cmd.New()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"client", "--reserve", ""})
	if err := root.Execute(); err == nil {
		t.Error("expected error for empty event id")
	}
}
