package commands

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestMigrateSubcommands(t *testing.T) {
	cmd := NewMigrateCommand()

	for _, name := range []string{"up", "down", "version"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("missing migrate %s: %v", name, err)
		}
	}

	up, _, _ := cmd.Find([]string{"up"})
	if up.Flags().Lookup("steps") == nil {
		t.Fatalf("migrate up should accept --steps")
	}
}

func TestEvaluateFlags(t *testing.T) {
	cmd := NewEvaluateCommand()
	if cmd.Flags().Lookup("id") == nil || cmd.Flags().Lookup("now") == nil {
		t.Fatalf("evaluate should accept --id and --now")
	}
}

func TestTokenDefaults(t *testing.T) {
	cmd := NewTokenCommand()
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil || ttl != 24*time.Hour {
		t.Fatalf("unexpected ttl default %v %v", ttl, err)
	}
}

func TestEvaluateReturnsFlagErrors(t *testing.T) {
	for _, tc := range []struct {
		args []string
		want string
	}{
		{nil, "--id is required"},
		{[]string{"--id", "t1", "--now", "tomorrow"}, "invalid --now value"},
	} {
		cmd := NewEvaluateCommand()
		cmd.SetArgs(tc.args)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)

		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("args %v: expected %q, got %v", tc.args, tc.want, err)
		}
	}
}

func TestResourceCommandsReturnErrors(t *testing.T) {
	migrate := NewMigrateCommand()
	up, _, _ := migrate.Find([]string{"up"})
	down, _, _ := migrate.Find([]string{"down"})
	version, _, _ := migrate.Find([]string{"version"})

	for _, cmd := range []*cobra.Command{NewServeCommand(), NewSweepCommand(), NewEvaluateCommand(), up, down, version} {
		if cmd.RunE == nil || cmd.Run != nil {
			t.Fatalf("%s should report failures through RunE", cmd.Name())
		}
	}
}
