package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{name: "no args serves", args: nil, want: CommandServe},
		{name: "serve", args: []string{"serve"}, want: CommandServe},
		{name: "worker", args: []string{"worker"}, want: CommandWorker},
		{name: "migrate", args: []string{"migrate"}, want: CommandMigrate},
		{name: "healthcheck", args: []string{"healthcheck"}, want: CommandHealthcheck},
		{name: "extra args ignored", args: []string{"worker", "--flag", "value"}, want: CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownIsRejected(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"Serve"}, {"--help"}} {
		cmd, err := ParseCommand(args)
		if err == nil {
			t.Errorf("ParseCommand(%v) = %q, want error", args, cmd)
			continue
		}
		if !strings.Contains(err.Error(), "serve|worker|migrate|healthcheck") {
			t.Errorf("error should list commands: %v", err)
		}
	}
}

func TestRun_UnknownCommandFailsBeforeInit(t *testing.T) {
	clearTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"fetch"})
	if err == nil {
		t.Fatal("Run(fetch) should fail")
	}
	if !strings.Contains(err.Error(), `unknown command "fetch"`) {
		t.Errorf("error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be logged before the command is known: %q", buf.String())
	}
}
