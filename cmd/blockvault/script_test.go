package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// blockvaultCmd lets script test files drive the CLI in-process by
// invoking rootCmd.Execute directly, the same singleton every
// subcommand registers itself onto via its own init().
func blockvaultCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run the blockvault CLI",
			Args:    "subcommand [args...]",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			prev, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			if err := os.Chdir(s.Getwd()); err != nil {
				return nil, err
			}
			defer os.Chdir(prev)
			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)
			rootCmd.SetArgs(args)
			err = rootCmd.Execute()
			return func(s *script.State) (string, string, error) { return stdout.String(), stderr.String(), err }, nil
		},
	)
}

func TestScripts(t *testing.T) {
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	engine.Cmds["blockvault"] = blockvaultCmd()

	ctx := context.Background()
	env := []string{"HOME=/tmp"}
	scripttest.Test(t, ctx, engine, env, "testdata/script/*.txt")
}
