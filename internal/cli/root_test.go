package cli

import "testing"

func TestCoordinatorRootCmdHasSubcommands(t *testing.T) {
	cmd := NewCoordinatorRootCmd()
	if cmd.Use != "permit-coordinatord" {
		t.Errorf("Use = %q, want %q", cmd.Use, "permit-coordinatord")
	}

	for _, name := range []string{"run", "status", "shutdown"} {
		if cmd.Commands() == nil {
			t.Fatalf("no subcommands registered")
		}
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("expected subcommand %q", name)
		}
	}

	if cmd.PersistentFlags().Lookup("global-permits") == nil {
		t.Error("--global-permits flag not registered")
	}
	if cmd.PersistentFlags().Lookup("idle-timeout") == nil {
		t.Error("--idle-timeout flag not registered")
	}
}

func TestDemoRootCmdFlags(t *testing.T) {
	cmd := NewDemoRootCmd()
	if cmd.Use != "permit-demo" {
		t.Errorf("Use = %q, want %q", cmd.Use, "permit-demo")
	}
	if cmd.RunE == nil {
		t.Fatal("RunE is nil")
	}

	for _, name := range []string{"provider", "count", "global-permits", "target-permits", "queue-limit"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
}
