package main

import (
	"fmt"
)

// runConfig prints the effective configuration.
func runConfig(args []string, env *Environment) error {
	flags, _, err := parseCommonFlags("config", args, printConfigUsage, env.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(*flags, env)
	if err != nil {
		return err
	}
	out, err := a.cfg.Redacted()
	if err != nil {
		return err
	}

	source := a.configPath
	if source == "" {
		source = "defaults (no config file found)"
	}
	fmt.Fprintf(env.Stdout, "# %s\n%s", source, out)
	return nil
}
