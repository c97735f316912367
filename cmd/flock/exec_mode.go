package main

import (
	"fmt"
	"strings"
)

type execMode string

const (
	execDefault  execMode = ""
	execSerial   execMode = "serial"
	execParallel execMode = "parallel"
)

// globalOptions are the flags accepted before the subcommand.
type globalOptions struct {
	mode       execMode
	configPath string
	logLevel   string
}

func parseGlobalOptions(args []string) (globalOptions, []string, error) {
	var opts globalOptions
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i+1:]...)
			break
		}
		if value, next, ok, err := flagValue(args, i, "--exec-mode"); ok {
			if err != nil {
				return opts, nil, err
			}
			mode, err := parseExecModeValue(value)
			if err != nil {
				return opts, nil, err
			}
			opts.mode = mode
			i = next
			continue
		}
		if value, next, ok, err := flagValue(args, i, "--config"); ok {
			if err != nil {
				return opts, nil, err
			}
			opts.configPath = value
			i = next
			continue
		}
		if value, next, ok, err := flagValue(args, i, "--log-level"); ok {
			if err != nil {
				return opts, nil, err
			}
			opts.logLevel = value
			i = next
			continue
		}
		remaining = append(remaining, arg)
	}
	return opts, remaining, nil
}

func parseExecModeValue(value string) (execMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return execDefault, fmt.Errorf("--exec-mode expects a value")
	case string(execSerial):
		return execSerial, nil
	case string(execParallel):
		return execParallel, nil
	default:
		return execDefault, fmt.Errorf("unknown --exec-mode value '%s' (expected serial or parallel)", value)
	}
}

// flagValue matches `name value` and `name=value` at args[i]. It returns the
// value, the index of the last consumed argument and whether args[i] was the flag.
func flagValue(args []string, i int, name string) (string, int, bool, error) {
	arg := args[i]
	if arg == name {
		if i+1 >= len(args) {
			return "", i, true, fmt.Errorf("%s expects a value", name)
		}
		return args[i+1], i + 1, true, nil
	}
	if value, ok := strings.CutPrefix(arg, name+"="); ok {
		if value == "" {
			return "", i, true, fmt.Errorf("%s expects a value", name)
		}
		return value, i, true, nil
	}
	return "", i, false, nil
}
