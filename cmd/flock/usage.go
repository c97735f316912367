package main

import (
	"fmt"
	"io"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  flock [global flags] run [--workers N] [--quantum N] <file.fasm>")
	fmt.Fprintln(w, "  flock [global flags] run --git <repo> [--rev <revision>] <path/in/repo.fasm>")
	fmt.Fprintln(w, "  flock [global flags] disasm <file.fasm>")
	fmt.Fprintln(w, "  flock [global flags] disasm --git <repo> [--rev <revision>] <path/in/repo.fasm>")
	fmt.Fprintln(w, "  flock [global flags] repl")
	fmt.Fprintln(w, "  flock --version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprintln(w, "  --exec-mode=serial|parallel   serial runs every task on one worker")
	fmt.Fprintln(w, "  --config <flock.yml>          configuration file (default ./flock.yml if present)")
	fmt.Fprintln(w, "  --log-level <level>           trace, debug, info, warn or error")
}
