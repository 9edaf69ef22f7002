// Command cpprepl is the incremental C++ REPL's entry point: it wires
// an interp.Session to stdin/stdout/stderr and runs its REPL loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Fabio3rs/my-cpp-repl-study-sub000/interp"
)

func main() {
	compiler := flag.String("compiler", "clang++", "compiler executable to invoke")
	std := flag.String("std", "gnu++20", "language standard passed as -std=")
	workDir := flag.String("workdir", "", "directory for generated fragments (defaults to a temp dir)")
	includeDirs := flag.String("I", "", "comma-separated include directories")
	libs := flag.String("l", "", "comma-separated link libraries")
	flag.Parse()

	opts := interp.Options{
		Compiler: *compiler,
		Std:      *std,
		WorkDir:  *workDir,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	if *includeDirs != "" {
		opts.IncludeDirs = strings.Split(*includeDirs, ",")
	}
	if *libs != "" {
		opts.Libs = strings.Split(*libs, ",")
	}

	session, err := interp.New(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		if _, err := session.Eval("#eval " + path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := session.REPL(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
