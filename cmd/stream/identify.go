package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"pipelined.dev/stream/format"
)

type identifyCommand struct {
	paths []string
}

func (cmd *identifyCommand) Name() string {
	return "identify"
}

func (cmd *identifyCommand) Help() string {
	return "Print format and content of audio files"
}

func (cmd *identifyCommand) Register(*flag.FlagSet) {}

func (cmd *identifyCommand) setArgs(args []string) {
	cmd.paths = args
}

func (cmd *identifyCommand) Run(out io.Writer) error {
	if len(cmd.paths) == 0 {
		return errors.New("missing file argument")
	}
	var errs []error
	for _, path := range cmd.paths {
		if err := identify(out, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func identify(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	m, _, err := format.Identify(f)
	if err != nil {
		fmt.Fprintf(out, "%s: unrecognized\n", path)
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(out, "%s: %v\n", path, m)
	return nil
}
