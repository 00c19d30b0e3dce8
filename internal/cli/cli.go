// Package cli handles command line interface logic
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/semmlerino/spritepal/internal/mapper"
	"github.com/semmlerino/spritepal/internal/options"
	"github.com/semmlerino/spritepal/internal/spriteconfig"
)

// ParseFlags parses command line flags and returns the program options
func ParseFlags() (options.Program, error) {
	return parse(os.Args[0], os.Args[1:])
}

func parse(name string, arguments []string) (options.Program, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(arguments)
	args := flags.Args()
	if err != nil || len(args) == 0 {
		msg := ""
		if err != nil && !errors.Is(err, flag.ErrHelp) {
			msg = err.Error()
		}
		return opts, &UsageError{flags: flags, msg: msg}
	}

	if err := validateArgs(args); err != nil {
		return opts, err
	}

	opts.Command = strings.ToLower(args[0])
	if len(args) > 1 {
		opts.Input = args[1]
	}

	if err := normalizeOptions(&opts); err != nil {
		return opts, &UsageError{flags: flags, msg: err.Error()}
	}
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

// ShowUsage prints the usage and the flag defaults.
func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: spritepal [options] <command> <ROM file>\n\n")
	fmt.Printf("commands: %s\n\n", strings.Join(options.Commands, ", "))
	if e.flags != nil {
		e.flags.SetOutput(os.Stdout)
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg != "" && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after command, please pass the options before the command", arg),
			}
		}
	}
	if len(args) > 2 {
		return &UsageError{
			msg: fmt.Sprintf("unexpected arguments: %s", strings.Join(args[2:], " ")),
		}
	}
	return nil
}

// normalizeOptions normalizes and validates option values
func normalizeOptions(opts *options.Program) error {
	if !slices.Contains(options.Commands, opts.Command) {
		return fmt.Errorf("unsupported command: %s. Valid commands: %s",
			opts.Command, strings.Join(options.Commands, ", "))
	}

	if opts.Input == "" && opts.Batch == "" && opts.Command != options.Cache {
		return fmt.Errorf("command %s requires a ROM file", opts.Command)
	}

	if opts.Map != "" {
		mode, err := mapper.ModeFromString(opts.Map)
		if err != nil {
			return err
		}
		opts.Map = mode.String()
	}

	for name, value := range map[string]string{"offset": opts.Offset, "start": opts.Start, "end": opts.End} {
		if value == "" {
			continue
		}
		if err := validateOffset(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	switch opts.Command {
	case options.Extract, options.Find, options.Similar:
		if opts.Offset == "" && opts.Sprite == "" {
			return fmt.Errorf("command %s requires an offset", opts.Command)
		}
	case options.Inject:
		if opts.Sprite == "" {
			return errors.New("command inject requires a sprite PNG")
		}
	case options.Trace:
		if opts.TraceFile == "" {
			return errors.New("command trace requires a trace file")
		}
	}

	if opts.Threshold < 0 || opts.Threshold > 1 {
		return fmt.Errorf("threshold %v is not between 0 and 1", opts.Threshold)
	}
	return nil
}

// validateOffset accepts file offsets and SNES addresses in $BB:AAAA form.
func validateOffset(value string) error {
	if strings.HasPrefix(value, "$") {
		_, err := mapper.ParsePointer(value)
		return err
	}
	_, err := spriteconfig.ParseValue(value)
	return err
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Input, "i", "", "name of the input ROM file")
	flags.StringVar(&opts.Output, "o", "", "name of the output file or base name, <rom>_<offset> if no name given")
	flags.StringVar(&opts.Offset, "offset", "", "ROM offset of the sprite, decimal, 0x prefixed hex or $BB:AAAA address")
	flags.StringVar(&opts.Sprite, "sprite", "", "sprite PNG to inject, or name of a configured sprite to extract")
	flags.StringVar(&opts.Metadata, "metadata", "", "metadata file of the extracted sprite, <sprite>.metadata.json if no name given")
	flags.StringVar(&opts.TraceFile, "trace", "", "name of the DMA trace JSON file to import")
	flags.StringVar(&opts.CodeDataLog, "cdl", "", "name of the .cdl Code/Data log file to load")
	flags.StringVar(&opts.Config, "config", "", "sprite location config file, overrides the settings")
	flags.StringVar(&opts.EnvFile, "env", "", "settings file to read SPRITEPAL_ variables from (default .env)")
	flags.StringVar(&opts.Batch, "batch", "", "process a batch of given path and file mask, for example *.sfc")
	flags.StringVar(&opts.Map, "map", "", "ROM mapping (lorom, hirom) - if not detected from the ROM header")
	flags.BoolVar(&opts.Fast, "fast", false, "use fast compression when injecting")
	flags.BoolVar(&opts.Backup, "backup", true, "create a backup of the ROM before injecting")
	flags.BoolVar(&opts.NoCache, "nocache", false, "do not use the ROM cache")
	flags.BoolVar(&opts.Clear, "clear", false, "clear all caches when running the cache command")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")

	flags.StringVar(&opts.Start, "start", "", "start offset of a scan")
	flags.StringVar(&opts.End, "end", "", "end offset of a scan, the ROM size if not given")
	flags.IntVar(&opts.Step, "step", 0x100, "step in bytes between scanned offsets")
	flags.IntVar(&opts.Workers, "workers", 4, "number of parallel scan workers")
	flags.IntVar(&opts.Range, "range", 0x1000, "search range in bytes around the offset for the find command")
	flags.IntVar(&opts.Count, "count", 10, "number of previews to warm or results to show")
	flags.Float64Var(&opts.Threshold, "threshold", 0.8, "minimum similarity for the similar command")
	flags.Float64Var(&opts.MinQuality, "min-quality", 0, "minimum quality of listed scan results")
}
