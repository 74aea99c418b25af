// Command stow archives files into keyed, fragmenting containers and
// recovers them.
//
// Usage:
//
//	stow create [flags] OUTDIR INPUT...
//	stow extract [flags] CONTAINER|FOLDER OUTDIR
//	stow view [flags] CONTAINER|FOLDER
//	stow codecs
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/meigma/stow"
	"github.com/meigma/stow/codec"
)

const defaultConfigFile = "stow.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "create":
		return runCreate(ctx, args)
	case "extract":
		return runExtract(ctx, args)
	case "view":
		return runView(ctx, args)
	case "codecs":
		for _, name := range codec.NewRegistry().Names() {
			fmt.Println(name)
		}
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `stow archives files into keyed containers of bounded size.

Usage:
  stow create [flags] OUTDIR INPUT...
  stow extract [flags] CONTAINER|FOLDER OUTDIR
  stow view [flags] CONTAINER|FOLDER
  stow codecs

Run 'stow COMMAND --help' for the flags of a command. Flags override
values from the YAML config file (--config, default ./stow.yaml).
`)
}

// parseFlags loads the config file named in args, then parses args with
// the config values as flag defaults.
func parseFlags(name string, args []string, extra func(*pflag.FlagSet, *config)) (*config, *pflag.FlagSet, error) {
	cfg := defaultConfig()
	path, explicit := configPath(args)
	if err := loadConfig(path, explicit, &cfg); err != nil {
		return nil, nil, err
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", path, "YAML config file")
	cfg.addFlags(fs)
	if extra != nil {
		extra(fs, &cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &cfg, fs, nil
}

// configPath finds --config in args before the flag set exists.
func configPath(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v, true
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return defaultConfigFile, false
}

func runCreate(ctx context.Context, args []string) error {
	cfg, fs, err := parseFlags("create", args, func(fs *pflag.FlagSet, cfg *config) {
		fs.Int64Var(&cfg.Capacity, "capacity", cfg.Capacity, "stream bytes per container")
		fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "archive workers (0 = GOMAXPROCS)")
		fs.IntVar(&cfg.Queue, "queue", cfg.Queue, "indexed entries that may wait for a worker")
	})
	if err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("create needs OUTDIR and at least one INPUT")
	}
	logger, err := cfg.logger()
	if err != nil {
		return err
	}
	keyHash, err := cfg.keyHash()
	if err != nil {
		return err
	}

	outDir, inputs := fs.Arg(0), fs.Args()[1:]
	report, err := stow.Create(ctx, inputs, outDir,
		stow.CreateWithCodec(cfg.Codec),
		stow.CreateWithCapacity(cfg.Capacity),
		stow.CreateWithWorkers(cfg.Workers),
		stow.CreateWithQueueSize(cfg.Queue),
		stow.CreateWithKeyHash(keyHash),
		stow.CreateWithLogger(logger),
	)
	if report != nil {
		var total int64
		for _, path := range report.Containers {
			if info, statErr := os.Stat(path); statErr == nil {
				total += info.Size()
			}
		}
		fmt.Printf("%d entries in %d containers (%s)\n",
			report.Written, len(report.Containers), humanize.IBytes(uint64(total))) //nolint:gosec // sizes are non-negative
		for name, ferr := range report.Failed {
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", name, ferr)
		}
		if err == nil && len(report.Failed) > 0 {
			err = fmt.Errorf("%d entries failed", len(report.Failed))
		}
	}
	return err
}

func runExtract(ctx context.Context, args []string) error {
	var index int
	cfg, fs, err := parseFlags("extract", args, func(fs *pflag.FlagSet, cfg *config) {
		fs.BoolVarP(&cfg.Overwrite, "overwrite", "f", cfg.Overwrite, "overwrite existing files")
		fs.BoolVar(&cfg.Prompt, "prompt", cfg.Prompt, "ask for a folder when a container is missing")
		fs.IntVar(&index, "index", -1, "extract only the record at this index of a single container")
	})
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("extract needs a CONTAINER or FOLDER and OUTDIR")
	}
	x, err := newExtractor(cfg,
		stow.ExtractWithOverwrite(cfg.Overwrite),
		stow.ExtractWithFolderPrompt(terminalPrompt(cfg.Prompt)),
	)
	if err != nil {
		return err
	}

	src, outDir := fs.Arg(0), fs.Arg(1)
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if index >= 0 {
		if info.IsDir() {
			return errors.New("--index needs a single container")
		}
		res, err := x.ExtractIndex(ctx, src, index, outDir)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	}

	var report *stow.ExtractReport
	if info.IsDir() {
		report, err = x.ExtractFolder(ctx, src, outDir)
	} else {
		report, err = x.ExtractFile(ctx, src, outDir)
	}
	if report != nil {
		for i := range report.Files {
			printResult(&report.Files[i])
		}
		if failed := report.Failed(); err == nil && len(failed) > 0 {
			err = fmt.Errorf("%d entries failed", len(failed))
		}
	}
	return err
}

func printResult(res *stow.FileResult) {
	switch {
	case res.Err != nil:
		fmt.Fprintf(os.Stderr, "failed: %s: %v\n", res.Name, res.Err)
	case res.Skipped:
		fmt.Printf("skipped %s (exists)\n", res.Name)
	case res.Type == stow.EntryFolder:
		fmt.Printf("%s/\n", res.Name)
	default:
		fmt.Printf("%s  %s  %s\n", res.Name, humanize.IBytes(uint64(res.Size)), res.Digest) //nolint:gosec // sizes are non-negative
	}
}

func runView(ctx context.Context, args []string) error {
	cfg, fs, err := parseFlags("view", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("view needs a CONTAINER or FOLDER")
	}
	x, err := newExtractor(cfg)
	if err != nil {
		return err
	}

	src := fs.Arg(0)
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		contents, err := x.View(src)
		if contents != nil {
			printContents(contents)
		}
		return err
	}

	fc, err := x.ViewFolder(ctx, src)
	if err != nil {
		return err
	}
	for _, contents := range fc.Archives {
		printContents(contents)
	}
	for _, path := range fc.Ignored {
		fmt.Printf("ignored %s\n", path)
	}
	return nil
}

func printContents(ac *stow.ArchiveContents) {
	fmt.Printf("%s  stream %016x  sequence %d\n", filepath.Base(ac.Path), ac.ID.Stream, ac.ID.Sequence)
	for _, f := range ac.Files {
		if f.Type == stow.EntryFolder {
			fmt.Printf("  %3d  %s/\n", f.Index, f.Name)
			continue
		}
		fmt.Printf("  %3d  %s  %s  fragment %d  %s of %s\n",
			f.Index, f.Mode, f.Name, f.Fragment,
			humanize.IBytes(uint64(f.Stored)), humanize.IBytes(uint64(f.Remaining))) //nolint:gosec // sizes are non-negative
	}
}

func newExtractor(cfg *config, opts ...stow.ExtractOption) (*stow.Extractor, error) {
	logger, err := cfg.logger()
	if err != nil {
		return nil, err
	}
	keyHash, err := cfg.keyHash()
	if err != nil {
		return nil, err
	}
	base := []stow.ExtractOption{
		stow.ExtractWithCodec(cfg.Codec),
		stow.ExtractWithKeyHash(keyHash),
		stow.ExtractWithLogger(logger),
	}
	return stow.NewExtractor(append(base, opts...)...)
}
