package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// errInterrupted is the cause of a context canceled by SIGINT or SIGTERM.
var errInterrupted = errors.New("interrupted")

// contrastList collects the values of a repeatable flag.
type contrastList []string

func (l *contrastList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, " ")
}

func (l *contrastList) Set(v string) error {
	for _, f := range strings.Fields(v) {
		*l = append(*l, f)
	}
	return nil
}

// expandMulti rewrites "-c A B -x" as "-c A -c B -x" so that a flag takes
// several values after one occurrence.
func expandMulti(args []string, names ...string) []string {
	isMulti := func(a string) bool {
		for _, n := range names {
			if a == "-"+n || a == "--"+n {
				return true
			}
		}
		return false
	}
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if !isMulti(a) || i+1 >= len(args) {
			continue
		}
		out = append(out, args[i+1])
		i++
		for i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, a, args[i+1])
			i++
		}
	}
	return out
}

func printDefaults(w io.Writer, fs *flag.FlagSet) {
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// parse parses args with fs and checks that every flag in required was set.
// Problems are reported on w together with the flag defaults.
func parse(fs *flag.FlagSet, w io.Writer, args []string, required ...string) error {
	fs.SetOutput(w)
	fs.Usage = func() {
		fmt.Fprintf(w, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(w, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return errUsage
	}
	return require(fs, w, required...)
}

// require reports every flag of names that was not set on the command line.
func require(fs *flag.FlagSet, w io.Writer, names ...string) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	var missing []string
	for _, name := range names {
		if !set[name] {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(w, "missing required flag: %s\n", strings.Join(missing, ", "))
		fs.Usage()
		return errUsage
	}
	return nil
}

// signalContext is canceled with errInterrupted on SIGINT or SIGTERM, which
// stops a running external program. A run that does not return soon after,
// for example while it waits for an answer on stdin, is ended.
func (c *cli) signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancel(errInterrupted)
		case <-done:
			return
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			fmt.Fprintln(c.stderr, "\nInterrupted.")
			os.Exit(130)
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel(nil)
	}
}

// interrupted replaces err by errInterrupted when ctx was canceled by a
// signal.
func interrupted(ctx context.Context, err error) error {
	if err != nil && errors.Is(context.Cause(ctx), errInterrupted) {
		return errInterrupted
	}
	return err
}
