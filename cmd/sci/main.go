// Command sci converts spinal cord MRI sessions to BIDS and runs the Spinal
// Cord Toolbox on them, reusing human verified segmentations and disc labels.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/prompt"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/toolbox"
)

const version string = "0.1.0"

// The string below will be replaced during build time using
// -ldflags "-X main.compileDate=`date -u +.%Y%m%d.%H%M%S"`"
var compileDate string = ".unknown"

// errUsage marks errors that are answered with the usage message.
var errUsage = errors.New("usage")

// cli holds the streams of one invocation.
type cli struct {
	name   string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	answers *prompt.Prompter
}

// prompter reads all answers of the invocation from one buffered stdin.
func (c *cli) prompter() *prompt.Prompter {
	if c.answers == nil {
		c.answers = prompt.New(c.stdin, c.stdout)
	}
	return c.answers
}

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// exitGracefully prints err and returns the exit status for it: the status
// of a failed external program, or 1.
func (c *cli) exitGracefully(err error) int {
	fmt.Fprintf(c.stderr, "error: %v\n", err)
	if code, ok := toolbox.ExitCode(err); ok {
		return code
	}
	return 1
}

func (c *cli) usage() {
	w := c.stderr
	fmt.Fprintf(w, "sci - spinal cord MRI processing\n")
	fmt.Fprintf(w, "Version: %s%s\n", version, compileDate)
	fmt.Fprintln(w, " Converts a DICOM session to BIDS, segments the spinal cord and labels the")
	fmt.Fprintln(w, " vertebral discs. Human verified segmentations and disc labels are kept in")
	fmt.Fprintf(w, " <bids>/derivatives/labels and used instead of a new computation.\n\n")
	fmt.Fprintf(w, "Usage: %s [process|convert|check|status|mcp] [options]\n\n", c.name)
	fmt.Fprintf(w, "Option process:\n  Convert the DICOM folder and process every contrast.\n\n")
	printDefaults(w, newProcessFlags(new(processOptions)))
	fmt.Fprintf(w, "\nOption convert:\n  Convert the DICOM folder to BIDS only.\n\n")
	printDefaults(w, newConvertFlags(new(convertOptions)))
	fmt.Fprintf(w, "\nOption check:\n  Check that every external program is installed, optionally write the configuration file.\n\n")
	printDefaults(w, newCheckFlags(new(checkOptions)))
	fmt.Fprintf(w, "\nOption status:\n  Show which artifacts are computed and verified.\n\n")
	printDefaults(w, newStatusFlags(new(statusOptions)))
	fmt.Fprintf(w, "\nOption mcp:\n  Serve the artifact status to MCP clients.\n\n")
	printDefaults(w, newMCPFlags(new(statusOptions)))
	fmt.Fprintln(w, "")
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{name: filepath.Base(args[0]), stdin: stdin, stdout: stdout, stderr: stderr}

	top := flag.NewFlagSet(c.name, flag.ContinueOnError)
	top.SetOutput(stderr)
	top.Usage = c.usage
	var showVersion bool
	top.BoolVar(&showVersion, "version", false, "Show the version number.")
	if err := top.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if showVersion {
		fmt.Fprintf(stdout, "sci version: %s%s\n", version, compileDate)
		return 0
	}
	if top.NArg() == 0 {
		c.usage()
		return 1
	}

	var err error
	rest := top.Args()[1:]
	switch top.Arg(0) {
	case "process":
		err = c.process(rest)
	case "convert":
		err = c.convert(rest)
	case "check":
		err = c.check(rest)
	case "status":
		err = c.status(rest)
	case "mcp":
		err = c.mcp(rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", top.Arg(0))
		c.usage()
		return 1
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 1
	case errors.Is(err, errInterrupted):
		fmt.Fprintln(stderr, "Interrupted.")
		return 130
	}
	return c.exitGracefully(err)
}
