// Command ki synchronizes an Anki collection with a git-versioned plain-text
// note tree. It wires internal/sync's Driver behind internal/cli.App's
// subcommand dispatch, with global --color flags and a self-update command.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/kiproject/ki/internal/cli"
	"github.com/kiproject/ki/internal/termcolor"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	// --version is handled before app.Run because "--" prefixed args
	// would be treated as unknown commands by the dispatcher.
	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("ki", version)
	app.Stderr = os.Stderr

	app.Register(&cli.Command{
		Name:    "clone",
		Summary: "Create a ki working copy from an Anki collection",
		Usage:   "ki clone <collection.anki2> [target-dir]",
		Examples: []string{
			"ki clone ~/.local/share/Anki2/User\\ 1/collection.anki2",
			"ki clone collection.anki2 notes/",
		},
		Run: func(args []string) int { return runClone(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "push",
		Summary: "Write working copy edits into the collection",
		Usage:   "ki push",
		Run:     func(args []string) int { return runPush(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "pull",
		Summary: "Merge the collection's current state into the working copy",
		Usage:   "ki pull",
		Run:     func(args []string) int { return runPull(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "update",
		Summary: "Update to the latest release",
		Usage:   "ki update [--check]",
		Examples: []string{
			"ki update",
			"ki update --check",
		},
		Run: func(args []string) int { return runUpdate(args) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "ki version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("ki %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
