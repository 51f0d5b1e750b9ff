package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kiproject/ki/internal/progress"
	"github.com/kiproject/ki/internal/sync"
	"github.com/kiproject/ki/internal/termcolor"
)

func runClone(args []string, cw *termcolor.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: ki clone <collection.anki2> [target-dir]")
		return 1
	}
	colPath := args[0]
	target := "."
	if len(args) >= 2 {
		target = args[1]
	}

	sp := progress.New(fmt.Sprintf("cloning %s", colPath))
	sp.Start()
	defer sp.Stop()

	drv := sync.New(sync.Config{})
	if err := drv.Clone(context.Background(), colPath, target); err != nil {
		sp.Fail(fmt.Sprintf("ki clone: %v", err))
		return 1
	}
	sp.Stop()
	fmt.Printf("%s cloned into %s\n", cw.Green("done:"), target)
	return 0
}
