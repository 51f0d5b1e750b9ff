package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kiproject/ki/internal/kirepo"
	"github.com/kiproject/ki/internal/progress"
	"github.com/kiproject/ki/internal/sync"
	"github.com/kiproject/ki/internal/termcolor"
)

func runPull(args []string, cw *termcolor.Writer) int {
	root, err := kirepo.Find(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ki pull: %v\n", err)
		return 1
	}

	sp := progress.New("pulling collection state into working copy")
	sp.Start()
	defer sp.Stop()

	drv := sync.New(sync.Config{})
	if err := drv.Pull(context.Background(), root); err != nil {
		sp.Fail(fmt.Sprintf("ki pull: %v", err))
		return 1
	}
	sp.Stop()
	fmt.Printf("%s working copy updated from collection\n", cw.Green("done:"))
	return 0
}
