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

func runPush(args []string, cw *termcolor.Writer) int {
	root, err := kirepo.Find(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ki push: %v\n", err)
		return 1
	}

	sp := progress.New("pushing notes into collection")
	sp.Start()
	defer sp.Stop()

	drv := sync.New(sync.Config{})
	if err := drv.Push(context.Background(), root); err != nil {
		sp.Fail(fmt.Sprintf("ki push: %v", err))
		return 1
	}
	sp.Stop()
	fmt.Printf("%s notes pushed into collection\n", cw.Green("done:"))
	return 0
}
