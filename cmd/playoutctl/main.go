// Command playoutctl drives a running playout worker through its control API.
//
//	playoutctl -c 1 cue 4711 --play
//	playoutctl -c 1 take
//	playoutctl -c 1 stat
//	playoutctl token --role operator --subject studio-a
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
