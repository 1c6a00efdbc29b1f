// Command kupo-ctl triggers the kupo wake word over its control socket,
// acting as a push-to-talk button.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/MrWong99/kupo/pkg/provider/wakeword/trigger"
)

func main() {
	socket := flag.StringP("socket", "s", trigger.DefaultSocketPath, "path of the kupo control socket")
	keyword := flag.IntP("keyword", "k", 0, "keyword index to report")
	timeout := flag.DurationP("timeout", "t", 2*time.Second, "give up after this long")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := trigger.Send(ctx, *socket, trigger.Command{Cmd: trigger.CmdWake, Keyword: *keyword}); err != nil {
		fmt.Fprintln(os.Stderr, "kupo not running:", err)
		os.Exit(1)
	}
}
