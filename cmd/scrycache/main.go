package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	_, _ = parser.AddCommand("serve", "Serve the card catalog API", `
Serve the card catalog API with the provided configuration, until
signaled to exit (via SIGTERM). On startup the service opens its store,
connects optional cache tiers, and performs a bulk snapshot load if the
corpus is missing or stale.
`, &cmdServe{})

	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Stdout.WriteString(flagErr.Message)
			os.Exit(0)
		}
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
