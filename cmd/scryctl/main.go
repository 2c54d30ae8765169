package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	_, _ = parser.AddCommand("status", "Show service health and corpus status", `
Query a running scrycache instance for its readiness, corpus size, and
bulk snapshot freshness.
`, &cmdStatus{})

	_, _ = parser.AddCommand("stats", "Show cache statistics", `
Print card and cached result-set counts from a running instance.
`, &cmdStats{})

	_, _ = parser.AddCommand("reload", "Force a bulk snapshot reload", `
Trigger an immediate bulk data reload on a running instance. The call
blocks until the download and import complete.
`, &cmdReload{})

	_, _ = parser.AddCommand("search", "Search cards", `
Run a search query against a running instance and print matching cards.
`, &cmdSearch{})

	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Stdout.WriteString(flagErr.Message)
			os.Exit(0)
		}
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
