package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"minigolf/engine/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing replay bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		h := entry.Header
		fmt.Printf("%s shot %d on %s: %s after %d frames\n", h.SessionID, h.Shot, h.Course.Name, h.Outcome, h.Frames)
		fmt.Printf("  bundle: %s\n", entry.BundleDir)
	}
	counts := replaycatalog.Outcomes(entries)
	outcomes := make([]string, 0, len(counts))
	for outcome := range counts {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Printf("%s: %d\n", outcome, counts[outcome])
	}
}
