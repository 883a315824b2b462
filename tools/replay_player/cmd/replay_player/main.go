package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"minigolf/engine/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay directory or manifest.json")
	coursePath := flag.String("course", "", "Course file to verify against (defaults to the reference course)")
	verify := flag.Bool("verify", false, "Re-simulate the shot and compare every frame")
	full := flag.Bool("full", false, "Print every event and frame instead of a summary")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	bundle, err := replayplayer.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	if *verify {
		if err := replayplayer.Verify(bundle, *coursePath); err != nil {
			fmt.Fprintln(os.Stderr, "verify failed:", err)
			os.Exit(4)
		}
		fmt.Fprintln(os.Stderr, "verify ok")
	}

	var payload any = replayplayer.Summarise(bundle)
	if *full {
		payload = bundle
	}
	//1.- Render as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
