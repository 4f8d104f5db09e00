package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	persistlog "lostfound.gg/internal/persistence/log"
	"lostfound.gg/internal/sim/world"
)

func main() {
	var (
		eventsDir = flag.String("events", "", "directory containing events-*.jsonl.zst")
		mapFilter = flag.String("map", "", "only show events for this map")
		typFilter = flag.String("type", "", "only show events of this type (join, action, gather, handover, retire)")
		fromMs    = flag.Int64("from", 0, "only show events at or after this unix-ms timestamp")
		asJSON    = flag.Bool("json", false, "print raw JSON lines instead of a summary")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no event segments found in", *eventsDir)
		os.Exit(1)
	}

	var shown int
	for _, path := range files {
		events, err := persistlog.ReadSegment(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
		for _, ev := range events {
			if !matches(ev, *mapFilter, *typFilter, *fromMs) {
				continue
			}
			printEvent(ev, *asJSON)
			shown++
		}
	}
	fmt.Fprintf(os.Stderr, "%d events from %d segments\n", shown, len(files))
}

func matches(ev world.LogEvent, mapID, typ string, fromMs int64) bool {
	if mapID != "" && ev.Map != mapID {
		return false
	}
	if typ != "" && ev.Type != typ {
		return false
	}
	return ev.Ts >= fromMs
}

func printEvent(ev world.LogEvent, asJSON bool) {
	if asJSON {
		b, _ := json.Marshal(ev)
		fmt.Println(string(b))
		return
	}
	ts := time.UnixMilli(ev.Ts).UTC().Format("15:04:05.000")
	switch ev.Type {
	case "join":
		fmt.Printf("%s %-8s map=%s player=%d name=%q\n", ts, ev.Type, ev.Map, ev.Player, ev.Name)
	case "action":
		fmt.Printf("%s %-8s map=%s player=%d move=%q\n", ts, ev.Type, ev.Map, ev.Player, ev.Move)
	case "gather":
		fmt.Printf("%s %-8s map=%s dog=%d item=%d\n", ts, ev.Type, ev.Map, ev.Dog, ev.Item)
	case "handover":
		fmt.Printf("%s %-8s map=%s dog=%d office=%s score=%d\n", ts, ev.Type, ev.Map, ev.Dog, ev.Office, ev.Score)
	case "retire":
		fmt.Printf("%s %-8s map=%s player=%d name=%q score=%d\n", ts, ev.Type, ev.Map, ev.Player, ev.Name, ev.Score)
	default:
		b, _ := json.Marshal(ev)
		fmt.Println(string(b))
	}
}

func listEventFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
