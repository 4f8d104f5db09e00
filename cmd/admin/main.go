package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"lostfound.gg/internal/persistence/records"
	"lostfound.gg/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "records":
			recordsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <records|state> [flags]")
	os.Exit(2)
}

func recordsCmd(args []string) {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	dbPath := fs.String("db", os.Getenv("GAME_DB_URL"), "records database path (default: GAME_DB_URL)")
	start := fs.Int("start", 0, "first row of the page")
	limit := fs.Int("limit", 20, "page size")
	_ = fs.Parse(args)

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "missing -db and GAME_DB_URL is unset")
		os.Exit(2)
	}

	store, err := records.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer store.Close()

	rows, err := store.Records(*start, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for i, r := range rows {
		playTime := time.Duration(r.PlayTimeMs) * time.Millisecond
		fmt.Printf("%4d  %-24s %6d  %s\n", *start+i+1, r.Name, r.Score, playTime)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	path := fs.String("file", "", "snapshot file to inspect")
	_ = fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}

	snap, found, err := snapshot.Read(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintln(os.Stderr, "no such snapshot:", *path)
		os.Exit(1)
	}

	savedAt := time.UnixMilli(snap.Header.SavedAt).UTC().Format(time.RFC3339)
	fmt.Printf("snapshot v%d saved_at=%s sessions=%d\n",
		snap.Header.Version, savedAt, len(snap.Sessions))
	for i, s := range snap.Sessions {
		fmt.Printf("session %s: players=%d items=%d next_item=%d\n",
			strconv.Itoa(i), len(s.Players), len(s.Items), s.NextItemID)
		for _, p := range s.Players {
			fmt.Printf("  %-24s dog=%d pos=(%.2f, %.2f) score=%d bag=%d/%d\n",
				p.Name, p.Dog.ID, p.Dog.Pos[0], p.Dog.Pos[1],
				p.Dog.Score, len(p.Dog.Bag), p.Dog.BagCapacity)
		}
	}
}
