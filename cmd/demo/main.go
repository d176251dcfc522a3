package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/ride-sharing/internal/logging"
	"github.com/example/ride-sharing/internal/world"
)

const sampleRoads = `A B 5
A C 10
B C 3
C D 4
B D 8
`

func main() {
	roadsPath := flag.String("roads", "", "road file to load instead of the built-in sample")
	bound := flag.Int("bound", 15, "cost bound for the reachability listing")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger, err := logging.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	w := world.New(world.WithLogger(logger))
	if err := run(w, os.Stdout, *roadsPath, *bound); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}

func run(w *world.World, out io.Writer, roadsPath string, bound int) error {
	var roads io.Reader = strings.NewReader(sampleRoads)
	if roadsPath != "" {
		f, err := os.Open(roadsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		roads = f
	}
	loaded, skipped, err := w.LoadRoads(roads)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d roads (%d skipped)\n", loaded, skipped)

	steps := []func() error{
		func() error { _, err := w.RegisterUser(101, "Ali", "driver"); return err },
		func() error { _, err := w.RegisterUser(201, "Sara", "passenger"); return err },
		func() error { _, err := w.RegisterUser(202, "Omar", "passenger"); return err },
		func() error { _, err := w.RegisterUser(203, "Hina", "passenger"); return err },
		func() error { _, err := w.CreateOffer(1, 101, "A", "D", 10, 2); return err },
		func() error { _, err := w.CreateRequest(1, 201, "A", "D", 9, 11); return err },
		func() error { _, err := w.CreateRequest(2, 202, "A", "D", 10, 12); return err },
		func() error { _, err := w.CreateRequest(3, 203, "A", "C", 11, 13); return err },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	printOffers(w, out, "Offers before matching")
	for w.QueueLen() > 0 {
		res := w.MatchNext(context.Background())
		if !res.Matched {
			fmt.Fprintln(out, "No match for the next request; it stays queued")
			break
		}
		fmt.Fprintf(out, "Matched request %d (passenger %d) with driver %s on offer %d: %s -> %s at %d\n",
			res.RequestID, res.PassengerID, res.DriverName, res.OfferID, res.Start, res.End, res.DepartTime)
	}
	printOffers(w, out, "Offers after matching")

	offers := w.Offers()
	if len(offers) == 0 {
		return nil
	}
	newest := offers[0]
	reach, err := w.Reachable(newest.OfferID, bound)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Places reachable from %s within cost %d:\n", newest.Start, bound)
	for _, r := range reach {
		fmt.Fprintf(out, "  %s (cost %d)\n", r.Place, r.Cost)
	}
	return nil
}

func printOffers(w *world.World, out io.Writer, title string) {
	fmt.Fprintln(out, title+":")
	for _, o := range w.Offers() {
		fmt.Fprintf(out, "  offer %d driver %d %s -> %s depart %d seats %d/%d\n",
			o.OfferID, o.DriverID, o.Start, o.End, o.DepartTime, o.SeatsLeft, o.Capacity)
	}
}
