package roadgraph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// LoadFrom reads "<from> <to> <cost>" lines and adds one directed road per
// line. Blank lines are ignored; malformed lines are logged and skipped.
// Only read errors are returned.
func (g *Graph) LoadFrom(r io.Reader, logger *zap.Logger) (loaded, skipped int, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		from, to, cost, perr := parseRoadLine(line)
		if perr == nil {
			perr = g.AddRoad(from, to, cost)
		}
		if perr != nil {
			skipped++
			logger.Warn("skipping road line", zap.Int("line", lineNo), zap.String("text", line), zap.Error(perr))
			continue
		}
		loaded++
	}
	if err := sc.Err(); err != nil {
		return loaded, skipped, fmt.Errorf("read roads: %w", err)
	}
	return loaded, skipped, nil
}

func parseRoadLine(line string) (from, to string, cost int, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", 0, fmt.Errorf("want 3 fields, got %d", len(fields))
	}
	cost, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", "", 0, fmt.Errorf("bad cost %q", fields[2])
	}
	return fields[0], fields[1], cost, nil
}
