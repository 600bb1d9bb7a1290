// Package progress reports how far a loading stage has got. It is purely
// informational and never affects what gets loaded.
package progress

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/saulfrancisco-ruizacevedo/bookgraph/internal/logger"
)

// Unknown is the maximum reported when the item count could not be determined.
const Unknown = -1

// CountLines counts the lines of the uncompressed sibling of path (path with
// a trailing ".gz" removed) by running wc -l. Any failure yields Unknown.
func CountLines(ctx context.Context, path string) int {
	out, err := exec.CommandContext(ctx, "wc", "-l", strings.TrimSuffix(path, ".gz")).Output()
	if err != nil {
		return Unknown
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return Unknown
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return Unknown
	}
	return n
}

// Bar counts processed items against a maximum and logs every `every` items.
type Bar struct {
	log     *logger.Logger
	name    string
	max     int
	every   int
	current int
	started time.Time
}

// New starts a bar. total may be Unknown; every <= 0 disables periodic logging.
func New(log *logger.Logger, name string, total, every int) *Bar {
	b := &Bar{log: log, name: name, max: total, every: every, started: time.Now()}
	log.Info("stage started", "stage", name, "expected", b.expected())
	return b
}

// Next records one processed item.
func (b *Bar) Next() {
	b.current++
	if b.every > 0 && b.current%b.every == 0 {
		b.log.Debug("stage progress", "stage", b.name, "done", humanize.Comma(int64(b.current)), "of", b.expected())
	}
}

// Finish logs the final count and elapsed time.
func (b *Bar) Finish() {
	b.log.Info("stage finished",
		"stage", b.name,
		"done", humanize.Comma(int64(b.current)),
		"of", b.expected(),
		"elapsed", time.Since(b.started).Round(time.Millisecond).String(),
	)
}

func (b *Bar) expected() string {
	if b.max < 0 {
		return "unknown"
	}
	return humanize.Comma(int64(b.max))
}
