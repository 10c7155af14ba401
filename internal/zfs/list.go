package zfs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// List returns every snapshot below path, oldest first.
func (c *Client) List(ctx context.Context, path string) ([]Record, error) {
	out, err := c.runner.Run(ctx, c.command,
		"list", "-H", "-p",
		"-t", "snapshot",
		"-o", "name,creation",
		"-s", "creation",
		"-r", path,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots under %s: %w", path, err)
	}

	return ParseList(bytes.NewReader(out), c.log)
}

// ParseList reads `name [creation-epoch]` lines. Blank lines, comments and
// a NAME header are ignored; malformed lines are logged and skipped.
func ParseList(r io.Reader, log *zap.Logger) ([]Record, error) {
	var recs []Record

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if fields[0] == "NAME" {
			continue
		}
		if len(fields) > 2 || !strings.Contains(fields[0], "@") {
			log.Warn("skipping malformed listing line", zap.Int("line", lineNo), zap.String("text", line))
			continue
		}

		rec := Record{Name: fields[0]}
		if len(fields) == 2 {
			epoch, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				log.Warn("skipping listing line with bad creation time",
					zap.Int("line", lineNo), zap.String("text", line), zap.Error(err))
				continue
			}
			rec.Creation = time.Unix(epoch, 0)
		}
		recs = append(recs, rec)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot list: %w", err)
	}
	return recs, nil
}
