package rpc

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"docvet/internal/logging"
)

// maxMessageSize bounds one request (16 MiB). Validation content rides
// inside params, so lines can be far larger than typical RPC traffic.
const maxMessageSize = 16 * 1024 * 1024

// ServeStdio reads newline-delimited JSON-RPC requests from r and writes
// one response line per request to w, in order. It returns on EOF, on a
// read error, or once ctx is cancelled between requests.
func ServeStdio(ctx context.Context, d *Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	out := bufio.NewWriter(w)

	logging.Server("stdio transport ready")
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := d.DispatchRaw(ctx, line)
		if _, err := out.Write(resp); err != nil {
			return fmt.Errorf("stdio write failed: %w", err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("stdio write failed: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("stdio flush failed: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio read failed: %w", err)
	}
	logging.Server("stdio transport closed")
	return nil
}
