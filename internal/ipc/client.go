package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// maxResponseBytes bounds one reply line; session tables stay far below it.
const maxResponseBytes = 1 << 20

// Send dials the daemon socket, writes req as one JSON line and waits for the
// reply. The exchange ends at the earlier of ctx's deadline and timeout.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	deadline := exchangeDeadline(ctx, timeout)

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	line, err := readLine(conn, maxResponseBytes)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func exchangeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

var errLineTooLong = errors.New("line too long")

// readLine returns one newline-terminated line of at most limit bytes.
func readLine(r io.Reader, limit int) ([]byte, error) {
	line, err := bufio.NewReader(io.LimitReader(r, int64(limit)+1)).ReadBytes('\n')
	switch {
	case len(line) > limit:
		return nil, fmt.Errorf("%w: exceeds %d bytes", errLineTooLong, limit)
	case err != nil:
		return nil, err
	}
	return line, nil
}

// Probe reports whether a daemon answers a status request on path. A missing
// or refusing socket is not an error.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case IsNoListener(err):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

// IsNoListener reports dial failures meaning no daemon is running.
func IsNoListener(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{os.ErrNotExist, unix.ENOENT, unix.ECONNREFUSED} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
