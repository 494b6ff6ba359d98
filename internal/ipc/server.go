package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	// maxRequestBytes bounds one request line; a display record is well under it.
	maxRequestBytes = 64 << 10
	readTimeout     = 2 * time.Second
	writeTimeout    = 5 * time.Second
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx is cancelled or the
// listener closes, then waits for in-flight requests.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	req, err := readRequest(conn)
	if err != nil {
		reply(conn, Response{OK: false, Error: err.Error()})
		return
	}

	resp := handler.Handle(ctx, req)
	reply(conn, resp)
}

func readRequest(r io.Reader) (Request, error) {
	line, err := readLine(r, maxRequestBytes)
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return Request{}, fmt.Errorf("request exceeds %d bytes", maxRequestBytes)
		}
		return Request{}, fmt.Errorf("read request: %w", err)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return Request{}, errors.New("request has no command")
	}
	return req, nil
}

func reply(conn net.Conn, resp Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = json.NewEncoder(conn).Encode(resp)
}
