package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Handler answers one daemon control command (press, status).
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// connTimeout bounds each client exchange so a stalled CLI cannot pin a
// handler goroutine while the daemon is shutting down. Variable for tests.
var connTimeout = 5 * time.Second

// Serve runs the daemon side of the control socket until the context ends or
// the listener closes. The protocol is one newline-terminated JSON request
// and one JSON response per connection; in-flight exchanges are drained
// before Serve returns.
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
			return fmt.Errorf("accept control connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			_ = c.SetDeadline(time.Now().Add(connTimeout))

			reader := bufio.NewReader(c)
			line, err := reader.ReadBytes('\n')
			if err != nil {
				_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
				return
			}

			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
				return
			}

			resp := handler.Handle(ctx, req)
			_ = json.NewEncoder(c).Encode(resp)
		}(conn)
	}
}
