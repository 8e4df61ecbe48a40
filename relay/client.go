package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/goliatone/go-audio-relay/core"
)

const connectTimeout = 10 * time.Second

// WaitForCode registers with the local coordinator for state and blocks
// until the matching callback is delivered or the wait window expires.
// An empty state uses the shared default slot. A zero timeout falls
// back to the configured default. Failures surface as typed errors:
// connect-phase faults as connection errors, an expired window as a
// timeout, and a misbehaving coordinator as an unexpected-reply error.
func WaitForCode(ctx context.Context, state string, timeout time.Duration, config core.RelayConfig) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	effective := timeout
	if effective <= 0 {
		effective = config.DefaultTimeout
	}
	if effective <= 0 {
		effective = 300 * time.Second
	}

	network, addr := clientEndpoint(config)
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return Result{}, connectionError(err,
			fmt.Sprintf("relay: cannot connect to coordinator on %s (is the relay server running?)", addr),
			map[string]any{"network": network, "addr": addr},
		)
	}
	defer func() {
		_ = conn.Close()
	}()

	register := Message{Type: MessageRegister, State: state}
	encoded, err := EncodeMessage(register)
	if err != nil {
		return Result{}, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(connectTimeout))
	if _, err := conn.Write(encoded); err != nil {
		return Result{}, connectionError(err, "relay: registration write failed", map[string]any{
			"network": network,
			"addr":    addr,
		})
	}

	deadline := time.Now().Add(effective)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)

	line, err := readLine(conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{}, timeoutError(
				fmt.Sprintf("relay: timeout waiting for callback after %s", effective),
				map[string]any{"state": state},
			)
		}
		if errors.Is(err, io.EOF) {
			return Result{}, unexpectedReplyError(
				"relay: coordinator closed connection without sending result",
				map[string]any{"state": state},
			)
		}
		return Result{}, connectionError(err, "relay: reading callback result failed", map[string]any{
			"state": state,
		})
	}

	reply, err := DecodeMessage(line)
	if err != nil {
		return Result{}, err
	}
	if reply.Type != MessageDeliver {
		return Result{}, unexpectedReplyError(
			fmt.Sprintf("relay: unexpected message type %q", string(reply.Type)),
			map[string]any{"state": state},
		)
	}
	return Result{Code: reply.Code, Raw: reply.Raw}, nil
}

func clientEndpoint(config core.RelayConfig) (network string, addr string) {
	if config.UseTCP || runtime.GOOS == "windows" {
		host := config.TCPHost
		if host == "" {
			host = "127.0.0.1"
		}
		return "tcp", net.JoinHostPort(host, strconv.Itoa(config.TCPPort))
	}
	return "unix", config.SocketPath
}
