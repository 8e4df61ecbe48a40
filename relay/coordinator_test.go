package relay

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-audio-relay/core"
)

func testRelayConfig(t *testing.T) core.RelayConfig {
	t.Helper()
	return core.RelayConfig{
		SocketPath:     filepath.Join(t.TempDir(), "relay.sock"),
		DefaultTimeout: 5 * time.Second,
	}
}

func startCoordinator(t *testing.T, config core.RelayConfig) *Coordinator {
	t.Helper()
	coordinator := NewCoordinator(config, glog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- coordinator.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		coordinator.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("coordinator accept loop did not exit")
		}
	})
	waitFor(t, func() bool { return coordinator.Addr() != nil })
	return coordinator
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within 2s")
}

func (c *Coordinator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) hasPending(state string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[state]
	return ok
}

func TestCoordinator_EndToEndDelivery(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	type outcome struct {
		result Result
		err    error
	}
	results := make(chan outcome, 1)
	go func() {
		result, err := WaitForCode(context.Background(), "s1", 5*time.Second, config)
		results <- outcome{result, err}
	}()

	waitFor(t, func() bool { return coordinator.hasPending("s1") })
	if !coordinator.DeliverResult("s1", "abc123", nil) {
		t.Fatalf("expected delivery to reach the waiting client")
	}

	select {
	case got := <-results:
		if got.err != nil {
			t.Fatalf("wait for code: %v", got.err)
		}
		if !got.result.Success() || got.result.Code != "abc123" {
			t.Fatalf("expected delivered code, got %#v", got.result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client did not receive delivery")
	}
}

func TestCoordinator_RawFallbackDelivery(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	results := make(chan Result, 1)
	go func() {
		result, err := WaitForCode(context.Background(), "s2", 5*time.Second, config)
		if err != nil {
			t.Errorf("wait for code: %v", err)
			return
		}
		results <- result
	}()

	waitFor(t, func() bool { return coordinator.hasPending("s2") })
	if !coordinator.DeliverResult("s2", "", map[string]any{"error": "access_denied"}) {
		t.Fatalf("expected raw fallback delivery to succeed")
	}

	select {
	case result := <-results:
		if result.Success() {
			t.Fatalf("expected failed extraction result, got %#v", result)
		}
		if result.Raw["error"] != "access_denied" {
			t.Fatalf("expected raw payload preserved, got %#v", result.Raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client did not receive fallback delivery")
	}
}

func TestCoordinator_DeliverResultNoWaiter(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	if coordinator.DeliverResult("never-registered", "code", nil) {
		t.Fatalf("expected false for unknown state")
	}
	if coordinator.pendingCount() != 0 {
		t.Fatalf("expected no side effect on the registration table")
	}
}

func TestCoordinator_SingleDeliveryPerRegistration(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	go func() {
		_, _ = WaitForCode(context.Background(), "once", 5*time.Second, config)
	}()
	waitFor(t, func() bool { return coordinator.hasPending("once") })

	if !coordinator.DeliverResult("once", "first", nil) {
		t.Fatalf("expected first delivery to succeed")
	}
	if coordinator.DeliverResult("once", "second", nil) {
		t.Fatalf("expected replayed delivery to be dropped")
	}
}

func TestCoordinator_RegisterReplacesPrevious(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := NewCoordinator(config, glog.Nop())

	first := coordinator.register("dup")
	second := coordinator.register("dup")

	select {
	case <-first.cancelled:
	default:
		t.Fatalf("expected first registration to observe cancellation")
	}

	if !coordinator.DeliverResult("dup", "winner", nil) {
		t.Fatalf("expected delivery to the replacement registration")
	}
	select {
	case msg := <-second.result:
		if msg.Code != "winner" {
			t.Fatalf("expected replacement to receive the code, got %#v", msg)
		}
	default:
		t.Fatalf("expected the replacement registration to be resolved")
	}
	select {
	case msg := <-first.result:
		t.Fatalf("stale registration received a delivery: %#v", msg)
	default:
	}
}

func TestCoordinator_DefaultSlotForStatelessRegistration(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	go func() {
		_, _ = WaitForCode(context.Background(), "", 5*time.Second, config)
	}()
	waitFor(t, func() bool { return coordinator.hasPending(DefaultSlot) })

	if !coordinator.DeliverResult("", "stateless", nil) {
		t.Fatalf("expected stateless delivery through the default slot")
	}
}

func TestCoordinator_ClientTimeout(t *testing.T) {
	config := testRelayConfig(t)
	startCoordinator(t, config)

	started := time.Now()
	_, err := WaitForCode(context.Background(), "slow", 400*time.Millisecond, config)
	elapsed := time.Since(started)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestCoordinator_ServerTimeoutClosesWithoutResult(t *testing.T) {
	config := testRelayConfig(t)
	config.DefaultTimeout = 300 * time.Millisecond
	startCoordinator(t, config)

	_, err := WaitForCode(context.Background(), "expired", 5*time.Second, config)
	if err == nil {
		t.Fatalf("expected error after coordinator-side timeout")
	}
	if !IsUnexpectedReply(err) {
		t.Fatalf("expected closed-without-result classification, got %v", err)
	}
}

func TestCoordinator_ProtocolViolationOnlyClosesThatConnection(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	go func() {
		_, _ = WaitForCode(context.Background(), "survivor", 5*time.Second, config)
	}()
	waitFor(t, func() bool { return coordinator.hasPending("survivor") })

	for _, first := range []string{
		`{"type":"DELIVER","code":"sneaky"}` + "\n",
		"not json at all\n",
	} {
		conn, err := net.Dial("unix", config.SocketPath)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if _, err := conn.Write([]byte(first)); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := readLine(conn); err == nil {
			t.Fatalf("expected the violating connection to be closed without a reply")
		}
		_ = conn.Close()
	}

	if !coordinator.hasPending("survivor") {
		t.Fatalf("expected other waiters to be unaffected by protocol violations")
	}
	if !coordinator.DeliverResult("survivor", "still-here", nil) {
		t.Fatalf("expected surviving registration to stay deliverable")
	}
}

func TestCoordinator_StopCancelsAllPending(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := startCoordinator(t, config)

	const waiters = 5
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		state := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := WaitForCode(context.Background(), state, 5*time.Second, config)
			if err == nil && result.Success() {
				t.Errorf("waiter %q resolved with a value after shutdown", state)
			}
			errs <- err
		}()
	}
	waitFor(t, func() bool { return coordinator.pendingCount() == waiters })

	coordinator.Stop()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err == nil {
			t.Fatalf("expected every pending waiter to observe cancellation")
		}
	}
	if coordinator.pendingCount() != 0 {
		t.Fatalf("expected an empty registration table after stop")
	}
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	config := testRelayConfig(t)
	coordinator := NewCoordinator(config, glog.Nop())
	coordinator.Stop()
	coordinator.Stop()

	started := startCoordinator(t, testRelayConfig(t))
	started.Stop()
	started.Stop()
}

func TestCoordinator_TCPTransport(t *testing.T) {
	config := core.RelayConfig{
		UseTCP:         true,
		TCPHost:        "127.0.0.1",
		TCPPort:        0,
		DefaultTimeout: 5 * time.Second,
	}
	coordinator := startCoordinator(t, config)

	addr, ok := coordinator.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("expected tcp listener, got %T", coordinator.Addr())
	}
	config.TCPPort = addr.Port

	results := make(chan Result, 1)
	go func() {
		result, err := WaitForCode(context.Background(), "tcp-state", 5*time.Second, config)
		if err != nil {
			t.Errorf("wait for code over tcp: %v", err)
			return
		}
		results <- result
	}()

	waitFor(t, func() bool { return coordinator.hasPending("tcp-state") })
	if !coordinator.DeliverResult("tcp-state", "tcp-code", nil) {
		t.Fatalf("expected tcp delivery to succeed")
	}
	select {
	case result := <-results:
		if result.Code != "tcp-code" {
			t.Fatalf("expected tcp-code, got %#v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tcp client did not receive delivery")
	}
}

func TestWaitForCode_ConnectionError(t *testing.T) {
	config := core.RelayConfig{
		SocketPath:     filepath.Join(t.TempDir(), "missing.sock"),
		DefaultTimeout: time.Second,
	}
	_, err := WaitForCode(context.Background(), "s", time.Second, config)
	if err == nil {
		t.Fatalf("expected connection error when no coordinator is listening")
	}
	if !IsConnectionError(err) {
		t.Fatalf("expected connection classification, got %v", err)
	}
}
