// Package tcpcollect maintains a best-effort IP -> OS-guess table fed by an
// optional kernel ring-buffer collector reading SYN option ordering at
// connection accept time. With no BPF object loaded it runs in mock mode:
// Lookup always misses and the wave-2 TCP/IP fingerprint detector simply
// does not fire, exactly as the spec requires for any detector whose inputs
// are unavailable.
package tcpcollect

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// Table is the bounded, thread-safe IP -> OS-guess map the detector reads.
// Entries are overwritten on every new sample for an IP rather than
// accumulated, since only the most recent handshake matters.
type Table struct {
	mu       sync.RWMutex
	guesses  map[string]string
	capacity int
	order    []string
}

// NewTable builds an empty table bounded at capacity distinct IPs.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = 50000
	}
	return &Table{guesses: make(map[string]string), capacity: capacity}
}

// Lookup returns the most recent OS guess recorded for ip, or "" if none.
func (t *Table) Lookup(ip string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.guesses[ip]
}

func (t *Table) set(ip, guess string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.guesses[ip]; !exists {
		t.order = append(t.order, ip)
		if len(t.order) > t.capacity {
			oldest := t.order[0]
			t.order = t.order[1:]
			delete(t.guesses, oldest)
		}
	}
	t.guesses[ip] = guess
}

// Collector reads raw SYN-option records off a pinned eBPF ring buffer and
// resolves each one to a coarse OS guess keyed by source IP. Construct it
// with NewCollector; if no ring buffer is available (the common case
// outside a Linux host with the probe's BPF object loaded and pinned),
// Start is a no-op and Table.Lookup always misses.
type Collector struct {
	table *Table
	ring  *ringbuf.Reader
}

// NewCollector removes the RLIMIT_MEMLOCK cap (required before any BPF map
// can be used) and returns a Collector in mock mode: a ring buffer handle is
// only attached by AttachRing once a real probe is loaded.
func NewCollector(table *Table) (*Collector, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		slog.Warn("tcpcollect: remove memlock failed, running in mock mode", "error", err)
	}
	return &Collector{table: table}, nil
}

// AttachRing wires a live eBPF ring buffer reader into the collector. Until
// this is called, Start does nothing.
func (c *Collector) AttachRing(r *ringbuf.Reader) {
	c.ring = r
}

// Start consumes ring buffer records until it is closed or Close'd. Safe to
// call once; a nil ring (mock mode) returns immediately.
func (c *Collector) Start() {
	if c.ring == nil {
		slog.Info("tcpcollect: no ring buffer attached, running in mock mode")
		return
	}

	go func() {
		for {
			record, err := c.ring.Read()
			if err != nil {
				if err == ringbuf.ErrClosed {
					return
				}
				slog.Warn("tcpcollect: ring read error", "error", err)
				continue
			}
			c.handle(record.RawSample)
		}
	}()
}

// synRecord layout mirrors the kernel-side C struct: u32 src_ip, u8
// ttl, u16 window_size, u8 os_hint (enum index into osHints).
func (c *Collector) handle(raw []byte) {
	if len(raw) < 8 {
		return
	}
	srcIP := binary.LittleEndian.Uint32(raw[0:4])
	osHint := raw[7]

	ip := formatIPv4(srcIP)
	c.table.set(ip, osGuessFor(osHint))
}

var osHints = []string{"unknown", "linux", "windows", "macos", "bsd"}

func osGuessFor(hint byte) string {
	if int(hint) < len(osHints) {
		return osHints[hint]
	}
	return "unknown"
}

func formatIPv4(n uint32) string {
	return fmtByte(byte(n)) + "." + fmtByte(byte(n>>8)) + "." + fmtByte(byte(n>>16)) + "." + fmtByte(byte(n>>24))
}

func fmtByte(b byte) string {
	const digits = "0123456789"
	if b >= 100 {
		return string([]byte{digits[b/100], digits[(b/10)%10], digits[b%10]})
	}
	if b >= 10 {
		return string([]byte{digits[b/10], digits[b%10]})
	}
	return string([]byte{digits[b]})
}
