package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/util/netutil"
)

// DialFunc attempts one TCP connection.
type DialFunc func(ctx context.Context, host string, port int, timeout time.Duration) error

// Prober checks nodes against the target runtime port.
type Prober struct {
	port        int
	dialTimeout time.Duration
	pingTimeout time.Duration
	dial        DialFunc
	pinger      Pinger
}

// Option customizes a Prober.
type Option func(*Prober)

// WithDialer replaces the TCP dialer.
func WithDialer(d DialFunc) Option {
	return func(p *Prober) { p.dial = d }
}

// WithPinger replaces the ICMP pinger.
func WithPinger(pinger Pinger) Option {
	return func(p *Prober) { p.pinger = pinger }
}

// New creates a prober for the given runtime port.
func New(port int, dialTimeout, pingTimeout time.Duration, opts ...Option) *Prober {
	p := &Prober{
		port:        port,
		dialTimeout: dialTimeout,
		pingTimeout: pingTimeout,
		dial:        netutil.Dial,
		pinger:      ICMPPinger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe classifies one node. It returns within dialTimeout+pingTimeout.
func (p *Prober) Probe(ctx context.Context, node inventory.Node) Status {
	ctx, cancel := context.WithTimeout(ctx, p.dialTimeout+p.pingTimeout)
	defer cancel()

	if err := p.dial(ctx, node.Address.String(), p.port, p.dialTimeout); err == nil {
		return OnlineTargetRuntime
	}
	if err := p.pinger.Ping(ctx, node.Address, p.pingTimeout); err == nil {
		return OnlineUnknownOS
	}
	return Offline
}

// ProbeAll probes every node concurrently.
func (p *Prober) ProbeAll(ctx context.Context, nodes []inventory.Node) Snapshot {
	entries := make([]Entry, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries[i] = Entry{Node: n, Status: p.Probe(ctx, n)}
		}()
	}
	wg.Wait()
	return Snapshot{Entries: entries}
}

// Entry is one node's probed status.
type Entry struct {
	Node   inventory.Node
	Status Status
}

// Snapshot is the result of one probe cycle, in node declaration order.
type Snapshot struct {
	Entries []Entry
}

// Status returns the status of the named node.
func (s Snapshot) Status(name string) (Status, bool) {
	for _, e := range s.Entries {
		if e.Node.Name == name {
			return e.Status, true
		}
	}
	return Offline, false
}

// Count returns how many nodes have the given status.
func (s Snapshot) Count(status Status) int {
	n := 0
	for _, e := range s.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Counts returns the number of nodes per status.
func (s Snapshot) Counts() map[Status]int {
	out := make(map[Status]int, 3)
	for _, e := range s.Entries {
		out[e.Status]++
	}
	return out
}

// Online returns the number of nodes that answered at all.
func (s Snapshot) Online() int {
	return len(s.Entries) - s.Count(Offline)
}

// Partition splits nodes into those running the target runtime and the rest.
func (s Snapshot) Partition() (runtime, other []inventory.Node) {
	for _, e := range s.Entries {
		if e.Status == OnlineTargetRuntime {
			runtime = append(runtime, e.Node)
		} else {
			other = append(other, e.Node)
		}
	}
	return runtime, other
}

// Filter returns the nodes whose status satisfies keep.
func (s Snapshot) Filter(keep func(Status) bool) []inventory.Node {
	var out []inventory.Node
	for _, e := range s.Entries {
		if keep(e.Status) {
			out = append(out, e.Node)
		}
	}
	return out
}

// Line renders a compact status line such as "node1:T node2:U node3:- (1T 1U 1-)".
func (s Snapshot) Line() string {
	parts := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		parts = append(parts, e.Node.Name+":"+e.Status.Short())
	}

	counts := s.Counts()
	statuses := make([]Status, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] > statuses[j] })
	summary := make([]string, 0, len(statuses))
	for _, st := range statuses {
		summary = append(summary, fmt.Sprintf("%d%s", counts[st], st.Short()))
	}

	return fmt.Sprintf("%s (%s)", strings.Join(parts, " "), strings.Join(summary, " "))
}
