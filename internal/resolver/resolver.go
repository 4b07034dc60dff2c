// Package resolver discovers bulb addresses on the local network.
//
// Discovery runs two phases concurrently: an mDNS query for the bulb
// service, and an HTTP probe sweep of the local /24 subnets on the bulb
// port. Responses are collected until the overall timeout elapses or
// discovery has been idle, no responses and no probe progress, for a
// quiescence window. Finding nothing is a valid outcome, not an error.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/model"
)

const (
	// MDNSService is the service bulbs announce themselves under.
	MDNSService = "_led._tcp"

	// DefaultTimeout bounds a whole discovery run.
	DefaultTimeout = 5 * time.Second

	// DefaultQuiescence ends a run early once discovery has been idle,
	// no responses and no probe progress, for this long.
	DefaultQuiescence = time.Second

	// DefaultProbeTimeout bounds a single host probe.
	DefaultProbeTimeout = 800 * time.Millisecond

	// DefaultMaxInFlight caps concurrent subnet probes.
	DefaultMaxInFlight = 50
)

// Options tunes a Resolver. Zero values select the defaults above.
type Options struct {
	Port         int           // bulb port to probe, default model.DefaultPort
	ProbeTimeout time.Duration // per-host probe budget
	Quiescence   time.Duration // idle window that ends a run early
	MaxInFlight  int           // concurrent probe bound
	DisableMDNS  bool          // skip the mDNS phase (mainly for tests)
	Pinger       *Pinger       // optional ICMP prefilter, needs privileges
}

// Resolver probes the local network for bulbs. It never touches the
// device registry; callers merge results in themselves.
type Resolver struct {
	opts Options

	// test seams; production code leaves these nil
	probeFn   func(ctx context.Context, addr model.Address) bool
	subnetsFn func() []string
}

// New creates a resolver with the given options.
func New(opts Options) *Resolver {
	if opts.Port <= 0 {
		opts.Port = model.DefaultPort
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Quiescence <= 0 {
		opts.Quiescence = DefaultQuiescence
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	return &Resolver{opts: opts}
}

// Discover collects responding bulb addresses until timeout elapses,
// the quiescence window passes with no new responses, or ctx is
// canceled. An empty result with a nil error means no devices answered.
func (r *Resolver) Discover(ctx context.Context, timeout time.Duration) ([]model.Address, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan model.Address, 256)
	activity := make(chan struct{}, 64)
	var wg sync.WaitGroup

	if !r.opts.DisableMDNS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.mdnsPhase(ctx, found)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.probePhase(ctx, found, activity)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[model.Address]struct{})

	// The quiescence window measures silence, not sweep progress: every
	// completed probe resets it, so the run only ends early when probing
	// itself has gone quiet, never while hosts are still being swept.
	quiet := time.NewTimer(r.opts.Quiescence)
	defer quiet.Stop()
	resetQuiet := func() {
		if !quiet.Stop() {
			<-quiet.C
		}
		quiet.Reset(r.opts.Quiescence)
	}

collect:
	for {
		select {
		case addr := <-found:
			if _, ok := seen[addr]; !ok {
				seen[addr] = struct{}{}
				log.Debug("Device responded", "addr", addr)
			}
			resetQuiet()
		case <-activity:
			resetQuiet()
		case <-quiet.C:
			log.Debug("Discovery quiescence window elapsed", "found", len(seen))
			break collect
		case <-ctx.Done():
			break collect
		case <-done:
			// Drain anything buffered before the probes finished.
			for {
				select {
				case addr := <-found:
					seen[addr] = struct{}{}
				default:
					break collect
				}
			}
		}
	}

	cancel()
	// Let any straggling probes flush into the buffered channel.
	go func() {
		<-done
		for {
			select {
			case <-found:
			default:
				return
			}
		}
	}()

	addrs := make([]model.Address, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	log.Info("Discovery finished", "found", len(addrs))
	return addrs, nil
}

// mdnsPhase queries the local network for the bulb mDNS service.
func (r *Resolver) mdnsPhase(ctx context.Context, found chan<- model.Address) {
	deadline, ok := ctx.Deadline()
	queryTimeout := 3 * time.Second
	if ok {
		if remaining := time.Until(deadline); remaining < queryTimeout {
			queryTimeout = remaining
		}
	}
	if queryTimeout <= 0 {
		return
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	go func() {
		params := &mdns.QueryParam{
			Service:             MDNSService,
			Domain:              "local",
			Timeout:             queryTimeout,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		if err := mdns.Query(params); err != nil {
			log.Debug("mDNS query failed", "error", err)
		}
		close(entries)
	}()

	for entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.AddrV4 == nil {
			continue
		}
		port := entry.Port
		if port == 0 {
			port = r.opts.Port
		}
		select {
		case found <- model.Address{Host: entry.AddrV4.String(), Port: port}:
		case <-ctx.Done():
			return
		}
	}
}

// probePhase sweeps the local /24 subnets, issuing a bounded number of
// concurrent status probes on the bulb port. Every finished probe pings
// activity so the collector knows the sweep is still making progress.
func (r *Resolver) probePhase(ctx context.Context, found chan<- model.Address, activity chan<- struct{}) {
	subnets := r.localSubnets()
	if len(subnets) == 0 {
		log.Debug("No local subnets to probe")
		return
	}

	sem := make(chan struct{}, r.opts.MaxInFlight)
	var wg sync.WaitGroup

	for _, subnet := range subnets {
		log.Debug("Probing subnet", "subnet", subnet, "port", r.opts.Port)
		for i := 1; i <= 254; i++ {
			if ctx.Err() != nil {
				break
			}
			host := fmt.Sprintf("%s.%d", subnet, i)

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}

			wg.Add(1)
			go func(host string) {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					select {
					case activity <- struct{}{}:
					default:
					}
				}()

				addr := model.Address{Host: host, Port: r.opts.Port}
				if r.opts.Pinger != nil {
					if alive, _ := r.opts.Pinger.Ping(ctx, host); !alive {
						return
					}
				}
				if r.probe(ctx, addr) {
					select {
					case found <- addr:
					case <-ctx.Done():
					}
				}
			}(host)
		}
	}
	wg.Wait()
}

// probe checks whether a bulb answers the status endpoint at addr.
func (r *Resolver) probe(ctx context.Context, addr model.Address) bool {
	if r.probeFn != nil {
		return r.probeFn(ctx, addr)
	}

	client := &http.Client{Timeout: r.opts.ProbeTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr.HostPort()+"/led", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// localSubnets returns the /24 prefixes ("a.b.c") of every up,
// non-loopback IPv4 interface.
func (r *Resolver) localSubnets() []string {
	if r.subnetsFn != nil {
		return r.subnetsFn()
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var subnets []string
	seen := make(map[string]struct{})
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil {
				continue
			}
			ones, bits := ipNet.Mask.Size()
			if ones == 0 || bits == 0 || ones > 24 {
				continue
			}
			prefix := fmt.Sprintf("%d.%d.%d", ip[0], ip[1], ip[2])
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}
			subnets = append(subnets, prefix)
		}
	}
	return subnets
}
