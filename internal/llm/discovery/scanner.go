// Package discovery probes network ranges for Ollama servers and turns the
// hits into ready-to-register member configurations.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"golang.org/x/sync/errgroup"

	"inkwell-backend/internal/llm"
	"inkwell-backend/internal/logger"
)

// Defaults used when the corresponding Scanner field is zero.
const (
	DefaultPort          = 11434
	DefaultProbeTimeout  = 2 * time.Second
	DefaultMaxConcurrent = 64
)

// ProgressFunc receives scan progress: hosts probed so far and the total.
type ProgressFunc func(done, total int)

// Result describes one discovered Ollama server.
type Result struct {
	IP       string   `json:"ip"`
	Port     int      `json:"port"`
	Hostname string   `json:"hostname,omitempty"`
	Endpoint string   `json:"endpoint"`
	Models   []string `json:"models"`
}

// BackendConfig turns a discovery hit into a member config for the given
// model, which must be one of the hit's Models.
func (r *Result) BackendConfig(model string) llm.BackendConfig {
	name := r.Hostname
	if name == "" {
		name = r.IP
	}
	cfg := llm.NewBackendConfig(
		uuid.NewString(),
		fmt.Sprintf("ollama@%s", name),
		llm.ProviderOllama,
		model,
	)
	cfg.Endpoint = r.Endpoint
	cfg.CostTier = llm.CostFree
	return cfg
}

// Scanner probes address ranges for Ollama servers. The zero value is usable;
// zero fields fall back to the package defaults.
type Scanner struct {
	// Port is the TCP port probed on each host.
	Port int
	// Timeout bounds each individual host probe.
	Timeout time.Duration
	// MaxConcurrent caps the number of in-flight probes.
	MaxConcurrent int
}

// NewScanner creates a scanner with the package defaults.
func NewScanner() *Scanner {
	return &Scanner{
		Port:          DefaultPort,
		Timeout:       DefaultProbeTimeout,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

func (s *Scanner) port() int {
	if s.Port == 0 {
		return DefaultPort
	}
	return s.Port
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultProbeTimeout
	}
	return s.Timeout
}

func (s *Scanner) maxConcurrent() int {
	if s.MaxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	return s.MaxConcurrent
}

// Scan probes every host address in the CIDR range and returns the hits.
// Unreachable hosts are silent misses, never errors.
func (s *Scanner) Scan(ctx context.Context, cidr string) ([]Result, error) {
	return s.ScanWithProgress(ctx, cidr, nil)
}

// ScanWithProgress is Scan with a per-host progress callback. The callback
// fires once per completed probe, hit or miss; pass nil to disable it.
// Cancelling ctx stops the sweep and returns the hits found so far along
// with the context error.
func (s *Scanner) ScanWithProgress(ctx context.Context, cidr string, progress ProgressFunc) ([]Result, error) {
	hosts, err := hostAddrs(cidr)
	if err != nil {
		return nil, err
	}

	logger.Info("scanning for ollama servers", "cidr", cidr, "hosts", len(hosts), "port", s.port())

	var (
		mu      sync.Mutex
		results []Result
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent())

	for _, addr := range hosts {
		if ctx.Err() != nil {
			break
		}
		addr := addr
		g.Go(func() error {
			result, ok := s.Probe(gctx, addr.String())

			mu.Lock()
			if ok {
				results = append(results, result)
			}
			done++
			d := done
			mu.Unlock()

			if progress != nil {
				progress(d, len(hosts))
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("scan complete", "cidr", cidr, "found", len(results))
	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, nil
}

// Probe checks a single host for an Ollama server and returns its model list
// on success. Hostname resolution is best effort.
func (s *Scanner) Probe(ctx context.Context, ip string) (Result, bool) {
	endpoint := fmt.Sprintf("http://%s:%d", ip, s.port())
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return Result{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	client := api.NewClient(baseURL, &http.Client{Timeout: s.timeout()})
	resp, err := client.List(ctx)
	if err != nil {
		return Result{}, false
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, m.Name)
	}

	result := Result{
		IP:       ip,
		Port:     s.port(),
		Hostname: reverseLookup(ctx, ip),
		Endpoint: endpoint,
		Models:   models,
	}
	logger.Debug("found ollama server", "endpoint", endpoint, "models", len(models))
	return result, true
}

// CheckLocal probes localhost on the scanner's port.
func (s *Scanner) CheckLocal(ctx context.Context) (Result, bool) {
	return s.Probe(ctx, "127.0.0.1")
}

// LocalSubnet guesses the machine's LAN /24 by asking the OS which interface
// routes externally. No packet is sent; UDP dial only selects a source
// address.
func LocalSubnet() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("no route to determine local subnet: %w", err)
	}
	defer func() { _ = conn.Close() }()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	addr, ok := netip.AddrFromSlice(local.IP.To4())
	if !ok {
		return "", fmt.Errorf("local address %s is not IPv4", local.IP)
	}

	prefix, err := addr.Prefix(24)
	if err != nil {
		return "", err
	}
	return prefix.String(), nil
}

// hostAddrs expands a CIDR into its host addresses, excluding the network
// and broadcast addresses for ranges wider than /31.
func hostAddrs(cidr string) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	prefix = prefix.Masked()

	var addrs []netip.Addr
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	if prefix.Addr().Is4() && len(addrs) > 2 {
		addrs = addrs[1 : len(addrs)-1]
	}
	return addrs, nil
}

// reverseLookup resolves a PTR record, returning "" when there is none.
func reverseLookup(ctx context.Context, ip string) string {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
