package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"
)

// Collector profiles the process between Start and Stop.
type Collector struct {
	config *Config

	mu      sync.Mutex
	running bool
	cpuFile *os.File
	files   []string

	server   *http.Server
	listener net.Listener
	served   chan struct{}
}

// NewCollector creates a new Collector.
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Collector{config: cfg}, nil
}

// Start begins collection.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("collector is already running")
	}

	if c.config.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(1)
	}
	if c.config.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(1)
	}

	var err error
	switch c.config.Mode {
	case ModeHTTP:
		err = c.startHTTP()
	default:
		err = c.startFile()
	}
	if err != nil {
		c.resetRates()
		return err
	}
	c.running = true
	return nil
}

func (c *Collector) startFile() error {
	if err := os.MkdirAll(c.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if !c.config.HasProfile(ProfileCPU) {
		return nil
	}
	path := filepath.Join(c.config.OutputDir, string(ProfileCPU)+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}
	c.cpuFile = f
	return nil
}

func (c *Collector) startHTTP() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)

	ln, err := net.Listen("tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.config.Addr, err)
	}
	c.listener = ln
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	c.served = make(chan struct{})
	go func() {
		defer close(c.served)
		c.server.Serve(ln)
	}()
	return nil
}

// Stop ends collection. In file mode it finishes the CPU profile and writes
// a snapshot of every other requested profile.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	defer c.resetRates()

	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := c.server.Shutdown(ctx)
		<-c.served
		c.server, c.listener = nil, nil
		return err
	}

	if c.cpuFile != nil {
		pprof.StopCPUProfile()
		path := c.cpuFile.Name()
		if err := c.cpuFile.Close(); err != nil {
			return fmt.Errorf("failed to close cpu profile: %w", err)
		}
		c.cpuFile = nil
		c.files = append(c.files, path)
	}
	for _, pt := range c.config.Profiles {
		if pt == ProfileCPU {
			continue
		}
		path, err := c.writeSnapshot(pt)
		if err != nil {
			return err
		}
		c.files = append(c.files, path)
	}
	return nil
}

func (c *Collector) writeSnapshot(pt ProfileType) (string, error) {
	p := pprof.Lookup(string(pt))
	if p == nil {
		return "", fmt.Errorf("%s profile not found", pt)
	}
	if pt == ProfileHeap {
		runtime.GC()
	}
	path := filepath.Join(c.config.OutputDir, string(pt)+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s profile: %w", pt, err)
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	return path, f.Close()
}

func (c *Collector) resetRates() {
	if c.config.HasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(0)
	}
	if c.config.HasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(0)
	}
}

// Files lists the profiles written by Stop.
func (c *Collector) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.files...)
}

// Addr returns the address the HTTP endpoints listen on, or "" in file mode.
func (c *Collector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Config returns the collector configuration.
func (c *Collector) Config() *Config {
	return c.config
}

// Run starts a collector for cfg, runs fn and stops the collector. A nil or
// disabled cfg runs fn alone.
func Run(cfg *Config, fn func() error) error {
	if cfg == nil || !cfg.Enabled {
		return fn()
	}
	c, err := NewCollector(cfg)
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}
	ferr := fn()
	if err := c.Stop(); ferr == nil {
		ferr = err
	}
	return ferr
}
