package discovery

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/evm"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
)

const (
	testContract = "0x00000000000000000000000000000000000000aa"
	testIndex    = "0x00000000000000000000000000000000000000bb"
)

// fakeChain serves a canned peer-id list through the ChainClient surface.
type fakeChain struct {
	networkID    *big.Int
	networkErr   error
	peerIDs      []string
	callErr      error
	networkCalls atomic.Int64
}

func (f *fakeChain) NetworkID(ctx context.Context) (*big.Int, error) {
	f.networkCalls.Add(1)
	if f.networkErr != nil {
		return nil, f.networkErr
	}
	return f.networkID, nil
}

func (f *fakeChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return evm.RegistryABI().Methods["getAllPeerIds"].Outputs.Pack(f.peerIDs)
}

// fakeRouting resolves peers from a fixed table.
type fakeRouting struct {
	peers map[peer.ID]peer.AddrInfo
	fail  map[peer.ID]error
}

func (f *fakeRouting) FindPeer(ctx context.Context, pid peer.ID) (peer.AddrInfo, error) {
	if err, ok := f.fail[pid]; ok {
		return peer.AddrInfo{}, err
	}
	info, ok := f.peers[pid]
	if !ok {
		return peer.AddrInfo{}, fmt.Errorf("peer %s not found", pid)
	}
	return info, nil
}

type mergeCall struct {
	info peer.AddrInfo
	tag  contracts.Tag
}

// recordingRegistry records merges; afterMerge runs after each one.
type recordingRegistry struct {
	mu         sync.Mutex
	merges     []mergeCall
	err        error
	afterMerge func()
}

func (r *recordingRegistry) Merge(ctx context.Context, info peer.AddrInfo, tag contracts.Tag) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.merges = append(r.merges, mergeCall{info: info, tag: tag})
	r.mu.Unlock()
	if r.afterMerge != nil {
		r.afterMerge()
	}
	return nil
}

func (r *recordingRegistry) calls() []mergeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mergeCall, len(r.merges))
	copy(out, r.merges)
	return out
}

type recordingDialer struct {
	mu    sync.Mutex
	peers []peer.ID
	err   error
}

func (d *recordingDialer) Connect(ctx context.Context, info peer.AddrInfo) error {
	d.mu.Lock()
	d.peers = append(d.peers, info.ID)
	d.mu.Unlock()
	return d.err
}

func (d *recordingDialer) connected() []peer.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]peer.ID, len(d.peers))
	copy(out, d.peers)
	return out
}

type recordingNotifee struct {
	mu    sync.Mutex
	found []peer.AddrInfo
}

func (n *recordingNotifee) HandlePeerFound(info peer.AddrInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.found = append(n.found, info)
}

func (n *recordingNotifee) events() []peer.AddrInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]peer.AddrInfo, len(n.found))
	copy(out, n.found)
	return out
}

func newPeerID(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("peer id from key: %v", err)
	}
	return pid
}

func testAddrInfo(t *testing.T, pid peer.ID) peer.AddrInfo {
	t.Helper()
	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	if err != nil {
		t.Fatalf("multiaddr: %v", err)
	}
	return peer.AddrInfo{ID: pid, Addrs: []multiaddr.Multiaddr{addr}}
}

func observedLogger(t *testing.T) (*logging.ColoredLogger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return logging.Wrap(zap.New(core), false), logs
}

func testConfig(chain *fakeChain) Config {
	return Config{
		ContractAddress: testContract,
		ContractIndex:   testIndex,
		ChainID:         big.NewInt(31337),
		Provider:        chain,
	}
}

func hasLogContaining(logs *observer.ObservedLogs, fragment string) bool {
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, fragment) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func TestNewBootstrapDiscovererValidation(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(31337)}
	logger, _ := observedLogger(t)
	comps := Components{Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing contract address", func(c *Config) { c.ContractAddress = "" }, "requires a contract address"},
		{"missing contract index", func(c *Config) { c.ContractIndex = "" }, "requires a contract index"},
		{"missing chain id", func(c *Config) { c.ChainID = nil }, "requires a chain id"},
		{"missing provider", func(c *Config) { c.Provider = nil }, "requires an ethereum provider"},
		{"invalid provider", func(c *Config) { c.Provider = struct{}{} }, "Invalid provider: must be a native chain client or an injected wallet provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(chain)
			tt.mutate(&cfg)
			_, err := NewBootstrapDiscoverer(cfg, comps)
			if err == nil {
				t.Fatal("expected construction error")
			}
			if err.Error() != tt.wantMsg {
				t.Fatalf("err = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNewBootstrapDiscovererDefaults(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(31337)}
	logger, _ := observedLogger(t)
	d, err := NewBootstrapDiscoverer(testConfig(chain), Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d.cfg.DiscoveryDelay != defaultDiscoveryDelay {
		t.Errorf("delay = %v, want %v", d.cfg.DiscoveryDelay, defaultDiscoveryDelay)
	}
	if d.cfg.TagName != "evmbootstrap" {
		t.Errorf("tag name = %q, want evmbootstrap", d.cfg.TagName)
	}
	if d.cfg.TagValue != 50 {
		t.Errorf("tag value = %d, want 50", d.cfg.TagValue)
	}
	if d.IsStarted() {
		t.Error("new discoverer must start idle")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(31337)}
	logger, _ := observedLogger(t)
	cfg := testConfig(chain)
	cfg.DiscoveryDelay = 30 * time.Millisecond
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.IsStarted() {
		t.Fatal("IsStarted must be true after Start")
	}
	// Second Start must not arm a second timer.
	if err := d.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return chain.networkCalls.Load() >= 1 }, "pipeline never ran")
	time.Sleep(100 * time.Millisecond)
	if got := chain.networkCalls.Load(); got != 1 {
		t.Fatalf("pipeline ran %d times, want exactly 1", got)
	}
}

func TestStopCancelsPendingRun(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(31337)}
	logger, _ := observedLogger(t)
	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if d.IsStarted() {
		t.Fatal("IsStarted must be false after Stop")
	}
	if got := chain.networkCalls.Load(); got != 0 {
		t.Fatalf("pipeline ran %d times after Stop, want 0", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(31337)}
	logger, _ := observedLogger(t)
	d, err := NewBootstrapDiscoverer(testConfig(chain), Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPipelineWrongNetwork(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(5)}
	logger, logs := observedLogger(t)
	cfg := testConfig(chain) // expects 31337
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	err = d.discoverBootstrapPeers(context.Background())
	if !errors.Is(err, ErrWrongNetwork) {
		t.Fatalf("err = %v, want ErrWrongNetwork", err)
	}
	if !strings.Contains(err.Error(), "5") || !strings.Contains(err.Error(), "31337") {
		t.Fatalf("error should name both ids, got %q", err.Error())
	}
	if !hasLogContaining(logs, "wrong network") {
		t.Fatal("expected a wrong-network error log")
	}
}

func TestPipelineGuardAfterStop(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(5)} // would fail identity check if reached
	logger, _ := observedLogger(t)
	d, err := NewBootstrapDiscoverer(testConfig(chain), Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Not armed: the pipeline must return with no side effects.
	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("pipeline after stop: %v", err)
	}
	if got := chain.networkCalls.Load(); got != 0 {
		t.Fatalf("network id queried %d times while idle, want 0", got)
	}
}

func TestPipelineDiscoversTagsAnnouncesConnects(t *testing.T) {
	pids := []peer.ID{newPeerID(t), newPeerID(t), newPeerID(t)}
	routingTable := map[peer.ID]peer.AddrInfo{}
	ids := make([]string, len(pids))
	for i, pid := range pids {
		routingTable[pid] = testAddrInfo(t, pid)
		ids[i] = pid.String()
	}

	chain := &fakeChain{networkID: big.NewInt(31337), peerIDs: ids}
	registry := &recordingRegistry{}
	dialer := &recordingDialer{}
	notifee := &recordingNotifee{}
	logger, _ := observedLogger(t)

	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	cfg.TagTTL = 2 * time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: registry, Routing: &fakeRouting{peers: routingTable}, Dialer: dialer, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d.RegisterNotifee(notifee)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	merges := registry.calls()
	if len(merges) != 3 {
		t.Fatalf("got %d registry merges, want 3", len(merges))
	}
	for i, m := range merges {
		if m.info.ID != pids[i] {
			t.Errorf("merge[%d] peer = %s, want %s", i, m.info.ID, pids[i])
		}
		if m.tag.Name != "evmbootstrap" || m.tag.Value != 50 || m.tag.TTL != 2*time.Hour {
			t.Errorf("merge[%d] tag = %+v", i, m.tag)
		}
		if len(m.info.Addrs) == 0 {
			t.Errorf("merge[%d] carries no addresses", i)
		}
	}

	events := notifee.events()
	if len(events) != 3 {
		t.Fatalf("got %d peer events, want 3", len(events))
	}
	for i, ev := range events {
		if ev.ID != pids[i] {
			t.Errorf("event[%d] peer = %s, want %s (resolution order)", i, ev.ID, pids[i])
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(dialer.connected()) == 3 }, "dials not dispatched")

	if got := len(d.DiscoveredPeers()); got != 3 {
		t.Fatalf("discovered buffer holds %d peers, want 3", got)
	}
}

func TestPipelineSwallowsContractErrors(t *testing.T) {
	chain := &fakeChain{networkID: big.NewInt(31337), callErr: errors.New("execution reverted")}
	logger, logs := observedLogger(t)
	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: &recordingRegistry{}, Routing: &fakeRouting{}, Dialer: &recordingDialer{}, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("contract failure must not escape the pipeline, got %v", err)
	}
	if !hasLogContaining(logs, "Could not discover bootstrap peers") {
		t.Fatal("expected the discovery failure to be logged")
	}
}

func TestPipelineMergeFailureAbortsLoop(t *testing.T) {
	pids := []peer.ID{newPeerID(t), newPeerID(t)}
	routingTable := map[peer.ID]peer.AddrInfo{}
	ids := make([]string, len(pids))
	for i, pid := range pids {
		routingTable[pid] = testAddrInfo(t, pid)
		ids[i] = pid.String()
	}

	chain := &fakeChain{networkID: big.NewInt(31337), peerIDs: ids}
	registry := &recordingRegistry{err: errors.New("peerstore unavailable")}
	dialer := &recordingDialer{}
	notifee := &recordingNotifee{}
	logger, logs := observedLogger(t)

	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: registry, Routing: &fakeRouting{peers: routingTable}, Dialer: dialer, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d.RegisterNotifee(notifee)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	// A registry write failure hits the boundary: logged, swallowed, and
	// the rest of the loop never runs.
	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("merge failure must not escape the pipeline, got %v", err)
	}

	if got := len(notifee.events()); got != 0 {
		t.Fatalf("got %d events after a failed merge, want 0", got)
	}
	if got := len(dialer.connected()); got != 0 {
		t.Fatalf("got %d dials after a failed merge, want 0", got)
	}
	if !hasLogContaining(logs, "Could not discover bootstrap peers") {
		t.Fatal("expected the discovery failure to be logged")
	}
	// Resolution already happened; the buffer keeps both peers for the
	// next run to re-tag.
	if got := len(d.DiscoveredPeers()); got != 2 {
		t.Fatalf("discovered buffer holds %d peers, want 2", got)
	}
}

func TestPipelineSkipsUnresolvablePeers(t *testing.T) {
	good1, bad, good2 := newPeerID(t), newPeerID(t), newPeerID(t)
	routingTable := map[peer.ID]peer.AddrInfo{
		good1: testAddrInfo(t, good1),
		good2: testAddrInfo(t, good2),
	}

	chain := &fakeChain{
		networkID: big.NewInt(31337),
		peerIDs:   []string{good1.String(), bad.String(), good2.String()},
	}
	registry := &recordingRegistry{}
	dialer := &recordingDialer{}
	notifee := &recordingNotifee{}
	logger, logs := observedLogger(t)

	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: registry,
		Routing:  &fakeRouting{peers: routingTable, fail: map[peer.ID]error{bad: errors.New("not found")}},
		Dialer:   dialer,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d.RegisterNotifee(notifee)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	merges := registry.calls()
	if len(merges) != 2 {
		t.Fatalf("got %d merges, want 2", len(merges))
	}
	for _, m := range merges {
		if m.info.ID == bad {
			t.Fatal("unresolvable peer must not reach the registry")
		}
	}
	if len(notifee.events()) != 2 {
		t.Fatalf("got %d events, want 2", len(notifee.events()))
	}
	if !hasLogContaining(logs, "skipping bootstrap peer id") {
		t.Fatal("expected the skipped id to be logged")
	}
}

func TestPipelineMalformedIDSkipped(t *testing.T) {
	good := newPeerID(t)
	chain := &fakeChain{
		networkID: big.NewInt(31337),
		peerIDs:   []string{"not-a-peer-id", good.String()},
	}
	registry := &recordingRegistry{}
	logger, _ := observedLogger(t)

	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: registry,
		Routing:  &fakeRouting{peers: map[peer.ID]peer.AddrInfo{good: testAddrInfo(t, good)}},
		Dialer:   &recordingDialer{},
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = d.Stop() })

	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	merges := registry.calls()
	if len(merges) != 1 || merges[0].info.ID != good {
		t.Fatalf("merges = %+v, want only %s", merges, good)
	}
}

func TestStopMidLoopHaltsAnnouncements(t *testing.T) {
	pids := []peer.ID{newPeerID(t), newPeerID(t)}
	routingTable := map[peer.ID]peer.AddrInfo{}
	ids := make([]string, len(pids))
	for i, pid := range pids {
		routingTable[pid] = testAddrInfo(t, pid)
		ids[i] = pid.String()
	}

	chain := &fakeChain{networkID: big.NewInt(31337), peerIDs: ids}
	dialer := &recordingDialer{}
	notifee := &recordingNotifee{}
	logger, _ := observedLogger(t)

	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	registry := &recordingRegistry{}
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: registry, Routing: &fakeRouting{peers: routingTable}, Dialer: dialer, Logger: logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// Stop lands while the first merge is being awaited.
	registry.afterMerge = func() { _ = d.Stop() }
	d.RegisterNotifee(notifee)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := d.discoverBootstrapPeers(context.Background()); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	if got := len(registry.calls()); got != 1 {
		t.Fatalf("got %d merges, want 1 (loop must halt after Stop)", got)
	}
	if got := len(notifee.events()); got != 0 {
		t.Fatalf("got %d events after mid-loop Stop, want 0", got)
	}
	if got := len(dialer.connected()); got != 0 {
		t.Fatalf("got %d dials after mid-loop Stop, want 0", got)
	}
}

func TestDiscoveredPeersAccumulateAcrossRuns(t *testing.T) {
	pid := newPeerID(t)
	chain := &fakeChain{networkID: big.NewInt(31337), peerIDs: []string{pid.String()}}
	registry := &recordingRegistry{}
	logger, _ := observedLogger(t)

	cfg := testConfig(chain)
	cfg.DiscoveryDelay = time.Hour
	d, err := NewBootstrapDiscoverer(cfg, Components{
		Registry: registry,
		Routing:  &fakeRouting{peers: map[peer.ID]peer.AddrInfo{pid: testAddrInfo(t, pid)}},
		Dialer:   &recordingDialer{},
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for run := 1; run <= 2; run++ {
		if err := d.Start(); err != nil {
			t.Fatalf("start run %d: %v", run, err)
		}
		if err := d.discoverBootstrapPeers(context.Background()); err != nil {
			t.Fatalf("pipeline run %d: %v", run, err)
		}
		if err := d.Stop(); err != nil {
			t.Fatalf("stop run %d: %v", run, err)
		}
	}

	// No dedup: the buffer re-accumulates and the second run re-tags
	// everything discovered so far.
	if got := len(d.DiscoveredPeers()); got != 2 {
		t.Fatalf("discovered buffer holds %d entries, want 2", got)
	}
	if got := len(registry.calls()); got != 3 {
		t.Fatalf("got %d merges across runs, want 3 (1 + 2)", got)
	}
}
