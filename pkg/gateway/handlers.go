package gateway

import (
	"net/http"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/httputil"
)

type peerInfo struct {
	PeerID    string   `json:"peer_id"`
	Addresses []string `json:"addresses"`
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"started_at": g.startedAt,
		"uptime":     time.Since(g.startedAt).String(),
	})
}

func (g *Gateway) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"started_at": g.startedAt,
		"uptime":     time.Since(g.startedAt).String(),
	}
	if g.deps.Host != nil {
		resp["peer_id"] = g.deps.Host.ID().String()
		resp["peer_count"] = len(g.deps.Host.Network().Peers())
		var addrs []string
		for _, a := range g.deps.Host.Addrs() {
			addrs = append(addrs, a.String())
		}
		resp["listen_addrs"] = addrs
	}
	if g.deps.Discovery != nil {
		resp["discovery"] = map[string]any{"started": g.deps.Discovery.IsStarted()}
	}
	if g.deps.Usage != nil {
		resp["usage"] = g.deps.Usage()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (g *Gateway) peersHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Host == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "host not initialized")
		return
	}

	peers := make([]peerInfo, 0)
	for _, pid := range g.deps.Host.Network().Peers() {
		peers = append(peers, toPeerInfo(peer.AddrInfo{
			ID:    pid,
			Addrs: g.deps.Host.Peerstore().Addrs(pid),
		}))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count": len(peers),
		"peers": peers,
	})
}

func (g *Gateway) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Discovery == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "discovery not initialized")
		return
	}

	resp := map[string]any{
		"started": g.deps.Discovery.IsStarted(),
	}
	if d, ok := g.deps.Discovery.(interface{ DiscoveredPeers() []peer.AddrInfo }); ok {
		discovered := make([]peerInfo, 0)
		for _, info := range d.DiscoveredPeers() {
			discovered = append(discovered, toPeerInfo(info))
		}
		resp["discovered"] = discovered
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (g *Gateway) discoveryStartHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Discovery == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "discovery not initialized")
		return
	}
	if err := g.deps.Discovery.Start(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteSuccessWithData(w, map[string]any{"started": true})
}

func (g *Gateway) discoveryStopHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Discovery == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "discovery not initialized")
		return
	}
	if err := g.deps.Discovery.Stop(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteSuccessWithData(w, map[string]any{"started": false})
}

func (g *Gateway) cachePeersHandler(w http.ResponseWriter, r *http.Request) {
	if g.deps.Cache == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "peer cache disabled")
		return
	}
	entries, err := g.deps.Cache.List(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if limit := httputil.QueryParamInt(r, "limit", 0); limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"peers": entries,
	})
}

func toPeerInfo(info peer.AddrInfo) peerInfo {
	out := peerInfo{PeerID: info.ID.String(), Addresses: make([]string, 0, len(info.Addrs))}
	for _, a := range info.Addrs {
		out.Addresses = append(out.Addresses, a.String())
	}
	return out
}
