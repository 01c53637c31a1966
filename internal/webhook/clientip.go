package webhook

import (
	"net/http"
	"strings"
)

// ClientAddress returns the address of the caller. With proxyCount == 0 it
// is r.RemoteAddr. Otherwise it is the X-Forwarded-For entry proxyCount hops
// from the right, the one appended by the outermost trusted proxy. When the
// header has fewer entries than proxyCount it is not trusted and RemoteAddr
// is used.
func ClientAddress(r *http.Request, proxyCount int) string {
	if proxyCount <= 0 {
		return r.RemoteAddr
	}

	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for _, part := range strings.Split(v, ",") {
			hops = append(hops, strings.TrimSpace(part))
		}
	}
	if len(hops) < proxyCount {
		return r.RemoteAddr
	}
	if addr := hops[len(hops)-proxyCount]; addr != "" {
		return addr
	}
	return r.RemoteAddr
}
