package signalclient

import (
	"fmt"
	"net/url"

	"github.com/dkeye/o2o/internal/domain"
)

// SignalingURL derives the rendezvous endpoint from the page origin: http becomes ws,
// https becomes wss, the path is /ws and the id query carries the stable client id.
func SignalingURL(origin string, id domain.ClientID) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	u.Path = "/ws"
	u.Fragment = ""
	q := url.Values{}
	if id != "" {
		q.Set("id", string(id))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
