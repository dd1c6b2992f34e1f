package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	// BotAPITimeout bounds a single Bot API call.
	BotAPITimeout = 10 * time.Second
	// PlannerTimeout bounds one chat-completion request; generation is slow.
	PlannerTimeout = 90 * time.Second
)

var transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout: 5 * time.Second,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
}

var defaultClient = New(BotAPITimeout)

// New returns a client sharing the process-wide connection pool.
func New(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: transport}
}

func Client() *http.Client { return defaultClient }
