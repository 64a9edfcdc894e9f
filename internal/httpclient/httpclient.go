// Package httpclient builds the outbound HTTP clients for the two upstream
// dependencies: the generation backends, which hold long streamed completion
// responses open against a handful of hosts, and the retrieval service, which
// answers short bursty queries on a single host.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	// RetrievalTimeout bounds a single document query. Retrieval runs inside
	// the turn deadline, so a slow search must fail well before the turn does.
	RetrievalTimeout = 30 * time.Second

	// GenerationTimeout bounds a full streamed completion, including reading
	// the body. Turns cap out earlier; this is the hard backstop.
	GenerationTimeout = 120 * time.Second
)

// Generation returns the client for streamed completions. Pools are sized
// for many concurrent provider tasks fanning out to few backend hosts.
func Generation(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = GenerationTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(64, 128),
	}
}

// Retrieval returns the client for document search queries.
func Retrieval() *http.Client {
	return &http.Client{
		Timeout:   RetrievalTimeout,
		Transport: newTransport(16, 32),
	}
}

func newTransport(idlePerHost, maxPerHost int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          4 * idlePerHost,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       maxPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}
