package server

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// NewHTTPServer builds the listener with generous timeouts: the device
// poll endpoint intentionally holds connections open.
func NewHTTPServer(host string, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       3 * time.Minute,
	}
}
