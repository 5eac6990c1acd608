package judge

import (
	"net/http"
	"sync"
)

// The process shares one HTTP client across all judge and assist calls so
// keep-alive connections to the endpoint pool are reused. Lazy init is
// guarded by a mutex with a double check; CloseSharedHTTPClient is called on
// process shutdown.
var (
	sharedMu     sync.Mutex
	sharedClient *http.Client
)

func SharedHTTPClient() *http.Client {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedClient == nil {
		sharedClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 32,
			},
		}
	}
	return sharedClient
}

func CloseSharedHTTPClient() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedClient != nil {
		sharedClient.CloseIdleConnections()
		sharedClient = nil
	}
}
