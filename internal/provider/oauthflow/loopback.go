package oauthflow

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"time"
)

// CallbackPath is the loopback redirect path registered with OAuth
// clients that use the localhost flow.
const CallbackPath = "/oauth2callback"

const successHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Esprit - Connected</title>
    <style>
      body {
        font-family: system-ui, -apple-system, sans-serif;
        display: flex; justify-content: center; align-items: center;
        height: 100vh; margin: 0; background: #0f0f0f; color: #e5e5e5;
      }
      .container { text-align: center; padding: 2rem; }
      h1 { color: #22c55e; margin-bottom: 1rem; }
      p { color: #737373; }
    </style>
  </head>
  <body>
    <div class="container">
      <h1>&#10003; Connected</h1>
      <p>You can close this window and return to Esprit.</p>
    </div>
    <script>setTimeout(() => window.close(), 2000)</script>
  </body>
</html>`

// Loopback is a one-shot callback server on an ephemeral 127.0.0.1
// port. It accepts a single authorization code whose state matches and
// rejects everything else.
type Loopback struct {
	listener net.Listener
	server   *http.Server
	host     string
	path     string
	state    string
	result   chan loopbackResult
}

type loopbackResult struct {
	code string
	err  error
}

// StartLoopback binds the callback server on an ephemeral port.
func StartLoopback(expectedState string) (*Loopback, error) {
	return StartLoopbackAt("127.0.0.1:0", CallbackPath, expectedState)
}

// StartLoopbackAt binds a specific address and callback path, for
// clients whose redirect URI is registered with a fixed port.
func StartLoopbackAt(addr, path, expectedState string) (*Loopback, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}

	host, _, _ := net.SplitHostPort(addr)
	lb := &Loopback{
		listener: listener,
		host:     host,
		path:     path,
		state:    expectedState,
		result:   make(chan loopbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, lb.handleCallback)
	lb.server = &http.Server{Handler: mux}
	go func() { _ = lb.server.Serve(listener) }()
	return lb, nil
}

// RedirectURI returns the redirect_uri to register in the auth request.
func (lb *Loopback) RedirectURI() string {
	return fmt.Sprintf("http://%s:%d%s", lb.host, lb.Port(), lb.path)
}

// Port returns the bound port.
func (lb *Loopback) Port() int {
	return lb.listener.Addr().(*net.TCPAddr).Port
}

func (lb *Loopback) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = errParam
		}
		writeHTML(w, http.StatusBadRequest, "<h1>Error: "+html.EscapeString(desc)+"</h1>")
		lb.deliver(loopbackResult{err: fmt.Errorf("authorization failed: %s", desc)})
		return
	}
	code := q.Get("code")
	if code == "" || q.Get("state") != lb.state {
		writeHTML(w, http.StatusBadRequest, "<h1>Invalid callback</h1>")
		lb.deliver(loopbackResult{err: fmt.Errorf("invalid callback")})
		return
	}
	writeHTML(w, http.StatusOK, successHTML)
	lb.deliver(loopbackResult{code: code})
}

func (lb *Loopback) deliver(res loopbackResult) {
	select {
	case lb.result <- res:
	default: // a result already landed; drop duplicates
	}
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Wait blocks until the browser delivers a code or the context ends.
func (lb *Loopback) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-lb.result:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
}

// Close shuts the callback server down.
func (lb *Loopback) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = lb.server.Shutdown(ctx)
}
