package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Verdict represents the outcome of a guard check.
type Verdict int

const (
	Allow Verdict = iota
	Deny
	RateLimited
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case RateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// idleTTL is how long an unused client limiter is kept.
const idleTTL = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Guard authenticates webhook requests and rate limits them per client host.
type Guard struct {
	secret string
	limit  rate.Limit
	burst  int
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastPrune time.Time
}

// Config configures a Guard. An empty Secret disables authentication and a
// non-positive RateLimit disables rate limiting.
type Config struct {
	Secret    string
	RateLimit float64 // requests per second per client host
	RateBurst int
}

// New creates a Guard.
func New(cfg Config) *Guard {
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Guard{
		secret:  cfg.Secret,
		limit:   rate.Limit(cfg.RateLimit),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Check returns Allow, Deny, or RateLimited for a request whose body has
// already been read.
func (g *Guard) Check(r *http.Request, body []byte) Verdict {
	if !g.authenticated(r, body) {
		return Deny
	}
	if !g.allow(clientHost(r)) {
		return RateLimited
	}
	return Allow
}

// authenticated accepts a matching X-Gitlab-Token header or a valid
// X-Hub-Signature-256 HMAC of the body.
func (g *Guard) authenticated(r *http.Request, body []byte) bool {
	if g.secret == "" {
		return true
	}
	if tok := r.Header.Get("X-Gitlab-Token"); tok != "" {
		return subtle.ConstantTimeCompare([]byte(tok), []byte(g.secret)) == 1
	}
	return ValidSignature(body, r.Header.Get("X-Hub-Signature-256"), g.secret)
}

func (g *Guard) allow(host string) bool {
	if g.limit <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	c, ok := g.clients[host]
	if !ok {
		c = &client{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.clients[host] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// prune drops limiters idle for longer than idleTTL. Called with mu held.
func (g *Guard) prune(now time.Time) {
	if now.Sub(g.lastPrune) < idleTTL {
		return
	}
	g.lastPrune = now
	for host, c := range g.clients {
		if now.Sub(c.lastSeen) > idleTTL {
			delete(g.clients, host)
		}
	}
}

// ValidSignature checks an X-Hub-Signature-256 header ("sha256=<hex>").
func ValidSignature(body []byte, header, secret string) bool {
	if header == "" {
		return false
	}
	sig := strings.TrimPrefix(header, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
