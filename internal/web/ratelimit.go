package web

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var errRateLimited = errors.New("rate limit exceeded")

// rateLimiter is a fixed-window request counter per client IP.
type rateLimiter struct {
	rate   int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*clientWindow

	done     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	remaining int
	start     time.Time
}

func newRateLimiter(rate int, d time.Duration) *rateLimiter {
	rl := &rateLimiter{
		rate:    rate,
		window:  d,
		now:     time.Now,
		clients: make(map[string]*clientWindow),
		done:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// janitor drops idle clients until stop is called.
func (rl *rateLimiter) janitor() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, w := range rl.clients {
				if rl.now().Sub(w.start) > 2*rl.window {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// allow consumes one request for ip and reports whether it is within rate.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[ip]
	if !ok || now.Sub(w.start) > rl.window {
		rl.clients[ip] = &clientWindow{remaining: rl.rate - 1, start: now}
		return true
	}
	if w.remaining <= 0 {
		return false
	}
	w.remaining--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			respondError(w, r, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
