package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the identity a request is throttled under. An empty result
// means the identity is unknown and the client IP is used instead.
type KeyFunc func(c *gin.Context) string

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per identity and route. Buckets idle longer
// than the idle window are swept by a background janitor.
type Limiter struct {
	every rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	done     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(every rate.Limit, burst int, idle time.Duration) *Limiter {
	l := &Limiter{
		every:   every,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *Limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.tokens.AllowN(now, 1)
}

// sweep drops buckets not used since now-idle and returns how many remain.
func (l *Limiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, k)
		}
	}
	return len(l.buckets)
}

func (l *Limiter) janitor() {
	interval := l.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

// Stop 停止后台清理 goroutine，可重复调用。
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Middleware 按 key(c)+路由限流；key 为 nil 或返回空串时按客户端 IP 计数。
// 超限返回 429 与统一响应结构。
func (l *Limiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if key != nil {
			id = key(c)
		}
		if id == "" {
			id = "ip:" + c.RemoteIP()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if !l.allow(id+"|"+route, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"statusCode": http.StatusTooManyRequests,
				"data":       nil,
				"message":    "too many requests",
				"success":    false,
			})
			return
		}
		c.Next()
	}
}
