package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	clientIDMetadataKey  = "x-client-id"
	requestIDMetadataKey = "x-request-id"
)

type requestIDKey struct{}

// RequestID takes the caller's x-request-id, or mints one, stores it in the
// context and echoes it in the response headers.
func RequestID() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(requestIDMetadataKey); len(values) > 0 {
				id = strings.TrimSpace(values[0])
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, id))
		return handler(context.WithValue(ctx, requestIDKey{}, id), req)
	}
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// DefaultRequestTimeout bounds calls that arrive without a deadline.
func DefaultRequestTimeout(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type RateLimitConfig struct {
	Limit    int
	Window   time.Duration
	Prefix   string
	FailOpen bool
}

// RateLimiter is a fixed-window limiter shared by every server instance
// through Redis. Each client gets Limit calls per Window.
type RateLimiter struct {
	count    func(ctx context.Context, key string) (int64, error)
	limit    int
	prefix   string
	failOpen bool
	log      *slog.Logger
}

func NewRateLimiter(rdb redis.Scripter, cfg RateLimitConfig, log *slog.Logger) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return newRateLimiter(func(ctx context.Context, key string) (int64, error) {
		res, err := fixedWindowScript.Run(ctx, rdb, []string{key}, ms).Result()
		if err != nil {
			return 0, err
		}
		return scriptCount(res)
	}, cfg, log)
}

func newRateLimiter(count func(ctx context.Context, key string) (int64, error), cfg RateLimitConfig, log *slog.Logger) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 60
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "salonbook:rl"
	}
	return &RateLimiter{
		count:    count,
		limit:    limit,
		prefix:   prefix,
		failOpen: cfg.FailOpen,
		log:      log.With(slog.String("component", "grpc.ratelimit")),
	}
}

func (rl *RateLimiter) Interceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key := rl.prefix + ":" + clientKey(ctx)
		n, err := rl.count(ctx, key)
		if err != nil {
			rl.log.Warn("redis rate limiter error", slog.Any("err", err), slog.String("method", info.FullMethod))
			if rl.failOpen {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unavailable, "rate limiter unavailable")
		}
		if n > int64(rl.limit) {
			rl.log.Info("rate limit exceeded", slog.String("key", key), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// clientKey prefers the caller-supplied client id and falls back to the
// peer's host.
func clientKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(clientIDMetadataKey); len(values) > 0 {
			if id := strings.TrimSpace(values[0]); id != "" {
				return "client:" + id
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		return "peer:" + addr
	}
	return "unknown"
}

func scriptCount(res any) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
