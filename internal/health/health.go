package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	checkTimeout       = 2 * time.Second
)

// NATSConn nats.Conn 的连接状态
type NATSConn interface {
	IsConnected() bool
}

// RedisPinger redis.Client 的 Ping
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// DBPinger pgxpool.Pool 的 Ping
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Status 健康状态
type Status struct {
	NATS     string `json:"nats"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
}

// Healthy 所有依赖均已连接
func (s *Status) Healthy() bool {
	return s.NATS == statusConnected &&
		s.Redis == statusConnected &&
		s.Database == statusConnected
}

// Checker 健康检查器
type Checker struct {
	nc          NATSConn
	redisClient RedisPinger
	db          DBPinger
}

// NewChecker 创建健康检查器
func NewChecker(nc NATSConn, redisClient RedisPinger, db DBPinger) *Checker {
	return &Checker{
		nc:          nc,
		redisClient: redisClient,
		db:          db,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		NATS:     statusDisconnected,
		Redis:    statusDisconnected,
		Database: statusDisconnected,
	}

	if h.nc.IsConnected() {
		status.NATS = statusConnected
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, checkTimeout)
	defer redisCancel()
	if err := h.redisClient.Ping(redisCtx).Err(); err == nil {
		status.Redis = statusConnected
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, checkTimeout)
	defer dbCancel()
	if err := h.db.Ping(dbCtx); err == nil {
		status.Database = statusConnected
	}

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ServeHTTP 返回各依赖状态，任一断开时返回 503
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Handler 管理端口路由：/health 依赖详情，/ready 就绪探针，/metrics Prometheus 指标
func (h *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if h.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
