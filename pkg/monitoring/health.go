package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the aggregate reported on /healthz.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult is one dependency's verdict.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck func() CheckResult

// HealthChecker runs registered checks and folds them into one status.
// The worst individual verdict wins.
type HealthChecker struct {
	service string
	version string

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

// AddCheck registers a named check. Re-registering a name replaces it.
func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
}

func statusRank(s string) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		// Unknown statuses count as unhealthy rather than being ignored.
		return 2
	}
}

// CheckHealth runs every registered check.
func (hc *HealthChecker) CheckHealth() HealthStatus {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	worst := 0
	for name, check := range checks {
		result := check()
		status.Checks[name] = result
		if r := statusRank(result.Status); r > worst {
			worst = r
		}
	}
	switch worst {
	case 1:
		status.Status = StatusDegraded
	case 2:
		status.Status = StatusUnhealthy
	}
	return status
}

// Handler serves the health endpoint; unhealthy maps to 503 so load
// balancers pull the instance.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

func verdict(status, message string, start time.Time) CheckResult {
	return CheckResult{
		Status:  status,
		Message: message,
		Latency: time.Since(start).String(),
	}
}

// DatabaseHealthCheck pings the database with a bounded timeout.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			return verdict(StatusUnhealthy, fmt.Sprintf("Database ping failed: %v", err), start)
		}
		return verdict(StatusHealthy, "Database connection successful", start)
	}
}

// RedisHealthCheck pings redis. Redis is optional for this service, so a
// nil client reports degraded, not unhealthy.
func RedisHealthCheck(client goredis.UniversalClient) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		if client == nil {
			return verdict(StatusDegraded, "Redis not configured", start)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			return verdict(StatusUnhealthy, fmt.Sprintf("Redis ping failed: %v", err), start)
		}
		return verdict(StatusHealthy, "Redis connection healthy", start)
	}
}

// HTTPServiceHealthCheck probes an upstream HTTP dependency.
func HTTPServiceHealthCheck(serviceName, url string) HealthCheck {
	client := &http.Client{Timeout: 5 * time.Second}
	return func() CheckResult {
		start := time.Now()

		resp, err := client.Get(url)
		if err != nil {
			return verdict(StatusUnhealthy, fmt.Sprintf("%s service unreachable: %v", serviceName, err), start)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return verdict(StatusUnhealthy, fmt.Sprintf("%s service returned %d", serviceName, resp.StatusCode), start)
		}
		return verdict(StatusHealthy, fmt.Sprintf("%s service responding", serviceName), start)
	}
}

// ConfigurationHealthCheck reports unhealthy while any required setting
// is empty.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		var missing []string
		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return verdict(StatusUnhealthy, fmt.Sprintf("Missing required configuration: %v", missing), start)
		}
		return verdict(StatusHealthy, "All required configuration present", start)
	}
}
