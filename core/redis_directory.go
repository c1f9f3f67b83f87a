package core

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// heartbeatStats tracks announcement heartbeat outcomes for periodic summaries
type heartbeatStats struct {
	successCount  int64
	failureCount  int64
	lastSuccess   time.Time
	lastFailure   time.Time
	startedAt     time.Time
	lastSummaryAt time.Time
}

// RedisDirectory implements Directory on Redis. Service entries expire after
// a TTL unless refreshed, so crashed services drop out of lookups on their
// own. Announcements keep a local copy of the registration so the heartbeat
// can re-announce after a Redis restart.
type RedisDirectory struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    Logger

	announceState map[string]*ServiceInfo
	stateMu       sync.RWMutex

	stats   map[string]*heartbeatStats
	statsMu sync.RWMutex
}

// NewRedisDirectory creates a Redis directory client with the default namespace
func NewRedisDirectory(redisURL string) (*RedisDirectory, error) {
	return NewRedisDirectoryWithNamespace(redisURL, "toolmesh")
}

// NewRedisDirectoryWithNamespace creates a Redis directory client scoped to
// the given namespace
func NewRedisDirectoryWithNamespace(redisURL, namespace string) (*RedisDirectory, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 100 * time.Millisecond
	opt.MaxRetryBackoff = time.Second
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second
	opt.PoolTimeout = 10 * time.Second

	client := redis.NewClient(opt)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()

		if err == nil {
			break
		}
		if i < 2 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis after retries: %w", ErrConnectionFailed)
	}

	return &RedisDirectory{
		client:        client,
		namespace:     namespace,
		ttl:           30 * time.Second,
		logger:        &NoOpLogger{},
		announceState: make(map[string]*ServiceInfo),
		stats:         make(map[string]*heartbeatStats),
	}, nil
}

// SetLogger configures the logger for this directory client
func (r *RedisDirectory) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetTTL overrides the default entry TTL. Must be called before Announce.
func (r *RedisDirectory) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		r.ttl = ttl
	}
}

func (r *RedisDirectory) serviceKey(serviceID string) string {
	return fmt.Sprintf("%s:services:%s", r.namespace, serviceID)
}

func (r *RedisDirectory) capabilityKey(capability string) string {
	return fmt.Sprintf("%s:capabilities:%s", r.namespace, capability)
}

func (r *RedisDirectory) nameKey(name string) string {
	return fmt.Sprintf("%s:names:%s", r.namespace, name)
}

// Announce publishes a service entry and its capability indexes atomically.
// The entry carries the directory TTL; index sets get twice the TTL so a
// briefly late heartbeat does not make the service undiscoverable.
func (r *RedisDirectory) Announce(ctx context.Context, info *ServiceInfo) error {
	if info == nil || info.ID == "" {
		return fmt.Errorf("service info requires an ID: %w", ErrInvalidConfiguration)
	}

	r.logger.Info("Announcing service", map[string]interface{}{
		"service_id":         info.ID,
		"service_name":       info.Name,
		"capabilities_count": len(info.Capabilities),
		"address":            info.Address,
		"port":               info.Port,
		"ttl":                r.ttl.String(),
	})

	r.storeAnnounceState(info)

	announced := *info
	announced.LastSeen = time.Now()
	if announced.Health == "" {
		announced.Health = HealthHealthy
	}

	data, err := json.Marshal(&announced)
	if err != nil {
		r.logger.Error("Failed to marshal service info", map[string]interface{}{
			"error":      err,
			"service_id": info.ID,
		})
		return fmt.Errorf("failed to marshal service info for %s: %w", info.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.serviceKey(info.ID), data, r.ttl)
	for _, cap := range info.Capabilities {
		capKey := r.capabilityKey(cap.Name)
		pipe.SAdd(ctx, capKey, info.ID)
		pipe.Expire(ctx, capKey, r.ttl*2)
	}
	nameKey := r.nameKey(info.Name)
	pipe.SAdd(ctx, nameKey, info.ID)
	pipe.Expire(ctx, nameKey, r.ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to announce service atomically", map[string]interface{}{
			"error":      err,
			"service_id": info.ID,
		})
		return fmt.Errorf("failed to announce service atomically: %w", err)
	}

	r.logger.Info("Service announced", map[string]interface{}{
		"service_id":         info.ID,
		"service_name":       info.Name,
		"capabilities_count": len(info.Capabilities),
	})
	return nil
}

// UpdateHealth refreshes the entry TTL and records the new health status
func (r *RedisDirectory) UpdateHealth(ctx context.Context, serviceID string, health HealthStatus) error {
	key := r.serviceKey(serviceID)

	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("service %s: %w", serviceID, ErrServiceNotFound)
		}
		return fmt.Errorf("failed to get service %s: %w", serviceID, err)
	}

	var info ServiceInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return fmt.Errorf("failed to unmarshal service data for %s: %w", serviceID, err)
	}

	info.Health = health
	info.LastSeen = time.Now()

	updated, err := json.Marshal(&info)
	if err != nil {
		return fmt.Errorf("failed to marshal health data for %s: %w", serviceID, err)
	}
	if err := r.client.Set(ctx, key, updated, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to update health for %s: %w", serviceID, err)
	}

	// Index sets expire independently of service keys; refresh them so a
	// healthy service never vanishes from capability lookups
	r.refreshIndexTTLs(ctx, &info)

	return nil
}

// Withdraw removes a service entry and its index memberships
func (r *RedisDirectory) Withdraw(ctx context.Context, serviceID string) error {
	r.logger.Info("Withdrawing service", map[string]interface{}{
		"service_id": serviceID,
	})

	key := r.serviceKey(serviceID)

	data, err := r.client.Get(ctx, key).Result()
	if err == nil {
		var info ServiceInfo
		if err := json.Unmarshal([]byte(data), &info); err == nil {
			for _, cap := range info.Capabilities {
				if err := r.client.SRem(ctx, r.capabilityKey(cap.Name), serviceID).Err(); err != nil {
					r.logger.Warn("Failed to remove from capability index", map[string]interface{}{
						"capability": cap.Name,
						"service_id": serviceID,
						"error":      err,
					})
				}
			}
			if err := r.client.SRem(ctx, r.nameKey(info.Name), serviceID).Err(); err != nil {
				r.logger.Warn("Failed to remove from name index", map[string]interface{}{
					"service_name": info.Name,
					"service_id":   serviceID,
					"error":        err,
				})
			}
		}
	} else if err != redis.Nil {
		r.logger.Warn("Failed to get service data for withdrawal", map[string]interface{}{
			"error":      err,
			"service_id": serviceID,
		})
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to withdraw service %s: %w", serviceID, err)
	}

	r.stateMu.Lock()
	delete(r.announceState, serviceID)
	r.stateMu.Unlock()

	return nil
}

// FindByCapability returns services currently announcing the named capability
func (r *RedisDirectory) FindByCapability(ctx context.Context, capability string) ([]*ServiceInfo, error) {
	ids, err := r.client.SMembers(ctx, r.capabilityKey(capability)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up capability %s: %w", capability, err)
	}
	return r.fetchServices(ctx, ids)
}

// FindService returns services registered under the given name
func (r *RedisDirectory) FindService(ctx context.Context, serviceName string) ([]*ServiceInfo, error) {
	ids, err := r.client.SMembers(ctx, r.nameKey(serviceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up service %s: %w", serviceName, err)
	}
	return r.fetchServices(ctx, ids)
}

// fetchServices resolves a list of service IDs, skipping expired entries and
// pruning dangling index members as a side effect
func (r *RedisDirectory) fetchServices(ctx context.Context, ids []string) ([]*ServiceInfo, error) {
	results := make([]*ServiceInfo, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.serviceKey(id)).Result()
		if err == redis.Nil {
			// Entry expired but the index member lingers
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch service %s: %w", id, err)
		}
		var info ServiceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			r.logger.Warn("Skipping malformed service entry", map[string]interface{}{
				"service_id": id,
				"error":      err,
			})
			continue
		}
		results = append(results, &info)
	}
	return results, nil
}

// refreshIndexTTLs extends the TTL of every index set this service belongs to
func (r *RedisDirectory) refreshIndexTTLs(ctx context.Context, info *ServiceInfo) {
	for _, cap := range info.Capabilities {
		if err := r.client.Expire(ctx, r.capabilityKey(cap.Name), r.ttl*2).Err(); err != nil {
			r.logger.Debug("Failed to refresh capability index TTL", map[string]interface{}{
				"capability": cap.Name,
				"error":      err,
			})
		}
	}
	if err := r.client.Expire(ctx, r.nameKey(info.Name), r.ttl*2).Err(); err != nil {
		r.logger.Debug("Failed to refresh name index TTL", map[string]interface{}{
			"service_name": info.Name,
			"error":        err,
		})
	}
}

// storeAnnounceState keeps a copy of the registration for re-announcement
func (r *RedisDirectory) storeAnnounceState(info *ServiceInfo) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	copied := *info
	copied.Capabilities = append([]CapabilitySummary{}, info.Capabilities...)
	copied.Health = HealthHealthy
	if info.Metadata != nil {
		copied.Metadata = make(map[string]string, len(info.Metadata))
		for k, v := range info.Metadata {
			copied.Metadata[k] = v
		}
	}
	r.announceState[info.ID] = &copied
}

func (r *RedisDirectory) storedAnnounceState(serviceID string) *ServiceInfo {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	info, exists := r.announceState[serviceID]
	if !exists {
		return nil
	}
	copied := *info
	copied.Capabilities = append([]CapabilitySummary{}, info.Capabilities...)
	return &copied
}

func (r *RedisDirectory) isServiceNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if err == redis.Nil {
		return true
	}
	return strings.Contains(err.Error(), "service not found") ||
		strings.Contains(err.Error(), "key does not exist")
}

// maintainAnnouncement sends a heartbeat and re-announces from stored state
// if the entry expired (for example after a Redis restart)
func (r *RedisDirectory) maintainAnnouncement(ctx context.Context, serviceID string) {
	err := r.UpdateHealth(ctx, serviceID, HealthHealthy)

	var failureCount int64
	var lastSuccess time.Time

	r.statsMu.Lock()
	if stats := r.stats[serviceID]; stats != nil {
		if err == nil {
			stats.successCount++
			stats.lastSuccess = time.Now()
		} else {
			stats.failureCount++
			stats.lastFailure = time.Now()
		}
		failureCount = stats.failureCount
		lastSuccess = stats.lastSuccess
	}
	r.statsMu.Unlock()

	if err != nil && r.isServiceNotFoundError(err) {
		info := r.storedAnnounceState(serviceID)
		if info == nil {
			return
		}

		// Jitter prevents a thundering herd when many services recover at once
		jitterMs, _ := rand.Int(rand.Reader, big.NewInt(1000))
		time.Sleep(time.Duration(jitterMs.Int64()) * time.Millisecond)

		if annErr := r.Announce(ctx, info); annErr != nil {
			r.logger.Error("Failed to re-announce service during recovery", map[string]interface{}{
				"service_id":     serviceID,
				"error":          annErr,
				"total_failures": failureCount,
			})
			return
		}

		downtime := time.Duration(0)
		if !lastSuccess.IsZero() {
			downtime = time.Since(lastSuccess)
		}
		r.logger.Info("Re-announced service after directory recovery", map[string]interface{}{
			"service_id":       serviceID,
			"downtime_seconds": int(downtime.Seconds()),
		})

		r.statsMu.Lock()
		if stats := r.stats[serviceID]; stats != nil {
			stats.failureCount = 0
			stats.lastSuccess = time.Now()
		}
		r.statsMu.Unlock()
	} else if err != nil {
		r.logger.Error("Failed to send heartbeat", map[string]interface{}{
			"service_id":     serviceID,
			"error":          err.Error(),
			"total_failures": failureCount,
		})
	}
}

// logHeartbeatSummary logs accumulated heartbeat statistics
func (r *RedisDirectory) logHeartbeatSummary(serviceID string, final bool) {
	r.statsMu.RLock()
	stats := r.stats[serviceID]
	if stats == nil {
		r.statsMu.RUnlock()
		return
	}
	successCount := stats.successCount
	failureCount := stats.failureCount
	startedAt := stats.startedAt
	r.statsMu.RUnlock()

	total := successCount + failureCount
	successRate := float64(0)
	if total > 0 {
		successRate = float64(successCount) / float64(total) * 100
	}

	fields := map[string]interface{}{
		"service_id":     serviceID,
		"success_count":  successCount,
		"failure_count":  failureCount,
		"success_rate":   fmt.Sprintf("%.2f%%", successRate),
		"uptime_minutes": int(time.Since(startedAt).Minutes()),
	}
	if final {
		r.logger.Info("Heartbeat final summary", fields)
	} else {
		r.logger.Info("Heartbeat health summary", fields)
	}
}

// StartHeartbeat keeps the announcement alive until the context is cancelled.
// The interval is half the TTL plus jitter so replicas spread their refreshes.
func (r *RedisDirectory) StartHeartbeat(ctx context.Context, serviceID string) {
	r.statsMu.Lock()
	r.stats[serviceID] = &heartbeatStats{
		startedAt:     time.Now(),
		lastSummaryAt: time.Now(),
	}
	r.statsMu.Unlock()

	baseInterval := r.ttl / 2
	maxJitter := baseInterval.Milliseconds() / 4
	if maxJitter < 1 {
		maxJitter = 1
	}
	jitterMs, _ := rand.Int(rand.Reader, big.NewInt(maxJitter))
	interval := baseInterval + time.Duration(jitterMs.Int64())*time.Millisecond

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logHeartbeatSummary(serviceID, true)
				r.statsMu.Lock()
				delete(r.stats, serviceID)
				r.statsMu.Unlock()
				return
			case <-ticker.C:
				r.maintainAnnouncement(ctx, serviceID)

				r.statsMu.RLock()
				stats := r.stats[serviceID]
				shouldLog := stats != nil && time.Since(stats.lastSummaryAt) >= 5*time.Minute
				r.statsMu.RUnlock()

				if shouldLog {
					r.logHeartbeatSummary(serviceID, false)
					r.statsMu.Lock()
					if stats := r.stats[serviceID]; stats != nil {
						stats.lastSummaryAt = time.Now()
					}
					r.statsMu.Unlock()
				}
			}
		}
	}()
}

// Close releases the Redis connection
func (r *RedisDirectory) Close() error {
	return r.client.Close()
}
