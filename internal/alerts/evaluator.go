package alerts

import (
	"fmt"
	"sync"
	"time"
)

// StatsFunc supplies the current gateway stats to evaluate rules against.
// Expected keys: "errors", "messages_received", "connections_dropped",
// "active_connections" (all int64).
type StatsFunc func() map[string]interface{}

// Evaluator evaluates alert rules against realtime gateway stats
type Evaluator struct {
	manager   *AlertManager
	stats     StatsFunc
	mu        sync.RWMutex
	lastCheck map[string]time.Time // Track last time each rule was checked
}

// NewEvaluator creates a new alert evaluator
func NewEvaluator(manager *AlertManager, stats StatsFunc) *Evaluator {
	return &Evaluator{
		manager:   manager,
		stats:     stats,
		lastCheck: make(map[string]time.Time),
	}
}

// EvaluateRules checks all enabled rules against current stats
func (e *Evaluator) EvaluateRules() {
	e.mu.Lock()
	rules := e.manager.GetAllRules()
	e.mu.Unlock()

	stats := e.stats()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		// Check if rule is in cooldown period
		if rule.LastTriggered != nil {
			timeSinceLastTrigger := time.Since(*rule.LastTriggered).Seconds()
			if timeSinceLastTrigger < float64(rule.CooldownSec) {
				continue
			}
		}

		// Evaluate rule condition
		triggered, details := e.evaluateRule(rule, stats)

		if triggered {
			e.manager.TriggerAlert(
				rule.Type,
				rule.Level,
				fmt.Sprintf("[%s] %s", rule.Name, rule.Condition),
				details,
				rule.ID,
			)

			// Update last triggered time
			now := time.Now()
			rule.LastTriggered = &now
		}
	}
}

// evaluateRule checks a specific rule against stats
func (e *Evaluator) evaluateRule(rule *AlertRule, stats map[string]interface{}) (bool, map[string]interface{}) {
	details := make(map[string]interface{})

	switch rule.Type {
	case AlertTypeHighErrorRate:
		errors, ok := stats["errors"].(int64)
		received, ok2 := stats["messages_received"].(int64)
		if ok && ok2 && received > 0 {
			errorRate := float64(errors) / float64(received) * 100
			if errorRate >= rule.Threshold {
				details["current_error_rate"] = errorRate
				details["threshold"] = rule.Threshold
				details["errors"] = errors
				details["messages_received"] = received
				return true, details
			}
		}

	case AlertTypeDroppedConnections:
		dropped, ok := stats["connections_dropped"].(int64)
		if ok && float64(dropped) >= rule.Threshold {
			details["connections_dropped"] = dropped
			details["threshold"] = rule.Threshold
			return true, details
		}

	case AlertTypeConnectionFlood:
		active, ok := stats["active_connections"].(int64)
		if ok && float64(active) >= rule.Threshold {
			details["active_connections"] = active
			details["threshold"] = rule.Threshold
			return true, details
		}

	case AlertTypeHighRejectionRate:
		// This would need to be tracked from rate limiter
		// For now, placeholder
		details["message"] = "Rate limit rejections not yet tracked"
		return false, details
	}

	return false, details
}

// InitializeDefaultRules sets up default alert rules
func (e *Evaluator) InitializeDefaultRules() {
	rules := []*AlertRule{
		{
			Name:        "High Socket Error Rate",
			Type:        AlertTypeHighErrorRate,
			Enabled:     true,
			Level:       AlertLevelCritical,
			Condition:   "Socket error rate > 5%",
			Threshold:   5.0,
			Duration:    5 * time.Minute,
			CooldownSec: 300, // 5 minute cooldown
		},
		{
			Name:        "Dropped Connections",
			Type:        AlertTypeDroppedConnections,
			Enabled:     true,
			Level:       AlertLevelWarning,
			Condition:   "Slow-consumer disconnects > 100",
			Threshold:   100.0,
			Duration:    5 * time.Minute,
			CooldownSec: 300,
		},
		{
			Name:        "Connection Flood",
			Type:        AlertTypeConnectionFlood,
			Enabled:     true,
			Level:       AlertLevelWarning,
			Condition:   "Active connections > 10000",
			Threshold:   10000.0,
			Duration:    5 * time.Minute,
			CooldownSec: 600,
		},
	}

	for _, rule := range rules {
		e.manager.AddRule(rule)
	}
}

// StartEvaluationLoop starts periodic evaluation of rules
func (e *Evaluator) StartEvaluationLoop(interval time.Duration) chan struct{} {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.EvaluateRules()
			case <-stop:
				return
			}
		}
	}()

	return stop
}
