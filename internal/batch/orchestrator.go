// Package batch implements the Batch Orchestrator (spec.md C7): it drives
// regional sweeps of (product_type, exchange) validation requests across a
// bounded worker pool per region, retrying transient HTTP failures with
// exponential backoff. The backoff/retry shape is reimplemented (not
// imported) from ipiton-alert-history-service's
// internal/core/resilience.WithRetry; the bounded fan-out is grounded on
// the teacher's semaphore-channel worker pool. Per-task completions are
// published on the teacher's domain.EventBus (channel-backed by default,
// NATS in pro tier), carrying forward the teacher's async-notification
// pattern from internal/worker.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/refdata/validate-service/internal/domain"
)

// Task is one (product_type, exchange) pair to validate.
type Task struct {
	ProductType string
	Exchange    string
}

// ValidationResult records the outcome of validating one Task.
type ValidationResult struct {
	ProductType string
	Exchange    string
	Success     bool
	RunID       string
	Error       string
}

// ValidationSummary tallies the outcomes of a regional sweep. Safe for
// concurrent appends from the worker pool.
type ValidationSummary struct {
	Region string

	mu          sync.Mutex
	Results     []ValidationResult
	Successes   int
	Failures    int
	Unavailable bool
}

func (s *ValidationSummary) add(r ValidationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
	if r.Success {
		s.Successes++
	} else {
		s.Failures++
	}
}

// retryableStatus is the set of HTTP status codes spec.md §4.7 names as
// retryable.
var retryableStatus = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// Orchestrator drives regional validation sweeps against a running
// validate-service HTTP API.
type Orchestrator struct {
	cfg    domain.BatchConfig
	client *http.Client
	bus    domain.EventBus
}

// New returns an Orchestrator configured per cfg. bus may be nil, in which
// case task completions are not published anywhere.
func New(cfg domain.BatchConfig, bus domain.EventBus) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.AttemptTimeout},
		bus:    bus,
	}
}

// RunRegion health-checks the validation service, then submits every task
// to a pool of cfg.MaxWorkersPerRegion workers, each making up to
// cfg.MaxRetries attempts in total with exponential backoff. Context
// cancellation stops outstanding tasks and is propagated to the returned
// error.
func (o *Orchestrator) RunRegion(ctx context.Context, region string, tasks []Task, customRuleNames []string) (*ValidationSummary, error) {
	summary := &ValidationSummary{Region: region}

	if err := o.healthCheck(ctx); err != nil {
		summary.Unavailable = true
		for _, task := range tasks {
			summary.add(ValidationResult{
				ProductType: task.ProductType,
				Exchange:    task.Exchange,
				Success:     false,
				Error:       fmt.Sprintf("API unavailable: %v", err),
			})
		}
		return summary, nil
	}

	workers := o.cfg.MaxWorkersPerRegion
	if workers <= 0 {
		workers = 4
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result := o.validateWithRetry(ctx, region, t, customRuleNames)
			summary.add(result)
			o.publish(ctx, result)
		}(task)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// publish notifies the EventBus that one task finished, for anything
// watching regional sweep progress (a pro-tier NATS subscriber, or an
// in-process channel consumer). A nil bus or a publish error is never
// fatal to the sweep itself.
func (o *Orchestrator) publish(ctx context.Context, result ValidationResult) {
	if o.bus == nil {
		return
	}
	event := domain.RunEvent{
		RunID:       result.RunID,
		ProductType: result.ProductType,
		Exchange:    result.Exchange,
		Success:     result.Success,
	}
	if err := o.bus.Publish(ctx, domain.TopicValidationCompleted, event); err != nil {
		slog.Warn("failed to publish validation completion event", "error", err)
	}
}

func (o *Orchestrator) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.APIBaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// validateWithRetry calls the validation endpoint for task, retrying on
// retryable status codes and connection/timeout errors with exponential
// backoff (base, 2x, 4x, capped at MaxBackoff), up to cfg.MaxRetries
// attempts total.
func (o *Orchestrator) validateWithRetry(ctx context.Context, region string, task Task, customRuleNames []string) ValidationResult {
	maxAttempts := o.cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	delay := o.cfg.BaseBackoff
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := o.cfg.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}

	var lastResult ValidationResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		result, retryable, err := o.callValidate(attemptCtx, region, task, customRuleNames)
		cancel()

		if err == nil {
			return result
		}
		lastResult = result

		if !retryable || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			lastResult.Error = ctx.Err().Error()
			return lastResult
		case <-time.After(jitter(delay)):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return lastResult
}

// jitter adds up to 10% random variance to a backoff delay to avoid
// synchronized retries across workers.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.1
	return d + time.Duration(rand.Float64()*spread)
}

type validateRequest struct {
	ProductType     string   `json:"product_type"`
	Exchange        string   `json:"exchange"`
	CustomRuleNames []string `json:"custom_rule_names,omitempty"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id"`
}

// callValidate issues one attempt against the validation endpoint. The
// returned bool indicates whether a failure is retryable.
func (o *Orchestrator) callValidate(ctx context.Context, region string, task Task, customRuleNames []string) (ValidationResult, bool, error) {
	result := ValidationResult{ProductType: task.ProductType, Exchange: task.Exchange}

	body, err := json.Marshal(validateRequest{
		ProductType:     task.ProductType,
		Exchange:        task.Exchange,
		CustomRuleNames: customRuleNames,
	})
	if err != nil {
		result.Error = err.Error()
		return result, false, err
	}

	endpoint := o.cfg.APIBaseURL + "/validate"
	if region != "" {
		endpoint += "?" + url.Values{"region": {region}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		result.Error = err.Error()
		return result, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result, true, err // connection/timeout errors are always retryable
	}
	defer resp.Body.Close()

	if retryableStatus[resp.StatusCode] {
		result.Error = fmt.Sprintf("retryable status %d", resp.StatusCode)
		return result, true, fmt.Errorf("%s", result.Error)
	}
	if resp.StatusCode >= 400 {
		result.Error = fmt.Sprintf("validation request failed with status %d", resp.StatusCode)
		return result, false, fmt.Errorf("%s", result.Error)
	}

	var parsed validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		result.Error = err.Error()
		return result, false, err
	}

	result.Success = parsed.Success
	result.RunID = parsed.RunID
	if !parsed.Success {
		result.Error = "validation completed with failures"
	}
	return result, false, nil
}
