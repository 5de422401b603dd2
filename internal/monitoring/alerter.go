// Package monitoring posts drift signals and batch failure alerts to a
// webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/config"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBRIDrift      AlertType = "bri_drift"
	AlertBatchFailures AlertType = "batch_failures"
)

// Alert is the webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	CompanyID string         `json:"company_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter delivers alerts to the configured webhook. Delivery is retried on
// transient failures and guarded by a circuit breaker. With no webhook URL
// configured every send is a no-op.
type Alerter struct {
	cfg     config.MonitoringConfig
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	client  *http.Client
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig, retry resilience.RetryConfig) *Alerter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retry.OnRetry = resilience.RetryLogger("monitoring", "webhook")
	return &Alerter{
		cfg:     cfg,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(resilience.BreakerFromConfig(cfg)),
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a != nil && a.cfg.WebhookURL != ""
}

// SignalAlert builds the alert for a drift signal.
func SignalAlert(sig *model.Signal, report *model.DriftReport) Alert {
	details := map[string]any{
		"signal_id": sig.ID,
		"kind":      string(sig.Kind),
	}
	if report != nil {
		details["drift_report_id"] = report.ID
		details["bri_delta"] = report.BRIDelta.String()
		details["valuation_delta"] = report.ValuationDelta.String()
		details["period_start"] = report.PeriodStart
		details["period_end"] = report.PeriodEnd
	}
	return Alert{
		Type:      AlertBRIDrift,
		Severity:  string(sig.Severity),
		CompanyID: sig.CompanyID,
		Message:   sig.Title,
		Details:   details,
		Timestamp: sig.CreatedAt,
	}
}

// EvaluateBatch returns an alert when the failure rate of a batch run
// exceeds the configured threshold.
func (a *Alerter) EvaluateBatch(trigger string, total, failed int64) (Alert, bool) {
	if total == 0 || failed == 0 {
		return Alert{}, false
	}
	rate := float64(failed) / float64(total)
	if rate <= a.cfg.BatchFailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertBatchFailures,
		Severity: string(model.SeverityHigh),
		Message: fmt.Sprintf("Batch recalculation (%s) failed for %d of %d companies (%.1f%%)",
			trigger, failed, total, rate*100),
		Details: map[string]any{
			"trigger":   trigger,
			"total":     total,
			"failed":    failed,
			"threshold": a.cfg.BatchFailureRateThreshold,
		},
		Timestamp: time.Now().UTC(),
	}, true
}

// Send delivers one alert.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if !a.Enabled() {
		return nil
	}
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
	})
	if err != nil {
		return eris.Wrapf(err, "monitoring: send %s alert", alert.Type)
	}
	zap.L().Info("monitoring: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity),
		zap.String("company_id", alert.CompanyID),
	)
	return nil
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
