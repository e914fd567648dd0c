package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/models"
)

type stubRefresher struct {
	mu     sync.Mutex
	result map[models.InsightCategory][]models.Insight
	calls  int
}

func (r *stubRefresher) Refresh(context.Context) map[models.InsightCategory][]models.Insight {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingPublisher struct {
	refreshed int
	alerts    []string
	alertErr  error
}

func (p *recordingPublisher) PublishInsightsRefreshed(map[models.InsightCategory][]models.Insight, time.Time) error {
	p.refreshed++
	return nil
}

func (p *recordingPublisher) PublishInsightAlert(in models.Insight) error {
	if p.alertErr != nil {
		return p.alertErr
	}
	p.alerts = append(p.alerts, in.ID)
	return nil
}

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func sampleResult() map[models.InsightCategory][]models.Insight {
	return map[models.InsightCategory][]models.Insight{
		models.CategoryChurn: {
			{ID: "churn-high-risk", Priority: models.PriorityHigh},
			{ID: "churn-medium-risk", Priority: models.PriorityMedium},
		},
		models.CategoryRevenue: {
			{ID: "revenue-week-down", Priority: models.PriorityHigh},
		},
	}
}

func TestRunOnce_PublishesSummaryAndAlerts(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(&config.SchedulerConfig{RefreshSpec: "@every 1h"}, &stubRefresher{result: sampleResult()}, pub, newTestLogger())

	sent := s.RunOnce(context.Background())
	if sent != 2 || pub.refreshed != 1 {
		t.Fatalf("expected 2 alerts and 1 summary, got %d / %d", sent, pub.refreshed)
	}
	if pub.alerts[0] != "churn-high-risk" || pub.alerts[1] != "revenue-week-down" {
		t.Fatalf("unexpected alert order: %v", pub.alerts)
	}
}

func TestRunOnce_DoesNotRepeatAlerts(t *testing.T) {
	pub := &recordingPublisher{}
	ref := &stubRefresher{result: sampleResult()}
	s := New(&config.SchedulerConfig{RefreshSpec: "@every 1h"}, ref, pub, newTestLogger())

	s.RunOnce(context.Background())
	if sent := s.RunOnce(context.Background()); sent != 0 {
		t.Fatalf("expected no repeated alerts, got %d", sent)
	}

	// инсайт исчез и появился снова
	ref.result = map[models.InsightCategory][]models.Insight{}
	s.RunOnce(context.Background())
	ref.result = sampleResult()
	if sent := s.RunOnce(context.Background()); sent != 2 {
		t.Fatalf("expected alerts after the insights returned, got %d", sent)
	}
}

func TestRunOnce_FailedAlertRetriedNextRun(t *testing.T) {
	pub := &recordingPublisher{alertErr: errors.New("broker down")}
	s := New(&config.SchedulerConfig{RefreshSpec: "@every 1h"}, &stubRefresher{result: sampleResult()}, pub, newTestLogger())

	if sent := s.RunOnce(context.Background()); sent != 0 {
		t.Fatalf("expected no alerts while broker is down, got %d", sent)
	}
	pub.alertErr = nil
	if sent := s.RunOnce(context.Background()); sent != 2 {
		t.Fatalf("expected alerts to be retried, got %d", sent)
	}
}

func TestRunOnce_WithoutPublisher(t *testing.T) {
	ref := &stubRefresher{result: sampleResult()}
	s := New(&config.SchedulerConfig{RefreshSpec: "@every 1h"}, ref, nil, newTestLogger())
	if sent := s.RunOnce(context.Background()); sent != 0 || ref.callCount() != 1 {
		t.Fatalf("expected refresh without publishing")
	}
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New(&config.SchedulerConfig{RefreshSpec: "not a schedule"}, &stubRefresher{}, nil, newTestLogger())
	if err := s.Start(); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestStartStop_RunsJob(t *testing.T) {
	ref := &stubRefresher{result: sampleResult()}
	s := New(&config.SchedulerConfig{RefreshSpec: "@every 1s"}, ref, nil, newTestLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for ref.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	if ref.callCount() == 0 {
		t.Fatalf("expected scheduled refresh to run")
	}
}
