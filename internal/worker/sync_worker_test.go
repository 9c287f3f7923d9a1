package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custobar-insights/internal/apperrors"
	"github.com/custobar-insights/internal/models"
	"github.com/custobar-insights/internal/service"
)

type mockPipeline struct {
	mu      sync.Mutex
	runs    []string
	errsFor map[string]error
	done    chan struct{}
	want    int
}

func (m *mockPipeline) Run(ctx context.Context, integrationID string) (*service.PipelineResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, integrationID)
	if m.done != nil && len(m.runs) == m.want {
		close(m.done)
	}
	if err := m.errsFor[integrationID]; err != nil {
		return nil, err
	}
	return &service.PipelineResult{IntegrationID: integrationID}, nil
}

func (m *mockPipeline) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

type mockLister struct {
	integrations []*models.Integration
	err          error
}

func (m *mockLister) List(ctx context.Context) ([]*models.Integration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.integrations, nil
}

func integrations(ids ...string) []*models.Integration {
	var all []*models.Integration
	for _, id := range ids {
		all = append(all, &models.Integration{ID: id})
	}
	return all
}

func startWorker(t *testing.T, pipeline *mockPipeline, lister *mockLister) *SyncWorker {
	t.Helper()

	w := NewSyncWorker(&SyncWorkerConfig{
		Pipeline:        pipeline,
		IntegrationRepo: lister,
		Interval:        time.Hour,
		RunOnStart:      true,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.Stop(ctx); err != nil {
			t.Errorf("Stop() returned error: %v", err)
		}
	})
	return w
}

func waitFor(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync cycle")
	}
}

func TestSyncWorkerRunsAllIntegrationsOnStart(t *testing.T) {
	pipeline := &mockPipeline{done: make(chan struct{}), want: 3}
	lister := &mockLister{integrations: integrations("int-1", "int-2", "int-3")}

	w := startWorker(t, pipeline, lister)
	waitFor(t, pipeline.done)

	if got := pipeline.runCount(); got != 3 {
		t.Errorf("pipeline ran %d times, want 3", got)
	}
	if w.LastRunTime().IsZero() {
		t.Error("LastRunTime was not recorded")
	}
}

func TestSyncWorkerContinuesPastFailures(t *testing.T) {
	pipeline := &mockPipeline{
		done: make(chan struct{}),
		want: 3,
		errsFor: map[string]error{
			"int-1": errors.New("boom"),
			"int-2": apperrors.NewPipelineLockedError("int-2"),
		},
	}
	lister := &mockLister{integrations: integrations("int-1", "int-2", "int-3")}

	startWorker(t, pipeline, lister)
	waitFor(t, pipeline.done)

	if got := pipeline.runCount(); got != 3 {
		t.Errorf("pipeline ran %d times, want 3", got)
	}
}

func TestSyncWorkerStartTwice(t *testing.T) {
	pipeline := &mockPipeline{done: make(chan struct{}), want: 1}
	lister := &mockLister{integrations: integrations("int-1")}

	w := startWorker(t, pipeline, lister)
	waitFor(t, pipeline.done)

	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() should fail while running")
	}
}

func TestSyncWorkerStopWithoutStart(t *testing.T) {
	w := NewSyncWorker(&SyncWorkerConfig{
		Pipeline:        &mockPipeline{},
		IntegrationRepo: &mockLister{},
	})

	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on a stopped worker returned error: %v", err)
	}
}

func TestIsLocked(t *testing.T) {
	if !isLocked(apperrors.NewPipelineLockedError("int-1")) {
		t.Error("pipeline locked error should count as locked")
	}
	if isLocked(errors.New("boom")) {
		t.Error("plain error should not count as locked")
	}
}
