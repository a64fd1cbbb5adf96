package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"netgiropay/internal/config"
)

type stubReconciler struct {
	calls     atomic.Int32
	lastLimit atomic.Int32
	cancelled int
	err       error
	panics    bool
}

func (r *stubReconciler) ReconcileAuthorized(_ context.Context, limit int) (int, error) {
	r.calls.Add(1)
	r.lastLimit.Store(int32(limit))
	if r.panics {
		panic("boom")
	}
	return r.cancelled, r.err
}

func TestStartDisabledWithoutSchedule(t *testing.T) {
	r := &stubReconciler{}
	s := New(config.ReconcileConfig{}, r, zap.NewNop())
	require.NoError(t, s.Start())
	assert.Empty(t, s.cron.Entries())
	<-s.Stop().Done()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(config.ReconcileConfig{Schedule: "every now and then"}, &stubReconciler{}, zap.NewNop())
	assert.Error(t, s.Start())
}

func TestScheduledReconcileRuns(t *testing.T) {
	r := &stubReconciler{cancelled: 1}
	s := New(config.ReconcileConfig{Schedule: "* * * * * *", Limit: 25}, r, zap.NewNop())
	require.NoError(t, s.Start())
	defer func() { <-s.Stop().Done() }()

	require.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 25, r.lastLimit.Load())
}

func TestReconcileJobLogsFailuresAndPanics(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	s := New(config.ReconcileConfig{Limit: 10}, &stubReconciler{err: errors.New("db down")}, zap.New(core))
	s.reconcileAuthorized()
	assert.Equal(t, 1, logs.FilterMessage("Netgíró reconciliation failed").Len())

	s = New(config.ReconcileConfig{Limit: 10}, &stubReconciler{panics: true}, zap.New(core))
	assert.NotPanics(t, s.reconcileAuthorized)
	assert.Equal(t, 1, logs.FilterMessage("Cron job panicked").Len())
}
