package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/org-management/org-service/internal/db/models"
	"github.com/org-management/org-service/internal/store/memory"
	"github.com/org-management/org-service/internal/telemetry"
)

func seed(t *testing.T, b *memory.Backend, name string, withCollection bool) {
	t.Helper()
	ctx := context.Background()
	_, err := b.InsertOrganization(ctx, &models.Organization{
		Name:           name,
		CollectionName: "org_" + name,
		CreatedAt:      time.Now().UTC(),
		IsActive:       true,
	})
	require.NoError(t, err)
	if withCollection {
		require.NoError(t, b.Provision(ctx, "org_"+name))
	}
}

// ---------------------------------------------------------------------------
// NewTenantReconciler
// ---------------------------------------------------------------------------

func TestNewTenantReconciler_IntervalDefaults(t *testing.T) {
	b := memory.New()
	assert.Equal(t, time.Hour, NewTenantReconciler(b, b, 0).interval)
	assert.Equal(t, time.Hour, NewTenantReconciler(b, b, -time.Minute).interval)
	assert.Equal(t, 5*time.Minute, NewTenantReconciler(b, b, 5*time.Minute).interval)
}

// ---------------------------------------------------------------------------
// RunOnce
// ---------------------------------------------------------------------------

func TestRunOnce_Consistent(t *testing.T) {
	b := memory.New()
	seed(t, b, "acme", true)
	seed(t, b, "globex", true)

	report, err := NewTenantReconciler(b, b, 0).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.Organizations)
	assert.Equal(t, 2, report.Collections)
	assert.Empty(t, report.Orphaned)
	assert.Empty(t, report.Missing)
	assert.Equal(t, 0.0, testutil.ToFloat64(telemetry.TenantCollectionsOrphaned))
}

func TestRunOnce_FindsOrphanedAndMissing(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	seed(t, b, "acme", true)
	seed(t, b, "globex", false)
	require.NoError(t, b.Provision(ctx, "org_leftover"))

	report, err := NewTenantReconciler(b, b, 0).RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, []string{"org_leftover"}, report.Orphaned)
	require.Len(t, report.Missing, 1)
	assert.Equal(t, "globex", report.Missing[0].OrganizationName)
	assert.Equal(t, "org_globex", report.Missing[0].CollectionName)
	assert.NotEmpty(t, report.Missing[0].OrganizationID)

	assert.Equal(t, 1.0, testutil.ToFloat64(telemetry.TenantCollectionsOrphaned))
	assert.Equal(t, 1.0, testutil.ToFloat64(telemetry.TenantCollectionsMissing))
}

type failingProvisioner struct{ *memory.Backend }

func (failingProvisioner) ListCollections(context.Context) ([]string, error) {
	return nil, errors.New("listing unavailable")
}

func TestRunOnce_ListError(t *testing.T) {
	b := memory.New()
	r := NewTenantReconciler(b, failingProvisioner{b}, 0)

	_, err := r.RunOnce(context.Background())
	assert.ErrorContains(t, err, "listing unavailable")

	before := testutil.ToFloat64(telemetry.ReconcileRunsTotal.WithLabelValues("error"))
	r.run(context.Background())
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.ReconcileRunsTotal.WithLabelValues("error")))
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

func TestStart_StopsOnStopAndCancel(t *testing.T) {
	b := memory.New()

	r := NewTenantReconciler(b, b, time.Hour)
	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()
	r.Stop()
	r.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop after Stop()")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r = NewTenantReconciler(b, b, time.Hour)
	done = make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop after context cancel")
	}
}
