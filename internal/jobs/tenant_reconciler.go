// Package jobs contains background jobs that run alongside the HTTP server.
//
// tenant_reconciler.go implements the TenantReconciler, which periodically
// compares organization records with the tenant collections that exist in the
// store. Organization lifecycle operations commit their steps one by one with
// no compensation, so a step failing midway can leave a collection without an
// organization (orphaned) or an organization without its collection
// (missing). The reconciler reports both; it never repairs anything itself.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/org-management/org-service/internal/store"
	"github.com/org-management/org-service/internal/telemetry"
)

const defaultReconcileInterval = time.Hour

// MissingCollection is an organization whose tenant collection does not exist.
type MissingCollection struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	CollectionName   string `json:"collection_name"`
}

// ReconcileReport is the outcome of one reconciliation run.
type ReconcileReport struct {
	CheckedAt     time.Time           `json:"checked_at"`
	Organizations int                 `json:"organizations"`
	Collections   int                 `json:"collections"`
	Orphaned      []string            `json:"orphaned"`
	Missing       []MissingCollection `json:"missing"`
}

// Consistent reports whether the run found nothing to reconcile.
func (r *ReconcileReport) Consistent() bool {
	return len(r.Orphaned) == 0 && len(r.Missing) == 0
}

// TenantReconciler periodically checks registry records against tenant
// collections
type TenantReconciler struct {
	registry    store.Registry
	provisioner store.Provisioner
	interval    time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewTenantReconciler creates a reconciliation job. A non-positive interval
// defaults to one hour.
func NewTenantReconciler(registry store.Registry, provisioner store.Provisioner, interval time.Duration) *TenantReconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &TenantReconciler{
		registry:    registry,
		provisioner: provisioner,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start runs a reconciliation immediately and then on every tick until Stop
// is called or ctx is cancelled.
func (r *TenantReconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("tenant reconciler started", "interval", r.interval)
	r.run(ctx)

	for {
		select {
		case <-ticker.C:
			r.run(ctx)
		case <-r.stopChan:
			slog.Info("tenant reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("tenant reconciler context cancelled")
			return
		}
	}
}

// Stop stops the reconciliation job. Safe to call more than once.
func (r *TenantReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *TenantReconciler) run(ctx context.Context) {
	report, err := r.RunOnce(ctx)
	if err != nil {
		telemetry.ReconcileRunsTotal.WithLabelValues("error").Inc()
		slog.Error("tenant reconciliation failed", "error", err)
		return
	}
	telemetry.ReconcileRunsTotal.WithLabelValues("success").Inc()

	for _, name := range report.Orphaned {
		slog.Warn("orphaned tenant collection", "collection", name)
	}
	for _, m := range report.Missing {
		slog.Warn("organization is missing its tenant collection",
			"organization_id", m.OrganizationID, "organization", m.OrganizationName, "collection", m.CollectionName)
	}
	slog.Info("tenant reconciliation completed",
		"organizations", report.Organizations, "collections", report.Collections,
		"orphaned", len(report.Orphaned), "missing", len(report.Missing))
}

// RunOnce performs a single reconciliation and updates the reconciliation
// gauges.
func (r *TenantReconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	orgs, err := r.registry.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	collections, err := r.provisioner.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant collections: %w", err)
	}

	report := &ReconcileReport{
		CheckedAt:     time.Now().UTC(),
		Organizations: len(orgs),
		Collections:   len(collections),
		Orphaned:      []string{},
		Missing:       []MissingCollection{},
	}

	existing := make(map[string]bool, len(collections))
	for _, name := range collections {
		existing[name] = true
	}
	referenced := make(map[string]bool, len(orgs))
	for _, org := range orgs {
		referenced[org.CollectionName] = true
		if !existing[org.CollectionName] {
			report.Missing = append(report.Missing, MissingCollection{
				OrganizationID:   org.ID,
				OrganizationName: org.Name,
				CollectionName:   org.CollectionName,
			})
		}
	}
	for _, name := range collections {
		if !referenced[name] {
			report.Orphaned = append(report.Orphaned, name)
		}
	}

	telemetry.TenantCollectionsOrphaned.Set(float64(len(report.Orphaned)))
	telemetry.TenantCollectionsMissing.Set(float64(len(report.Missing)))
	return report, nil
}
