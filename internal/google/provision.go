package google

import (
	"context"
	"fmt"

	"github.com/leadlift/leadlift/internal/logx"
	"github.com/leadlift/leadlift/internal/server/db"
)

// Orchestrator coordinates credential lookup and the provisioning
// procedures for one logical request. Remote calls and local persistence
// are separate steps throughout — a crash between "remote create
// succeeded" and "local reference persisted" is healed by the next
// attempt's find-or-create.
type Orchestrator struct {
	Store      *db.Store
	Vault      *Vault
	Graph      *TagGraph
	Analytics  *Analytics
	Registrar  *Registrar
	Aggregator *Aggregator
}

// NewOrchestrator wires the provisioning components around one store,
// vault and Ads client.
func NewOrchestrator(store *db.Store, vault *Vault, ads *AdsClient) *Orchestrator {
	return &Orchestrator{
		Store:      store,
		Vault:      vault,
		Graph:      NewTagGraph(store),
		Analytics:  NewAnalytics(store),
		Registrar:  &Registrar{Ads: ads},
		Aggregator: &Aggregator{Ads: ads},
	}
}

// ListAccounts enumerates the remote accounts reachable by the caller's
// credential for one scope.
func (o *Orchestrator) ListAccounts(ctx context.Context, userID, tenantID string, scope Scope) ([]AccountSummary, error) {
	cred, err := o.Vault.Live(userID, tenantID, scope)
	if err != nil {
		return nil, err
	}
	return o.Aggregator.ListAccounts(ctx, cred)
}

// ProvisionTracking drives one tracking definition to the active state:
// tag graph first, then — when the definition targets an Ads customer —
// the conversion action. A KindPropagationPending result means the graph is
// live and the conversion action exists, but its label needs a deferred
// fetch; the tracking is parked in the label_pending state for that.
func (o *Orchestrator) ProvisionTracking(ctx context.Context, userID, trackingID string) (*db.Tracking, error) {
	tr, err := o.Store.GetTracking(trackingID)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("tracking %s not found", trackingID)
	}
	tenant, err := o.Store.GetTenant(tr.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", tr.TenantID)
	}

	cred, err := o.Vault.Live(userID, tr.TenantID, ScopeTagManager)
	if err != nil {
		return tr, err
	}
	if err := o.Graph.Build(ctx, cred, tenant, tr); err != nil {
		return tr, err
	}

	if tr.AdsCustomerID != "" && tr.ConversionLabel == "" {
		if err := o.registerConversion(ctx, userID, tenant, tr); err != nil {
			return tr, err
		}
	}
	return tr, nil
}

// EnsureConversion registers (or re-checks) the conversion action for a
// tracking definition alone — the deferred-retry entry point after a
// label_pending outcome.
func (o *Orchestrator) EnsureConversion(ctx context.Context, userID, trackingID string) (*db.Tracking, error) {
	tr, err := o.Store.GetTracking(trackingID)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("tracking %s not found", trackingID)
	}
	if tr.AdsCustomerID == "" {
		return nil, fmt.Errorf("tracking %s has no ads customer", trackingID)
	}
	if tr.ConversionLabel != "" {
		return tr, nil
	}
	tenant, err := o.Store.GetTenant(tr.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", tr.TenantID)
	}
	if err := o.registerConversion(ctx, userID, tenant, tr); err != nil {
		return tr, err
	}
	return tr, nil
}

func (o *Orchestrator) registerConversion(ctx context.Context, userID string, tenant *db.Tenant, tr *db.Tracking) error {
	cred, err := o.Vault.Live(userID, tr.TenantID, ScopeAds)
	if err != nil {
		return err
	}
	if err := o.ensureAdsLink(ctx, cred, tenant, tr.AdsCustomerID); err != nil {
		return err
	}

	conv, err := o.Registrar.EnsureConversionAction(ctx, cred, tr.AdsCustomerID, ResourceName(tr.Name))
	if IsKind(err, KindPropagationPending) {
		// The action exists; only the label is lagging. Park the tracking
		// so a deferred retry resumes at the label fetch.
		if perr := o.Store.SetTrackingConversion(tr.TrackingID, conv.ResourceName, "", db.StatusLabelPending); perr != nil {
			return perr
		}
		tr.ConversionRes = conv.ResourceName
		tr.Status = db.StatusLabelPending
		return err
	}
	if err != nil {
		return err
	}

	if err := o.Store.SetTrackingConversion(tr.TrackingID, conv.ResourceName, conv.Label, db.StatusActive); err != nil {
		return err
	}
	tr.ConversionRes = conv.ResourceName
	tr.ConversionLabel = conv.Label
	tr.Status = db.StatusActive
	return nil
}

// ensureAdsLink resolves the tenant's shared label in the Ads customer
// account, the canonical account-scoped singleton.
func (o *Orchestrator) ensureAdsLink(ctx context.Context, cred *Live, tenant *db.Tenant, customerID string) error {
	if err := o.Store.UpsertAdsLink(&db.AdsLink{TenantID: tenant.TenantID, CustomerID: customerID}); err != nil {
		return err
	}
	hc, err := cred.Client(ctx)
	if err != nil {
		return err
	}
	labelName := ResourceName(tenant.Name)

	loc := Locator{
		Lookup: func() (string, error) {
			link, err := o.Store.GetAdsLink(tenant.TenantID, customerID)
			if err != nil {
				return "", err
			}
			if link == nil {
				return "", nil
			}
			return link.LabelResource, nil
		},
		Search: func(ctx context.Context) (string, error) {
			return o.Registrar.Ads.FindLabel(ctx, hc, customerID, labelName)
		},
		Create: func(ctx context.Context) (string, error) {
			return o.Registrar.Ads.CreateLabel(ctx, hc, customerID, labelName)
		},
		Persist: func(id string) error {
			return o.Store.SetAdsLinkLabel(tenant.TenantID, customerID, id)
		},
	}
	if _, err := loc.Resolve(ctx); err != nil {
		return err
	}
	return nil
}

// ProvisionAnalytics ensures the tenant's GA4 property and web data stream
// exist under the chosen account.
func (o *Orchestrator) ProvisionAnalytics(ctx context.Context, userID, tenantID, accountID, siteURL string) (*db.Tenant, error) {
	tenant, err := o.Store.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", tenantID)
	}
	cred, err := o.Vault.Live(userID, tenantID, ScopeAnalytics)
	if err != nil {
		return nil, err
	}

	if _, err := o.Analytics.EnsureProperty(ctx, cred, tenant, accountID); err != nil {
		return tenant, err
	}
	if _, _, err := o.Analytics.EnsureWebStream(ctx, cred, tenant, siteURL); err != nil {
		return tenant, err
	}
	return tenant, nil
}

// DeleteTracking tears down the definition's remote entities in reverse
// dependency order, then removes the local row. Teardown is best-effort
// re-entrant: a failure leaves the remaining ids persisted for the next
// attempt.
func (o *Orchestrator) DeleteTracking(ctx context.Context, userID, trackingID string) error {
	tr, err := o.Store.GetTracking(trackingID)
	if err != nil {
		return err
	}
	if tr == nil {
		return nil
	}

	if tr.WorkspaceID != "" {
		cred, err := o.Vault.Live(userID, tr.TenantID, ScopeTagManager)
		if err != nil {
			return err
		}
		if err := o.Graph.Teardown(ctx, cred, tr); err != nil {
			return err
		}
	}

	if err := o.Store.DeleteTracking(trackingID); err != nil {
		return err
	}
	logx.Infof("deleted tracking %s", trackingID)
	return nil
}
