package google

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	analyticsadmin "google.golang.org/api/analyticsadmin/v1beta"
	"google.golang.org/api/option"
	tagmanager "google.golang.org/api/tagmanager/v2"

	"github.com/leadlift/leadlift/internal/logx"
)

// AccountSummary is one remote account reachable by a credential, with the
// per-account detail the UI needs to let a user pick a provisioning target.
type AccountSummary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Resources []ResourceSummary `json:"resources,omitempty"`
}

// ResourceSummary is a container or property owned by an account.
type ResourceSummary struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	PublicID string `json:"public_id,omitempty"`
}

// Aggregator enumerates the remote accounts a credential can reach. The
// top-level listing is one call; per-account detail fetches fan out in
// parallel and merge leniently — a failed detail fetch drops that account
// from the result (logged, recoverable by retry) rather than failing the
// whole listing. Result ordering is not guaranteed.
type Aggregator struct {
	Ads *AdsClient

	// Endpoint overrides for tests.
	TagManagerEndpoint string
	AnalyticsEndpoint  string
}

// ListAccounts dispatches on the credential's scope.
func (ag *Aggregator) ListAccounts(ctx context.Context, cred *Live) ([]AccountSummary, error) {
	hc, err := cred.Client(ctx)
	if err != nil {
		return nil, err
	}
	switch cred.Scope() {
	case ScopeTagManager:
		return ag.listTagManager(ctx, hc)
	case ScopeAds:
		return ag.listAds(ctx, hc)
	case ScopeAnalytics:
		return ag.listAnalytics(ctx, hc)
	default:
		return nil, fmt.Errorf("unknown scope %q", cred.Scope())
	}
}

func (ag *Aggregator) listTagManager(ctx context.Context, hc *http.Client) ([]AccountSummary, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if ag.TagManagerEndpoint != "" {
		opts = append(opts, option.WithEndpoint(ag.TagManagerEndpoint))
	}
	svc, err := tagmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create tagmanager service: %w", err)
	}

	resp, err := svc.Accounts.List().Context(ctx).Do()
	if err != nil {
		return nil, classifyAPI("gtm.list_accounts", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []AccountSummary
	)
	for _, acc := range resp.Account {
		wg.Add(1)
		go func(acc *tagmanager.Account) {
			defer wg.Done()
			containers, err := svc.Accounts.Containers.List(acc.Path).Context(ctx).Do()
			if err != nil {
				logx.Warnf("list containers for gtm account %s: %v", acc.AccountId, err)
				return
			}
			summary := AccountSummary{ID: acc.AccountId, Name: acc.Name}
			for _, c := range containers.Container {
				summary.Resources = append(summary.Resources, ResourceSummary{
					Kind:     "container",
					ID:       c.ContainerId,
					Name:     c.Name,
					PublicID: c.PublicId,
				})
			}
			mu.Lock()
			results = append(results, summary)
			mu.Unlock()
		}(acc)
	}
	wg.Wait()
	return results, nil
}

func (ag *Aggregator) listAnalytics(ctx context.Context, hc *http.Client) ([]AccountSummary, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if ag.AnalyticsEndpoint != "" {
		opts = append(opts, option.WithEndpoint(ag.AnalyticsEndpoint))
	}
	svc, err := analyticsadmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analyticsadmin service: %w", err)
	}

	resp, err := svc.Accounts.List().Context(ctx).Do()
	if err != nil {
		return nil, classifyAPI("analytics.list_accounts", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []AccountSummary
	)
	for _, acc := range resp.Accounts {
		wg.Add(1)
		go func(acc *analyticsadmin.GoogleAnalyticsAdminV1betaAccount) {
			defer wg.Done()
			props, err := svc.Properties.List().Filter("parent:" + acc.Name).Context(ctx).Do()
			if err != nil {
				logx.Warnf("list properties for analytics account %s: %v", acc.Name, err)
				return
			}
			summary := AccountSummary{ID: acc.Name, Name: acc.DisplayName}
			for _, p := range props.Properties {
				summary.Resources = append(summary.Resources, ResourceSummary{
					Kind: "property",
					ID:   p.Name,
					Name: p.DisplayName,
				})
			}
			mu.Lock()
			results = append(results, summary)
			mu.Unlock()
		}(acc)
	}
	wg.Wait()
	return results, nil
}

func (ag *Aggregator) listAds(ctx context.Context, hc *http.Client) ([]AccountSummary, error) {
	ids, err := ag.Ads.ListAccessibleCustomers(ctx, hc)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []AccountSummary
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			detail, err := ag.Ads.CustomerDetail(ctx, hc, id)
			if err != nil {
				logx.Warnf("fetch ads customer %s detail: %v", id, err)
				return
			}
			mu.Lock()
			results = append(results, *detail)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results, nil
}
