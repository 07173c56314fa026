package google

import (
	"context"
	"fmt"
	"net/http"

	analyticsadmin "google.golang.org/api/analyticsadmin/v1beta"
	"google.golang.org/api/option"

	"github.com/leadlift/leadlift/internal/server/db"
)

// Analytics provisions the per-tenant GA4 property and web data stream,
// both resolved through the find-or-create locator so repeated provisioning
// never duplicates a billable property.
type Analytics struct {
	store *db.Store

	// Endpoint overrides the Analytics Admin API base URL in tests.
	Endpoint string
}

// NewAnalytics creates a GA4 provisioner backed by the given store.
func NewAnalytics(store *db.Store) *Analytics {
	return &Analytics{store: store}
}

func (a *Analytics) service(ctx context.Context, hc *http.Client) (*analyticsadmin.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if a.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.Endpoint))
	}
	svc, err := analyticsadmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analyticsadmin service: %w", err)
	}
	return svc, nil
}

// EnsureProperty resolves the tenant's GA4 property under the given
// account, creating it when neither the local reference nor a remote match
// exists. Returns the property resource name ("properties/123").
func (a *Analytics) EnsureProperty(ctx context.Context, cred *Live, tenant *db.Tenant, accountID string) (string, error) {
	hc, err := cred.Client(ctx)
	if err != nil {
		return "", err
	}
	svc, err := a.service(ctx, hc)
	if err != nil {
		return "", err
	}
	account := "accounts/" + accountID
	displayName := ResourceName(tenant.Name)

	loc := Locator{
		Lookup: func() (string, error) { return tenant.GAProperty, nil },
		Search: func(ctx context.Context) (string, error) {
			resp, err := svc.Properties.List().Filter("parent:" + account).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("analytics.list_properties", err)
			}
			for _, p := range resp.Properties {
				if p.DisplayName == displayName {
					return p.Name, nil
				}
			}
			return "", nil
		},
		Create: func(ctx context.Context) (string, error) {
			p, err := svc.Properties.Create(&analyticsadmin.GoogleAnalyticsAdminV1betaProperty{
				Parent:       account,
				DisplayName:  displayName,
				TimeZone:     "Etc/GMT",
				CurrencyCode: "USD",
			}).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("analytics.create_property", err)
			}
			return p.Name, nil
		},
		Persist: func(id string) error {
			if err := a.store.SetTenantProperty(tenant.TenantID, account, id); err != nil {
				return err
			}
			tenant.GAAccount = account
			tenant.GAProperty = id
			return nil
		},
	}
	return loc.Resolve(ctx)
}

// EnsureWebStream resolves the tenant's web data stream on its property,
// creating one for the given site URL when absent. Returns the stream
// resource name and its measurement id.
func (a *Analytics) EnsureWebStream(ctx context.Context, cred *Live, tenant *db.Tenant, siteURL string) (string, string, error) {
	if tenant.GAProperty == "" {
		return "", "", fmt.Errorf("tenant %s has no GA4 property reference", tenant.TenantID)
	}
	hc, err := cred.Client(ctx)
	if err != nil {
		return "", "", err
	}
	svc, err := a.service(ctx, hc)
	if err != nil {
		return "", "", err
	}

	// The measurement id rides along with whichever lookup resolves the
	// stream, so Persist can record both.
	var measurementID string

	loc := Locator{
		Lookup: func() (string, error) {
			measurementID = tenant.GAMeasurementID
			return tenant.GADataStream, nil
		},
		Search: func(ctx context.Context) (string, error) {
			resp, err := svc.Properties.DataStreams.List(tenant.GAProperty).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("analytics.list_streams", err)
			}
			for _, s := range resp.DataStreams {
				if s.Type == "WEB_DATA_STREAM" && s.WebStreamData != nil && s.WebStreamData.DefaultUri == siteURL {
					measurementID = s.WebStreamData.MeasurementId
					return s.Name, nil
				}
			}
			return "", nil
		},
		Create: func(ctx context.Context) (string, error) {
			s, err := svc.Properties.DataStreams.Create(tenant.GAProperty, &analyticsadmin.GoogleAnalyticsAdminV1betaDataStream{
				DisplayName: ResourceName(tenant.Name),
				Type:        "WEB_DATA_STREAM",
				WebStreamData: &analyticsadmin.GoogleAnalyticsAdminV1betaDataStreamWebStreamData{
					DefaultUri: siteURL,
				},
			}).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("analytics.create_stream", err)
			}
			if s.WebStreamData != nil {
				measurementID = s.WebStreamData.MeasurementId
			}
			return s.Name, nil
		},
		Persist: func(id string) error {
			if err := a.store.SetTenantDataStream(tenant.TenantID, id, measurementID); err != nil {
				return err
			}
			tenant.GADataStream = id
			tenant.GAMeasurementID = measurementID
			return nil
		},
	}
	stream, err := loc.Resolve(ctx)
	if err != nil {
		return "", "", err
	}
	return stream, measurementID, nil
}
