package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leadlift/leadlift/internal/logx"
)

const (
	defaultAdsEndpoint = "https://googleads.googleapis.com"
	adsAPIVersion      = "v17"
)

// AdsClient is a thin client for the Google Ads REST surface. There is no
// generated Go client for it; every call carries the bearer token plus the
// static developer-token header.
type AdsClient struct {
	// Endpoint defaults to the production API host. Tests point it at a fake.
	Endpoint        string
	DeveloperToken  string
	LoginCustomerID string
}

func (a *AdsClient) endpoint() string {
	if a.Endpoint != "" {
		return strings.TrimRight(a.Endpoint, "/")
	}
	return defaultAdsEndpoint
}

type adsErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Errors []struct {
				ErrorCode map[string]string `json:"errorCode"`
				Message   string            `json:"message"`
			} `json:"errors"`
		} `json:"details"`
	} `json:"error"`
}

// isDuplicateName scans the structured failure details for a DUPLICATE_NAME
// error code, which the API reports with HTTP 400 rather than 409.
func (b *adsErrorBody) isDuplicateName() bool {
	for _, d := range b.Error.Details {
		for _, e := range d.Errors {
			for _, code := range e.ErrorCode {
				if code == "DUPLICATE_NAME" {
					return true
				}
			}
		}
	}
	return false
}

func (a *AdsClient) do(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	op := "ads." + method + " " + path

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.endpoint()+"/"+adsAPIVersion+"/"+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", a.DeveloperToken)
	if a.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", a.LoginCustomerID)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return E(KindTransient, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return E(KindTransient, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr adsErrorBody
		_ = json.Unmarshal(jsonBody(raw), &apiErr)
		switch {
		case apiErr.isDuplicateName():
			return Errf(KindConflict, op, "duplicate name: %s", apiErr.Error.Message)
		case resp.StatusCode == http.StatusUnauthorized:
			return Errf(KindCredentialInvalid, op, "unauthorized: %s", raw)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return Errf(KindTransient, op, "status %d: %s", resp.StatusCode, raw)
		default:
			// Preserve the provider payload verbatim so the caller can
			// correct input or request elevated access.
			return Errf(KindRejected, op, "status %d: %s", resp.StatusCode, raw)
		}
	}

	if out != nil {
		if err := json.Unmarshal(jsonBody(raw), out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// jsonBody normalizes an empty response to a JSON null so Unmarshal is a
// no-op instead of a syntax error.
func jsonBody(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null")
	}
	return raw
}

// ListAccessibleCustomers returns the customer ids reachable by the
// credential.
func (a *AdsClient) ListAccessibleCustomers(ctx context.Context, hc *http.Client) ([]string, error) {
	var resp struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := a.do(ctx, hc, http.MethodGet, "customers:listAccessibleCustomers", nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.ResourceNames))
	for _, rn := range resp.ResourceNames {
		ids = append(ids, strings.TrimPrefix(rn, "customers/"))
	}
	return ids, nil
}

type adsRow struct {
	Customer *struct {
		ID              json.Number `json:"id"`
		DescriptiveName string      `json:"descriptiveName"`
	} `json:"customer"`
	Label *struct {
		ResourceName string `json:"resourceName"`
		Name         string `json:"name"`
	} `json:"label"`
	ConversionAction *struct {
		ResourceName string `json:"resourceName"`
		ID           json.Number `json:"id"`
		Name         string      `json:"name"`
		TagSnippets  []struct {
			Type          string `json:"type"`
			PageFormat    string `json:"pageFormat"`
			GlobalSiteTag string `json:"globalSiteTag"`
			EventSnippet  string `json:"eventSnippet"`
		} `json:"tagSnippets"`
	} `json:"conversionAction"`
}

// search runs a GAQL query through searchStream and flattens the chunked
// response.
func (a *AdsClient) search(ctx context.Context, hc *http.Client, customerID, query string) ([]adsRow, error) {
	var chunks []struct {
		Results []adsRow `json:"results"`
	}
	body := map[string]string{"query": query}
	path := "customers/" + customerID + "/googleAds:searchStream"
	if err := a.do(ctx, hc, http.MethodPost, path, body, &chunks); err != nil {
		return nil, err
	}
	var rows []adsRow
	for _, c := range chunks {
		rows = append(rows, c.Results...)
	}
	return rows, nil
}

func gaqlQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}

// CustomerDetail fetches a customer's descriptive name.
func (a *AdsClient) CustomerDetail(ctx context.Context, hc *http.Client, customerID string) (*AccountSummary, error) {
	rows, err := a.search(ctx, hc, customerID,
		"SELECT customer.id, customer.descriptive_name FROM customer")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Customer == nil {
		return nil, Errf(KindRejected, "ads.customer_detail", "customer %s returned no detail row", customerID)
	}
	return &AccountSummary{ID: customerID, Name: rows[0].Customer.DescriptiveName}, nil
}

// FindLabel looks up a label by exact name, returning "" when absent.
func (a *AdsClient) FindLabel(ctx context.Context, hc *http.Client, customerID, name string) (string, error) {
	rows, err := a.search(ctx, hc, customerID,
		"SELECT label.resource_name, label.name FROM label WHERE label.name = "+gaqlQuote(name))
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if r.Label != nil && r.Label.Name == name {
			return r.Label.ResourceName, nil
		}
	}
	return "", nil
}

// CreateLabel creates a label and returns its resource name.
func (a *AdsClient) CreateLabel(ctx context.Context, hc *http.Client, customerID, name string) (string, error) {
	var resp struct {
		Results []struct {
			ResourceName string `json:"resourceName"`
		} `json:"results"`
	}
	body := map[string]any{
		"operations": []map[string]any{
			{"create": map[string]any{"name": name}},
		},
	}
	if err := a.do(ctx, hc, http.MethodPost, "customers/"+customerID+"/labels:mutate", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", Errf(KindRejected, "ads.create_label", "mutate returned no result")
	}
	return resp.Results[0].ResourceName, nil
}

// Conversion is the outcome of conversion-action provisioning. Label is
// empty while the tag snippet has not propagated yet.
type Conversion struct {
	ResourceName string `json:"resource_name"`
	Label        string `json:"label"`
}

// CreateConversionAction creates a webpage conversion action and returns its
// resource name. A duplicate-name failure surfaces as KindConflict.
func (a *AdsClient) CreateConversionAction(ctx context.Context, hc *http.Client, customerID, name string) (string, error) {
	var resp struct {
		Results []struct {
			ResourceName string `json:"resourceName"`
		} `json:"results"`
	}
	body := map[string]any{
		"operations": []map[string]any{
			{"create": map[string]any{
				"name":         name,
				"type":         "WEBPAGE",
				"category":     "SUBMIT_LEAD_FORM",
				"status":       "ENABLED",
				"countingType": "ONE_PER_CLICK",
			}},
		},
	}
	if err := a.do(ctx, hc, http.MethodPost, "customers/"+customerID+"/conversionActions:mutate", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", Errf(KindRejected, "ads.create_conversion", "mutate returned no result")
	}
	return resp.Results[0].ResourceName, nil
}

// conversionLabelRe extracts the label from an event snippet's send_to
// parameter ("AW-<id>/<label>").
var conversionLabelRe = regexp.MustCompile(`AW-[0-9]+/([A-Za-z0-9_-]+)`)

// FindConversionAction looks up a conversion action by exact name. The
// returned Conversion's Label is empty when the tag snippet has not
// propagated yet. Returns nil when no action with that name exists.
func (a *AdsClient) FindConversionAction(ctx context.Context, hc *http.Client, customerID, name string) (*Conversion, error) {
	rows, err := a.search(ctx, hc, customerID,
		"SELECT conversion_action.resource_name, conversion_action.name, conversion_action.tag_snippets "+
			"FROM conversion_action WHERE conversion_action.name = "+gaqlQuote(name))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		ca := r.ConversionAction
		if ca == nil || ca.Name != name {
			continue
		}
		conv := &Conversion{ResourceName: ca.ResourceName}
		for _, snip := range ca.TagSnippets {
			if m := conversionLabelRe.FindStringSubmatch(snip.EventSnippet); m != nil {
				conv.Label = m[1]
				break
			}
		}
		return conv, nil
	}
	return nil, nil
}

// Registrar provisions Ads conversion actions, tolerating the propagation
// delay between creation and tag-snippet availability.
type Registrar struct {
	Ads *AdsClient

	// LabelAttempts and LabelDelay bound the propagation retry.
	// Zero values mean 3 attempts, 2s apart.
	LabelAttempts int
	LabelDelay    time.Duration
}

func (r *Registrar) attempts() int {
	if r.LabelAttempts > 0 {
		return r.LabelAttempts
	}
	return 3
}

func (r *Registrar) delay() time.Duration {
	if r.LabelDelay > 0 {
		return r.LabelDelay
	}
	return 2 * time.Second
}

// EnsureConversionAction creates (or adopts) the conversion action with the
// given name and resolves its conversion label. A duplicate-name failure is
// not an error: the existing action is looked up and returned. When the
// label has not propagated within the retry bound, the action is returned
// together with a KindPropagationPending error so the caller can schedule a
// deferred check.
func (r *Registrar) EnsureConversionAction(ctx context.Context, cred *Live, customerID, name string) (*Conversion, error) {
	hc, err := cred.Client(ctx)
	if err != nil {
		return nil, err
	}

	resourceName, err := r.Ads.CreateConversionAction(ctx, hc, customerID, name)
	if IsKind(err, KindConflict) {
		logx.Debugf("conversion action %q already exists in customer %s, adopting it", name, customerID)
		existing, lookupErr := r.Ads.FindConversionAction(ctx, hc, customerID, name)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, Errf(KindConflict, "ads.ensure_conversion",
				"duplicate name reported for %q but lookup found no match", name)
		}
		if existing.Label != "" {
			return existing, nil
		}
		resourceName = existing.ResourceName
	} else if err != nil {
		return nil, err
	}

	// The label lives in a generated tag snippet that lags creation by a
	// short propagation window.
	for attempt := 1; ; attempt++ {
		found, err := r.Ads.FindConversionAction(ctx, hc, customerID, name)
		if err == nil && found != nil && found.Label != "" {
			return found, nil
		}
		if err != nil {
			logx.Warnf("conversion label fetch attempt %d for %q failed: %v", attempt, name, err)
		}
		if attempt >= r.attempts() {
			break
		}
		select {
		case <-ctx.Done():
			return nil, E(KindTransient, "ads.ensure_conversion", ctx.Err())
		case <-time.After(r.delay()):
		}
	}

	return &Conversion{ResourceName: resourceName},
		Errf(KindPropagationPending, "ads.ensure_conversion",
			"conversion action %q created but label not yet available", name)
}
