package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// doJSON performs one API request and decodes the response body into out.
// Non-2xx responses become errors carrying the server's error message.
func doJSON(method, rawURL string, headers map[string]string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, rawURL, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Kind != "" {
				return fmt.Errorf("server: %s (%s)", apiErr.Error, apiErr.Kind)
			}
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func adminHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func identityHeaders(userID, tenantID string) map[string]string {
	return map[string]string{"X-User-ID": userID, "X-Tenant-ID": tenantID}
}

func listTenants(serverURL, token string) error {
	var resp struct {
		Tenants []struct {
			TenantID        string `json:"tenant_id"`
			Name            string `json:"name"`
			GAProperty      string `json:"ga_property"`
			GAMeasurementID string `json:"ga_measurement_id"`
		} `json:"tenants"`
	}
	if err := doJSON(http.MethodGet, serverURL+"/v1/tenants", adminHeaders(token), nil, &resp); err != nil {
		return err
	}
	if len(resp.Tenants) == 0 {
		fmt.Println("no tenants")
		return nil
	}
	for _, t := range resp.Tenants {
		ga := "-"
		if t.GAMeasurementID != "" {
			ga = t.GAMeasurementID
		}
		fmt.Printf("%s\t%s\tga=%s\n", t.TenantID, t.Name, ga)
	}
	return nil
}

func createTenant(serverURL, token, name string) error {
	var resp struct {
		TenantID string `json:"tenant_id"`
	}
	body := map[string]string{"name": name}
	if err := doJSON(http.MethodPost, serverURL+"/v1/tenants", adminHeaders(token), body, &resp); err != nil {
		return err
	}
	fmt.Printf("created tenant %s\n", resp.TenantID)
	return nil
}

func showStatus(serverURL, userID, tenantID string) error {
	var resp struct {
		ConnectedScopes []string `json:"connected_scopes"`
	}
	if err := doJSON(http.MethodGet, serverURL+"/v1/google/status", identityHeaders(userID, tenantID), nil, &resp); err != nil {
		return err
	}
	if len(resp.ConnectedScopes) == 0 {
		fmt.Printf("no Google scopes connected; visit %s/v1/google/connect to start consent\n", serverURL)
		return nil
	}
	for _, s := range resp.ConnectedScopes {
		fmt.Printf("connected: %s\n", s)
	}
	return nil
}

func listAccounts(serverURL, userID, tenantID, scope string) error {
	var resp struct {
		Accounts []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Resources []struct {
				Kind     string `json:"kind"`
				ID       string `json:"id"`
				Name     string `json:"name"`
				PublicID string `json:"public_id"`
			} `json:"resources"`
		} `json:"accounts"`
	}
	u := serverURL + "/v1/google/accounts?scope=" + url.QueryEscape(scope)
	if err := doJSON(http.MethodGet, u, identityHeaders(userID, tenantID), nil, &resp); err != nil {
		return err
	}
	if len(resp.Accounts) == 0 {
		fmt.Println("no accounts")
		return nil
	}
	for _, a := range resp.Accounts {
		fmt.Printf("%s\t%s\n", a.ID, a.Name)
		for _, r := range a.Resources {
			if r.PublicID != "" {
				fmt.Printf("  %s\t%s\t%s\t(%s)\n", r.Kind, r.ID, r.Name, r.PublicID)
				continue
			}
			fmt.Printf("  %s\t%s\t%s\n", r.Kind, r.ID, r.Name)
		}
	}
	return nil
}

func listTrackings(serverURL, userID, tenantID string) error {
	var resp struct {
		Trackings []struct {
			TrackingID      string `json:"tracking_id"`
			Name            string `json:"name"`
			Status          string `json:"status"`
			ConversionLabel string `json:"conversion_label"`
			LastError       string `json:"last_error"`
		} `json:"trackings"`
	}
	if err := doJSON(http.MethodGet, serverURL+"/v1/trackings", identityHeaders(userID, tenantID), nil, &resp); err != nil {
		return err
	}
	if len(resp.Trackings) == 0 {
		fmt.Println("no trackings")
		return nil
	}
	for _, t := range resp.Trackings {
		line := fmt.Sprintf("%s\t%s\t%s", t.TrackingID, t.Name, t.Status)
		if t.ConversionLabel != "" {
			line += "\tlabel=" + t.ConversionLabel
		}
		fmt.Println(line)
		if t.LastError != "" {
			fmt.Fprintf(os.Stderr, "  last error: %s\n", t.LastError)
		}
	}
	return nil
}

func provisionTracking(serverURL, userID, tenantID, trackingID string) error {
	var resp struct {
		Status          string `json:"status"`
		ConversionLabel string `json:"conversion_label"`
	}
	u := serverURL + "/v1/trackings/" + url.PathEscape(trackingID) + "/provision"
	if err := doJSON(http.MethodPost, u, identityHeaders(userID, tenantID), nil, &resp); err != nil {
		return err
	}
	switch resp.Status {
	case "label_pending":
		fmt.Println("provisioned; conversion label still propagating, re-run later to pick it up")
	case "active":
		if resp.ConversionLabel != "" {
			fmt.Printf("provisioned; conversion label %s\n", resp.ConversionLabel)
		} else {
			fmt.Println("provisioned")
		}
	default:
		fmt.Printf("provisioning stopped at state %q\n", resp.Status)
	}
	return nil
}
