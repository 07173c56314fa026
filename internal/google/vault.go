package google

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/leadlift/leadlift/internal/crypto"
	"github.com/leadlift/leadlift/internal/logx"
	"github.com/leadlift/leadlift/internal/server/db"
)

const oauthStateMaxAge = 10 * time.Minute

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// VaultOptions configures the credential vault.
type VaultOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint defaults to Google's. Tests point it at a fake.
	Endpoint oauth2.Endpoint
	// RevokeURL defaults to Google's revocation endpoint.
	RevokeURL string
	// UserinfoEndpoint overrides the userinfo API base URL in tests.
	UserinfoEndpoint string
	// Protect, when set, registers token material with the log masker so
	// it never reaches logs verbatim.
	Protect func(values ...string)
}

// Vault persists and serves OAuth grants keyed by
// (user, tenant, provider, scope). Token material is encrypted with the
// master key before it reaches the store.
type Vault struct {
	store     *db.Store
	masterKey [32]byte
	opts      VaultOptions
}

// NewVault creates a credential vault.
func NewVault(store *db.Store, masterKey [32]byte, opts VaultOptions) *Vault {
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = googleoauth.Endpoint
	}
	if opts.RevokeURL == "" {
		opts.RevokeURL = defaultRevokeURL
	}
	return &Vault{store: store, masterKey: masterKey, opts: opts}
}

func (v *Vault) conf() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     v.opts.ClientID,
		ClientSecret: v.opts.ClientSecret,
		Endpoint:     v.opts.Endpoint,
		RedirectURL:  v.opts.RedirectURL,
		Scopes:       ConsentScopes(),
	}
}

func (v *Vault) protect(values ...string) {
	if v.opts.Protect != nil {
		v.opts.Protect(values...)
	}
}

// makeOAuthState produces an HMAC-signed state: "identity_b64:timestamp_hex:hmac_hex"
func makeOAuthState(userID, tenantID string, masterKey [32]byte) string {
	id := base64.RawURLEncoding.EncodeToString([]byte(userID + "|" + tenantID))
	ts := strconv.FormatInt(time.Now().Unix(), 16)
	mac := hmac.New(sha256.New, masterKey[:])
	mac.Write([]byte(id + ":" + ts))
	sig := hex.EncodeToString(mac.Sum(nil))
	return id + ":" + ts + ":" + sig
}

// verifyOAuthState verifies and parses the HMAC-signed state, returning the
// (userID, tenantID) pair it was issued for.
func verifyOAuthState(state string, masterKey [32]byte) (string, string, error) {
	parts := strings.SplitN(state, ":", 3)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("malformed state")
	}
	idB64, tsHex, sigHex := parts[0], parts[1], parts[2]

	// Verify HMAC
	mac := hmac.New(sha256.New, masterKey[:])
	mac.Write([]byte(idB64 + ":" + tsHex))
	expectedSig := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sigHex), []byte(expectedSig)) {
		return "", "", fmt.Errorf("invalid state signature")
	}

	// Verify timestamp freshness
	tsUnix, err := strconv.ParseInt(tsHex, 16, 64)
	if err != nil {
		return "", "", fmt.Errorf("invalid timestamp in state")
	}
	if time.Since(time.Unix(tsUnix, 0)) > oauthStateMaxAge {
		return "", "", fmt.Errorf("state expired")
	}

	raw, err := base64.RawURLEncoding.DecodeString(idB64)
	if err != nil {
		return "", "", fmt.Errorf("invalid identity in state")
	}
	userID, tenantID, ok := strings.Cut(string(raw), "|")
	if !ok || userID == "" || tenantID == "" {
		return "", "", fmt.Errorf("invalid identity in state")
	}
	return userID, tenantID, nil
}

// AuthURL returns the consent redirect URL for the given caller identity.
// offline access + forced approval so a refresh token is always issued.
func (v *Vault) AuthURL(userID, tenantID string) string {
	state := makeOAuthState(userID, tenantID, v.masterKey)
	return v.conf().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// VerifyState validates a callback state parameter.
func (v *Vault) VerifyState(state string) (userID, tenantID string, err error) {
	return verifyOAuthState(state, v.masterKey)
}

// Exchange trades an authorization code for a token bundle and resolves the
// grant's Google account email.
func (v *Vault) Exchange(ctx context.Context, code string) (*oauth2.Token, string, error) {
	conf := v.conf()
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("token exchange failed: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, "", fmt.Errorf("no refresh_token returned (revoke the app's access and retry)")
	}

	opts := []option.ClientOption{option.WithHTTPClient(conf.Client(ctx, token))}
	if v.opts.UserinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(v.opts.UserinfoEndpoint))
	}
	oauth2Service, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("create oauth2 service: %w", err)
	}
	userinfo, err := oauth2Service.Userinfo.Get().Do()
	if err != nil {
		return nil, "", fmt.Errorf("get user info: %w", err)
	}
	if userinfo.Email == "" {
		return nil, "", fmt.Errorf("no email in user info")
	}
	return token, userinfo.Email, nil
}

// StoreGrant fans one token bundle out to a credential row per managed
// scope. The provider issues one grant covering all of them; the per-scope
// rows match the lookup key used everywhere else.
func (v *Vault) StoreGrant(userID, tenantID string, token *oauth2.Token) error {
	accessEnc, err := crypto.EncryptAtRest(v.masterKey, []byte(token.AccessToken))
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshEnc []byte
	if token.RefreshToken != "" {
		refreshEnc, err = crypto.EncryptAtRest(v.masterKey, []byte(token.RefreshToken))
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	var expiry *time.Time
	if !token.Expiry.IsZero() {
		e := token.Expiry
		expiry = &e
	}

	for _, scope := range AllScopes() {
		cred := &db.Credential{
			UserID:           userID,
			TenantID:         tenantID,
			Provider:         Provider,
			Scope:            string(scope),
			AccessEncrypted:  accessEnc,
			RefreshEncrypted: refreshEnc,
			Expiry:           expiry,
		}
		if err := v.store.UpsertCredential(cred); err != nil {
			return fmt.Errorf("store %s credential: %w", scope, err)
		}
	}
	v.protect(token.AccessToken, token.RefreshToken)
	return nil
}

// Live loads the stored credential for a scope. A missing credential is the
// normal "not connected" state, surfaced as KindNotConnected — distinct
// from a revoked grant. No network I/O happens here; the refresh-and-persist
// step runs when a caller asks for a client.
func (v *Vault) Live(userID, tenantID string, scope Scope) (*Live, error) {
	row, err := v.store.GetCredential(userID, tenantID, Provider, string(scope))
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if row == nil {
		return nil, Errf(KindNotConnected, "vault.live", "no %s credential for this user and tenant", scope)
	}

	access, err := crypto.DecryptAtRest(v.masterKey, row.AccessEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	tok := &oauth2.Token{AccessToken: string(access), TokenType: "Bearer"}
	if len(row.RefreshEncrypted) > 0 {
		refresh, err := crypto.DecryptAtRest(v.masterKey, row.RefreshEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		tok.RefreshToken = string(refresh)
	}
	if row.Expiry != nil {
		tok.Expiry = *row.Expiry
	}

	return &Live{v: v, userID: userID, tenantID: tenantID, scope: scope, tok: tok}, nil
}

// Live is a ready-to-use credential for one scope. It is the transport
// wrapper that performs the explicit refresh-and-persist step before each
// remote call.
type Live struct {
	v        *Vault
	userID   string
	tenantID string
	scope    Scope
	tok      *oauth2.Token
}

// Scope returns the capability domain this credential covers.
func (l *Live) Scope() Scope { return l.scope }

// Token returns a non-expired access token, refreshing and persisting first
// when the stored one is expired or has unknown expiry. Because every call
// path goes through here, a 401 observed afterwards can only mean the grant
// itself is dead.
func (l *Live) Token(ctx context.Context) (*oauth2.Token, error) {
	if l.tok.Valid() && !l.tok.Expiry.IsZero() {
		return l.tok, nil
	}
	if l.tok.RefreshToken == "" {
		if l.tok.Valid() {
			return l.tok, nil
		}
		return nil, Errf(KindCredentialInvalid, "vault.refresh", "access token expired and no refresh token held")
	}

	src := l.v.conf().TokenSource(ctx, &oauth2.Token{RefreshToken: l.tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, classifyRefresh(err)
	}

	if err := l.persistRotation(fresh); err != nil {
		return nil, err
	}
	return l.tok, nil
}

// persistRotation stores a rotated token. The refresh token is written only
// when the provider actually reissued one — the store keeps the prior value
// otherwise.
func (l *Live) persistRotation(fresh *oauth2.Token) error {
	accessEnc, err := crypto.EncryptAtRest(l.v.masterKey, []byte(fresh.AccessToken))
	if err != nil {
		return fmt.Errorf("encrypt rotated access token: %w", err)
	}
	var refreshEnc []byte
	if fresh.RefreshToken != "" && fresh.RefreshToken != l.tok.RefreshToken {
		refreshEnc, err = crypto.EncryptAtRest(l.v.masterKey, []byte(fresh.RefreshToken))
		if err != nil {
			return fmt.Errorf("encrypt rotated refresh token: %w", err)
		}
	}
	var expiry *time.Time
	if !fresh.Expiry.IsZero() {
		e := fresh.Expiry
		expiry = &e
	}

	if err := l.v.store.UpsertCredential(&db.Credential{
		UserID:           l.userID,
		TenantID:         l.tenantID,
		Provider:         Provider,
		Scope:            string(l.scope),
		AccessEncrypted:  accessEnc,
		RefreshEncrypted: refreshEnc,
		Expiry:           expiry,
	}); err != nil {
		return fmt.Errorf("persist rotated token: %w", err)
	}

	l.v.protect(fresh.AccessToken, fresh.RefreshToken)
	rotated := &oauth2.Token{
		AccessToken:  fresh.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: l.tok.RefreshToken,
		Expiry:       fresh.Expiry,
	}
	if fresh.RefreshToken != "" {
		rotated.RefreshToken = fresh.RefreshToken
	}
	l.tok = rotated
	logx.Debugf("rotated %s token for user=%s tenant=%s", l.scope, l.userID, l.tenantID)
	return nil
}

// Client returns an HTTP client carrying a fresh bearer token. The token
// source is static — the credential is an immutable value per call, never a
// shared mutable client.
func (l *Live) Client(ctx context.Context) (*http.Client, error) {
	tok, err := l.Token(ctx)
	if err != nil {
		return nil, err
	}
	static := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok.AccessToken, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, static), nil
}

func classifyRefresh(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return E(KindTransient, "vault.refresh", err)
		}
		// invalid_grant and friends: the grant is revoked or expired
		return E(KindCredentialInvalid, "vault.refresh", err)
	}
	return E(KindTransient, "vault.refresh", err)
}

// Revoke best-effort revokes every grant the user holds with the provider,
// then deletes all credential rows unconditionally. Remote revocation
// failures are logged, never fatal — local cleanup must not be blocked.
func (v *Vault) Revoke(ctx context.Context, userID string) error {
	creds, err := v.store.ListCredentialsByUser(userID)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	seen := make(map[string]struct{})
	for _, c := range creds {
		// Prefer the refresh token: revoking it invalidates the whole grant.
		blob := c.RefreshEncrypted
		if len(blob) == 0 {
			blob = c.AccessEncrypted
		}
		raw, err := crypto.DecryptAtRest(v.masterKey, blob)
		if err != nil {
			logx.Warnf("revoke: decrypt token for user=%s scope=%s: %v", userID, c.Scope, err)
			continue
		}
		token := string(raw)
		if _, dup := seen[token]; dup {
			// One grant fans out to several scope rows; revoke it once.
			continue
		}
		seen[token] = struct{}{}

		if err := v.revokeRemote(ctx, token); err != nil {
			logx.Warnf("revoke: provider call failed for user=%s scope=%s: %v", userID, c.Scope, err)
		}
	}

	if err := v.store.DeleteCredentialsByUser(userID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	logx.Infof("revoked all google credentials for user=%s", userID)
	return nil
}

func (v *Vault) revokeRemote(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.opts.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke endpoint returned %d", resp.StatusCode)
	}
	return nil
}
