package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simonsobs/soauth/internal/client"
	"github.com/simonsobs/soauth/internal/core"
	"github.com/simonsobs/soauth/internal/keys"
	"github.com/simonsobs/soauth/internal/models"
	"github.com/simonsobs/soauth/internal/version"

	retry "github.com/appleboy/go-httpretry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	providerGitHub  = "github"
	githubMediaType = "application/vnd.github+json"

	githubRetryDelay    = 500 * time.Millisecond
	githubMaxRetryDelay = 5 * time.Second
)

// GitHubConfig configures the GitHub provider.
type GitHubConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	Organizations []string

	// APIURL is the REST API root, https://api.github.com unless overridden
	APIURL string

	// Endpoint overrides the OAuth endpoints. The zero value means github.com.
	Endpoint oauth2.Endpoint

	// TokenPassword seals the user's GitHub token at rest
	TokenPassword   string
	TokenWorkFactor int

	Timeout    time.Duration
	MaxRetries int

	// HTTPClient replaces the default provider client when set
	HTTPClient *http.Client

	// Metrics records outbound API latency when set
	Metrics core.Recorder
}

var _ core.IdentityProvider = (*GitHubProvider)(nil)

// GitHubProvider authenticates users with GitHub OAuth and mirrors their
// membership in configured organizations.
type GitHubProvider struct {
	oauth         *oauth2.Config
	apiURL        string
	organizations []string
	users         UserDirectory
	httpClient    *http.Client
	client        *retry.Client
	password      string
	workFactor    int
	timeout       time.Duration
	metrics       core.Recorder
}

// NewGitHubProvider creates a GitHub provider.
func NewGitHubProvider(cfg GitHubConfig, users UserDirectory) (*GitHubProvider, error) {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = github.Endpoint
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = client.CreateProviderHTTPClient(timeout)
		if err != nil {
			return nil, err
		}
	}
	retryClient, err := client.CreateRetryClient(
		httpClient,
		cfg.MaxRetries,
		githubRetryDelay,
		githubMaxRetryDelay,
	)
	if err != nil {
		return nil, err
	}

	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		apiURL:        apiURL,
		organizations: cfg.Organizations,
		users:         users,
		httpClient:    httpClient,
		client:        retryClient,
		password:      cfg.TokenPassword,
		workFactor:    cfg.TokenWorkFactor,
		timeout:       timeout,
		metrics:       cfg.Metrics,
	}, nil
}

func (p *GitHubProvider) Name() string {
	return providerGitHub
}

// Redirect returns the GitHub authorization URL with the request id as state.
func (p *GitHubProvider) Redirect(ctx context.Context, req *models.LoginRequest) (string, error) {
	return p.oauth.AuthCodeURL(req.ID), nil
}

// Login exchanges the callback code, stores the GitHub profile and syncs
// organization membership.
func (p *GitHubProvider) Login(ctx context.Context, code string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tok, err := p.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	profile, err := p.fetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	memberships, err := p.memberships(ctx, tok.AccessToken, profile.Login)
	if err != nil {
		return nil, err
	}

	sealed, err := keys.Seal(tok.AccessToken, p.password, p.workFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to seal provider token: %w", err)
	}

	user, err := p.users.UpsertExternalUser(ctx, &models.User{
		Username:    profile.Login,
		FullName:    profile.Name,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
		Provider:    providerGitHub,
		ExternalID:  strconv.FormatInt(profile.ID, 10),
		GitHubToken: sealed,
	})
	if err != nil {
		return nil, err
	}

	if err := p.users.SyncOrganizations(ctx, user, providerGitHub, memberships); err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh re-checks organization membership. Users from other providers pass
// through unchanged. When the stored token cannot be used, only public
// membership is visible.
func (p *GitHubProvider) Refresh(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Provider != providerGitHub || len(p.organizations) == 0 {
		return user, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var accessToken string
	if user.GitHubToken != "" {
		plain, err := keys.Unseal(user.GitHubToken, p.password)
		if err != nil {
			log.Printf("[GitHub] Cannot unseal token of %s, using public membership: %v",
				user.Username, err)
		} else {
			accessToken = plain
		}
	}

	memberships, err := p.memberships(ctx, accessToken, user.Username)
	if err != nil {
		return nil, err
	}
	if err := p.users.SyncOrganizations(ctx, user, providerGitHub, memberships); err != nil {
		return nil, err
	}
	return user, nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// fetchProfile loads the authenticated user, falling back to the emails
// endpoint when the profile email is private.
func (p *GitHubProvider) fetchProfile(ctx context.Context, accessToken string) (*githubUser, error) {
	var user githubUser
	if err := p.getJSON(ctx, accessToken, "/user", &user); err != nil {
		return nil, err
	}

	if user.Email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, accessToken, "/user/emails", &emails); err != nil {
			return nil, err
		}
		user.Email = pickEmail(emails)
	}
	if user.Email == "" {
		return nil, ErrMissingEmail
	}
	if user.Name == "" {
		user.Name = user.Login
	}
	return &user, nil
}

// pickEmail prefers the primary verified address, then any verified one.
func pickEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

// memberships returns the configured organizations username belongs to.
// With a token, private membership is visible too.
func (p *GitHubProvider) memberships(
	ctx context.Context,
	accessToken, username string,
) ([]string, error) {
	var orgs []string
	for _, org := range p.organizations {
		path := "/orgs/" + url.PathEscape(org) + "/public_members/" + url.PathEscape(username)
		if accessToken != "" {
			path = "/orgs/" + url.PathEscape(org) + "/members/" + url.PathEscape(username)
		}

		resp, err := p.get(ctx, accessToken, path)
		if err != nil {
			return nil, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNoContent:
			orgs = append(orgs, org)
		case http.StatusNotFound, http.StatusFound:
		case http.StatusUnauthorized:
			return nil, ErrProviderTokenRevoked
		default:
			return nil, fmt.Errorf("%w: %s returned %s", ErrProviderAPI, path, resp.Status)
		}
	}
	return orgs, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, accessToken, path string, dest any) error {
	resp, err := p.get(ctx, accessToken, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrProviderTokenRevoked
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s returned %s - %s", ErrProviderAPI, path, resp.Status, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", ErrProviderAPI, path, err)
	}
	return nil
}

func (p *GitHubProvider) get(ctx context.Context, accessToken, path string) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)

	start := time.Now()
	if accessToken == "" {
		resp, err = p.client.Get(
			ctx,
			p.apiURL+path,
			retry.WithHeader("Accept", githubMediaType),
			retry.WithHeader("User-Agent", version.UserAgent()),
		)
	} else {
		resp, err = p.client.Get(
			ctx,
			p.apiURL+path,
			retry.WithHeader("Accept", githubMediaType),
			retry.WithHeader("User-Agent", version.UserAgent()),
			retry.WithHeader("Authorization", "Bearer "+accessToken),
		)
	}
	if p.metrics != nil {
		p.metrics.RecordExternalAPICall(providerGitHub, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderAPI, err)
	}
	return resp, nil
}
