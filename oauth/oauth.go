package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
)

// sentryEndpoint is not shipped with x/oauth2.
var sentryEndpoint = oauth2.Endpoint{
	AuthURL:  "https://sentry.io/oauth/authorize/",
	TokenURL: "https://sentry.io/oauth/token/",
}

var defaultScopes = map[model.ConnectorKind][]string{
	model.ConnectorGithub: {"repo", "read:org"},
	model.ConnectorGitlab: {"read_api"},
	model.ConnectorSlack:  {"channels:history", "channels:read", "users:read"},
	model.ConnectorSentry: {"project:read", "org:read", "event:read"},
}

// Exchanger turns authorization codes into stored credentials for the
// connectors that authenticate with OAuth. PAT-based connectors (Jira Server,
// ClickUp, Linear) bypass it entirely via PassThrough.
type Exchanger struct {
	conf *config.Config
	log  logger.Logger
}

func NewExchanger(conf *config.Config, log logger.Logger) *Exchanger {
	return &Exchanger{conf: conf, log: log.Child("oauth")}
}

// configFor assembles the oauth2 app config for a connector kind. Client
// credentials come from config (OAuth.GITHUB.clientId, ...); endpoint
// overrides exist for self-hosted installations.
func (e *Exchanger) configFor(kind model.ConnectorKind) (*oauth2.Config, error) {
	var endpoint oauth2.Endpoint
	switch kind {
	case model.ConnectorGithub:
		endpoint = endpoints.GitHub
	case model.ConnectorGitlab:
		endpoint = endpoints.GitLab
	case model.ConnectorSlack:
		endpoint = endpoints.Slack
	case model.ConnectorSentry:
		endpoint = sentryEndpoint
	default:
		return nil, fmt.Errorf("connector %s does not authenticate with oauth", kind)
	}

	prefix := fmt.Sprintf("OAuth.%s.", kind)
	if u := e.conf.GetString(prefix+"authURL", ""); u != "" {
		endpoint.AuthURL = u
	}
	if u := e.conf.GetString(prefix+"tokenURL", ""); u != "" {
		endpoint.TokenURL = u
	}

	clientID := e.conf.GetString(prefix+"clientId", "")
	if clientID == "" {
		return nil, fmt.Errorf("no oauth client configured for %s", kind)
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: e.conf.GetString(prefix+"clientSecret", ""),
		RedirectURL:  e.conf.GetString(prefix+"redirectURL", e.conf.GetString("OAuth.redirectURL", "")),
		Scopes:       defaultScopes[kind],
		Endpoint:     endpoint,
	}, nil
}

// AuthCodeURL builds the url the setup flow redirects the user to.
func (e *Exchanger) AuthCodeURL(kind model.ConnectorKind, state string) (string, error) {
	cfg, err := e.configFor(kind)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange swaps the authorization code for the credential stored on the
// connection config.
func (e *Exchanger) Exchange(ctx context.Context, kind model.ConnectorKind, code string) (model.Credential, error) {
	cfg, err := e.configFor(kind)
	if err != nil {
		return model.Credential{}, err
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return model.Credential{}, model.AuthError(fmt.Sprintf("exchanging %s authorization code", kind), err)
	}
	return model.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// Refresh obtains a fresh access token from a stored refresh token.
func (e *Exchanger) Refresh(ctx context.Context, kind model.ConnectorKind, cred model.Credential) (model.Credential, error) {
	if cred.RefreshToken == "" {
		return cred, nil
	}
	cfg, err := e.configFor(kind)
	if err != nil {
		return model.Credential{}, err
	}
	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return model.Credential{}, model.AuthError(fmt.Sprintf("refreshing %s token", kind), err)
	}
	refreshed := cred
	refreshed.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	return refreshed, nil
}

// PassThrough wraps a personal access token as a credential, for connectors
// whose setup flow collects the token directly.
func PassThrough(token, userEmail, baseURL string) model.Credential {
	return model.Credential{
		AccessToken: token,
		UserEmail:   userEmail,
		BaseURL:     baseURL,
	}
}
