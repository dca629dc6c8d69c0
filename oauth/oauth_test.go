package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
)

func TestExchangeAgainstTokenEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.FormValue("grant_type"))
		require.Equal(t, "code-123", r.FormValue("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "at-1", "refresh_token": "rt-1", "token_type": "bearer"}`))
	}))
	t.Cleanup(srv.Close)

	conf := config.New()
	conf.Set("OAuth.GITHUB.clientId", "client-1")
	conf.Set("OAuth.GITHUB.clientSecret", "secret-1")
	conf.Set("OAuth.GITHUB.tokenURL", srv.URL+"/token")

	e := NewExchanger(conf, logger.NOP)
	cred, err := e.Exchange(context.Background(), model.ConnectorGithub, "code-123")
	require.NoError(t, err)
	require.Equal(t, "at-1", cred.AccessToken)
	require.Equal(t, "rt-1", cred.RefreshToken)
}

func TestExchangeRejectsNonOAuthKinds(t *testing.T) {
	conf := config.New()
	e := NewExchanger(conf, logger.NOP)

	_, err := e.Exchange(context.Background(), model.ConnectorClickup, "code")
	require.Error(t, err)
}

func TestExchangeRequiresClientConfig(t *testing.T) {
	e := NewExchanger(config.New(), logger.NOP)
	_, err := e.Exchange(context.Background(), model.ConnectorGitlab, "code")
	require.ErrorContains(t, err, "no oauth client configured")
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	conf := config.New()
	conf.Set("OAuth.SLACK.clientId", "client-2")
	conf.Set("OAuth.redirectURL", "https://trackport.example.com/oauth/callback")

	e := NewExchanger(conf, logger.NOP)
	u, err := e.AuthCodeURL(model.ConnectorSlack, "state-xyz")
	require.NoError(t, err)
	require.Contains(t, u, "state=state-xyz")
	require.Contains(t, u, "client_id=client-2")
}

func TestPassThrough(t *testing.T) {
	cred := PassThrough("pk_token", "", "https://jira.internal.example.com")
	require.Equal(t, "pk_token", cred.AccessToken)
	require.Equal(t, "https://jira.internal.example.com", cred.BaseURL)
}
