package oauth

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-github/v42/github"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
)

func TestCreateOAuth(t *testing.T) {
	forcedClientId := "myGHClientId"
	forcedGHClientSecret := "myGHClientSecret"

	oauth := CreateOAuth(forcedClientId, forcedGHClientSecret)

	assert.Equal(t, forcedClientId, oauth.getConf().ClientID)
	assert.Equal(t, forcedGHClientSecret, oauth.getConf().ClientSecret)
	assert.Equal(t, []string{"user:email"}, oauth.getConf().Scopes)
}

func TestGetOAuthUserExchangeError(t *testing.T) {
	oa := &OAuthImpl{oauthConf: &oauth2.Config{
		Endpoint: oauth2.Endpoint{TokenURL: "http://localhost:0/nope"},
	}}

	_, err := oa.GetOAuthUser(zaptest.NewLogger(t), "badCode")
	assert.Error(t, err)
}

type OAuthMock struct {
	t                *testing.T
	assertParameters bool
	exchangeToken    *oauth2.Token
	exchangeError    error
	getUserCode      string
	getUserUser      *github.User
	getUserErr       error
}

var _ OAuthInterface = (*OAuthMock)(nil)

//goland:noinspection GoUnusedParameter
func (o *OAuthMock) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return o.exchangeToken, o.exchangeError
}

//goland:noinspection GoUnusedParameter
func (o *OAuthMock) Client(ctx context.Context, t *oauth2.Token) *http.Client {
	return &http.Client{}
}

func (o *OAuthMock) getConf() *oauth2.Config {
	return nil
}

//goland:noinspection GoUnusedParameter
func (o *OAuthMock) GetOAuthUser(logger *zap.Logger, code string) (user *github.User, err error) {
	if o.assertParameters {
		assert.Equal(o.t, o.getUserCode, code)
	}
	return o.getUserUser, o.getUserErr
}

func TestGetOAuthUser(t *testing.T) {
	forcedLogin := "myOAuthLogin"
	oauth := &OAuthMock{
		t:                t,
		assertParameters: true,
		getUserCode:      "myCode",
		getUserUser:      &github.User{Login: github.String(forcedLogin)},
	}

	user, err := oauth.GetOAuthUser(zaptest.NewLogger(t), "myCode")
	assert.NoError(t, err)
	assert.Equal(t, forcedLogin, user.GetLogin())
}
