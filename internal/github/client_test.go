package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

func TestNewClient_MissingConfiguration(t *testing.T) {
	_, keyPEM := testKey(t)

	for _, opts := range []Options{
		{InstallationID: "42", PrivateKeyPEM: keyPEM},
		{AppID: "7", PrivateKeyPEM: keyPEM},
		{AppID: "7", InstallationID: "42"},
	} {
		_, err := NewClient(opts)
		require.Error(t, err)
	}
}

func TestNewClient_BadKeyMaterial(t *testing.T) {
	_, err := NewClient(Options{AppID: "7", InstallationID: "42", PrivateKeyPEM: "not a key"})
	require.Error(t, err)
}

func TestNewClient_NormalizesEscapedNewlines(t *testing.T) {
	_, keyPEM := testKey(t)
	escaped := strings.ReplaceAll(keyPEM, "\n", `\n`)

	c, err := NewClient(Options{AppID: "7", InstallationID: "42", PrivateKeyPEM: escaped})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestAppJWT_Claims(t *testing.T) {
	key, keyPEM := testKey(t)
	c, err := NewClient(Options{AppID: "12345", InstallationID: "42", PrivateKeyPEM: keyPEM})
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	signed, err := c.appJWT(now)
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(signed, &claims, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	require.Equal(t, "12345", claims.Issuer)
	require.Equal(t, now.Add(-60*time.Second).Unix(), claims.IssuedAt.Unix())
	require.Equal(t, now.Add(540*time.Second).Unix(), claims.ExpiresAt.Unix())
}

// fakeGitHub is a stand-in for the two API endpoints the client touches.
type fakeGitHub struct {
	t             *testing.T
	appKey        *rsa.PublicKey
	appID         string
	tokenStatus   int
	tokenBody     string
	dispatchCode  int
	tokenCalls    int
	dispatchCalls int
	lastDispatch  map[string]any
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++

		assertion := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(assertion, &claims, func(tok *jwt.Token) (any, error) {
			return f.appKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		require.NoError(f.t, err)
		require.Equal(f.t, f.appID, claims.Issuer)

		w.WriteHeader(f.tokenStatus)
		w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("POST /repos/andrevargas22/grenalbot/dispatches", func(w http.ResponseWriter, r *http.Request) {
		f.dispatchCalls++

		require.Equal(f.t, "Bearer ghs_testtoken", r.Header.Get("Authorization"))
		require.Equal(f.t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastDispatch))

		w.WriteHeader(f.dispatchCode)
	})
	return mux
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *Client, *httptest.Server) {
	key, keyPEM := testKey(t)
	fake := &fakeGitHub{
		t:            t,
		appKey:       &key.PublicKey,
		appID:        "12345",
		tokenStatus:  http.StatusCreated,
		tokenBody:    `{"token":"ghs_testtoken"}`,
		dispatchCode: http.StatusNoContent,
	}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		BaseURL:        server.URL,
		AppID:          "12345",
		InstallationID: "42",
		PrivateKeyPEM:  keyPEM,
	})
	require.NoError(t, err)
	return fake, client, server
}

func TestCreateDispatch_HappyPath(t *testing.T) {
	fake, client, _ := newFakeGitHub(t)

	err := client.CreateDispatch(context.Background(), "andrevargas22", "grenalbot", "video_published", map[string]string{
		"video_id": "abc123xyz",
	})
	require.NoError(t, err)
	require.Equal(t, 1, fake.tokenCalls)
	require.Equal(t, 1, fake.dispatchCalls)

	require.Equal(t, "video_published", fake.lastDispatch["event_type"])
	payload, ok := fake.lastDispatch["client_payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "abc123xyz", payload["video_id"])
}

func TestCreateDispatch_TokenMintedPerCall(t *testing.T) {
	fake, client, _ := newFakeGitHub(t)

	for i := 0; i < 2; i++ {
		err := client.CreateDispatch(context.Background(), "andrevargas22", "grenalbot", "video_published", nil)
		require.NoError(t, err)
	}
	require.Equal(t, 2, fake.tokenCalls, "installation tokens must not be cached across dispatches")
}

func TestCreateDispatch_TokenExchangeFails(t *testing.T) {
	fake, client, _ := newFakeGitHub(t)
	fake.tokenStatus = http.StatusUnauthorized
	fake.tokenBody = `{"message":"bad credentials"}`

	err := client.CreateDispatch(context.Background(), "andrevargas22", "grenalbot", "video_published", nil)
	require.Error(t, err)
	require.Equal(t, 0, fake.dispatchCalls, "no dispatch without a token")
}

func TestCreateDispatch_TokenAbsentFromResponse(t *testing.T) {
	fake, client, _ := newFakeGitHub(t)
	fake.tokenBody = `{"expires_at":"2024-06-01T13:00:00Z"}`

	err := client.CreateDispatch(context.Background(), "andrevargas22", "grenalbot", "video_published", nil)
	require.Error(t, err)
	require.Equal(t, 0, fake.dispatchCalls)
}

func TestCreateDispatch_Non204IsFailure(t *testing.T) {
	fake, client, _ := newFakeGitHub(t)
	fake.dispatchCode = http.StatusNotFound

	err := client.CreateDispatch(context.Background(), "andrevargas22", "grenalbot", "video_published", nil)
	require.Error(t, err)
	require.Equal(t, 1, fake.dispatchCalls)
}
