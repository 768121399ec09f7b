// Package easee talks to the Easee cloud API on behalf of the gateway.
package easee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/balu-dk/go-easee-gateway/internal/credentials"
	"github.com/balu-dk/go-easee-gateway/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	loginURI = "/accounts/login"

	authorizationHeader = "Authorization"
	contentTypeHeader   = "Content-Type"
	acceptHeader        = "Accept"

	jsonContentType = "application/json"

	// maxErrorBody bounds how much of a failed response ends up in an error message.
	maxErrorBody = 4 << 10
)

// TokenSource acquires a bearer token for a set of credentials.
type TokenSource interface {
	Token(ctx context.Context, creds credentials.Credentials) (string, error)
}

type loginBody struct {
	Username string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

// Authenticator exchanges credentials for a bearer token via the login endpoint.
// Tokens are never cached, every call performs a full login.
type Authenticator struct {
	httpClient *http.Client
	baseURL    string
}

// NewAuthenticator returns an Authenticator for the API rooted at baseURL.
func NewAuthenticator(httpClient *http.Client, baseURL string) *Authenticator {
	return &Authenticator{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Token logs in and returns the access token. An absent token field yields an empty token.
func (a *Authenticator) Token(ctx context.Context, creds credentials.Credentials) (string, error) {
	u := a.baseURL + loginURI

	req, err := newRequestBuilder(ctx, http.MethodPost, u).
		withBody(loginBody{Username: creds.Username, Password: creds.Password}).
		addHeader(contentTypeHeader, jsonContentType).
		build()
	if err != nil {
		return "", errors.Wrap(err, "failed to create login request")
	}

	body, err := perform(a.httpClient, req, "login")
	if err != nil {
		return "", err
	}

	resp := loginResponse{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &UpstreamError{
				Method: req.Method,
				URL:    u,
				Err:    errors.Wrap(err, "could not decode login response body"),
			}
		}
	}

	if resp.AccessToken == "" {
		logrus.WithField("username", creds.Username).Warn("Login response did not contain an access token")
	}

	return resp.AccessToken, nil
}

// Forwarder issues authenticated calls to the Easee API and hands back the raw JSON response.
type Forwarder struct {
	httpClient *http.Client
	tokens     TokenSource
	baseURL    string
}

// NewForwarder returns a Forwarder that acquires a token from tokens for every call.
func NewForwarder(httpClient *http.Client, tokens TokenSource, baseURL string) *Forwarder {
	return &Forwarder{
		httpClient: httpClient,
		tokens:     tokens,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Get performs an authenticated GET on path.
func (f *Forwarder) Get(ctx context.Context, creds credentials.Credentials, operation, path string) (json.RawMessage, error) {
	return f.do(ctx, creds, operation, http.MethodGet, path, nil)
}

// Post performs an authenticated POST of body to path.
func (f *Forwarder) Post(ctx context.Context, creds credentials.Credentials, operation, path string, body interface{}) (json.RawMessage, error) {
	return f.do(ctx, creds, operation, http.MethodPost, path, body)
}

func (f *Forwarder) do(ctx context.Context, creds credentials.Credentials, operation, method, path string, body interface{}) (json.RawMessage, error) {
	token, err := f.tokens.Token(ctx, creds)
	if err != nil {
		return nil, err
	}

	u := f.baseURL + path

	b := newRequestBuilder(ctx, method, u).
		addHeader(authorizationHeader, bearerTokenHeader(token)).
		addHeader(acceptHeader, jsonContentType)
	if body != nil {
		b = b.withBody(body).addHeader(contentTypeHeader, jsonContentType)
	}

	req, err := b.build()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s request", operation)
	}

	respBody, err := perform(f.httpClient, req, operation)
	if err != nil {
		return nil, err
	}

	respBody = bytes.TrimSpace(respBody)
	if len(respBody) == 0 {
		return json.RawMessage("null"), nil
	}

	if !json.Valid(respBody) {
		return nil, &UpstreamError{
			Method: method,
			URL:    u,
			Body:   truncate(respBody),
			Err:    errors.New("response body is not valid JSON"),
		}
	}

	return json.RawMessage(respBody), nil
}

// perform executes req and returns the response body for any 2xx status.
func perform(client *http.Client, req *http.Request, operation string) ([]byte, error) {
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordUpstream(operation, 0, time.Since(start).Seconds())

		return nil, &UpstreamError{
			Method: req.Method,
			URL:    req.URL.String(),
			Err:    errors.Wrap(err, "could not perform http call"),
		}
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordUpstream(operation, resp.StatusCode, time.Since(start).Seconds())

	if err != nil {
		return nil, &UpstreamError{
			Method: req.Method,
			URL:    req.URL.String(),
			Err:    errors.Wrap(err, "could not read response body"),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Method: req.Method,
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Body:   truncate(body),
		}
	}

	return body, nil
}

// Path joins escaped segments into an API path, e.g. Path("chargers", id, "config").
func Path(segments ...string) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}

	return sb.String()
}

func bearerTokenHeader(token string) string {
	return "Bearer " + token
}

func statusText(code int) string {
	kind := "Server Error"
	if code < http.StatusInternalServerError {
		kind = "Client Error"
	}

	return fmt.Sprintf("%s: %s", kind, http.StatusText(code))
}

func truncate(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}

	return string(b)
}
