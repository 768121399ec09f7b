package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/balu-dk/go-easee-gateway/internal/credentials"
	"github.com/balu-dk/go-easee-gateway/internal/easee"
	"github.com/balu-dk/go-easee-gateway/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamCall struct {
	method        string
	path          string
	body          string
	authorization string
}

// fakeEasee answers logins with a fixed token and every other call with the configured response.
type fakeEasee struct {
	mu     sync.Mutex
	calls  []upstreamCall
	status int
	body   string
}

func (f *fakeEasee) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, upstreamCall{
		method:        r.Method,
		path:          r.URL.EscapedPath(),
		body:          string(b),
		authorization: r.Header.Get("Authorization"),
	})

	if r.URL.Path == "/api/accounts/login" {
		_, _ = w.Write([]byte(`{"accessToken":"token-123"}`))
		return
	}

	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func (f *fakeEasee) recorded() []upstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]upstreamCall(nil), f.calls...)
}

func newTestAPI(t *testing.T, status int, body string) (*API, *fakeEasee) {
	t.Helper()

	upstream := &fakeEasee{status: status, body: body}
	s := httptest.NewServer(upstream)
	t.Cleanup(s.Close)

	baseURL := s.URL + "/api"
	auth := easee.NewAuthenticator(s.Client(), baseURL)
	gateway := service.NewGateway(easee.NewForwarder(s.Client(), auth, baseURL))

	return NewAPI(gateway, Options{DocsURL: "http://localhost:8000/docs"}), upstream
}

func serve(a *API, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(method, target, reader))

	return rec
}

var secret = credentials.Encode("secret")

func TestAPI_StateRelaysVerbatim(t *testing.T) {
	t.Parallel()

	a, upstream := newTestAPI(t, http.StatusOK, `{"chargerId":"AB123","status":"online"}`)

	rec := serve(a, http.MethodGet, "/state/AB123/alice/"+secret, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"chargerId":"AB123","status":"online"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	calls := upstream.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, upstreamCall{
		method: http.MethodPost,
		path:   "/api/accounts/login",
		body:   `{"userName":"alice","password":"secret"}`,
	}, calls[0])
	assert.Equal(t, upstreamCall{
		method:        http.MethodGet,
		path:          "/api/chargers/AB123/state",
		authorization: "Bearer token-123",
	}, calls[1])
}

func TestAPI_ReadRoutesBuildUpstreamPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target   string
		wantPath string
	}{
		{target: "/getConfiguration/AB123/alice/" + secret, wantPath: "/api/chargers/AB123/config"},
		{target: "/state/AB123/alice/" + secret, wantPath: "/api/chargers/AB123/state"},
		{target: "/powerUsage/AB123/2023-01-01T00%3A00/2023-01-31T00%3A00/alice/" + secret, wantPath: "/api/chargers/AB123/usage/hourly/2023-01-01T00:00/2023-01-31T00:00"},
		{target: "/getChargerDetails/AB123/alice/" + secret, wantPath: "/api/chargers/AB123/details"},
		{target: "/getChargingSessions/AB123/2023-01-01/2023-01-31/alice/" + secret, wantPath: "/api/sessions/charger/AB123/sessions/2023-01-01/2023-01-31"},
		{target: "/getSites/alice/" + secret, wantPath: "/api/sites"},
		{target: "/isCircuitAttached/42/EH123456/1234/alice/" + secret, wantPath: "/api/sites/42/circuits/EH123456/1234"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()

			a, upstream := newTestAPI(t, http.StatusOK, `{"ok":true}`)

			rec := serve(a, http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

			calls := upstream.recorded()
			require.Len(t, calls, 2)
			assert.Equal(t, "/api/accounts/login", calls[0].path)
			assert.Equal(t, http.MethodGet, calls[1].method)
			assert.Equal(t, tt.wantPath, calls[1].path)
		})
	}
}

func TestAPI_GetIsEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		upstream string
		wantCode int
		want     string
	}{
		{
			name:     "enabled",
			upstream: `{"isEnabled":true,"maxChargerCurrent":32}`,
			wantCode: http.StatusOK,
			want:     `{"isEnabled":true,"isEnabledDigital":1,"maxChargerCurrent":32}`,
		},
		{
			name:     "disabled",
			upstream: `{"isEnabled":false,"maxChargerCurrent":32}`,
			wantCode: http.StatusOK,
			want:     `{"isEnabled":false,"isEnabledDigital":0,"maxChargerCurrent":32}`,
		},
		{
			name:     "missing field",
			upstream: `{"maxChargerCurrent":32}`,
			wantCode: http.StatusBadGateway,
			want:     `{"detail":"unexpected upstream response shape"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, _ := newTestAPI(t, http.StatusOK, tt.upstream)

			rec := serve(a, http.MethodGet, "/getIsEnabled/AB123/alice/"+secret, "")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestAPI_WriteRoutesSendSingleKeyBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target   string
		body     string
		wantBody string
	}{
		{
			target:   "/setLedstripBrightness",
			body:     `{"username":"alice","password":"` + secret + `","brightness":40,"chargerId":"AB123"}`,
			wantBody: `{"ledStripBrightness":40}`,
		},
		{
			target:   "/setLedstripBrightness",
			body:     `{"username":"alice","password":"` + secret + `","brightness":55.0,"chargerId":"AB123"}`,
			wantBody: `{"ledStripBrightness":55}`,
		},
		{
			target:   "/setIsEnabled",
			body:     `{"username":"alice","password":"` + secret + `","enabled":true,"chargerId":"AB123"}`,
			wantBody: `{"enabled":true}`,
		},
		{
			target:   "/setIsEnabled",
			body:     `{"username":"alice","password":"` + secret + `","enabled":0,"chargerId":"AB123"}`,
			wantBody: `{"enabled":false}`,
		},
		{
			target:   "/setDynamicChargerCurrent",
			body:     `{"username":"alice","password":"` + secret + `","dynamicChargerCurrent":12.5,"chargerId":"AB123"}`,
			wantBody: `{"dynamicChargerCurrent":12.5}`,
		},
		{
			target:   "/setMaxChargerCurrent",
			body:     `{"username":"alice","password":"` + secret + `","maxChargerCurrent":20,"chargerId":"AB123","maxChargerAccepted":20}`,
			wantBody: `{"maxChargerCurrent":20}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.target+" "+tt.wantBody, func(t *testing.T) {
			t.Parallel()

			a, upstream := newTestAPI(t, http.StatusAccepted, `{"commandId":7}`)

			rec := serve(a, http.MethodPost, tt.target, tt.body)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"commandId":7}`, rec.Body.String())

			calls := upstream.recorded()
			require.Len(t, calls, 2)
			assert.Equal(t, upstreamCall{
				method:        http.MethodPost,
				path:          "/api/chargers/AB123/settings",
				body:          tt.wantBody,
				authorization: "Bearer token-123",
			}, calls[1])
		})
	}
}

func TestAPI_MaxChargerCurrentGuard(t *testing.T) {
	t.Parallel()

	a, upstream := newTestAPI(t, http.StatusAccepted, `{}`)

	rec := serve(a, http.MethodPost, "/setMaxChargerCurrent",
		`{"username":"alice","password":"`+secret+`","maxChargerCurrent":32,"chargerId":"AB123","maxChargerAccepted":20}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"detail":"Max allowed Charger Current reached... Abort"}`, rec.Body.String())
	assert.Empty(t, upstream.recorded())
}

func TestAPI_MaxChargerCurrentGuardRunsBeforePasswordDecode(t *testing.T) {
	t.Parallel()

	a, upstream := newTestAPI(t, http.StatusAccepted, `{}`)

	// "secret" is not valid base64, the over-limit request must still be a 409
	rec := serve(a, http.MethodPost, "/setMaxChargerCurrent",
		`{"username":"alice","password":"secret","maxChargerCurrent":32,"chargerId":"AB123","maxChargerAccepted":20}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"detail":"Max allowed Charger Current reached... Abort"}`, rec.Body.String())
	assert.Empty(t, upstream.recorded())

	rec = serve(a, http.MethodPost, "/setMaxChargerCurrent",
		`{"username":"alice","password":"secret","maxChargerCurrent":16,"chargerId":"AB123","maxChargerAccepted":20}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid encoded password")
	assert.Empty(t, upstream.recorded())
}

func TestAPI_UpstreamFailureBecomes500(t *testing.T) {
	t.Parallel()

	a, _ := newTestAPI(t, http.StatusForbidden, `{"title":"Forbidden"}`)

	rec := serve(a, http.MethodGet, "/getChargerDetails/AB123/alice/"+secret, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["detail"], "403 Client Error: Forbidden")
	assert.Contains(t, resp["detail"], "/api/chargers/AB123/details")
}

func TestAPI_MalformedPasswordIsClientError(t *testing.T) {
	t.Parallel()

	a, upstream := newTestAPI(t, http.StatusOK, `{}`)

	rec := serve(a, http.MethodGet, "/getSites/alice/not-base64!", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid encoded password")

	rec = serve(a, http.MethodPost, "/setIsEnabled", `{"username":"alice","password":"***","enabled":true,"chargerId":"AB123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, upstream.recorded())
}

func TestAPI_EscapedPasswordSegment(t *testing.T) {
	t.Parallel()

	a, upstream := newTestAPI(t, http.StatusOK, `[]`)

	// "???" encodes to "Pz8/"
	rec := serve(a, http.MethodGet, "/getSites/alice/Pz8%2F", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	calls := upstream.recorded()
	require.NotEmpty(t, calls)
	assert.Equal(t, `{"userName":"alice","password":"???"}`, calls[0].body)
}

func TestAPI_InvalidBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
	}{
		{name: "not json", target: "/setIsEnabled", body: `enabled=1`, wantCode: http.StatusBadRequest},
		{name: "missing charger", target: "/setIsEnabled", body: `{"username":"alice","password":"` + secret + `","enabled":true}`, wantCode: http.StatusUnprocessableEntity},
		{name: "missing enabled", target: "/setIsEnabled", body: `{"username":"alice","password":"` + secret + `","chargerId":"AB123"}`, wantCode: http.StatusUnprocessableEntity},
		{name: "bad enabled", target: "/setIsEnabled", body: `{"username":"alice","password":"` + secret + `","enabled":"maybe","chargerId":"AB123"}`, wantCode: http.StatusBadRequest},
		{name: "fractional brightness", target: "/setLedstripBrightness", body: `{"username":"alice","password":"` + secret + `","brightness":40.5,"chargerId":"AB123"}`, wantCode: http.StatusBadRequest},
		{name: "brightness out of range", target: "/setLedstripBrightness", body: `{"username":"alice","password":"` + secret + `","brightness":101,"chargerId":"AB123"}`, wantCode: http.StatusUnprocessableEntity},
		{name: "missing accepted", target: "/setMaxChargerCurrent", body: `{"username":"alice","password":"` + secret + `","maxChargerCurrent":16,"chargerId":"AB123"}`, wantCode: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, upstream := newTestAPI(t, http.StatusOK, `{}`)

			rec := serve(a, http.MethodPost, tt.target, tt.body)

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Empty(t, upstream.recorded())
		})
	}
}

func TestAPI_StaticRoutes(t *testing.T) {
	t.Parallel()

	a, upstream := newTestAPI(t, http.StatusOK, `{}`)

	rec := serve(a, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Easee Api Gateway - docs":"http://localhost:8000/docs"}`, rec.Body.String())

	rec = serve(a, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(a, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "easee_gateway_http_requests_total")

	assert.Empty(t, upstream.recorded())
}
