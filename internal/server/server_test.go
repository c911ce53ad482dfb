package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/heirloom/internal/config"
	"github.com/dukerupert/heirloom/internal/database"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	_, srv := newTestApp(t, nil)
	return srv
}

// newTestApp builds a server over a fresh database. configure, if set, can
// adjust the config before the server is built.
func newTestApp(t *testing.T, configure func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		BaseURL:       "http://localhost:8080",
		SessionTTL:    time.Hour,
		MaxPhotoBytes: 1 << 20,
	}
	if configure != nil {
		configure(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := New(db, cfg, logger)
	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)
	return app, srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	return callWith(t, srv, method, path, token, body, nil)
}

// callWith is call with extra request headers.
func callWith(t *testing.T, srv *httptest.Server, method, path, token string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func TestRegisterLoginCreateFamily(t *testing.T) {
	srv := newTestServer(t)

	status, body := call(t, srv, "POST", "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "name": "Ada", "password": "correct horse",
	})
	if status != http.StatusCreated {
		t.Fatalf("register = %d %v", status, body)
	}

	status, body = call(t, srv, "POST", "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse",
	})
	if status != http.StatusOK {
		t.Fatalf("login = %d %v", status, body)
	}
	token := body["token"].(string)

	status, body = call(t, srv, "POST", "/api/create-family", token, map[string]string{"family_name": "Lovelace"})
	if status != http.StatusCreated {
		t.Fatalf("create family = %d %v", status, body)
	}
	familyID := int64(body["family_id"].(float64))

	status, body = call(t, srv, "GET", "/api/families", token, nil)
	if status != http.StatusOK || len(body["families"].([]any)) != 1 {
		t.Fatalf("families = %d %v", status, body)
	}

	status, body = call(t, srv, "GET", "/api/tree/"+itoa(familyID), token, nil)
	if status != http.StatusOK {
		t.Fatalf("tree = %d %v", status, body)
	}

	status, _ = call(t, srv, "POST", "/api/auth/logout", token, nil)
	if status != http.StatusOK {
		t.Fatalf("logout = %d", status)
	}
	status, _ = call(t, srv, "GET", "/api/auth/me", token, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("me after logout = %d, want 401", status)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	srv := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{"GET", "/api/families"},
		{"POST", "/api/create-family"},
		{"GET", "/api/tree/1"},
		{"GET", "/api/person/1"},
		{"GET", "/ws?family_id=1"},
	} {
		status, body := call(t, srv, route.method, route.path, "", nil)
		if status != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", route.method, route.path, status)
		}
		if body["success"] != false {
			t.Errorf("%s %s body = %v", route.method, route.path, body)
		}
	}
}

func TestPublicRoutes(t *testing.T) {
	srv := newTestServer(t)

	if status, body := call(t, srv, "GET", "/api/health", "", nil); status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", status, body)
	}
	if status, _ := call(t, srv, "GET", "/api/themes", "", nil); status != http.StatusOK {
		t.Errorf("themes = %d", status)
	}
	if status, _ := call(t, srv, "GET", "/api/themes/travel/questions", "", nil); status != http.StatusOK {
		t.Errorf("questions = %d", status)
	}
}

func TestMetricsUsesRoutePatterns(t *testing.T) {
	app, srv := newTestApp(t, nil)
	call(t, srv, "GET", "/api/themes/career/questions", "", nil)
	call(t, srv, "GET", "/api/families/7", "", nil)

	rec := httptest.NewRecorder()
	app.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	text := rec.Body.String()

	for _, want := range []string{
		`route="GET /api/themes/{theme}/questions"`,
		`route="GET /api/families/{family_id}",status="401"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
	if strings.Contains(text, "/api/families/7") {
		t.Error("raw path leaked into metric labels")
	}
}

func TestMetricsNotOnPublicRouter(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404", resp.StatusCode)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	srv := newTestServer(t)
	creds := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	for i := 0; i < 10; i++ {
		if status, _ := call(t, srv, "POST", "/api/auth/login", "", creds); status != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i+1, status)
		}
	}
	if status, _ := call(t, srv, "POST", "/api/auth/login", "", creds); status != http.StatusTooManyRequests {
		t.Errorf("11th attempt = %d, want 429", status)
	}
}

func TestLoginLimitIgnoresForwardedHeaders(t *testing.T) {
	srv := newTestServer(t)
	creds := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	limited := 0
	for i := 0; i < 30; i++ {
		headers := map[string]string{
			"X-Forwarded-For":  "198.51.100." + strconv.Itoa(i),
			"CF-Connecting-IP": "192.0.2." + strconv.Itoa(i),
		}
		if status, _ := callWith(t, srv, "POST", "/api/auth/login", "", creds, headers); status == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 20 {
		t.Errorf("limited = %d of 30, want 20", limited)
	}
}

func TestLoginLimitBehindTrustedProxy(t *testing.T) {
	_, srv := newTestApp(t, func(cfg *config.Config) {
		cfg.TrustedProxies = []netip.Prefix{
			netip.MustParsePrefix("127.0.0.0/8"),
			netip.MustParsePrefix("::1/128"),
		}
	})
	creds := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	// Distinct clients behind the proxy each get their own budget.
	for i := 0; i < 15; i++ {
		headers := map[string]string{"X-Forwarded-For": "198.51.100." + strconv.Itoa(i)}
		if status, _ := callWith(t, srv, "POST", "/api/auth/login", "", creds, headers); status != http.StatusUnauthorized {
			t.Fatalf("client %d = %d, want 401", i, status)
		}
	}

	// One client behind the proxy is still limited.
	headers := map[string]string{"X-Forwarded-For": "203.0.113.9"}
	for i := 0; i < 10; i++ {
		callWith(t, srv, "POST", "/api/auth/login", "", creds, headers)
	}
	if status, _ := callWith(t, srv, "POST", "/api/auth/login", "", creds, headers); status != http.StatusTooManyRequests {
		t.Errorf("11th attempt = %d, want 429", status)
	}
}

func TestRegisterAndLoginLimitedSeparately(t *testing.T) {
	srv := newTestServer(t)
	creds := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	for i := 0; i < 11; i++ {
		call(t, srv, "POST", "/api/auth/login", "", creds)
	}
	status, body := call(t, srv, "POST", "/api/auth/register", "", map[string]string{
		"email": "ada@example.com", "name": "Ada", "password": "correct horse",
	})
	if status != http.StatusCreated {
		t.Errorf("register after exhausting login = %d %v, want 201", status, body)
	}
}

func TestJoinIsRateLimitedPerUser(t *testing.T) {
	srv := newTestServer(t)
	register := func(email string) string {
		t.Helper()
		status, body := call(t, srv, "POST", "/api/auth/register", "", map[string]string{
			"email": email, "name": email, "password": "correct horse",
		})
		if status != http.StatusCreated {
			t.Fatalf("register %s = %d %v", email, status, body)
		}
		return body["token"].(string)
	}
	guesser := register("guesser@example.com")
	other := register("other@example.com")
	guess := map[string]string{"access_code": "ZZZZZZZZ"}

	for i := 0; i < 10; i++ {
		if status, _ := call(t, srv, "POST", "/api/families/join", guesser, guess); status != http.StatusNotFound {
			t.Fatalf("guess %d = %d, want 404", i+1, status)
		}
	}
	if status, _ := call(t, srv, "POST", "/api/families/join", guesser, guess); status != http.StatusTooManyRequests {
		t.Errorf("11th guess = %d, want 429", status)
	}
	if status, _ := call(t, srv, "POST", "/api/families/join", other, guess); status != http.StatusNotFound {
		t.Errorf("other user's guess = %d, want 404", status)
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"https://tree.example.com", "http://localhost:5173", "not a url"})
	want := []string{"tree.example.com", "localhost:5173"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("patterns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
