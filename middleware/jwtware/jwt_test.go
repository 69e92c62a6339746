package jwtware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/carely/go-auth/middleware/jwtware"
)

type subject string

func (s subject) Subject() string { return string(s) }

type ctxKey struct{}

var errBadToken = errors.New("bad token")

// acceptOnly validates a single literal token
func acceptOnly(valid string) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
		if raw != valid {
			return nil, errBadToken
		}
		return subject("jane@example.com"), nil
	})
}

func newApp(cfg jwtware.Config) *fiber.App {
	app := fiber.New()
	app.Use(jwtware.New(cfg))
	handler := func(c *fiber.Ctx) error {
		who, _ := c.UserContext().Value(ctxKey{}).(string)
		if who == "" {
			who = "anonymous"
		}
		return c.SendString(who)
	}
	app.Get("/*", handler)
	return app
}

func call(t *testing.T, app *fiber.App, req *http.Request) string {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func enrich(ctx context.Context, c jwtware.Claims) (context.Context, error) {
	return context.WithValue(ctx, ctxKey{}, c.Subject()), nil
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator:  acceptOnly("good"),
		ContextEnricher: enrich,
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")

	if got := call(t, app, req); got != "jane@example.com" {
		t.Fatalf("expected authenticated request, got %q", got)
	}
}

func TestJWTWare_InvalidTokenContinuesAnonymous(t *testing.T) {
	var failures []error
	app := newApp(jwtware.Config{
		TokenValidator:  acceptOnly("good"),
		ContextEnricher: enrich,
		FailureListener: func(_ *fiber.Ctx, err error) {
			failures = append(failures, err)
		},
	})

	for _, header := range []string{"", "Bearer bad", "Basic good", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := call(t, app, req); got != "anonymous" {
			t.Fatalf("header %q: expected anonymous, got %q", header, got)
		}
	}

	if len(failures) != 1 || !errors.Is(failures[0], errBadToken) {
		t.Fatalf("expected one validation failure, got %v", failures)
	}
}

func TestJWTWare_EnricherFailureCleansContext(t *testing.T) {
	cleaned := false
	app := newApp(jwtware.Config{
		TokenValidator: acceptOnly("good"),
		ContextEnricher: func(ctx context.Context, _ jwtware.Claims) (context.Context, error) {
			return context.WithValue(ctx, ctxKey{}, "partial"), errors.New("user is gone")
		},
		ContextCleaner: func(ctx context.Context) context.Context {
			cleaned = true
			return ctx
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")

	if got := call(t, app, req); got != "anonymous" {
		t.Fatalf("expected anonymous after enricher failure, got %q", got)
	}
	if !cleaned {
		t.Fatal("expected context cleaner to run")
	}
}

func TestJWTWare_FilterFunction(t *testing.T) {
	validated := 0
	app := newApp(jwtware.Config{
		Filter: jwtware.NewPathMatcher("/public/").Filter,
		TokenValidator: jwtware.TokenValidatorFunc(func(raw string) (jwtware.Claims, error) {
			validated++
			return subject("jane@example.com"), nil
		}),
		ContextEnricher: enrich,
	})

	req := httptest.NewRequest(http.MethodGet, "/public/docs", nil)
	req.Header.Set("Authorization", "Bearer good")
	if got := call(t, app, req); got != "anonymous" {
		t.Fatalf("expected filtered request to skip validation, got %q", got)
	}
	if validated != 0 {
		t.Fatalf("validator should not run for filtered paths, ran %d times", validated)
	}
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenLookup:     "query:token,cookie:jwt",
		TokenValidator:  acceptOnly("good"),
		ContextEnricher: enrich,
	})

	req := httptest.NewRequest(http.MethodGet, "/x?token=good", nil)
	if got := call(t, app, req); got != "jane@example.com" {
		t.Fatalf("query lookup failed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "good"})
	if got := call(t, app, req); got != "jane@example.com" {
		t.Fatalf("cookie lookup failed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	if got := call(t, app, req); got != "anonymous" {
		t.Fatalf("header is not part of the lookup, got %q", got)
	}
}

func TestJWTWare_MissingValidatorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without a token validator")
		}
	}()
	jwtware.New(jwtware.Config{})
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"canonical", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lower case scheme", "bearer abc.def.ghi", "abc.def.ghi", false},
		{"upper case scheme", "BEARER abc.def.ghi", "abc.def.ghi", false},
		{"leading whitespace", "  \tBearer abc", "abc", false},
		{"inner whitespace removed", "Bearer ab c\t.d\ne", "abc.de", false},
		{"control characters removed", "Bearer abc\x00.def\x7f", "abc.def", false},
		{"no separator", "Bearerabc", "", true},
		{"other scheme", "Basic abc", "", true},
		{"scheme only", "Bearer", "", true},
		{"scheme and spaces", "Bearer    ", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := jwtware.StripScheme(tt.value, "Bearer")
			if tt.wantErr {
				if !errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
					t.Fatalf("expected ErrJWTMissingOrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("StripScheme(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestPathMatcher(t *testing.T) {
	m := jwtware.NewPathMatcher(
		"/auth/",
		"/swagger-ui*",
		"~/users/carers/available",
		"/users/*/is-carer",
		"/users/*/has-role/*",
		"/actuator",
		"  ",
	)

	public := []string{
		"/auth/login",
		"/auth/",
		"/swagger-ui",
		"/swagger-ui/index.html",
		"/api/users/carers/available",
		"/users/carers/available",
		"/users/123/is-carer",
		"/users/123/has-role/ADMIN",
		"/actuator",
		"/actuator/",
	}
	for _, p := range public {
		if !m.Match(p) {
			t.Errorf("expected %q to be public", p)
		}
	}

	private := []string{
		"/auth",
		"/users/me",
		"/users//is-carer",
		"/users/123/roles",
		"/users/123/is-carer/extra",
		"/users/123/has-role",
		"/actuator/health",
		"/roles",
	}
	for _, p := range private {
		if m.Match(p) {
			t.Errorf("expected %q to be protected", p)
		}
	}

	var nilMatcher *jwtware.PathMatcher
	if nilMatcher.Match("/auth/login") {
		t.Error("nil matcher must not match")
	}
}
