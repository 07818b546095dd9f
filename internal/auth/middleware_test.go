package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/feed-registry-server/internal/auth/mocks"
	"github.com/stacklok/feed-registry-server/internal/otel"
)

// callerRecorder records the caller seen by the wrapped handler.
type callerRecorder struct {
	called bool
	caller string
	set    bool
}

func (c *callerRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.called = true
	c.caller, c.set = CallerFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func mockFactory(validators map[string]tokenValidatorInterface) validatorFactory {
	return func(_ context.Context, cfg providerConfig) (tokenValidatorInterface, error) {
		v, ok := validators[cfg.Name]
		if !ok {
			return nil, errors.New("no validator")
		}
		return v, nil
	}
}

func TestNewTokenMiddleware_Errors(t *testing.T) {
	t.Parallel()

	_, err := newTokenMiddleware(context.Background(), nil, "", "", DefaultValidatorFactory)
	require.ErrorContains(t, err, "at least one provider must be configured")

	_, err = newTokenMiddleware(context.Background(),
		[]providerConfig{{Name: "unknown"}}, "", "", mockFactory(nil))
	require.ErrorContains(t, err, `failed to create validator for provider "unknown"`)
}

func TestTokenMiddleware_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		authHeader string
		setupMock  func(*mocks.MocktokenValidatorInterface)
		wantStatus int
		wantCaller string
		wantCalled bool
	}{
		{
			name:       "no authorization header is anonymous",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "write without token is challenged",
			method:     http.MethodPost,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "write with token",
			method:     http.MethodPost,
			authHeader: "Bearer owner-token",
			setupMock: func(m *mocks.MocktokenValidatorInterface) {
				m.EXPECT().ValidateToken(gomock.Any(), "owner-token").
					Return(jwt.MapClaims{"sub": "0xowner"}, nil)
			},
			wantStatus: http.StatusOK,
			wantCaller: "0xowner",
			wantCalled: true,
		},
		{
			name:       "basic auth",
			authHeader: "Basic xyz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty bearer token",
			authHeader: "Bearer ",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid token",
			authHeader: "Bearer valid-token",
			setupMock: func(m *mocks.MocktokenValidatorInterface) {
				m.EXPECT().ValidateToken(gomock.Any(), "valid-token").
					Return(jwt.MapClaims{"sub": "0xindexer"}, nil)
			},
			wantStatus: http.StatusOK,
			wantCaller: "0xindexer",
			wantCalled: true,
		},
		{
			name:       "lowercase scheme",
			authHeader: "bearer valid-token",
			setupMock: func(m *mocks.MocktokenValidatorInterface) {
				m.EXPECT().ValidateToken(gomock.Any(), "valid-token").
					Return(jwt.MapClaims{"sub": "0xindexer"}, nil)
			},
			wantStatus: http.StatusOK,
			wantCaller: "0xindexer",
			wantCalled: true,
		},
		{
			name:       "invalid token",
			authHeader: "Bearer bad-token",
			setupMock: func(m *mocks.MocktokenValidatorInterface) {
				m.EXPECT().ValidateToken(gomock.Any(), "bad-token").
					Return(nil, errors.New("signature is invalid"))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "token without caller claim",
			authHeader: "Bearer no-sub",
			setupMock: func(m *mocks.MocktokenValidatorInterface) {
				m.EXPECT().ValidateToken(gomock.Any(), "no-sub").
					Return(jwt.MapClaims{"iss": testIssuer}, nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			validator := mocks.NewMocktokenValidatorInterface(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(validator)
			}

			m, err := newTokenMiddleware(context.Background(),
				[]providerConfig{{Name: "test", CallerClaim: "sub"}}, "", "",
				mockFactory(map[string]tokenValidatorInterface{"test": validator}))
			require.NoError(t, err)

			next := &callerRecorder{}
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, "/v1/feeds/ETH/USD/propose", nil)
			req.Header.Set(CallerHeader, "0xspoofed")
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, next.called)
			if tt.wantCalled {
				assert.True(t, next.set)
				assert.Equal(t, tt.wantCaller, next.caller)
			} else {
				assert.Contains(t, rr.Header().Get("WWW-Authenticate"), `realm="feed-registry"`)
			}
		})
	}
}

func TestTokenMiddleware_IssuerFallback(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	first := mocks.NewMocktokenValidatorInterface(ctrl)
	second := mocks.NewMocktokenValidatorInterface(ctrl)
	gomock.InOrder(
		first.EXPECT().ValidateToken(gomock.Any(), "tok").Return(nil, errors.New("wrong issuer")),
		second.EXPECT().ValidateToken(gomock.Any(), "tok").Return(jwt.MapClaims{"email": "ops@example.com"}, nil),
		first.EXPECT().ValidateToken(gomock.Any(), "bad").Return(nil, errors.New("wrong issuer")),
		second.EXPECT().ValidateToken(gomock.Any(), "bad").Return(jwt.MapClaims{"sub": "0xa"}, nil),
	)

	m, err := newTokenMiddleware(context.Background(), []providerConfig{
		{Name: "first", CallerClaim: "sub"},
		{Name: "second", CallerClaim: "email"},
	}, "", "", mockFactory(map[string]tokenValidatorInterface{"first": first, "second": second}))
	require.NoError(t, err)

	caller, name, err := m.identify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "second", name)
	assert.Equal(t, "ops@example.com", caller)

	_, _, err = m.identify(context.Background(), "bad")
	require.ErrorIs(t, err, errNoIssuerAccepted)
	require.ErrorIs(t, err, errMissingCallerClaim)
	assert.ErrorContains(t, err, "first: wrong issuer")
}

func TestTokenMiddleware_SpanAttributes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	validator := mocks.NewMocktokenValidatorInterface(ctrl)
	validator.EXPECT().ValidateToken(gomock.Any(), "tok").Return(jwt.MapClaims{"sub": "0xindexer"}, nil)

	m, err := newTokenMiddleware(context.Background(),
		[]providerConfig{{Name: "corp", CallerClaim: "sub"}}, "", "",
		mockFactory(map[string]tokenValidatorInterface{"corp": validator}))
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "GET /v1/feeds/{base}/{quote}/latest")
	req := httptest.NewRequest(http.MethodGet, "/v1/feeds/ETH/USD/latest", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	m.Middleware(&callerRecorder{}).ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes, otel.AttrCaller.String("0xindexer"))
	assert.Contains(t, spans[0].Attributes, AttrIssuer.String("corp"))
}

func TestWrapWithPublicPaths(t *testing.T) {
	t.Parallel()

	reject := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	mw := WrapWithPublicPaths(reject, []string{"/health"})

	next := &callerRecorder{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CallerHeader, "0xowner")
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, next.set)
	assert.Empty(t, next.caller, "public paths must not trust the header")

	rr = httptest.NewRecorder()
	mw(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/owner", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHeaderMiddleware(t *testing.T) {
	t.Parallel()

	next := &callerRecorder{}
	req := httptest.NewRequest(http.MethodGet, "/v1/owner", nil)
	req.Header.Set(CallerHeader, "0xowner")
	headerMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, next.set)
	assert.Equal(t, "0xowner", next.caller)
}

func TestCallerFromContext_Unset(t *testing.T) {
	t.Parallel()

	_, ok := CallerFromContext(context.Background())
	assert.False(t, ok)
}
