package v1_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/api/common"
	v1 "github.com/stacklok/feed-registry-server/internal/api/v1"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/facade"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/registry/inmemory"
	"github.com/stacklok/feed-registry-server/internal/source"
	"github.com/stacklok/feed-registry-server/internal/source/sourcetest"
)

const (
	facadeIdentity = "0xfacade"
	proxyReader    = "0xproxy"
	stranger       = "0xstranger"
)

// newFacadeHandler serves ETH/USD at round 7 through the "eth-usd" facade.
// Registry reads are gated by grants, which admit only the facade identity.
func newFacadeHandler(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	src := sourcetest.New(8, "ETH / USD")
	src.SetRound(7, 700, 1_700_000_007)
	resolver := source.NewStaticResolver()
	resolver.Register("0xa", src)

	publisher := events.NewPublisher(events.NewLog())
	reg, err := registry.New(owner, inmemory.New(), resolver, registry.WithPublisher(publisher))
	require.NoError(t, err)
	pair := registry.Pair{Base: "ETH", Quote: "USD"}
	require.NoError(t, reg.ProposeSource(ctx, owner, pair, "0xa"))
	_, err = reg.ConfirmSource(ctx, owner, pair, "0xa")
	require.NoError(t, err)

	grants, err := access.NewGrantPolicy("grants", owner, publisher)
	require.NoError(t, err)
	require.NoError(t, grants.AddLocalAccess(ctx, owner, facadeIdentity, pair.Encode()))
	require.NoError(t, grants.AddLocalAccess(ctx, owner, consumer, pair.Encode()))
	require.NoError(t, reg.SetAccessPolicy(ctx, owner, grants))

	f, err := facade.NewAccessControlledFacade(reg, pair, facadeIdentity, owner, proxyReader, publisher)
	require.NoError(t, err)
	require.NoError(t, f.SetAccessPolicy(ctx, owner, grants))

	r := chi.NewRouter()
	r.Mount("/v1", v1.Router(v1.NewRoutes(reg, nil, nil).WithFacades(
		map[string]*facade.AccessControlledFacade{"eth-usd": f},
	)))
	return r
}

func TestFacadeRoutes(t *testing.T) {
	t.Parallel()

	h := newFacadeHandler(t)

	tests := []struct {
		name       string
		path       string
		caller     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "list",
			path:       "/v1/facades",
			wantStatus: http.StatusOK,
			wantBody: `{"facades":[{"name":"eth-usd","base":"ETH","quote":"USD","identity":"0xfacade",` +
				`"allowed_reader":"0xproxy","policy":"grants"}],"total":1}`,
		},
		{
			name:       "info",
			path:       "/v1/facades/eth-usd",
			wantStatus: http.StatusOK,
			wantBody: `{"name":"eth-usd","base":"ETH","quote":"USD","identity":"0xfacade",` +
				`"allowed_reader":"0xproxy","policy":"grants"}`,
		},
		{
			name:       "allowed reader",
			path:       "/v1/facades/eth-usd/latest/answer",
			caller:     proxyReader,
			wantStatus: http.StatusOK,
			wantBody:   `{"answer":"700"}`,
		},
		{
			name:       "reader admitted by policy",
			path:       "/v1/facades/eth-usd/decimals",
			caller:     consumer,
			wantStatus: http.StatusOK,
			wantBody:   `{"decimals":8}`,
		},
		{
			name:       "stranger",
			path:       "/v1/facades/eth-usd/latest/answer",
			caller:     stranger,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "anonymous",
			path:       "/v1/facades/eth-usd/latest/answer",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "global round",
			path:       "/v1/facades/eth-usd/rounds/18446744073709551623/round-data",
			caller:     proxyReader,
			wantStatus: http.StatusOK,
			wantBody: `{"round_id":"18446744073709551623","answer":"700","started_at":1700000007,` +
				`"updated_at":1700000007,"answered_in_round":"18446744073709551623"}`,
		},
		{
			name:       "malformed round",
			path:       "/v1/facades/eth-usd/rounds/x/answer",
			caller:     proxyReader,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown facade",
			path:       "/v1/facades/btc-usd/latest/answer",
			caller:     proxyReader,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.caller != "" {
				req.Header.Set(common.CallerHeader, tt.caller)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}
