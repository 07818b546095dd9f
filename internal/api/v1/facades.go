package v1

import (
	"fmt"
	"math/big"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/api/common"
	"github.com/stacklok/feed-registry-server/internal/facade"
)

// WithFacades serves facades by name under /facades. A nil map serves none.
func (routes *Routes) WithFacades(facades map[string]*facade.AccessControlledFacade) *Routes {
	routes.facades = facades
	return routes
}

func facadeRouter(routes *Routes) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", routes.withFacade(routes.facadeInfo))
		r.Get("/decimals", routes.withFacade(routes.facadeDecimals))
		r.Get("/description", routes.withFacade(routes.facadeDescription))
		r.Get("/version", routes.withFacade(routes.facadeVersion))
		r.Get("/latest/answer", routes.withFacade(routes.facadeLatestAnswer))
		r.Get("/latest/timestamp", routes.withFacade(routes.facadeLatestTimestamp))
		r.Get("/latest/round", routes.withFacade(routes.facadeLatestRound))
		r.Get("/latest/round-data", routes.withFacade(routes.facadeLatestRoundData))
		r.Get("/rounds/{roundId}/answer", routes.withFacadeRound(routes.facadeGetAnswer))
		r.Get("/rounds/{roundId}/timestamp", routes.withFacadeRound(routes.facadeGetTimestamp))
		r.Get("/rounds/{roundId}/round-data", routes.withFacadeRound(routes.facadeGetRoundData))
	}
}

type facadeHandler func(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade)

type facadeRoundHandler func(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade, round *big.Int)

func (routes *Routes) withFacade(next facadeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		f, ok := routes.facades[name]
		if !ok {
			common.WriteErrorResponse(w, fmt.Sprintf("facade %q not found", name), http.StatusNotFound)
			return
		}
		next(w, r, f)
	}
}

func (routes *Routes) withFacadeRound(next facadeRoundHandler) http.HandlerFunc {
	return routes.withFacade(func(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
		round, err := common.RoundParam(r, "roundId")
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		next(w, r, f, round)
	})
}

func newFacadeResponse(name string, f *facade.AccessControlledFacade) FacadeResponse {
	return FacadeResponse{
		Name:          name,
		Base:          f.Pair().Base,
		Quote:         f.Pair().Quote,
		Identity:      f.Identity(),
		AllowedReader: f.AllowedReader(),
		Policy:        access.Ref(f.AccessPolicy()),
	}
}

func (routes *Routes) listFacades(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(routes.facades))
	for name := range routes.facades {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := FacadeListResponse{Facades: make([]FacadeResponse, 0, len(names))}
	for _, name := range names {
		resp.Facades = append(resp.Facades, newFacadeResponse(name, routes.facades[name]))
	}
	resp.Total = len(resp.Facades)
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func (*Routes) facadeInfo(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	common.WriteJSONResponse(w, newFacadeResponse(chi.URLParam(r, "name"), f), http.StatusOK)
}

func (*Routes) facadeDecimals(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	v, err := f.Decimals(r.Context(), common.Caller(r))
	respond(w, r, DecimalsResponse{Decimals: v}, err)
}

func (*Routes) facadeDescription(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	v, err := f.Description(r.Context(), common.Caller(r))
	respond(w, r, DescriptionResponse{Description: v}, err)
}

func (*Routes) facadeVersion(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	v, err := f.Version(r.Context(), common.Caller(r))
	respond(w, r, SourceVersionResponse{Version: v}, err)
}

func (*Routes) facadeLatestAnswer(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	v, err := f.LatestAnswer(r.Context(), common.Caller(r))
	respond(w, r, AnswerResponse{Answer: decimal(v)}, err)
}

func (*Routes) facadeLatestTimestamp(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	v, err := f.LatestTimestamp(r.Context(), common.Caller(r))
	respond(w, r, TimestampResponse{Timestamp: v}, err)
}

func (*Routes) facadeLatestRound(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	v, err := f.LatestRound(r.Context(), common.Caller(r))
	respond(w, r, RoundResponse{RoundID: decimal(v)}, err)
}

func (*Routes) facadeLatestRoundData(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade) {
	rd, err := f.LatestRoundData(r.Context(), common.Caller(r))
	respond(w, r, newRoundData(rd), err)
}

func (*Routes) facadeGetAnswer(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade, round *big.Int) {
	v, err := f.GetAnswer(r.Context(), common.Caller(r), round)
	respond(w, r, AnswerResponse{Answer: decimal(v)}, err)
}

func (*Routes) facadeGetTimestamp(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade, round *big.Int) {
	v, err := f.GetTimestamp(r.Context(), common.Caller(r), round)
	respond(w, r, TimestampResponse{Timestamp: v}, err)
}

func (*Routes) facadeGetRoundData(w http.ResponseWriter, r *http.Request, f *facade.AccessControlledFacade, round *big.Int) {
	rd, err := f.GetRoundData(r.Context(), common.Caller(r), round)
	respond(w, r, newRoundData(rd), err)
}
