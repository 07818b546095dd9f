// Package v1 provides the feed registry HTTP API.
package v1

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/api/common"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/facade"
	"github.com/stacklok/feed-registry-server/internal/filtering"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

// maxBodySize bounds request bodies; every request body is a small JSON object.
const maxBodySize = 64 << 10

// Routes handles HTTP requests for the v1 endpoints.
type Routes struct {
	registry *registry.Registry
	log      *events.Log
	policies map[string]access.Policy
	filter   filtering.FilterService
	facades  map[string]*facade.AccessControlledFacade
}

// NewRoutes creates a new Routes instance. log may be nil, in which case the
// events endpoint is not served. policies are the access policies that
// POST /access/policy may select by name.
func NewRoutes(reg *registry.Registry, log *events.Log, policies map[string]access.Policy) *Routes {
	return &Routes{
		registry: reg,
		log:      log,
		policies: policies,
		filter:   filtering.NewDefaultFilterService(),
	}
}

// Router creates and configures the HTTP router for the v1 endpoints.
func Router(routes *Routes) http.Handler {
	r := chi.NewRouter()

	r.Get("/type-and-version", routes.typeAndVersion)
	r.Get("/feeds", routes.listFeeds)

	r.Route("/feeds/{base}/{quote}", func(r chi.Router) {
		r.Get("/", routes.withPair(routes.getFeed))
		r.Get("/decimals", routes.withPair(routes.decimals))
		r.Get("/description", routes.withPair(routes.description))
		r.Get("/version", routes.withPair(routes.version))

		r.Get("/latest/answer", routes.withPair(routes.latestAnswer))
		r.Get("/latest/timestamp", routes.withPair(routes.latestTimestamp))
		r.Get("/latest/round", routes.withPair(routes.latestRound))
		r.Get("/latest/round-data", routes.withPair(routes.latestRoundData))

		r.Route("/rounds/{roundId}", func(r chi.Router) {
			r.Get("/answer", routes.withRound(routes.getAnswer))
			r.Get("/timestamp", routes.withRound(routes.getTimestamp))
			r.Get("/round-data", routes.withRound(routes.getRoundData))
			r.Get("/source", routes.withRound(routes.getSourceForRound))
			r.Get("/previous", routes.withRound(routes.previousRound))
			r.Get("/next", routes.withRound(routes.nextRound))
		})

		r.Get("/proposed", routes.withPair(routes.proposed))
		r.Get("/proposed/round-data", routes.withPair(routes.proposedLatestRoundData))
		r.Get("/proposed/round-data/{sourceRound}", routes.withPair(routes.proposedRoundData))

		r.Get("/phases/current", routes.withPair(routes.currentPhase))
		r.Get("/phases/{phaseId}", routes.withPair(routes.getPhase))
		r.Get("/phases/{phaseId}/range", routes.withPair(routes.getPhaseRange))

		r.Post("/propose", routes.withPair(routes.propose))
		r.Post("/confirm", routes.withPair(routes.confirm))
	})

	r.Get("/facades", routes.listFacades)
	r.Route("/facades/{name}", facadeRouter(routes))

	r.Get("/sources/{source}/enabled", routes.sourceEnabled)
	r.Get("/events", routes.listEvents)

	r.Get("/owner", routes.getOwner)
	r.Post("/owner/transfer", routes.transferOwnership)
	r.Post("/owner/accept", routes.acceptOwnership)

	r.Route("/access", func(r chi.Router) {
		r.Get("/policy", routes.getPolicy)
		r.Post("/policy", routes.setPolicy)
		r.Get("/has-access", routes.hasAccess)
		r.Post("/global", routes.addGlobalAccess)
		r.Delete("/global", routes.removeGlobalAccess)
		r.Post("/local", routes.addLocalAccess)
		r.Delete("/local", routes.removeLocalAccess)
		r.Post("/check", routes.setAccessCheck)
	})

	return r
}

type pairHandler func(w http.ResponseWriter, r *http.Request, pair registry.Pair)

type roundHandler func(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int)

func (*Routes) withPair(next pairHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pair, err := common.PairParam(r)
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		next(w, r, pair)
	}
}

func (routes *Routes) withRound(next roundHandler) http.HandlerFunc {
	return routes.withPair(func(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
		round, err := common.RoundParam(r, "roundId")
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		next(w, r, pair, round)
	})
}

// respond writes v, or the mapped error when err is set.
func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, v, http.StatusOK)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		common.WriteErrorResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (routes *Routes) typeAndVersion(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, TypeAndVersionResponse{TypeAndVersion: routes.registry.TypeAndVersion()}, http.StatusOK)
}

// listFeeds lists every confirmed pair with its current phase. Query
// parameters include, exclude, source and exclude_source take
// comma-separated values.
func (routes *Routes) listFeeds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pairs, err := routes.registry.Pairs(ctx)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	feeds := make([]filtering.Feed, 0, len(pairs))
	for _, pair := range pairs {
		current, err := routes.registry.CurrentPhase(ctx, pair)
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		feeds = append(feeds, filtering.Feed{Pair: pair, Phase: current})
	}

	query := r.URL.Query()
	listed, err := routes.filter.ApplyFilters(ctx, feeds, &filtering.FeedFilter{
		PairInclude:   splitList(query.Get("include")),
		PairExclude:   splitList(query.Get("exclude")),
		SourceInclude: splitList(query.Get("source")),
		SourceExclude: splitList(query.Get("exclude_source")),
	})
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	resp := FeedListResponse{Feeds: make([]FeedResponse, 0, len(listed))}
	for _, feed := range listed {
		resp.Feeds = append(resp.Feeds, FeedResponse{
			Base:    feed.Pair.Base,
			Quote:   feed.Pair.Quote,
			Source:  feed.Phase.Source,
			PhaseID: feed.Phase.ID,
		})
	}
	resp.Total = len(resp.Feeds)
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (routes *Routes) getFeed(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	current, err := routes.registry.CurrentPhase(r.Context(), pair)
	if err == nil && !current.HasSource() {
		err = fmt.Errorf("%w: %s", registry.ErrSourceNotFound, pair)
	}
	respond(w, r, FeedResponse{
		Base:    pair.Base,
		Quote:   pair.Quote,
		Source:  current.Source,
		PhaseID: current.ID,
	}, err)
}

func (routes *Routes) decimals(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	v, err := routes.registry.Decimals(r.Context(), common.Caller(r), pair)
	respond(w, r, DecimalsResponse{Decimals: v}, err)
}

func (routes *Routes) description(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	v, err := routes.registry.Description(r.Context(), common.Caller(r), pair)
	respond(w, r, DescriptionResponse{Description: v}, err)
}

func (routes *Routes) version(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	v, err := routes.registry.Version(r.Context(), common.Caller(r), pair)
	respond(w, r, SourceVersionResponse{Version: v}, err)
}

func (routes *Routes) latestAnswer(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	v, err := routes.registry.LatestAnswer(r.Context(), common.Caller(r), pair)
	respond(w, r, AnswerResponse{Answer: decimal(v)}, err)
}

func (routes *Routes) latestTimestamp(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	v, err := routes.registry.LatestTimestamp(r.Context(), common.Caller(r), pair)
	respond(w, r, TimestampResponse{Timestamp: v}, err)
}

func (routes *Routes) latestRound(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	v, err := routes.registry.LatestRound(r.Context(), common.Caller(r), pair)
	respond(w, r, RoundResponse{RoundID: decimal(v)}, err)
}

func (routes *Routes) latestRoundData(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	rd, err := routes.registry.LatestRoundData(r.Context(), common.Caller(r), pair)
	respond(w, r, newRoundData(rd), err)
}

func (routes *Routes) getAnswer(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int) {
	v, err := routes.registry.GetAnswer(r.Context(), common.Caller(r), pair, round)
	respond(w, r, AnswerResponse{Answer: decimal(v)}, err)
}

func (routes *Routes) getTimestamp(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int) {
	v, err := routes.registry.GetTimestamp(r.Context(), common.Caller(r), pair, round)
	respond(w, r, TimestampResponse{Timestamp: v}, err)
}

func (routes *Routes) getRoundData(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int) {
	rd, err := routes.registry.GetRoundData(r.Context(), common.Caller(r), pair, round)
	respond(w, r, newRoundData(rd), err)
}

func (routes *Routes) getSourceForRound(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int) {
	src, err := routes.registry.GetSourceForRound(r.Context(), pair, round)
	respond(w, r, SourceResponse{Source: src}, err)
}

func (routes *Routes) previousRound(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int) {
	v, err := routes.registry.GetPreviousRoundID(r.Context(), pair, round)
	respond(w, r, RoundResponse{RoundID: decimal(v)}, err)
}

func (routes *Routes) nextRound(w http.ResponseWriter, r *http.Request, pair registry.Pair, round *big.Int) {
	v, err := routes.registry.GetNextRoundID(r.Context(), pair, round)
	respond(w, r, RoundResponse{RoundID: decimal(v)}, err)
}

func (routes *Routes) proposed(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	src, ok, err := routes.registry.GetProposedFeed(r.Context(), pair)
	respond(w, r, ProposedResponse{Source: src, Proposed: ok}, err)
}

func (routes *Routes) proposedLatestRoundData(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	rd, err := routes.registry.ProposedLatestRoundData(r.Context(), common.Caller(r), pair)
	respond(w, r, newRoundData(rd), err)
}

func (routes *Routes) proposedRoundData(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	round, err := common.RoundParam(r, "sourceRound")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	rd, err := routes.registry.ProposedGetRoundData(r.Context(), common.Caller(r), pair, round)
	respond(w, r, newRoundData(rd), err)
}

func (routes *Routes) currentPhase(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	p, err := routes.registry.CurrentPhase(r.Context(), pair)
	respond(w, r, newPhase(p), err)
}

func (routes *Routes) getPhase(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	id, err := common.PhaseParam(r, "phaseId")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := routes.registry.GetPhase(r.Context(), pair, id)
	respond(w, r, newPhase(p), err)
}

func (routes *Routes) getPhaseRange(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	id, err := common.PhaseParam(r, "phaseId")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	start, end, err := routes.registry.GetPhaseRange(r.Context(), pair, id)
	respond(w, r, PhaseRangeResponse{StartingRoundID: decimal(start), EndingRoundID: decimal(end)}, err)
}

func (routes *Routes) propose(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	var req SourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := routes.registry.ProposeSource(r.Context(), common.Caller(r), pair, req.Source); err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, ProposedResponse{Source: req.Source, Proposed: true}, http.StatusAccepted)
}

func (routes *Routes) confirm(w http.ResponseWriter, r *http.Request, pair registry.Pair) {
	var req SourceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := routes.registry.ConfirmSource(r.Context(), common.Caller(r), pair, req.Source)
	respond(w, r, ConfirmResponse{PhaseID: id}, err)
}

func (routes *Routes) sourceEnabled(w http.ResponseWriter, r *http.Request) {
	src, err := common.GetAndValidateURLParam(r, "source")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	enabled, err := routes.registry.IsFeedEnabled(r.Context(), src)
	respond(w, r, EnabledResponse{Enabled: enabled}, err)
}
