package v1

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/api/common"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

// grantManager is implemented by policies that keep per-caller grants.
type grantManager interface {
	AddGlobalAccess(ctx context.Context, actor, caller string) error
	RemoveGlobalAccess(ctx context.Context, actor, caller string) error
	AddLocalAccess(ctx context.Context, actor, caller string, data []byte) error
	RemoveLocalAccess(ctx context.Context, actor, caller string, data []byte) error
	EnableAccessCheck(ctx context.Context, actor string) error
	DisableAccessCheck(ctx context.Context, actor string) error
}

var _ grantManager = (*access.GrantPolicy)(nil)

func (routes *Routes) listEvents(w http.ResponseWriter, r *http.Request) {
	if routes.log == nil {
		common.WriteErrorResponse(w, "event log is not enabled", http.StatusNotFound)
		return
	}
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			common.WriteErrorResponse(w, "Invalid since parameter: must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = v
	}
	evs := routes.log.Since(since)
	common.WriteJSONResponse(w, EventsResponse{Events: evs, Next: since + uint64(len(evs))}, http.StatusOK)
}

func (routes *Routes) getOwner(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, OwnerResponse{
		Owner:        routes.registry.Owner(),
		PendingOwner: routes.registry.PendingOwner(),
	}, http.StatusOK)
}

func (routes *Routes) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := routes.registry.TransferOwnership(common.Caller(r), req.To); err != nil {
		common.WriteError(w, r, err)
		return
	}
	routes.getOwner(w, r)
}

func (routes *Routes) acceptOwnership(w http.ResponseWriter, r *http.Request) {
	if err := routes.registry.AcceptOwnership(common.Caller(r)); err != nil {
		common.WriteError(w, r, err)
		return
	}
	routes.getOwner(w, r)
}

func (routes *Routes) getPolicy(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, PolicyResponse{Policy: access.Ref(routes.registry.AccessPolicy())}, http.StatusOK)
}

func (routes *Routes) setPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var policy access.Policy
	if req.Policy != "" {
		p, ok := routes.policies[req.Policy]
		if !ok {
			common.WriteErrorResponse(w, fmt.Sprintf("unknown access policy %q", req.Policy), http.StatusNotFound)
			return
		}
		policy = p
	}
	if err := routes.registry.SetAccessPolicy(r.Context(), common.Caller(r), policy); err != nil {
		common.WriteError(w, r, err)
		return
	}
	routes.getPolicy(w, r)
}

func (routes *Routes) hasAccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pair, err := registry.NewPair(q.Get("base"), q.Get("quote"))
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok, err := routes.registry.HasAccess(r.Context(), q.Get("caller"), pair)
	respond(w, r, HasAccessResponse{HasAccess: ok}, err)
}

// grants returns the active policy when it manages grants, writing a
// conflict otherwise.
func (routes *Routes) grants(w http.ResponseWriter) (grantManager, bool) {
	gm, ok := routes.registry.AccessPolicy().(grantManager)
	if !ok {
		common.WriteErrorResponse(w, "active access policy does not manage grants", http.StatusConflict)
		return nil, false
	}
	return gm, true
}

func (routes *Routes) addGlobalAccess(w http.ResponseWriter, r *http.Request) {
	routes.changeGrant(w, r, false, func(gm grantManager, req GrantRequest, _ []byte) error {
		return gm.AddGlobalAccess(r.Context(), common.Caller(r), req.Caller)
	})
}

func (routes *Routes) removeGlobalAccess(w http.ResponseWriter, r *http.Request) {
	routes.changeGrant(w, r, false, func(gm grantManager, req GrantRequest, _ []byte) error {
		return gm.RemoveGlobalAccess(r.Context(), common.Caller(r), req.Caller)
	})
}

func (routes *Routes) addLocalAccess(w http.ResponseWriter, r *http.Request) {
	routes.changeGrant(w, r, true, func(gm grantManager, req GrantRequest, data []byte) error {
		return gm.AddLocalAccess(r.Context(), common.Caller(r), req.Caller, data)
	})
}

func (routes *Routes) removeLocalAccess(w http.ResponseWriter, r *http.Request) {
	routes.changeGrant(w, r, true, func(gm grantManager, req GrantRequest, data []byte) error {
		return gm.RemoveLocalAccess(r.Context(), common.Caller(r), req.Caller, data)
	})
}

func (routes *Routes) changeGrant(
	w http.ResponseWriter,
	r *http.Request,
	local bool,
	apply func(grantManager, GrantRequest, []byte) error,
) {
	var req GrantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Caller == "" {
		common.WriteErrorResponse(w, "caller is required", http.StatusBadRequest)
		return
	}
	var data []byte
	if local {
		pair, err := registry.NewPair(req.Base, req.Quote)
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		data = pair.Encode()
	}
	gm, ok := routes.grants(w)
	if !ok {
		return
	}
	if err := apply(gm, req, data); err != nil {
		common.WriteError(w, r, err)
		return
	}
	slog.DebugContext(r.Context(), "Access grant changed",
		"method", r.Method,
		"caller", req.Caller,
		"local", local,
		"actor", common.Caller(r))
	w.WriteHeader(http.StatusNoContent)
}

func (routes *Routes) setAccessCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	gm, ok := routes.grants(w)
	if !ok {
		return
	}
	var err error
	if req.Enabled {
		err = gm.EnableAccessCheck(r.Context(), common.Caller(r))
	} else {
		err = gm.DisableAccessCheck(r.Context(), common.Caller(r))
	}
	respond(w, r, EnabledResponse{Enabled: req.Enabled}, err)
}
