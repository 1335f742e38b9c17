package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Storj/core/audit"
	"github.com/Storj/core/errs"
	"github.com/Storj/core/rpc"
)

// Routes adapts every Handle* method to an rpc.Handler, keyed by the §4.7
// method names. An rpc.Server.Register(h.Routes()) call is what actually
// lets OFFER/CONSIGN/RETRIEVE/AUDIT/MIRROR be answered over the wire
// instead of only by tests calling the Go methods directly.
func (h *Handler) Routes() map[string]rpc.Handler {
	return map[string]rpc.Handler{
		"OFFER":    h.routeOffer,
		"CONSIGN":  h.routeConsign,
		"RETRIEVE": h.routeRetrieve,
		"AUDIT":    h.routeAudit,
		"MIRROR":   h.routeMirror,
	}
}

func (h *Handler) routeOffer(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req OfferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	resp, err := h.HandleOffer(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (h *Handler) routeConsign(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req ConsignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	resp, err := h.HandleConsign(ctx, req, req.DataHash, h.TokenTTL)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (h *Handler) routeRetrieve(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req RetrieveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	// The farmer asking to retrieve is whoever the envelope's verified
	// sender claims to be, not a value the request body could forge.
	resp, err := h.HandleRetrieve(ctx, req, sender.NodeID, h.TokenTTL)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (h *Handler) routeAudit(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req AuditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	item, err := h.Adapter.Peek(ctx, req.DataHash.String())
	if err != nil {
		return nil, err
	}
	leaves, ok := item.Trees[req.ContractID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: no audit tree on file for this contract", errs.ErrContract)
	}
	public := &audit.PublicRecord{Leaves: leaves}

	resp, err := h.HandleAudit(ctx, req, public)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (h *Handler) routeMirror(ctx context.Context, body []byte, sender rpc.Contact) ([]byte, error) {
	var req MirrorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := h.HandleMirror(ctx, req, req.NewContract); err != nil {
		return nil, err
	}
	return json.Marshal(struct{}{})
}
