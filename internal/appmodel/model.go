// Package appmodel implements the Application Model (C11): the bundle of
// optional per-connection callbacks a user supplies, and the downstream
// forwarder that adapts an asynchronous downstream provider into the
// Connection Context's re-entry path.
//
// The teacher expresses "optional per-request handling" as a dynamic
// Registry of class/service-keyed HandlerFuncs
// (tonylturner-cipdip internal/server/handlers/registry.go). DoIP's six
// hooks are a fixed, closed set rather than an open dispatch table, so
// this package follows the design note's guidance directly: a sealed
// interface with no-op defaults (BaseModel), letting a caller override
// only the hooks it needs by embedding BaseModel and redefining methods,
// the same "optional slot" ergonomics the registry gives CIP handlers
// without the keyed-lookup machinery DoIP doesn't need.
package appmodel

import (
	"github.com/tturner/doip/internal/connctx"
	"github.com/tturner/doip/internal/doip"
)

// Model is the full set of hooks the server invokes for one connection.
// All methods are declared non-throwing: implementations must trap and
// log any internal failure themselves rather than panicking across this
// boundary.
type Model interface {
	OnOpenConnection(ctx connctx.Context)
	OnCloseConnection(ctx connctx.Context, reason connctx.CloseReason)
	OnDiagnosticMessage(ctx connctx.Context, msg doip.Message) doip.DiagnosticAck
	OnDiagnosticNotification(ctx connctx.Context, ack doip.DiagnosticAck)
	// HasDownstreamHandler declares whether this model wants diagnostic
	// traffic routed through OnDownstreamRequest instead of answered
	// synchronously via OnDiagnosticMessage. Per the routing rule, when
	// this returns true every diagnostic message takes the downstream
	// path, regardless of target address.
	HasDownstreamHandler() bool
	OnDownstreamRequest(ctx connctx.Context, msg doip.Message, resume ResumeFunc) connctx.Disposition
	OnDownstreamResponse(ctx connctx.Context, request, response doip.Message)
}

// ResumeFunc lets a downstream-aware model complete a Pending disposition
// later, from whatever goroutine its own backend replies on.
type ResumeFunc func(response *doip.Message)

// BaseModel implements Model with no-op defaults. Embed it and override
// only the hooks a given application cares about.
type BaseModel struct{}

func (BaseModel) OnOpenConnection(connctx.Context)                        {}
func (BaseModel) OnCloseConnection(connctx.Context, connctx.CloseReason)  {}
func (BaseModel) OnDiagnosticMessage(connctx.Context, doip.Message) doip.DiagnosticAck {
	return nil
}
func (BaseModel) OnDiagnosticNotification(connctx.Context, doip.DiagnosticAck) {}
func (BaseModel) HasDownstreamHandler() bool { return false }
func (BaseModel) OnDownstreamRequest(connctx.Context, doip.Message, ResumeFunc) connctx.Disposition {
	return connctx.Error
}
func (BaseModel) OnDownstreamResponse(connctx.Context, doip.Message, doip.Message) {}

// modelAdapter implements the narrower connctx observer interfaces on top
// of a full Model, so a *Connection only needs to know about those
// interfaces and never imports this package.
type modelAdapter struct {
	model    Model
	resumeFn ResumeFunc
}

// Adapt wires a Model into the three observer roles Connection.Bind wants.
// resume is supplied by the server orchestrator: it is how
// OnDownstreamRequest's caller is later invoked with the provider's reply.
func Adapt(model Model, resume ResumeFunc) (connctx.LifecycleObserver, connctx.DiagnosticObserver, connctx.DownstreamRouter) {
	a := &modelAdapter{model: model, resumeFn: resume}
	return a, a, a
}

func (a *modelAdapter) OnOpenConnection(ctx connctx.Context) {
	a.model.OnOpenConnection(ctx)
}

func (a *modelAdapter) OnCloseConnection(ctx connctx.Context, reason connctx.CloseReason) {
	a.model.OnCloseConnection(ctx, reason)
}

func (a *modelAdapter) OnDiagnosticMessage(ctx connctx.Context, msg doip.Message) doip.DiagnosticAck {
	return a.model.OnDiagnosticMessage(ctx, msg)
}

func (a *modelAdapter) OnDiagnosticNotification(ctx connctx.Context, ack doip.DiagnosticAck) {
	a.model.OnDiagnosticNotification(ctx, ack)
}

func (a *modelAdapter) HasDownstreamHandler() bool {
	return a.model.HasDownstreamHandler()
}

func (a *modelAdapter) OnDownstreamRequest(ctx connctx.Context, msg doip.Message) connctx.Disposition {
	return a.model.OnDownstreamRequest(ctx, msg, a.resumeFn)
}

func (a *modelAdapter) OnDownstreamResponse(ctx connctx.Context, request, response doip.Message) {
	a.model.OnDownstreamResponse(ctx, request, response)
}
