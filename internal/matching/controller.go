package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrSubmissionDiscarded is returned by Submit when a reset happened while the request
// was outstanding. The response was dropped and the state was not touched.
var ErrSubmissionDiscarded = errors.New("submission discarded after reset")

// ResultConsumer receives each current result exactly once. Consume runs while the
// controller is locked, so it must not call back into the controller.
type ResultConsumer interface {
	Consume(result *MatchResult)
}

// ConsumerFunc adapts a function to ResultConsumer
type ConsumerFunc func(result *MatchResult)

func (f ConsumerFunc) Consume(result *MatchResult) {
	f(result)
}

// Snapshot is everything the controller owns: both document slots and the state
type Snapshot struct {
	Invoice *Document
	PO      *Document
	State   State
}

// SessionStore persists snapshots after every change
type SessionStore interface {
	Save(snapshot Snapshot) error
}

// TokenGenerator generates dispatch tokens
type TokenGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUID tokens
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Controller drives the submission workflow. It is the only writer of the document
// slots and the state; all methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	holder   Holder
	state    State
	matcher  Matcher
	store    SessionStore
	consumer ResultConsumer
	tokens   TokenGenerator

	// inflight is the outstanding dispatch, including one a reset has cancelled
	// but which has not returned yet
	inflight *inflightRequest
}

// inflightRequest tracks one outstanding request
type inflightRequest struct {
	token  string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a new Controller with random tokens. store and consumer may be nil.
func NewController(matcher Matcher, store SessionStore, consumer ResultConsumer) *Controller {
	return NewControllerWithDeps(matcher, store, consumer, &uuidGenerator{})
}

// NewControllerWithDeps creates a new Controller with a custom token generator for testing
func NewControllerWithDeps(matcher Matcher, store SessionStore, consumer ResultConsumer, tokens TokenGenerator) *Controller {
	return &Controller{
		state:    State{Phase: PhaseIdle},
		matcher:  matcher,
		store:    store,
		consumer: consumer,
		tokens:   tokens,
	}
}

// SelectInvoice replaces the invoice selection
func (c *Controller) SelectInvoice(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holder.SelectInvoice(doc)
	c.persist()
}

// SelectPO replaces the purchase order selection
func (c *Controller) SelectPO(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holder.SelectPO(doc)
	c.persist()
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current document slots and state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Restore replaces the controller's contents with a persisted snapshot. A snapshot taken
// mid-submission comes back idle since its request is gone.
func (c *Controller) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.holder.Reset()
	if s.Invoice != nil {
		c.holder.SelectInvoice(*s.Invoice)
	}
	if s.PO != nil {
		c.holder.SelectPO(*s.PO)
	}

	c.state = s.State
	c.state.Token = ""
	if c.state.Phase == PhaseSubmitting || c.state.Phase == "" {
		c.state = State{Phase: PhaseIdle}
	}
}

// Submit validates the selections, sends them to the matching service and waits for
// the outcome. Every failure is recorded in the returned state as well as returned
// as an *Error.
func (c *Controller) Submit(ctx context.Context) (State, error) {
	c.mu.Lock()
	for c.inflight != nil && c.state.Phase != PhaseSubmitting {
		// A reset cancelled the previous request; let it unwind before sending another
		done := c.inflight.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	if c.state.Phase == PhaseSubmitting {
		state := c.state
		c.mu.Unlock()
		slog.Debug("Ignoring submit while a request is in flight")
		return state, ErrSubmissionInFlight
	}
	if !c.holder.Ready() {
		verr := ValidationError()
		c.apply(Rejected{Err: verr})
		state := c.state
		invoice, po := slotName(c.holder.Invoice()), slotName(c.holder.PO())
		c.mu.Unlock()
		slog.Info("Submit rejected", "invoice", invoice, "po", po)
		return state, verr
	}

	token := c.tokens.Generate()
	dctx, cancel := context.WithCancel(ctx)
	d := &inflightRequest{token: token, cancel: cancel, done: make(chan struct{})}
	c.inflight = d
	c.apply(Started{Token: token})
	req := c.holder.request()
	c.mu.Unlock()

	slog.Info("Submitting documents",
		"token", token,
		"invoice", req.Invoice.Name,
		"invoice_size", len(req.Invoice.Data),
		"po", req.PO.Name,
		"po_size", len(req.PO.Data),
	)

	result, err := c.dispatch(dctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if c.inflight == d {
		c.inflight = nil
	}
	close(d.done)

	if err != nil {
		merr := AsError(err)
		c.apply(Errored{Token: token, Err: merr})
		if c.state.Token != token {
			slog.Warn("Dropping stale failure", "token", token, "error", err)
			return c.state, ErrSubmissionDiscarded
		}
		slog.Error("Match request failed", "token", token, "kind", merr.Kind, "error", err)
		return c.state, merr
	}

	c.apply(Resolved{Token: token, Result: result})
	if c.state.Token != token {
		slog.Warn("Dropping stale result", "token", token)
		return c.state, ErrSubmissionDiscarded
	}

	slog.Info("Match request succeeded", "token", token, "status", result.Status, "issues", len(result.Issues))
	if c.consumer != nil {
		c.consumer.Consume(result)
	}
	return c.state, nil
}

// Reset clears both selections and any result or error. A request still in flight is
// cancelled and whatever it returns is dropped.
func (c *Controller) Reset() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		slog.Info("Cancelling in-flight request", "token", c.inflight.token)
		c.inflight.cancel()
	}
	c.holder.Reset()
	c.apply(Cleared{})
	return c.state
}

// dispatch calls the matcher, turning a panic or an empty success into an error
func (c *Controller) dispatch(ctx context.Context, req MatchRequest) (result *MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NetworkError(fmt.Errorf("matcher panicked: %v", r))
		}
	}()

	result, err = c.matcher.Match(ctx, req)
	if err == nil && result == nil {
		err = ParseError(errors.New("matcher returned no result"))
	}
	return result, err
}

// apply runs a transition and persists the outcome. Callers hold c.mu.
func (c *Controller) apply(e Event) {
	before := c.state.Phase
	c.state = Transition(c.state, e)
	slog.Debug("State transition", "event", fmt.Sprintf("%T", e), "from", before, "to", c.state.Phase)
	c.persist()
}

// persist saves the current snapshot. Callers hold c.mu.
func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.snapshot()); err != nil {
		slog.Warn("Failed to persist session", "error", err)
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Invoice: c.holder.Invoice(),
		PO:      c.holder.PO(),
		State:   c.state,
	}
}

func slotName(doc *Document) string {
	if doc == nil {
		return "missing"
	}
	return doc.Name
}
