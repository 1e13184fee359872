package server

import (
	"context"
	"log/slog"

	"corpstore/internal/protocol"
	"corpstore/internal/storage"
)

// Notifier fans a notification frame out to subscribers.
type Notifier interface {
	NotifyAll(payload []byte) int
}

// Result is the outcome of one request.
type Result struct {
	Response protocol.Response
	// Subscribe is set when the connection must be handed to the registry,
	// with Response as its first outbound frame.
	Subscribe bool
}

// Dispatcher validates requests and executes them against the store.
type Dispatcher struct {
	store    *storage.Store
	notifier Notifier
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher. notifier may be nil.
func NewDispatcher(store *storage.Store, notifier Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, notifier: notifier, log: logger}
}

// Handle runs one request payload received on the connection identified by
// session. It never fails; problems come back as error responses.
func (d *Dispatcher) Handle(ctx context.Context, session string, payload []byte) Result {
	req, err := protocol.Decode(payload)
	if err != nil {
		d.log.Debug("request rejected", "session", session, "uuid", req.UUID, "error", err)
		return Result{Response: protocol.Fail(req.UUID, err.Error())}
	}

	log := d.log.With("session", session, "uuid", req.UUID, "action", string(req.Action))

	// The log entry comes first; an action whose entry cannot be written
	// does not run.
	entry := storage.LogEntry{
		UUID:      req.UUID,
		SessionID: session,
		Action:    string(req.Action),
		ID:        req.ID,
	}
	if err := d.store.AppendLog(ctx, entry); err != nil {
		log.Error("log append failed", "error", err)
		return Result{Response: protocol.Fail(req.UUID, err.Error())}
	}

	switch req.Action {
	case protocol.ActionGet:
		return d.get(ctx, log, req)
	case protocol.ActionSet:
		return d.set(ctx, log, req)
	case protocol.ActionList:
		return d.list(ctx, log, req)
	case protocol.ActionSubscribe:
		log.Debug("subscribe")
		return d.reply(log, req, protocol.SubscribeAck{Action: protocol.ActionSubscribe, Session: session}, true)
	default:
		// Decode only returns valid actions.
		return Result{Response: protocol.Fail(req.UUID, "unknown ACTION")}
	}
}

func (d *Dispatcher) get(ctx context.Context, log *slog.Logger, req protocol.Request) Result {
	rec, ok, err := d.store.GetRecord(ctx, req.ID)
	if err != nil {
		log.Error("get failed", "id", req.ID, "error", err)
		return Result{Response: protocol.Fail(req.UUID, err.Error())}
	}
	if !ok {
		log.Debug("get miss", "id", req.ID)
		return d.reply(log, req, nil, false)
	}
	log.Debug("get hit", "id", req.ID)
	return d.reply(log, req, rec, false)
}

func (d *Dispatcher) set(ctx context.Context, log *slog.Logger, req protocol.Request) Result {
	stored, err := d.store.PutRecord(ctx, req.Record)
	if err != nil {
		log.Error("set failed", "id", req.ID, "error", err)
		return Result{Response: protocol.Fail(req.UUID, err.Error())}
	}
	log.Debug("set", "id", stored.ID, "fields", len(stored.Fields))

	res := d.reply(log, req, stored, false)
	d.notify(log, stored)
	return res
}

func (d *Dispatcher) list(ctx context.Context, log *slog.Logger, req protocol.Request) Result {
	records, err := d.store.ListRecords(ctx)
	if err != nil {
		log.Error("list failed", "error", err)
		return Result{Response: protocol.Fail(req.UUID, err.Error())}
	}
	if records == nil {
		records = []storage.Record{}
	}
	log.Debug("list", "records", len(records))
	return d.reply(log, req, records, false)
}

func (d *Dispatcher) reply(log *slog.Logger, req protocol.Request, result any, subscribe bool) Result {
	resp, err := protocol.OK(req.UUID, result)
	if err != nil {
		log.Error("encode result failed", "error", err)
		return Result{Response: protocol.Fail(req.UUID, err.Error())}
	}
	return Result{Response: resp, Subscribe: subscribe}
}

func (d *Dispatcher) notify(log *slog.Logger, rec storage.Record) {
	if d.notifier == nil {
		return
	}
	payload, err := protocol.Encode(protocol.NewNotification(rec))
	if err != nil {
		log.Error("encode notification failed", "error", err)
		return
	}
	n := d.notifier.NotifyAll(payload)
	log.Debug("notified subscribers", "id", rec.ID, "delivered", n)
}
