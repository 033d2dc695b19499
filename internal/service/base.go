package service

import (
	"context"
	"encoding/json"
	"fmt"

	"stockledger/internal/events"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/sirupsen/logrus"
)

type outboxKey struct{}

// outbox collects events raised inside a transaction until the outermost caller commits
type outbox struct {
	events []events.Event
}

func (o *outbox) add(ev events.Event) { o.events = append(o.events, ev) }

// txRunner is shared by the services: one transaction per operation, audit rows written inside it,
// events delivered only after the outermost transaction committed.
type txRunner struct {
	tx       repository.TransactionManager
	audit    repository.AuditRepository
	notifier events.Notifier
	log      *logrus.Logger
}

func (r txRunner) run(ctx context.Context, fn func(txCtx context.Context, out *outbox) error) error {
	if out, ok := ctx.Value(outboxKey{}).(*outbox); ok {
		return r.tx.RunInTx(ctx, func(txCtx context.Context) error { return fn(txCtx, out) })
	}

	out := &outbox{}
	ctx = context.WithValue(ctx, outboxKey{}, out)
	if err := r.tx.RunInTx(ctx, func(txCtx context.Context) error { return fn(txCtx, out) }); err != nil {
		return err
	}

	for _, ev := range out.events {
		if err := r.notifier.Notify(ctx, ev); err != nil {
			r.log.WithFields(logrus.Fields{"event_type": ev.EventType, "event_id": ev.EventID}).
				WithError(err).Warn("event delivery failed")
		}
	}
	return nil
}

// record writes an audit row in the current transaction
func (r txRunner) record(ctx context.Context, actor model.Actor, action, entityID, entityName string, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}
	if err := r.audit.Log(ctx, &model.AuditLog{
		ActorID:    actor.ID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
