package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/gatt"
)

// subscription is one notification registration. The first notification
// after registering only primes it.
type subscription struct {
	name   string
	handle device.Characteristic
	primed atomic.Bool
}

func (e *Engine) handler(s *subscription) func([]byte) {
	uuid := s.handle.UUID()
	return func(data []byte) {
		if !s.primed.Swap(true) {
			e.logger.WithField("characteristic", s.name).Debug("Priming notification discarded")
			return
		}
		if e.notifications.Send(notification{uuid: uuid, data: append([]byte(nil), data...)}) {
			e.logger.WithField("characteristic", s.name).Warn("Notification buffer full, oldest dropped")
		}
	}
}

// Subscribe registers for notifications from the characteristic token names.
func (e *Engine) Subscribe(ctx context.Context, token string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	target, h, err := e.resolve(ctx, token)
	if err != nil {
		return err
	}
	defer target.Release()

	name := target.Characteristic.Name()
	if _, ok := e.subs.Get(h.Key()); ok {
		return &gatt.StateError{Kind: gatt.AlreadySubscribed, Msg: name}
	}

	s := &subscription{name: name, handle: h}
	if err := h.Subscribe(ctx, e.handler(s)); err != nil {
		return fmt.Errorf("subscribe %s: %w", name, err)
	}
	e.subs.Set(h.Key(), s)
	e.logger.WithField("characteristic", name).Info("Subscribed")
	return nil
}

// Unsubscribe removes the subscription token names, or every subscription
// when token is "all".
func (e *Engine) Unsubscribe(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if e.subs.Len() == 0 {
		return gatt.ErrNoSubscriptions
	}
	if token == "" {
		return fmt.Errorf("%w: usage: unsub <target>|all", ErrUsage)
	}
	if strings.EqualFold(strings.ReplaceAll(token, "/", ""), "all") {
		return e.unsubscribeAll(ctx)
	}

	if err := e.requireConnected(); err != nil {
		return err
	}
	target, h, err := e.resolve(ctx, token)
	if err != nil {
		return err
	}
	defer target.Release()

	s, ok := e.subs.Get(h.Key())
	if !ok {
		return &gatt.StateError{Kind: gatt.NotSubscribed, Msg: target.Characteristic.Name()}
	}
	e.subs.Delete(h.Key())
	if err := s.handle.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", s.name, err)
	}
	e.logger.WithField("characteristic", s.name).Info("Unsubscribed")
	return nil
}

// unsubscribeAll deregisters every subscription. The set is always emptied;
// individual failures are joined.
func (e *Engine) unsubscribeAll(ctx context.Context) error {
	var errs []error
	for pair := e.subs.Oldest(); pair != nil; pair = pair.Next() {
		s := pair.Value
		if err := s.handle.Unsubscribe(ctx); err != nil {
			e.logger.WithError(err).WithField("characteristic", s.name).Warn("Unsubscribe failed")
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", s.name, err))
		}
	}
	for e.subs.Len() > 0 {
		e.subs.Delete(e.subs.Oldest().Key)
	}
	return errors.Join(errs...)
}

// Subscriptions returns the subscribed characteristic names in subscription
// order.
func (e *Engine) Subscriptions() []string {
	names := make([]string, 0, e.subs.Len())
	for pair := e.subs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Value.name)
	}
	return names
}
