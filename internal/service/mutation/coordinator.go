// Package mutation выполняет локальные изменения заказов: смену статуса и удаление.
package mutation

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/inflight"
	"github.com/vladislavdragonenkov/orderwatch/internal/metrics"
	"github.com/vladislavdragonenkov/orderwatch/internal/reconcile"
)

// API описывает операции бэкенда, нужные координатору.
type API interface {
	GetOrder(ctx context.Context, id string) (domain.OrderPatch, error)
	UpdateOrder(ctx context.Context, id string, update domain.OrderUpdate) error
	DeleteOrder(ctx context.Context, id string) error
}

// Store представляет коллекцию, которую меняет подтверждённая мутация.
type Store interface {
	Apply(patch domain.OrderPatch, src reconcile.Source) (domain.Order, bool)
	Remove(id string) bool
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// Coordinator проверяет права, помечает заказ занятым на время операции
// и применяет результат к коллекции только после ответа бэкенда.
type Coordinator struct {
	api         API
	session     domain.Session
	permissions domain.PermissionChecker
	store       Store
	busy        *inflight.Set
	metrics     *metrics.SyncMetrics
	logger      *log.Entry
}

// NewCoordinator создаёт координатор.
func NewCoordinator(api API, session domain.Session, permissions domain.PermissionChecker, store Store, options ...Option) *Coordinator {
	c := &Coordinator{
		api:         api,
		session:     session,
		permissions: permissions,
		store:       store,
		busy:        inflight.NewSet(),
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "mutation-coordinator")
	}
	return c
}

// Busy сообщает, выполняется ли сейчас операция над заказом.
func (c *Coordinator) Busy(id string) bool {
	return c.busy.Has(id)
}

// ChangeStatus меняет статус заказа. Перед записью заказ перечитывается:
// бэкенд принимает статус только вместе с позициями.
func (c *Coordinator) ChangeStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	const op = "status"

	if err := c.authorize(); err != nil {
		c.metrics.RecordMutation(op, "denied")
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("change status of order %s: %w", id, domain.ErrInvalidStatus)
	}
	if !c.busy.TryAcquire(id) {
		c.metrics.RecordMutation(op, "busy")
		return domain.ErrOperationInProgress
	}
	defer c.busy.Release(id)

	logger := c.logger.WithFields(log.Fields{"order_id": id, "status": status})

	current, err := c.api.GetOrder(ctx, id)
	if err != nil {
		c.metrics.RecordMutation(op, "error")
		logger.WithError(err).Warn("failed to reload order before status change")
		return fmt.Errorf("change status of order %s: %w", id, err)
	}
	if len(current.LineItems) == 0 {
		c.metrics.RecordMutation(op, "rejected")
		return fmt.Errorf("change status of order %s: %w", id, domain.ErrNoLineItems)
	}

	update := domain.OrderUpdate{Status: status, LineItems: current.LineItems}
	if err := c.api.UpdateOrder(ctx, id, update); err != nil {
		c.metrics.RecordMutation(op, "error")
		logger.WithError(err).Warn("failed to change order status")
		return fmt.Errorf("change status of order %s: %w", id, err)
	}

	c.store.Apply(domain.StatusPatch(id, status), reconcile.SourceMutation)
	c.metrics.RecordMutation(op, "ok")
	logger.Info("order status changed")
	return nil
}

// Delete удаляет заказ и закрывает его карточку, если она открыта.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	const op = "delete"

	if err := c.authorize(); err != nil {
		c.metrics.RecordMutation(op, "denied")
		return err
	}
	if !c.busy.TryAcquire(id) {
		c.metrics.RecordMutation(op, "busy")
		return domain.ErrOperationInProgress
	}
	defer c.busy.Release(id)

	if err := c.api.DeleteOrder(ctx, id); err != nil {
		c.metrics.RecordMutation(op, "error")
		c.logger.WithError(err).WithField("order_id", id).Warn("failed to delete order")
		return fmt.Errorf("delete order %s: %w", id, err)
	}

	c.store.Remove(id)
	c.metrics.RecordMutation(op, "ok")
	c.logger.WithField("order_id", id).Info("order deleted")
	return nil
}

func (c *Coordinator) authorize() error {
	if c.session == nil || !c.session.IsAuthenticated() {
		return domain.ErrNotAuthenticated
	}
	if c.permissions == nil || !c.permissions.RoleHasManagementAccess(strings.TrimSpace(c.session.Role())) {
		return domain.ErrPermissionDenied
	}
	return nil
}
