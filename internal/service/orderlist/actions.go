package orderlist

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/reconcile"
)

// Page возвращает номер текущей страницы.
func (s *Screen) Page() int {
	m := s.mounted()
	if m == nil {
		return 1
	}
	return m.fetcher.Page()
}

// HasMore сообщает, была ли последняя страница заполнена целиком.
func (s *Screen) HasMore() bool {
	m := s.mounted()
	if m == nil {
		return false
	}
	return m.fetcher.HasMore()
}

// Query возвращает параметры текущего запроса страницы.
func (s *Screen) Query() domain.ListQuery {
	m := s.mounted()
	if m == nil {
		return domain.ListQuery{}
	}
	return m.fetcher.Query()
}

// NextPage переходит на следующую страницу. Если страница была неполной,
// запроса нет.
func (s *Screen) NextPage(ctx context.Context) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if !m.fetcher.NextPage() {
		return nil
	}
	return s.load(ctx, m, reloadPage)
}

// PrevPage переходит на предыдущую страницу. На первой странице ничего не делает.
func (s *Screen) PrevPage(ctx context.Context) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if !m.fetcher.PrevPage() {
		return nil
	}
	return s.load(ctx, m, reloadPage)
}

// SetPage переходит на страницу n (с 1).
func (s *Screen) SetPage(ctx context.Context, n int) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if err := m.fetcher.SetPage(n); err != nil {
		return err
	}
	return s.load(ctx, m, reloadPage)
}

// SetFilter меняет фильтр и возвращает на первую страницу.
func (s *Screen) SetFilter(ctx context.Context, filter domain.Filter) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	m.fetcher.SetFilter(filter)
	return s.load(ctx, m, reloadFilter)
}

// Refresh увеличивает ключ обновления и перезагружает текущую страницу.
func (s *Screen) Refresh(ctx context.Context) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	s.refreshKey.Add(1)
	return s.load(ctx, m, reloadManual)
}

// OpenDetail открывает карточку заказа и в фоне догружает полную запись.
// Ответ, пришедший после закрытия или смены карточки, отбрасывается.
func (s *Screen) OpenDetail(id string) (domain.Order, error) {
	m, err := s.require()
	if err != nil {
		return domain.Order{}, err
	}
	// Повторное открытие догружаемой карточки ничего не меняет.
	if m.detailInFlight.Has(id) && m.collection.DetailShows(id) {
		if detail, ok := m.collection.Detail(); ok {
			return detail, nil
		}
	}
	order := m.collection.OpenDetail(id)
	s.notify()

	if !m.detailInFlight.TryAcquire(id) {
		return order, nil
	}
	started := m.track(func() {
		defer m.detailInFlight.Release(id)
		defer s.notify()

		patch, err := s.deps.API.GetOrder(m.ctx, id)
		if !m.collection.DetailShows(id) {
			s.logger.WithField("order_id", id).Debug("detail response dropped: modal closed")
			return
		}
		if err != nil {
			s.setError(fmt.Errorf("load order %s: %w", id, err))
			return
		}
		m.collection.Apply(patch, reconcile.SourceDetail)
	})
	if !started {
		m.detailInFlight.Release(id)
	}
	return order, nil
}

// CloseDetail закрывает карточку.
func (s *Screen) CloseDetail() {
	m := s.mounted()
	if m == nil {
		return
	}
	m.collection.CloseDetail()
}

// Detail возвращает открытую карточку.
func (s *Screen) Detail() (domain.Order, bool) {
	m := s.mounted()
	if m == nil {
		return domain.Order{}, false
	}
	return m.collection.Detail()
}

// DetailLoading сообщает, догружается ли открытая карточка.
func (s *Screen) DetailLoading() bool {
	m := s.mounted()
	if m == nil {
		return false
	}
	detail, ok := m.collection.Detail()
	return ok && m.detailInFlight.Has(detail.ID)
}

// ChangeStatus меняет статус заказа через бэкенд.
func (s *Screen) ChangeStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if err := m.coordinator.ChangeStatus(ctx, id, status); err != nil {
		s.setError(err)
		return err
	}
	return nil
}

// Delete удаляет заказ через бэкенд.
func (s *Screen) Delete(ctx context.Context, id string) error {
	m, err := s.require()
	if err != nil {
		return err
	}
	if err := m.coordinator.Delete(ctx, id); err != nil {
		s.setError(err)
		return err
	}
	s.logger.WithFields(log.Fields{"order_id": id, "remaining": m.collection.Len()}).Debug("order removed from list")
	return nil
}

// Busy сообщает, выполняется ли изменение или удаление заказа.
func (s *Screen) Busy(id string) bool {
	m := s.mounted()
	if m == nil {
		return false
	}
	return m.coordinator.Busy(id)
}
