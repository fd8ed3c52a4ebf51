package draft

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/skolist/paperdraft/internal/order"
)

// Смещение временных позиций фазы подготовки. Лежит заведомо вне
// рабочего диапазона 0..n-1, поэтому временные записи не сталкиваются
// ни со старыми, ни с новыми позициями батча.
const tempPositionOffset = 10000

// positionWriter записывает позицию одной сущности в хранилище.
type positionWriter func(ctx context.Context, id string, position int) error

// persistPositions записывает батч изменений позиций в две фазы, чтобы
// ни одно промежуточное состояние не нарушало уникальность позиции
// внутри набора: база применяет каждую запись отдельно, транзакции
// на весь батч нет.
//
// Фаза 1 уводит всех участников на временные позиции, фаза 2 пишет
// целевые. Записи внутри фазы независимы и идут параллельно, но вторая
// фаза начинается строго после подтверждения всех записей первой.
// Если падает фаза 2, строки остаются на временных позициях - состояние
// видимо неконсистентное, но без дубликатов; лечится перечиткой.
func persistPositions(ctx context.Context, changes []order.Change, write positionWriter) error {
	if len(changes) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, change := range changes {
		i, change := i, change
		g.Go(func() error {
			return write(gctx, change.ID, tempPositionOffset+i)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stage positions: %w", err)
	}

	g, gctx = errgroup.WithContext(ctx)
	for _, change := range changes {
		change := change
		g.Go(func() error {
			return write(gctx, change.ID, change.Position)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("commit positions: %w", err)
	}

	return nil
}
