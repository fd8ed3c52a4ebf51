package realtime

import (
	"context"

	"github.com/skolist/paperdraft/internal/domain/models"
)

// Пакет realtime доставляет изменения строк из базы подписчикам.
// Фид отдает и эхо собственных записей клиента, поэтому применение
// изменений обязано быть идемпотентным.

// Op определяет тип изменения строки.
type Op string

// Типы изменений
const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Таблицы, по которым идут изменения
const (
	TableQuestions = "gen_questions"
	TableSections  = "qgen_draft_sections"
)

// Change представляет одно изменение строки.
// Для вопросов заполнен Question, для разделов - Section.
// Для OpDelete достаточно ID.
type Change struct {
	Op       Op
	Table    string
	ID       string
	Question *models.Question
	Section  *models.Section
}

// Feed определяет интерфейс подписки на изменения в рамках активности.
type Feed interface {
	// Subscribe возвращает канал изменений для активности.
	// Канал закрывается при отмене контекста.
	Subscribe(ctx context.Context, activityID string) (<-chan Change, error)
}

// Applier принимает изменения. Реализуется редактором черновика.
type Applier interface {
	ApplyChange(change Change)
}

// Reconciler вычитывает фид и складывает изменения в локальное состояние.
type Reconciler struct {
	feed    Feed
	applier Applier
}

// NewReconciler создает новый Reconciler.
func NewReconciler(feed Feed, applier Applier) *Reconciler {
	return &Reconciler{
		feed:    feed,
		applier: applier,
	}
}

// Run подписывается на изменения активности и применяет их до отмены
// контекста или закрытия фида.
func (r *Reconciler) Run(ctx context.Context, activityID string) error {
	changes, err := r.feed.Subscribe(ctx, activityID)
	if err != nil {
		return err
	}
	return r.Drain(ctx, changes)
}

// Drain применяет изменения из уже открытой подписки.
// Подписку можно открыть заранее, чтобы строки, записанные между
// запуском внешней операции и стартом цикла, не терялись.
func (r *Reconciler) Drain(ctx context.Context, changes <-chan Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			r.applier.ApplyChange(change)
		}
	}
}
