package storage

import (
	"context"
	"errors"

	"github.com/skolist/paperdraft/internal/domain/models"
)

// Ошибки хранилища
var (
	// ErrNotFound возвращается, когда строка не найдена.
	ErrNotFound = errors.New("not found")

	// ErrPositionConflict возвращается при нарушении уникальности
	// позиции внутри набора (два раздела или два вопроса на одной позиции).
	ErrPositionConflict = errors.New("position conflict")
)

// Storage определяет интерфейс для хранения данных черновика.
// Каждая операция - одно атомарное обновление строк, транзакций
// между вызовами хранилище не дает.
type Storage interface {
	// GetDraft возвращает черновик активности. ErrNotFound, если его нет.
	GetDraft(ctx context.Context, activityID string) (*models.Draft, error)

	// CreateDraft создает черновик для активности.
	CreateDraft(ctx context.Context, activityID string, title string) (*models.Draft, error)

	// UpdateDraftSettings частично обновляет настройки черновика.
	UpdateDraftSettings(ctx context.Context, draftID string, settings models.DraftSettings) (*models.Draft, error)

	// ListSections возвращает разделы черновика по возрастанию позиции.
	ListSections(ctx context.Context, draftID string) ([]*models.Section, error)

	// CreateSection создает раздел на позиции position.
	CreateSection(ctx context.Context, draftID string, position int, name string) (*models.Section, error)

	// RenameSection переименовывает раздел.
	RenameSection(ctx context.Context, sectionID string, name string) (*models.Section, error)

	// UpdateSectionPosition записывает новую позицию раздела.
	UpdateSectionPosition(ctx context.Context, sectionID string, position int) (*models.Section, error)

	// DeleteSection удаляет раздел. Вопросы раздела должны быть
	// отвязаны заранее через UnassignSectionQuestions.
	DeleteSection(ctx context.Context, sectionID string) error

	// ListQuestions возвращает вопросы активности по возрастанию created_at.
	ListQuestions(ctx context.Context, activityID string) ([]*models.Question, error)

	// CreateQuestion создает вопрос.
	CreateQuestion(ctx context.Context, q *models.Question) (*models.Question, error)

	// SaveQuestion обновляет вопрос целиком по его ID.
	SaveQuestion(ctx context.Context, q *models.Question) (*models.Question, error)

	// UpdateQuestionPosition записывает новую позицию вопроса внутри раздела.
	UpdateQuestionPosition(ctx context.Context, questionID string, position int) (*models.Question, error)

	// MoveQuestionToSection привязывает вопрос к разделу на позицию position
	// и помечает его как входящий в черновик.
	MoveQuestionToSection(ctx context.Context, questionID string, sectionID string, position int) (*models.Question, error)

	// MoveQuestionToPool убирает вопрос из черновика обратно в пул генерации.
	MoveQuestionToPool(ctx context.Context, questionID string) (*models.Question, error)

	// UnassignSectionQuestions отвязывает все вопросы раздела (обнуляет FK),
	// не удаляя их и не трогая флаг черновика.
	UnassignSectionQuestions(ctx context.Context, sectionID string) error

	// DeleteQuestion удаляет вопрос.
	DeleteQuestion(ctx context.Context, questionID string) error
}
