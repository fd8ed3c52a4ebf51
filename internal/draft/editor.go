package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/skolist/paperdraft/internal/domain/models"
	"github.com/skolist/paperdraft/internal/order"
	"github.com/skolist/paperdraft/internal/realtime"
	"github.com/skolist/paperdraft/internal/storage"
)

// Имена по умолчанию
const (
	defaultPaperTitle   = "Untitled Paper"
	defaultSectionName  = "Section A"
	newSectionName      = "New Section"
	newQuestionText     = "New Question"
	defaultQuestionMark = 1
)

// Editor держит локальное состояние черновика и применяет действия
// пользователя сразу, до подтверждения хранилищем. Хранилище - источник
// истины, но середина операции его не перечитывает: подтвержденное
// состояние возвращается через ответ записи или через realtime-фид.
//
// При ошибке записи локальное состояние назад не откатывается
// (поведение исходной системы): ошибка логируется и возвращается
// вызывающему, привести состояние к серверному можно через Refresh.
type Editor struct {
	store      storage.Storage
	log        *slog.Logger
	activityID string

	mu        sync.Mutex
	draft     *models.Draft
	sections  []*models.Section
	questions []*models.Question
}

// NewEditor создаёт новый Editor для активности.
func NewEditor(store storage.Storage, log *slog.Logger, activityID string) *Editor {
	return &Editor{
		store:      store,
		log:        log,
		activityID: activityID,
	}
}

// Init загружает черновик, разделы и вопросы. Черновик создается
// лениво при первом обращении; пустой черновик получает раздел
// по умолчанию на позиции 0.
func (e *Editor) Init(ctx context.Context) error {
	draft, err := e.store.GetDraft(ctx, e.activityID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("fetch draft: %w", err)
		}
		draft, err = e.store.CreateDraft(ctx, e.activityID, defaultPaperTitle)
		if err != nil {
			return fmt.Errorf("create draft: %w", err)
		}
	}

	sections, err := e.store.ListSections(ctx, draft.ID)
	if err != nil {
		return fmt.Errorf("fetch sections: %w", err)
	}

	if len(sections) == 0 {
		defaultSection, err := e.store.CreateSection(ctx, draft.ID, 0, defaultSectionName)
		if err != nil {
			return fmt.Errorf("create default section: %w", err)
		}
		sections = []*models.Section{defaultSection}
	}

	questions, err := e.store.ListQuestions(ctx, e.activityID)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}

	e.mu.Lock()
	e.draft = draft
	e.sections = sections
	e.questions = questions
	e.mu.Unlock()

	return nil
}

// Refresh перечитывает подтвержденное состояние из хранилища.
// Применяется после ошибки фазы коммита, когда строки могли остаться
// на временных позициях.
func (e *Editor) Refresh(ctx context.Context) error {
	e.mu.Lock()
	draft := e.draft
	e.mu.Unlock()
	if draft == nil {
		return e.Init(ctx)
	}

	sections, err := e.store.ListSections(ctx, draft.ID)
	if err != nil {
		return fmt.Errorf("refresh sections: %w", err)
	}
	questions, err := e.store.ListQuestions(ctx, e.activityID)
	if err != nil {
		return fmt.Errorf("refresh questions: %w", err)
	}

	e.mu.Lock()
	e.sections = sections
	e.questions = questions
	e.mu.Unlock()
	return nil
}

// Draft возвращает копию черновика.
func (e *Editor) Draft() *models.Draft {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft == nil {
		return nil
	}
	copied := *e.draft
	return &copied
}

// Sections возвращает копии разделов в текущем порядке.
func (e *Editor) Sections() []*models.Section {
	e.mu.Lock()
	defer e.mu.Unlock()

	return copySections(e.sections)
}

// SectionQuestions возвращает вопросы раздела по возрастанию позиции.
// Пустая позиция сортируется как 0; при равенстве позиций порядок
// определяет created_at, затем id - сортировка детерминирована.
func (e *Editor) SectionQuestions(sectionID string) []*models.Question {
	e.mu.Lock()
	defer e.mu.Unlock()

	siblings := e.sectionQuestionsLocked(sectionID)
	result := make([]*models.Question, 0, len(siblings))
	for _, q := range siblings {
		copied := *q
		result = append(result, &copied)
	}
	return result
}

// PoolQuestions возвращает вопросы вне черновика (пул генерации)
// по возрастанию created_at.
func (e *Editor) PoolQuestions() []*models.Question {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result []*models.Question
	for _, q := range e.questions {
		if !q.InDraft {
			copied := *q
			result = append(result, &copied)
		}
	}
	return result
}

// UpdateSettings применяет настройки локально и пишет их в хранилище.
func (e *Editor) UpdateSettings(ctx context.Context, settings models.DraftSettings) error {
	e.mu.Lock()
	if e.draft == nil {
		e.mu.Unlock()
		return storage.ErrNotFound
	}
	draftID := e.draft.ID
	applySettings(e.draft, settings)
	e.mu.Unlock()

	updated, err := e.store.UpdateDraftSettings(ctx, draftID, settings)
	if err != nil {
		e.log.Error("update draft settings", "draft_id", draftID, "error", err)
		return err
	}

	e.mu.Lock()
	e.draft = updated
	e.mu.Unlock()
	return nil
}

// AddSection создает раздел в конце черновика.
func (e *Editor) AddSection(ctx context.Context, name string) (*models.Section, error) {
	if name == "" {
		name = newSectionName
	}

	e.mu.Lock()
	if e.draft == nil {
		e.mu.Unlock()
		return nil, storage.ErrNotFound
	}
	draftID := e.draft.ID
	position := len(e.sections)
	e.mu.Unlock()

	section, err := e.store.CreateSection(ctx, draftID, position, name)
	if err != nil {
		e.log.Error("add section", "draft_id", draftID, "error", err)
		return nil, err
	}

	e.mu.Lock()
	e.upsertSectionLocked(section)
	e.mu.Unlock()
	return section, nil
}

// RenameSection переименовывает раздел, сначала локально.
func (e *Editor) RenameSection(ctx context.Context, sectionID string, name string) error {
	e.mu.Lock()
	for _, sec := range e.sections {
		if sec.ID == sectionID {
			sec.Name = name
			break
		}
	}
	e.mu.Unlock()

	if _, err := e.store.RenameSection(ctx, sectionID, name); err != nil {
		e.log.Error("rename section", "section_id", sectionID, "error", err)
		return err
	}
	return nil
}

// RemoveSection удаляет раздел. Вопросы раздела не удаляются:
// они отвязываются (FK обнуляется), флаг черновика не трогается.
func (e *Editor) RemoveSection(ctx context.Context, sectionID string) error {
	e.mu.Lock()
	kept := e.sections[:0]
	for _, sec := range e.sections {
		if sec.ID != sectionID {
			kept = append(kept, sec)
		}
	}
	e.sections = kept
	for _, q := range e.questions {
		if q.SectionID != nil && *q.SectionID == sectionID {
			q.SectionID = nil
		}
	}
	e.mu.Unlock()

	if err := e.store.UnassignSectionQuestions(ctx, sectionID); err != nil {
		e.log.Error("unassign section questions", "section_id", sectionID, "error", err)
		return err
	}
	if err := e.store.DeleteSection(ctx, sectionID); err != nil {
		e.log.Error("delete section", "section_id", sectionID, "error", err)
		return err
	}
	return nil
}

// MoveSection переносит раздел activeID на место раздела overID
// (drag-and-drop). Локально список перенумеровывается в 0..n-1 сразу,
// затем изменения уходят в хранилище двумя фазами.
func (e *Editor) MoveSection(ctx context.Context, activeID string, overID string) error {
	e.mu.Lock()
	from, to := -1, -1
	items := make([]order.Item, len(e.sections))
	for i, sec := range e.sections {
		items[i] = order.Item{ID: sec.ID, Position: sec.PositionInDraft}
		if sec.ID == activeID {
			from = i
		}
		if sec.ID == overID {
			to = i
		}
	}

	changes := order.Move(items, from, to)
	if len(changes) == 0 {
		e.mu.Unlock()
		return nil
	}

	// Оптимистичное применение: порядок слайса и позиции.
	moved := e.sections[from]
	rest := make([]*models.Section, 0, len(e.sections)-1)
	rest = append(rest, e.sections[:from]...)
	rest = append(rest, e.sections[from+1:]...)

	reordered := make([]*models.Section, 0, len(e.sections))
	reordered = append(reordered, rest[:to]...)
	reordered = append(reordered, moved)
	reordered = append(reordered, rest[to:]...)
	for idx, sec := range reordered {
		sec.PositionInDraft = idx
	}
	e.sections = reordered
	e.mu.Unlock()

	err := persistPositions(ctx, changes, func(ctx context.Context, id string, position int) error {
		_, err := e.store.UpdateSectionPosition(ctx, id, position)
		return err
	})
	if err != nil {
		e.log.Error("reorder sections", "activity_id", e.activityID, "error", err)
		return err
	}
	return nil
}

// MoveQuestionUp поднимает вопрос раздела на одну позицию выше.
// Вопрос на первой позиции выше не двигается, записи не идут.
func (e *Editor) MoveQuestionUp(ctx context.Context, sectionID string, index int) error {
	return e.swapQuestions(ctx, sectionID, index, index-1)
}

// MoveQuestionDown опускает вопрос раздела на одну позицию ниже.
// Последний вопрос ниже не двигается, записи не идут.
func (e *Editor) MoveQuestionDown(ctx context.Context, sectionID string, index int) error {
	return e.swapQuestions(ctx, sectionID, index, index+1)
}

// swapQuestions меняет местами позиции двух соседних вопросов раздела.
// Обмениваются только значения позиций, остальной список не трогается.
func (e *Editor) swapQuestions(ctx context.Context, sectionID string, i, j int) error {
	e.mu.Lock()
	siblings := e.sectionQuestionsLocked(sectionID)
	items := make([]order.Item, len(siblings))
	for idx, q := range siblings {
		items[idx] = order.Item{ID: q.ID, Position: q.SortPosition()}
	}

	changes := order.Swap(items, i, j)
	if len(changes) == 0 {
		e.mu.Unlock()
		return nil
	}

	e.applyPositionChangesLocked(changes)
	e.mu.Unlock()

	err := persistPositions(ctx, changes, e.writeQuestionPosition)
	if err != nil {
		e.log.Error("swap questions", "section_id", sectionID, "error", err)
		return err
	}
	return nil
}

// MoveQuestionInSection переносит вопрос раздела с индекса from на
// индекс to (drag-and-drop). Список вопросов раздела перенумеровывается
// в 0..n-1, пишутся только реально изменившиеся позиции.
func (e *Editor) MoveQuestionInSection(ctx context.Context, sectionID string, from, to int) error {
	e.mu.Lock()
	siblings := e.sectionQuestionsLocked(sectionID)
	items := make([]order.Item, len(siblings))
	for idx, q := range siblings {
		items[idx] = order.Item{ID: q.ID, Position: q.SortPosition()}
	}

	changes := order.Move(items, from, to)
	if len(changes) == 0 {
		e.mu.Unlock()
		return nil
	}

	e.applyPositionChangesLocked(changes)
	e.mu.Unlock()

	err := persistPositions(ctx, changes, e.writeQuestionPosition)
	if err != nil {
		e.log.Error("reorder questions", "section_id", sectionID, "error", err)
		return err
	}
	return nil
}

// MoveQuestionToSection привязывает вопрос к разделу на позицию index
// и помечает его входящим в черновик.
func (e *Editor) MoveQuestionToSection(ctx context.Context, questionID string, sectionID string, index int) error {
	e.mu.Lock()
	for _, q := range e.questions {
		if q.ID == questionID {
			q.SectionID = &sectionID
			pos := index
			q.PositionInSection = &pos
			q.InDraft = true
			break
		}
	}
	e.mu.Unlock()

	updated, err := e.store.MoveQuestionToSection(ctx, questionID, sectionID, index)
	if err != nil {
		e.log.Error("move question to section", "question_id", questionID, "error", err)
		return err
	}

	e.mu.Lock()
	e.replaceQuestionLocked(updated)
	e.mu.Unlock()
	return nil
}

// MoveQuestionToDraft переносит вопрос из пула генерации в черновик:
// в конец последнего раздела, позиция - следующий индекс.
// Раздел по умолчанию создается, если разделов нет.
func (e *Editor) MoveQuestionToDraft(ctx context.Context, questionID string) error {
	e.mu.Lock()
	if e.draft == nil {
		e.mu.Unlock()
		return storage.ErrNotFound
	}
	draftID := e.draft.ID
	var target *models.Section
	if len(e.sections) > 0 {
		target = e.sections[len(e.sections)-1]
	}
	e.mu.Unlock()

	if target == nil {
		created, err := e.store.CreateSection(ctx, draftID, 0, defaultSectionName)
		if err != nil {
			e.log.Error("create default section", "draft_id", draftID, "error", err)
			return err
		}
		e.mu.Lock()
		e.upsertSectionLocked(created)
		e.mu.Unlock()
		target = created
	}

	e.mu.Lock()
	position := len(e.sectionQuestionsLocked(target.ID))
	e.mu.Unlock()

	return e.MoveQuestionToSection(ctx, questionID, target.ID, position)
}

// MoveQuestionToGeneration возвращает вопрос из черновика в пул.
func (e *Editor) MoveQuestionToGeneration(ctx context.Context, questionID string) error {
	e.mu.Lock()
	for _, q := range e.questions {
		if q.ID == questionID {
			q.InDraft = false
			break
		}
	}
	e.mu.Unlock()

	if _, err := e.store.MoveQuestionToPool(ctx, questionID); err != nil {
		e.log.Error("move question to pool", "question_id", questionID, "error", err)
		return err
	}
	return nil
}

// AddCustomQuestion создает вопрос вручную в конце раздела.
// Вопросам с вариантами ответа заполняются пустые option1..option4.
func (e *Editor) AddCustomQuestion(ctx context.Context, sectionID string, questionType string) (*models.Question, error) {
	e.mu.Lock()
	position := len(e.sectionQuestionsLocked(sectionID))
	e.mu.Unlock()

	q := &models.Question{
		ActivityID:        e.activityID,
		Text:              newQuestionText,
		Type:              questionType,
		Hardness:          models.HardnessMedium,
		Marks:             defaultQuestionMark,
		InDraft:           true,
		SectionID:         &sectionID,
		PositionInSection: &position,
	}
	if models.HasOptions(questionType) {
		empty := ""
		q.Option1, q.Option2, q.Option3, q.Option4 = &empty, &empty, &empty, &empty
	}

	created, err := e.store.CreateQuestion(ctx, q)
	if err != nil {
		e.log.Error("add custom question", "section_id", sectionID, "error", err)
		return nil, err
	}

	e.mu.Lock()
	e.replaceQuestionLocked(created)
	e.mu.Unlock()
	return created, nil
}

// SaveQuestion обновляет вопрос целиком, сначала локально.
func (e *Editor) SaveQuestion(ctx context.Context, q *models.Question) error {
	copied := *q
	e.mu.Lock()
	e.replaceQuestionLocked(&copied)
	e.mu.Unlock()

	updated, err := e.store.SaveQuestion(ctx, q)
	if err != nil {
		e.log.Error("save question", "question_id", q.ID, "error", err)
		return err
	}

	e.mu.Lock()
	e.replaceQuestionLocked(updated)
	e.mu.Unlock()
	return nil
}

// DeleteQuestion удаляет вопрос, сначала локально.
func (e *Editor) DeleteQuestion(ctx context.Context, questionID string) error {
	e.mu.Lock()
	kept := e.questions[:0]
	for _, q := range e.questions {
		if q.ID != questionID {
			kept = append(kept, q)
		}
	}
	e.questions = kept
	e.mu.Unlock()

	if err := e.store.DeleteQuestion(ctx, questionID); err != nil {
		e.log.Error("delete question", "question_id", questionID, "error", err)
		return err
	}
	return nil
}

// ApplyChange складывает изменение из realtime-фида в локальное
// состояние. Сопоставление по первичному ключу, строка заменяется
// целиком, поэтому повторная доставка и эхо собственных записей
// безвредны.
func (e *Editor) ApplyChange(change realtime.Change) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch change.Table {
	case realtime.TableQuestions:
		switch change.Op {
		case realtime.OpInsert, realtime.OpUpdate:
			if change.Question != nil {
				copied := *change.Question
				e.replaceQuestionLocked(&copied)
			}
		case realtime.OpDelete:
			kept := e.questions[:0]
			for _, q := range e.questions {
				if q.ID != change.ID {
					kept = append(kept, q)
				}
			}
			e.questions = kept
		}
	case realtime.TableSections:
		switch change.Op {
		case realtime.OpInsert, realtime.OpUpdate:
			if change.Section != nil {
				copied := *change.Section
				e.upsertSectionLocked(&copied)
			}
		case realtime.OpDelete:
			kept := e.sections[:0]
			for _, sec := range e.sections {
				if sec.ID != change.ID {
					kept = append(kept, sec)
				}
			}
			e.sections = kept
		}
	}
}

// writeQuestionPosition - positionWriter поверх хранилища вопросов.
func (e *Editor) writeQuestionPosition(ctx context.Context, id string, position int) error {
	_, err := e.store.UpdateQuestionPosition(ctx, id, position)
	return err
}

// sectionQuestionsLocked отдает отсортированные вопросы раздела.
// Вызывать под мьютексом.
func (e *Editor) sectionQuestionsLocked(sectionID string) []*models.Question {
	var result []*models.Question
	for _, q := range e.questions {
		if q.InDraft && q.SectionID != nil && *q.SectionID == sectionID {
			result = append(result, q)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		pi, pj := result[i].SortPosition(), result[j].SortPosition()
		if pi != pj {
			return pi < pj
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// applyPositionChangesLocked записывает новые позиции вопросов
// в локальное состояние. Вызывать под мьютексом.
func (e *Editor) applyPositionChangesLocked(changes []order.Change) {
	byID := make(map[string]int, len(changes))
	for _, ch := range changes {
		byID[ch.ID] = ch.Position
	}
	for _, q := range e.questions {
		if pos, ok := byID[q.ID]; ok {
			p := pos
			q.PositionInSection = &p
		}
	}
}

// replaceQuestionLocked заменяет вопрос по ID или добавляет новый.
// Вызывать под мьютексом.
func (e *Editor) replaceQuestionLocked(q *models.Question) {
	for i, existing := range e.questions {
		if existing.ID == q.ID {
			e.questions[i] = q
			return
		}
	}
	e.questions = append(e.questions, q)
}

// upsertSectionLocked заменяет раздел по ID или добавляет новый,
// поддерживая порядок по позиции. Вызывать под мьютексом.
func (e *Editor) upsertSectionLocked(section *models.Section) {
	replaced := false
	for i, existing := range e.sections {
		if existing.ID == section.ID {
			e.sections[i] = section
			replaced = true
			break
		}
	}
	if !replaced {
		e.sections = append(e.sections, section)
	}
	sort.SliceStable(e.sections, func(i, j int) bool {
		return e.sections[i].PositionInDraft < e.sections[j].PositionInDraft
	})
}

func applySettings(d *models.Draft, settings models.DraftSettings) {
	if settings.PaperTitle != nil {
		d.PaperTitle = *settings.PaperTitle
	}
	if settings.PaperSubtitle != nil {
		d.PaperSubtitle = *settings.PaperSubtitle
	}
	if settings.InstituteName != nil {
		d.InstituteName = *settings.InstituteName
	}
	if settings.PaperDuration != nil {
		d.PaperDuration = *settings.PaperDuration
	}
	if settings.MaximumMarks != nil {
		d.MaximumMarks = *settings.MaximumMarks
	}
}

func copySections(sections []*models.Section) []*models.Section {
	result := make([]*models.Section, 0, len(sections))
	for _, sec := range sections {
		copied := *sec
		result = append(result, &copied)
	}
	return result
}
