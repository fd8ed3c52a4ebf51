package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skolist/paperdraft/internal/domain/models"
)

// MemoryStorage реализует Storage в памяти.
// Повторяет поведение базы: проверяет уникальность позиций внутри
// набора и отдает ErrPositionConflict при нарушении.
type MemoryStorage struct {
	drafts    map[string]*models.Draft   // ключ - draftID
	sections  map[string]*models.Section // ключ - sectionID
	questions map[string]*models.Question
	mu        sync.Mutex
}

// NewMemoryStorage создаёт новый MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		drafts:    make(map[string]*models.Draft),
		sections:  make(map[string]*models.Section),
		questions: make(map[string]*models.Question),
	}
}

// GetDraft возвращает черновик активности.
func (s *MemoryStorage) GetDraft(ctx context.Context, activityID string) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.drafts {
		if d.ActivityID == activityID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// CreateDraft создает черновик для активности.
func (s *MemoryStorage) CreateDraft(ctx context.Context, activityID string, title string) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	d := &models.Draft{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		PaperTitle: title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.drafts[d.ID] = d

	copied := *d
	return &copied, nil
}

// UpdateDraftSettings частично обновляет настройки черновика.
func (s *MemoryStorage) UpdateDraftSettings(ctx context.Context, draftID string, settings models.DraftSettings) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[draftID]
	if !ok {
		return nil, ErrNotFound
	}

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
	d.UpdatedAt = time.Now()

	copied := *d
	return &copied, nil
}

// ListSections возвращает разделы черновика по возрастанию позиции.
func (s *MemoryStorage) ListSections(ctx context.Context, draftID string) ([]*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Section
	for _, sec := range s.sections {
		if sec.DraftID == draftID {
			copied := *sec
			result = append(result, &copied)
		}
	}
	sortSections(result)
	return result, nil
}

// CreateSection создает раздел на позиции position.
func (s *MemoryStorage) CreateSection(ctx context.Context, draftID string, position int, name string) (*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sec := range s.sections {
		if sec.DraftID == draftID && sec.PositionInDraft == position {
			return nil, fmt.Errorf("create section at %d: %w", position, ErrPositionConflict)
		}
	}

	now := time.Now()
	sec := &models.Section{
		ID:              uuid.NewString(),
		DraftID:         draftID,
		Name:            name,
		PositionInDraft: position,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.sections[sec.ID] = sec

	copied := *sec
	return &copied, nil
}

// RenameSection переименовывает раздел.
func (s *MemoryStorage) RenameSection(ctx context.Context, sectionID string, name string) (*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[sectionID]
	if !ok {
		return nil, ErrNotFound
	}
	sec.Name = name
	sec.UpdatedAt = time.Now()

	copied := *sec
	return &copied, nil
}

// UpdateSectionPosition записывает новую позицию раздела.
func (s *MemoryStorage) UpdateSectionPosition(ctx context.Context, sectionID string, position int) (*models.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[sectionID]
	if !ok {
		return nil, ErrNotFound
	}

	for _, other := range s.sections {
		if other.ID != sectionID && other.DraftID == sec.DraftID && other.PositionInDraft == position {
			return nil, fmt.Errorf("move section to %d: %w", position, ErrPositionConflict)
		}
	}

	sec.PositionInDraft = position
	sec.UpdatedAt = time.Now()

	copied := *sec
	return &copied, nil
}

// DeleteSection удаляет раздел.
func (s *MemoryStorage) DeleteSection(ctx context.Context, sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sections[sectionID]; !ok {
		return ErrNotFound
	}
	delete(s.sections, sectionID)
	return nil
}

// ListQuestions возвращает вопросы активности по возрастанию created_at.
func (s *MemoryStorage) ListQuestions(ctx context.Context, activityID string) ([]*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Question
	for _, q := range s.questions {
		if q.ActivityID == activityID {
			copied := *q
			result = append(result, &copied)
		}
	}
	sortQuestionsByCreatedAt(result)
	return result, nil
}

// CreateQuestion создает вопрос.
func (s *MemoryStorage) CreateQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *q
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	now := time.Now()
	copied.CreatedAt = now
	copied.UpdatedAt = now

	if err := s.checkQuestionPosition(&copied); err != nil {
		return nil, err
	}

	s.questions[copied.ID] = &copied

	out := copied
	return &out, nil
}

// SaveQuestion обновляет вопрос целиком по его ID.
func (s *MemoryStorage) SaveQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.questions[q.ID]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *q
	copied.CreatedAt = stored.CreatedAt
	copied.UpdatedAt = time.Now()

	if err := s.checkQuestionPosition(&copied); err != nil {
		return nil, err
	}

	s.questions[copied.ID] = &copied

	out := copied
	return &out, nil
}

// UpdateQuestionPosition записывает новую позицию вопроса внутри раздела.
func (s *MemoryStorage) UpdateQuestionPosition(ctx context.Context, questionID string, position int) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}

	updated := *q
	updated.PositionInSection = &position
	if err := s.checkQuestionPosition(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now()
	s.questions[questionID] = &updated

	out := updated
	return &out, nil
}

// MoveQuestionToSection привязывает вопрос к разделу.
func (s *MemoryStorage) MoveQuestionToSection(ctx context.Context, questionID string, sectionID string, position int) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}

	updated := *q
	updated.SectionID = &sectionID
	updated.PositionInSection = &position
	updated.InDraft = true
	if err := s.checkQuestionPosition(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now()
	s.questions[questionID] = &updated

	out := updated
	return &out, nil
}

// MoveQuestionToPool убирает вопрос из черновика.
func (s *MemoryStorage) MoveQuestionToPool(ctx context.Context, questionID string) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}

	updated := *q
	updated.InDraft = false
	updated.UpdatedAt = time.Now()
	s.questions[questionID] = &updated

	out := updated
	return &out, nil
}

// UnassignSectionQuestions отвязывает все вопросы раздела.
func (s *MemoryStorage) UnassignSectionQuestions(ctx context.Context, sectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, q := range s.questions {
		if q.SectionID != nil && *q.SectionID == sectionID {
			updated := *q
			updated.SectionID = nil
			updated.UpdatedAt = time.Now()
			s.questions[id] = &updated
		}
	}
	return nil
}

// DeleteQuestion удаляет вопрос.
func (s *MemoryStorage) DeleteQuestion(ctx context.Context, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[questionID]; !ok {
		return ErrNotFound
	}
	delete(s.questions, questionID)
	return nil
}

// checkQuestionPosition проверяет уникальность (раздел, позиция),
// как это делает уникальный индекс в базе. Вызывать под мьютексом.
func (s *MemoryStorage) checkQuestionPosition(q *models.Question) error {
	if q.SectionID == nil || q.PositionInSection == nil {
		return nil
	}
	for _, other := range s.questions {
		if other.ID == q.ID || other.SectionID == nil || other.PositionInSection == nil {
			continue
		}
		if *other.SectionID == *q.SectionID && *other.PositionInSection == *q.PositionInSection {
			return fmt.Errorf("question position %d in section %s: %w",
				*q.PositionInSection, *q.SectionID, ErrPositionConflict)
		}
	}
	return nil
}

func sortSections(sections []*models.Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].PositionInDraft < sections[j].PositionInDraft
	})
}

func sortQuestionsByCreatedAt(questions []*models.Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})
}
