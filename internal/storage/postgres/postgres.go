package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/skolist/paperdraft/internal/domain/models"
	"github.com/skolist/paperdraft/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Код ошибки postgres о нарушении уникального ограничения.
const uniqueViolationCode = "23505"

// Storage реализует storage.Storage поверх postgres.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage подключается к базе по dsn и возвращает хранилище.
func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Storage{pool: pool}, nil
}

// EnsureSchema применяет схему. Повторный вызов безопасен.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.pool.Close()
}

// Pool отдает пул соединений. Нужен realtime-подписке,
// которая держит отдельное соединение под LISTEN.
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

const draftColumns = `id, activity_id, COALESCE(paper_title, ''), COALESCE(paper_subtitle, ''),
	COALESCE(institute_name, ''), COALESCE(paper_duration, ''), COALESCE(maximum_marks, 0),
	created_at, updated_at`

// GetDraft возвращает черновик активности.
func (s *Storage) GetDraft(ctx context.Context, activityID string) (*models.Draft, error) {
	query := `
	SELECT ` + draftColumns + ` FROM qgen_drafts WHERE activity_id = $1
	`

	d := &models.Draft{}
	err := s.pool.QueryRow(ctx, query, activityID).Scan(
		&d.ID, &d.ActivityID, &d.PaperTitle, &d.PaperSubtitle,
		&d.InstituteName, &d.PaperDuration, &d.MaximumMarks,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	return d, nil
}

// CreateDraft создает черновик для активности.
func (s *Storage) CreateDraft(ctx context.Context, activityID string, title string) (*models.Draft, error) {
	query := `
	INSERT INTO qgen_drafts (activity_id, paper_title) VALUES ($1, $2)
	RETURNING ` + draftColumns + `
	`

	d := &models.Draft{}
	err := s.pool.QueryRow(ctx, query, activityID, title).Scan(
		&d.ID, &d.ActivityID, &d.PaperTitle, &d.PaperSubtitle,
		&d.InstituteName, &d.PaperDuration, &d.MaximumMarks,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	return d, nil
}

// UpdateDraftSettings частично обновляет настройки черновика.
// Собирает SET только из заполненных полей.
func (s *Storage) UpdateDraftSettings(ctx context.Context, draftID string, settings models.DraftSettings) (*models.Draft, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{draftID}

	addSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if settings.PaperTitle != nil {
		addSet("paper_title", *settings.PaperTitle)
	}
	if settings.PaperSubtitle != nil {
		addSet("paper_subtitle", *settings.PaperSubtitle)
	}
	if settings.InstituteName != nil {
		addSet("institute_name", *settings.InstituteName)
	}
	if settings.PaperDuration != nil {
		addSet("paper_duration", *settings.PaperDuration)
	}
	if settings.MaximumMarks != nil {
		addSet("maximum_marks", *settings.MaximumMarks)
	}

	query := `
	UPDATE qgen_drafts SET ` + strings.Join(sets, ", ") + `
	WHERE id = $1
	RETURNING ` + draftColumns + `
	`

	d := &models.Draft{}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&d.ID, &d.ActivityID, &d.PaperTitle, &d.PaperSubtitle,
		&d.InstituteName, &d.PaperDuration, &d.MaximumMarks,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	return d, nil
}

const sectionColumns = `id, qgen_draft_id, COALESCE(section_name, ''), position_in_draft,
	created_at, COALESCE(updated_at, created_at)`

func scanSection(row pgx.Row) (*models.Section, error) {
	sec := &models.Section{}
	err := row.Scan(
		&sec.ID, &sec.DraftID, &sec.Name, &sec.PositionInDraft,
		&sec.CreatedAt, &sec.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	return sec, nil
}

// ListSections возвращает разделы черновика по возрастанию позиции.
func (s *Storage) ListSections(ctx context.Context, draftID string) ([]*models.Section, error) {
	query := `
	SELECT ` + sectionColumns + ` FROM qgen_draft_sections
	WHERE qgen_draft_id = $1
	ORDER BY position_in_draft ASC
	`

	rows, err := s.pool.Query(ctx, query, draftID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var sections []*models.Section
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// CreateSection создает раздел на позиции position.
func (s *Storage) CreateSection(ctx context.Context, draftID string, position int, name string) (*models.Section, error) {
	query := `
	INSERT INTO qgen_draft_sections (qgen_draft_id, position_in_draft, section_name)
	VALUES ($1, $2, $3)
	RETURNING ` + sectionColumns + `
	`

	return scanSection(s.pool.QueryRow(ctx, query, draftID, position, name))
}

// RenameSection переименовывает раздел.
func (s *Storage) RenameSection(ctx context.Context, sectionID string, name string) (*models.Section, error) {
	query := `
	UPDATE qgen_draft_sections SET section_name = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + sectionColumns + `
	`

	return scanSection(s.pool.QueryRow(ctx, query, sectionID, name))
}

// UpdateSectionPosition записывает новую позицию раздела.
func (s *Storage) UpdateSectionPosition(ctx context.Context, sectionID string, position int) (*models.Section, error) {
	query := `
	UPDATE qgen_draft_sections SET position_in_draft = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + sectionColumns + `
	`

	return scanSection(s.pool.QueryRow(ctx, query, sectionID, position))
}

// DeleteSection удаляет раздел.
func (s *Storage) DeleteSection(ctx context.Context, sectionID string) error {
	query := `
	DELETE FROM qgen_draft_sections WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, sectionID)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const questionColumns = `id, activity_id, COALESCE(question_text, ''), question_type, hardness_level,
	marks, is_in_draft, is_page_break_below, qgen_draft_section_id, position_in_section,
	option1, option2, option3, option4, correct_mcq_option, answer_text, explanation,
	created_at, updated_at`

func scanQuestion(row pgx.Row) (*models.Question, error) {
	q := &models.Question{}
	err := row.Scan(
		&q.ID, &q.ActivityID, &q.Text, &q.Type, &q.Hardness,
		&q.Marks, &q.InDraft, &q.IsPageBreakBelow, &q.SectionID, &q.PositionInSection,
		&q.Option1, &q.Option2, &q.Option3, &q.Option4,
		&q.CorrectMCQOption, &q.AnswerText, &q.Explanation,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}
	return q, nil
}

// ListQuestions возвращает вопросы активности по возрастанию created_at.
func (s *Storage) ListQuestions(ctx context.Context, activityID string) ([]*models.Question, error) {
	query := `
	SELECT ` + questionColumns + ` FROM gen_questions
	WHERE activity_id = $1
	ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, activityID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateQuestion создает вопрос.
func (s *Storage) CreateQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	query := `
	INSERT INTO gen_questions (activity_id, question_text, question_type, hardness_level,
		marks, is_in_draft, is_page_break_below, qgen_draft_section_id, position_in_section,
		option1, option2, option3, option4, correct_mcq_option, answer_text, explanation)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING ` + questionColumns + `
	`

	return scanQuestion(s.pool.QueryRow(ctx, query,
		q.ActivityID, q.Text, q.Type, q.Hardness,
		q.Marks, q.InDraft, q.IsPageBreakBelow, q.SectionID, q.PositionInSection,
		q.Option1, q.Option2, q.Option3, q.Option4,
		q.CorrectMCQOption, q.AnswerText, q.Explanation,
	))
}

// SaveQuestion обновляет вопрос целиком по его ID.
func (s *Storage) SaveQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	query := `
	UPDATE gen_questions SET question_text = $2, question_type = $3, hardness_level = $4,
		marks = $5, is_in_draft = $6, is_page_break_below = $7,
		qgen_draft_section_id = $8, position_in_section = $9,
		option1 = $10, option2 = $11, option3 = $12, option4 = $13,
		correct_mcq_option = $14, answer_text = $15, explanation = $16,
		updated_at = now()
	WHERE id = $1
	RETURNING ` + questionColumns + `
	`

	return scanQuestion(s.pool.QueryRow(ctx, query,
		q.ID, q.Text, q.Type, q.Hardness,
		q.Marks, q.InDraft, q.IsPageBreakBelow, q.SectionID, q.PositionInSection,
		q.Option1, q.Option2, q.Option3, q.Option4,
		q.CorrectMCQOption, q.AnswerText, q.Explanation,
	))
}

// UpdateQuestionPosition записывает новую позицию вопроса внутри раздела.
func (s *Storage) UpdateQuestionPosition(ctx context.Context, questionID string, position int) (*models.Question, error) {
	query := `
	UPDATE gen_questions SET position_in_section = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + questionColumns + `
	`

	return scanQuestion(s.pool.QueryRow(ctx, query, questionID, position))
}

// MoveQuestionToSection привязывает вопрос к разделу.
func (s *Storage) MoveQuestionToSection(ctx context.Context, questionID string, sectionID string, position int) (*models.Question, error) {
	query := `
	UPDATE gen_questions SET qgen_draft_section_id = $2, position_in_section = $3,
		is_in_draft = true, updated_at = now()
	WHERE id = $1
	RETURNING ` + questionColumns + `
	`

	return scanQuestion(s.pool.QueryRow(ctx, query, questionID, sectionID, position))
}

// MoveQuestionToPool убирает вопрос из черновика.
func (s *Storage) MoveQuestionToPool(ctx context.Context, questionID string) (*models.Question, error) {
	query := `
	UPDATE gen_questions SET is_in_draft = false, updated_at = now()
	WHERE id = $1
	RETURNING ` + questionColumns + `
	`

	return scanQuestion(s.pool.QueryRow(ctx, query, questionID))
}

// UnassignSectionQuestions отвязывает все вопросы раздела.
func (s *Storage) UnassignSectionQuestions(ctx context.Context, sectionID string) error {
	query := `
	UPDATE gen_questions SET qgen_draft_section_id = NULL, updated_at = now()
	WHERE qgen_draft_section_id = $1
	`

	_, err := s.pool.Exec(ctx, query, sectionID)
	return wrapErr(err)
}

// DeleteQuestion удаляет вопрос.
func (s *Storage) DeleteQuestion(ctx context.Context, questionID string) error {
	query := `
	DELETE FROM gen_questions WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, questionID)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// wrapErr переводит ошибки драйвера в ошибки пакета storage.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", storage.ErrPositionConflict, pgErr.ConstraintName)
	}
	return err
}
