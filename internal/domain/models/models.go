package models

import (
	"time"
)

// Файл для работы с моделями черновика, которые доступны извне.
// Редактор и хранилище обмениваются экземплярами этих моделей,
// поля соответствуют колонкам таблиц в базе данных.

// Типы вопросов
const (
	QuestionTypeMCQ4            = "mcq4"
	QuestionTypeMSQ4            = "msq4"
	QuestionTypeShortAnswer     = "short_answer"
	QuestionTypeTrueOrFalse     = "true_or_false"
	QuestionTypeFillInTheBlanks = "fill_in_the_blanks"
	QuestionTypeLongAnswer      = "long_answer"
)

// Уровни сложности
const (
	HardnessEasy   = "easy"
	HardnessMedium = "medium"
	HardnessHard   = "hard"
)

// Draft определяет модель для таблицы qgen_drafts.
// Черновик создается лениво при первом обращении, один на активность.
type Draft struct {
	ID            string
	ActivityID    string
	PaperTitle    string
	PaperSubtitle string
	InstituteName string
	PaperDuration string
	MaximumMarks  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DraftSettings определяет частичное обновление настроек черновика.
// nil-поле означает "не трогать колонку".
type DraftSettings struct {
	PaperTitle    *string
	PaperSubtitle *string
	InstituteName *string
	PaperDuration *string
	MaximumMarks  *int
}

// Section определяет модель для таблицы qgen_draft_sections.
// PositionInDraft уникальна в пределах одного черновика.
type Section struct {
	ID              string
	DraftID         string
	Name            string
	PositionInDraft int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Question определяет модель для таблицы gen_questions.
// SectionID и PositionInSection - nullable: вопрос может существовать
// без привязки к разделу ("в пуле генерации"). InDraft - отдельный флаг
// принадлежности черновику, независимый от привязки к разделу.
type Question struct {
	ID                string
	ActivityID        string
	Text              string
	Type              string
	Hardness          string
	Marks             int
	InDraft           bool
	IsPageBreakBelow  bool
	SectionID         *string
	PositionInSection *int
	Option1           *string
	Option2           *string
	Option3           *string
	Option4           *string
	CorrectMCQOption  *int
	AnswerText        *string
	Explanation       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SortPosition возвращает позицию вопроса для сортировки внутри раздела.
// Незаполненная позиция считается нулём, как и в интерфейсе.
func (q *Question) SortPosition() int {
	if q.PositionInSection == nil {
		return 0
	}
	return *q.PositionInSection
}

// HasOptions сообщает, нужны ли вопросу варианты ответа.
func HasOptions(questionType string) bool {
	return questionType == QuestionTypeMCQ4 || questionType == QuestionTypeMSQ4
}
