package draft

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skolist/paperdraft/internal/domain/models"
	"github.com/skolist/paperdraft/internal/realtime"
	"github.com/skolist/paperdraft/internal/storage"
)

const testActivityID = "activity-1"

// countingStorage считает записи позиций поверх MemoryStorage,
// чтобы проверять "границы списка - записей нет".
type countingStorage struct {
	*storage.MemoryStorage
	sectionWrites  atomic.Int64
	questionWrites atomic.Int64
}

func (s *countingStorage) UpdateSectionPosition(ctx context.Context, sectionID string, position int) (*models.Section, error) {
	s.sectionWrites.Add(1)
	return s.MemoryStorage.UpdateSectionPosition(ctx, sectionID, position)
}

func (s *countingStorage) UpdateQuestionPosition(ctx context.Context, questionID string, position int) (*models.Question, error) {
	s.questionWrites.Add(1)
	return s.MemoryStorage.UpdateQuestionPosition(ctx, questionID, position)
}

func newTestEditor(t *testing.T) (*Editor, *countingStorage) {
	t.Helper()

	st := &countingStorage{MemoryStorage: storage.NewMemoryStorage()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	editor := NewEditor(st, log, testActivityID)
	require.NoError(t, editor.Init(context.Background()))
	return editor, st
}

func addQuestions(t *testing.T, editor *Editor, sectionID string, count int) []*models.Question {
	t.Helper()

	questions := make([]*models.Question, 0, count)
	for i := 0; i < count; i++ {
		q, err := editor.AddCustomQuestion(context.Background(), sectionID, models.QuestionTypeShortAnswer)
		require.NoError(t, err)
		questions = append(questions, q)
	}
	return questions
}

func TestInit_CreatesDraftAndDefaultSection(t *testing.T) {
	editor, _ := newTestEditor(t)

	draft := editor.Draft()
	require.NotNil(t, draft)
	assert.Equal(t, testActivityID, draft.ActivityID)
	assert.Equal(t, "Untitled Paper", draft.PaperTitle)

	sections := editor.Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "Section A", sections[0].Name)
	assert.Equal(t, 0, sections[0].PositionInDraft)
}

func TestInit_ReusesExistingDraft(t *testing.T) {
	editor, st := newTestEditor(t)
	first := editor.Draft()

	other := NewEditor(st, slog.New(slog.NewTextHandler(io.Discard, nil)), testActivityID)
	require.NoError(t, other.Init(context.Background()))

	assert.Equal(t, first.ID, other.Draft().ID)
	assert.Len(t, other.Sections(), 1)
}

func TestAddSection_AppendsAtEnd(t *testing.T) {
	editor, _ := newTestEditor(t)

	sec, err := editor.AddSection(context.Background(), "Section B")
	require.NoError(t, err)
	assert.Equal(t, 1, sec.PositionInDraft)

	sections := editor.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, "Section B", sections[1].Name)
}

func TestUpdateSettings_AppliedLocallyAndStored(t *testing.T) {
	editor, st := newTestEditor(t)

	title := "Midterm Paper"
	marks := 100
	err := editor.UpdateSettings(context.Background(), models.DraftSettings{
		PaperTitle:   &title,
		MaximumMarks: &marks,
	})
	require.NoError(t, err)

	assert.Equal(t, "Midterm Paper", editor.Draft().PaperTitle)
	assert.Equal(t, 100, editor.Draft().MaximumMarks)

	stored, err := st.GetDraft(context.Background(), testActivityID)
	require.NoError(t, err)
	assert.Equal(t, "Midterm Paper", stored.PaperTitle)
}

func TestMoveSection_DragLastToFront(t *testing.T) {
	editor, _ := newTestEditor(t)

	b, err := editor.AddSection(context.Background(), "Section B")
	require.NoError(t, err)
	c, err := editor.AddSection(context.Background(), "Section C")
	require.NoError(t, err)
	a := editor.Sections()[0]

	require.NoError(t, editor.MoveSection(context.Background(), c.ID, a.ID))

	sections := editor.Sections()
	require.Len(t, sections, 3)
	assert.Equal(t, c.ID, sections[0].ID)
	assert.Equal(t, a.ID, sections[1].ID)
	assert.Equal(t, b.ID, sections[2].ID)
	for idx, sec := range sections {
		assert.Equal(t, idx, sec.PositionInDraft)
	}
}

func TestMoveSection_StoredPositionsUniqueAndMatch(t *testing.T) {
	editor, st := newTestEditor(t)

	_, err := editor.AddSection(context.Background(), "Section B")
	require.NoError(t, err)
	c, err := editor.AddSection(context.Background(), "Section C")
	require.NoError(t, err)
	a := editor.Sections()[0]

	require.NoError(t, editor.MoveSection(context.Background(), c.ID, a.ID))

	stored, err := st.ListSections(context.Background(), editor.Draft().ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	seen := map[int]bool{}
	for _, sec := range stored {
		assert.False(t, seen[sec.PositionInDraft], "duplicate position %d", sec.PositionInDraft)
		seen[sec.PositionInDraft] = true
	}
	assert.Equal(t, c.ID, stored[0].ID)
}

func TestMoveSection_UnknownIDIsNoop(t *testing.T) {
	editor, st := newTestEditor(t)
	_, err := editor.AddSection(context.Background(), "Section B")
	require.NoError(t, err)

	require.NoError(t, editor.MoveSection(context.Background(), "missing", "also-missing"))
	assert.Equal(t, int64(0), st.sectionWrites.Load())
}

func TestMoveSection_SequenceKeepsUniquePositions(t *testing.T) {
	editor, st := newTestEditor(t)

	for _, name := range []string{"Section B", "Section C", "Section D"} {
		_, err := editor.AddSection(context.Background(), name)
		require.NoError(t, err)
	}

	// Серия перетаскиваний подряд: позиции остаются уникальными.
	ids := func() []string {
		var out []string
		for _, sec := range editor.Sections() {
			out = append(out, sec.ID)
		}
		return out
	}

	order := ids()
	require.NoError(t, editor.MoveSection(context.Background(), order[3], order[0]))
	order = ids()
	require.NoError(t, editor.MoveSection(context.Background(), order[1], order[3]))
	order = ids()
	require.NoError(t, editor.MoveSection(context.Background(), order[0], order[2]))

	stored, err := st.ListSections(context.Background(), editor.Draft().ID)
	require.NoError(t, err)
	require.Len(t, stored, 4)

	seen := map[int]bool{}
	for _, sec := range stored {
		assert.False(t, seen[sec.PositionInDraft])
		seen[sec.PositionInDraft] = true
		assert.GreaterOrEqual(t, sec.PositionInDraft, 0)
		assert.Less(t, sec.PositionInDraft, 4)
	}
}

func TestMoveQuestionUp_SwapsNeighbours(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]
	questions := addQuestions(t, editor, section.ID, 3)

	require.NoError(t, editor.MoveQuestionUp(context.Background(), section.ID, 1))

	got := editor.SectionQuestions(section.ID)
	require.Len(t, got, 3)
	assert.Equal(t, questions[1].ID, got[0].ID)
	assert.Equal(t, questions[0].ID, got[1].ID)
	assert.Equal(t, questions[2].ID, got[2].ID)
}

func TestMoveQuestionUp_TwiceRestoresOrder(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]
	questions := addQuestions(t, editor, section.ID, 2)

	require.NoError(t, editor.MoveQuestionUp(context.Background(), section.ID, 1))
	require.NoError(t, editor.MoveQuestionUp(context.Background(), section.ID, 1))

	got := editor.SectionQuestions(section.ID)
	assert.Equal(t, questions[0].ID, got[0].ID)
	assert.Equal(t, questions[1].ID, got[1].ID)
}

func TestMoveQuestion_BoundariesIssueNoWrites(t *testing.T) {
	editor, st := newTestEditor(t)
	section := editor.Sections()[0]
	addQuestions(t, editor, section.ID, 2)

	// Первый вверх и последний вниз - список не меняется, записей нет.
	require.NoError(t, editor.MoveQuestionUp(context.Background(), section.ID, 0))
	require.NoError(t, editor.MoveQuestionDown(context.Background(), section.ID, 1))
	assert.Equal(t, int64(0), st.questionWrites.Load())
}

func TestMoveQuestionInSection_DragKeepsRelativeOrder(t *testing.T) {
	editor, st := newTestEditor(t)
	section := editor.Sections()[0]
	questions := addQuestions(t, editor, section.ID, 4)

	require.NoError(t, editor.MoveQuestionInSection(context.Background(), section.ID, 0, 3))

	got := editor.SectionQuestions(section.ID)
	require.Len(t, got, 4)
	assert.Equal(t, questions[1].ID, got[0].ID)
	assert.Equal(t, questions[2].ID, got[1].ID)
	assert.Equal(t, questions[3].ID, got[2].ID)
	assert.Equal(t, questions[0].ID, got[3].ID)

	stored, err := st.ListQuestions(context.Background(), testActivityID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, q := range stored {
		require.NotNil(t, q.PositionInSection)
		assert.False(t, seen[*q.PositionInSection])
		seen[*q.PositionInSection] = true
	}
}

func TestRemoveSection_UnassignsQuestions(t *testing.T) {
	editor, st := newTestEditor(t)
	section, err := editor.AddSection(context.Background(), "Section B")
	require.NoError(t, err)
	addQuestions(t, editor, section.ID, 2)

	require.NoError(t, editor.RemoveSection(context.Background(), section.ID))

	// Вопросы живы, FK обнулен, флаг черновика не тронут.
	stored, err := st.ListQuestions(context.Background(), testActivityID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, q := range stored {
		assert.Nil(t, q.SectionID)
		assert.True(t, q.InDraft)
	}

	for _, sec := range editor.Sections() {
		assert.NotEqual(t, section.ID, sec.ID)
	}
}

func TestMoveQuestionToDraft_AppendsToLastSection(t *testing.T) {
	editor, st := newTestEditor(t)
	section := editor.Sections()[0]
	addQuestions(t, editor, section.ID, 2)

	pool, err := st.CreateQuestion(context.Background(), &models.Question{
		ActivityID: testActivityID,
		Text:       "from generation",
		Type:       models.QuestionTypeShortAnswer,
		Hardness:   models.HardnessEasy,
		Marks:      1,
	})
	require.NoError(t, err)
	require.NoError(t, editor.Refresh(context.Background()))

	require.NoError(t, editor.MoveQuestionToDraft(context.Background(), pool.ID))

	got := editor.SectionQuestions(section.ID)
	require.Len(t, got, 3)
	assert.Equal(t, pool.ID, got[2].ID)
	require.NotNil(t, got[2].PositionInSection)
	assert.Equal(t, 2, *got[2].PositionInSection)
	assert.True(t, got[2].InDraft)
}

func TestMoveQuestionToGeneration_ClearsDraftFlag(t *testing.T) {
	editor, st := newTestEditor(t)
	section := editor.Sections()[0]
	questions := addQuestions(t, editor, section.ID, 1)

	require.NoError(t, editor.MoveQuestionToGeneration(context.Background(), questions[0].ID))

	stored, err := st.ListQuestions(context.Background(), testActivityID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].InDraft)

	pool := editor.PoolQuestions()
	require.Len(t, pool, 1)
	assert.Equal(t, questions[0].ID, pool[0].ID)
}

func TestAddCustomQuestion_OptionsOnlyForChoiceTypes(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]

	mcq, err := editor.AddCustomQuestion(context.Background(), section.ID, models.QuestionTypeMCQ4)
	require.NoError(t, err)
	require.NotNil(t, mcq.Option1)
	assert.Equal(t, "", *mcq.Option1)

	short, err := editor.AddCustomQuestion(context.Background(), section.ID, models.QuestionTypeShortAnswer)
	require.NoError(t, err)
	assert.Nil(t, short.Option1)
	assert.Equal(t, models.HardnessMedium, short.Hardness)
	assert.Equal(t, 1, short.Marks)
}

func TestApplyChange_UpdateIsIdempotent(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]
	questions := addQuestions(t, editor, section.ID, 1)

	updated := *questions[0]
	updated.Text = "edited elsewhere"

	change := realtime.Change{
		Op:       realtime.OpUpdate,
		Table:    realtime.TableQuestions,
		ID:       updated.ID,
		Question: &updated,
	}

	editor.ApplyChange(change)
	first := editor.SectionQuestions(section.ID)

	editor.ApplyChange(change)
	second := editor.SectionQuestions(section.ID)

	require.Len(t, second, len(first))
	assert.Equal(t, "edited elsewhere", second[0].Text)
	assert.Equal(t, first[0], second[0])
}

func TestApplyChange_InsertThenEchoKeepsSingleRow(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]

	sectionID := section.ID
	pos := 0
	q := &models.Question{
		ID:                "q-echo",
		ActivityID:        testActivityID,
		Text:              "inserted by feed",
		Type:              models.QuestionTypeShortAnswer,
		Hardness:          models.HardnessEasy,
		Marks:             1,
		InDraft:           true,
		SectionID:         &sectionID,
		PositionInSection: &pos,
	}

	change := realtime.Change{Op: realtime.OpInsert, Table: realtime.TableQuestions, ID: q.ID, Question: q}
	editor.ApplyChange(change)
	editor.ApplyChange(change)

	got := editor.SectionQuestions(section.ID)
	require.Len(t, got, 1)
	assert.Equal(t, "q-echo", got[0].ID)
}

func TestApplyChange_DeleteRemovesQuestion(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]
	questions := addQuestions(t, editor, section.ID, 2)

	change := realtime.Change{Op: realtime.OpDelete, Table: realtime.TableQuestions, ID: questions[0].ID}
	editor.ApplyChange(change)
	editor.ApplyChange(change)

	got := editor.SectionQuestions(section.ID)
	require.Len(t, got, 1)
	assert.Equal(t, questions[1].ID, got[0].ID)
}

func TestApplyChange_SectionUpdateKeepsOrder(t *testing.T) {
	editor, _ := newTestEditor(t)
	b, err := editor.AddSection(context.Background(), "Section B")
	require.NoError(t, err)

	renamed := *b
	renamed.Name = "Section B2"
	editor.ApplyChange(realtime.Change{
		Op:      realtime.OpUpdate,
		Table:   realtime.TableSections,
		ID:      b.ID,
		Section: &renamed,
	})

	sections := editor.Sections()
	require.Len(t, sections, 2)
	assert.Equal(t, "Section B2", sections[1].Name)
}

func TestSectionQuestions_NullPositionSortsDeterministically(t *testing.T) {
	editor, st := newTestEditor(t)
	section := editor.Sections()[0]
	sectionID := section.ID

	// Один вопрос на позиции 0 и один без позиции: пустая позиция
	// читается как 0, ничью решает created_at.
	pos := 0
	first, err := st.CreateQuestion(context.Background(), &models.Question{
		ActivityID:        testActivityID,
		Text:              "positioned",
		Type:              models.QuestionTypeShortAnswer,
		Hardness:          models.HardnessEasy,
		Marks:             1,
		InDraft:           true,
		SectionID:         &sectionID,
		PositionInSection: &pos,
	})
	require.NoError(t, err)

	second, err := st.CreateQuestion(context.Background(), &models.Question{
		ActivityID: testActivityID,
		Text:       "unpositioned",
		Type:       models.QuestionTypeShortAnswer,
		Hardness:   models.HardnessEasy,
		Marks:      1,
		InDraft:    true,
		SectionID:  &sectionID,
	})
	require.NoError(t, err)
	require.NoError(t, editor.Refresh(context.Background()))

	got := editor.SectionQuestions(sectionID)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	// Порядок стабилен между вызовами.
	again := editor.SectionQuestions(sectionID)
	assert.Equal(t, got[0].ID, again[0].ID)
	assert.Equal(t, got[1].ID, again[1].ID)
}

func TestSwapQuestions_NullPositionsDoNotConflict(t *testing.T) {
	editor, st := newTestEditor(t)
	sectionID := editor.Sections()[0].ID

	// Оба вопроса без позиции читаются как 0: обмен равных значений
	// упирался бы в уникальность позиций при записи.
	for _, text := range []string{"first", "second"} {
		_, err := st.CreateQuestion(context.Background(), &models.Question{
			ActivityID: testActivityID,
			Text:       text,
			Type:       models.QuestionTypeShortAnswer,
			Hardness:   models.HardnessEasy,
			Marks:      1,
			InDraft:    true,
			SectionID:  &sectionID,
		})
		require.NoError(t, err)
	}
	require.NoError(t, editor.Refresh(context.Background()))

	before := editor.SectionQuestions(sectionID)
	require.Len(t, before, 2)

	require.NoError(t, editor.MoveQuestionDown(context.Background(), sectionID, 0))

	// Порядок переживает перечитывание из хранилища.
	require.NoError(t, editor.Refresh(context.Background()))
	after := editor.SectionQuestions(sectionID)
	require.Len(t, after, 2)
	assert.Equal(t, before[0].ID, after[1].ID)
	assert.Equal(t, before[1].ID, after[0].ID)

	stored, err := st.ListQuestions(context.Background(), testActivityID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, q := range stored {
		if q.PositionInSection == nil {
			continue
		}
		assert.False(t, seen[*q.PositionInSection], "duplicate position %d", *q.PositionInSection)
		seen[*q.PositionInSection] = true
	}
}

func TestReconciler_DrainsFeedIntoEditor(t *testing.T) {
	editor, _ := newTestEditor(t)
	section := editor.Sections()[0]

	feed := realtime.NewMemoryFeed()
	rec := realtime.NewReconciler(feed, editor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx, testActivityID)
		close(done)
	}()

	sectionID := section.ID
	pos := 0
	generated := &models.Question{
		ID:                "q-feed",
		ActivityID:        testActivityID,
		Text:              "generated",
		Type:              models.QuestionTypeLongAnswer,
		Hardness:          models.HardnessHard,
		Marks:             5,
		InDraft:           true,
		SectionID:         &sectionID,
		PositionInSection: &pos,
	}

	// Публикация повторяется, пока подписка цикла не поднимется:
	// событие, отправленное до Subscribe, теряется, а повторная
	// доставка безвредна.
	require.Eventually(t, func() bool {
		feed.PublishQuestion(realtime.OpInsert, generated)
		return len(editor.SectionQuestions(sectionID)) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
