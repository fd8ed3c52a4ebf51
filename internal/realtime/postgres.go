package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/skolist/paperdraft/internal/domain/models"
)

// Имя канала NOTIFY, в который триггеры базы шлют изменения строк.
const channelName = "draft_changes"

// PostgresFeed реализует Feed через LISTEN/NOTIFY.
// Держит одно выделенное соединение из пула под подписку.
type PostgresFeed struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresFeed создаёт новый PostgresFeed.
func NewPostgresFeed(pool *pgxpool.Pool, log *slog.Logger) *PostgresFeed {
	return &PostgresFeed{
		pool: pool,
		log:  log,
	}
}

// notification повторяет payload триггера notify_draft_change.
type notification struct {
	Op         string          `json:"op"`
	Table      string          `json:"table"`
	ActivityID string          `json:"activity_id"`
	Row        json.RawMessage `json:"row"`
}

type questionRow struct {
	ID                string    `json:"id"`
	ActivityID        string    `json:"activity_id"`
	Text              string    `json:"question_text"`
	Type              string    `json:"question_type"`
	Hardness          string    `json:"hardness_level"`
	Marks             int       `json:"marks"`
	InDraft           bool      `json:"is_in_draft"`
	IsPageBreakBelow  bool      `json:"is_page_break_below"`
	SectionID         *string   `json:"qgen_draft_section_id"`
	PositionInSection *int      `json:"position_in_section"`
	Option1           *string   `json:"option1"`
	Option2           *string   `json:"option2"`
	Option3           *string   `json:"option3"`
	Option4           *string   `json:"option4"`
	CorrectMCQOption  *int      `json:"correct_mcq_option"`
	AnswerText        *string   `json:"answer_text"`
	Explanation       *string   `json:"explanation"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type sectionRow struct {
	ID              string     `json:"id"`
	DraftID         string     `json:"qgen_draft_id"`
	Name            *string    `json:"section_name"`
	PositionInDraft int        `json:"position_in_draft"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// Subscribe возвращает канал изменений для активности.
// Соединение слушает канал базы до отмены контекста.
func (f *PostgresFeed) Subscribe(ctx context.Context, activityID string) (<-chan Change, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "LISTEN "+channelName); err != nil {
		conn.Release()
		return nil, err
	}

	ch := make(chan Change, 64)

	go func() {
		defer close(ch)
		defer conn.Release()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.log.Error("realtime: wait for notification", "error", err)
				}
				return
			}

			change, ok := f.decode(n.Payload, activityID)
			if !ok {
				continue
			}

			select {
			case ch <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// decode разбирает payload уведомления и отбрасывает чужие активности.
func (f *PostgresFeed) decode(payload string, activityID string) (Change, bool) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		f.log.Error("realtime: bad notification payload", "error", err)
		return Change{}, false
	}

	if n.ActivityID != activityID {
		return Change{}, false
	}

	change := Change{Op: Op(n.Op), Table: n.Table}

	switch n.Table {
	case TableQuestions:
		var row questionRow
		if err := json.Unmarshal(n.Row, &row); err != nil {
			f.log.Error("realtime: bad question row", "error", err)
			return Change{}, false
		}
		change.ID = row.ID
		change.Question = &models.Question{
			ID:                row.ID,
			ActivityID:        row.ActivityID,
			Text:              row.Text,
			Type:              row.Type,
			Hardness:          row.Hardness,
			Marks:             row.Marks,
			InDraft:           row.InDraft,
			IsPageBreakBelow:  row.IsPageBreakBelow,
			SectionID:         row.SectionID,
			PositionInSection: row.PositionInSection,
			Option1:           row.Option1,
			Option2:           row.Option2,
			Option3:           row.Option3,
			Option4:           row.Option4,
			CorrectMCQOption:  row.CorrectMCQOption,
			AnswerText:        row.AnswerText,
			Explanation:       row.Explanation,
			CreatedAt:         row.CreatedAt,
			UpdatedAt:         row.UpdatedAt,
		}
	case TableSections:
		var row sectionRow
		if err := json.Unmarshal(n.Row, &row); err != nil {
			f.log.Error("realtime: bad section row", "error", err)
			return Change{}, false
		}
		sec := &models.Section{
			ID:              row.ID,
			DraftID:         row.DraftID,
			PositionInDraft: row.PositionInDraft,
			CreatedAt:       row.CreatedAt,
		}
		if row.Name != nil {
			sec.Name = *row.Name
		}
		if row.UpdatedAt != nil {
			sec.UpdatedAt = *row.UpdatedAt
		} else {
			sec.UpdatedAt = row.CreatedAt
		}
		change.ID = row.ID
		change.Section = sec
	default:
		return Change{}, false
	}

	return change, true
}
