package realtime

import (
	"context"
	"sync"

	"github.com/skolist/paperdraft/internal/domain/models"
)

// MemoryFeed реализует Feed в памяти. Используется в тестах
// и при локальном запуске без базы.
type MemoryFeed struct {
	subs map[int]subscriber
	next int
	mu   sync.Mutex
}

type subscriber struct {
	activityID string
	ch         chan Change
}

// NewMemoryFeed создаёт новый MemoryFeed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subs: make(map[int]subscriber),
	}
}

// Subscribe возвращает канал изменений для активности.
func (f *MemoryFeed) Subscribe(ctx context.Context, activityID string) (<-chan Change, error) {
	f.mu.Lock()
	id := f.next
	f.next++
	ch := make(chan Change, 64)
	f.subs[id] = subscriber{activityID: activityID, ch: ch}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Publish рассылает изменение подписчикам активности.
// Не блокируется: при переполненном буфере подписчика событие теряется.
func (f *MemoryFeed) Publish(activityID string, change Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		if sub.activityID != activityID {
			continue
		}
		select {
		case sub.ch <- change:
		default:
		}
	}
}

// PublishQuestion - помощник для рассылки изменения вопроса.
func (f *MemoryFeed) PublishQuestion(op Op, q *models.Question) {
	f.Publish(q.ActivityID, Change{
		Op:       op,
		Table:    TableQuestions,
		ID:       q.ID,
		Question: q,
	})
}
