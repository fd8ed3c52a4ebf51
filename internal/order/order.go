package order

// Пакет order считает новые позиции элементов внутри одного набора
// (разделы черновика или вопросы раздела). Логика чистая: на вход
// текущий порядок, на выход минимальный набор изменений позиций.
// Запись изменений в базу выполняет персистер.

// Item представляет элемент упорядоченного набора.
type Item struct {
	ID       string
	Position int
}

// Change представляет новую позицию элемента.
type Change struct {
	ID       string
	Position int
}

// Move перемещает элемент с индекса from на индекс to (drag-and-drop)
// и перенумеровывает весь список в 0..n-1.
// Возвращает изменения только для элементов, чья позиция реально меняется.
// Выход индексов за границы списка и from == to - no-op, изменений нет.
func Move(items []Item, from, to int) []Change {
	n := len(items)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return nil
	}

	moved := items[from]

	rest := make([]Item, 0, n-1)
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)

	reordered := make([]Item, 0, n)
	reordered = append(reordered, rest[:to]...)
	reordered = append(reordered, moved)
	reordered = append(reordered, rest[to:]...)

	return reindex(reordered)
}

// Swap меняет местами позиции элементов с индексами i и j.
// Остальной список не перенумеровывается: два элемента просто
// обмениваются значениями позиций. Выход за границы - no-op.
// Одинаковые позиции (незаполненные, приведённые к нулю) обменивать
// нечем, тогда список перенумеровывается целиком с переставленной парой.
func Swap(items []Item, i, j int) []Change {
	n := len(items)
	if i < 0 || i >= n || j < 0 || j >= n || i == j {
		return nil
	}

	if items[i].Position == items[j].Position {
		reordered := append([]Item(nil), items...)
		reordered[i], reordered[j] = reordered[j], reordered[i]
		return reindex(reordered)
	}

	return []Change{
		{ID: items[i].ID, Position: items[j].Position},
		{ID: items[j].ID, Position: items[i].Position},
	}
}

// Append возвращает позицию для нового элемента в конце списка.
// Для пустого списка это 0.
func Append(items []Item) int {
	return len(items)
}

// reindex присваивает каждому элементу его индекс в списке и отдает
// изменения для тех, у кого позиция отличается от индекса.
func reindex(items []Item) []Change {
	var changes []Change
	for idx, item := range items {
		if item.Position != idx {
			changes = append(changes, Change{ID: item.ID, Position: idx})
		}
	}
	return changes
}
