package crdt

// Typed layer handles. Each handle is bound to its replica and mutates the
// shared automerge document; every successful mutation synchronously emits a
// local change event carrying the incremental delta.

// Text is a collaborative text sequence. Positions are rune offsets.
type Text struct {
	doc  *Document
	name string
}

func (t *Text) Insert(pos int, s string) error {
	t.doc.mu.Lock()
	if err := t.doc.doc.Path(t.name).Text().Insert(pos, s); err != nil {
		t.doc.mu.Unlock()
		return err
	}
	t.doc.afterMutate()
	return nil
}

func (t *Text) Append(s string) error {
	t.doc.mu.Lock()
	if err := t.doc.doc.Path(t.name).Text().Append(s); err != nil {
		t.doc.mu.Unlock()
		return err
	}
	t.doc.afterMutate()
	return nil
}

// Delete removes n runes starting at pos.
func (t *Text) Delete(pos, n int) error {
	t.doc.mu.Lock()
	if err := t.doc.doc.Path(t.name).Text().Splice(pos, n, ""); err != nil {
		t.doc.mu.Unlock()
		return err
	}
	t.doc.afterMutate()
	return nil
}

// String returns the current text content, or "" for an untouched layer.
func (t *Text) String() string {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	s, err := t.doc.doc.Path(t.name).Text().Get()
	if err != nil {
		return ""
	}
	return s
}

func (t *Text) Len() int {
	return len([]rune(t.String()))
}

// List is a collaborative ordered sequence of records.
type List struct {
	doc  *Document
	name string
}

func (l *List) Push(value any) error {
	l.doc.mu.Lock()
	if err := l.doc.doc.Path(l.name).List().Append(value); err != nil {
		l.doc.mu.Unlock()
		return err
	}
	l.doc.afterMutate()
	return nil
}

func (l *List) Insert(i int, value any) error {
	l.doc.mu.Lock()
	if err := l.doc.doc.Path(l.name).List().Insert(i, value); err != nil {
		l.doc.mu.Unlock()
		return err
	}
	l.doc.afterMutate()
	return nil
}

func (l *List) Delete(i int) error {
	l.doc.mu.Lock()
	if err := l.doc.doc.Path(l.name).List().Delete(i); err != nil {
		l.doc.mu.Unlock()
		return err
	}
	l.doc.afterMutate()
	return nil
}

func (l *List) Get(i int) (any, error) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	v, err := l.doc.doc.Path(l.name, i).Get()
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Values returns the list contents as plain Go values.
func (l *List) Values() ([]any, error) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	v, err := l.doc.doc.Path(l.name).Get()
	if err != nil {
		return nil, err
	}
	raw, ok := v.Interface().([]any)
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (l *List) Len() int {
	values, err := l.Values()
	if err != nil {
		return 0
	}
	return len(values)
}

// Map is a collaborative key-value store.
type Map struct {
	doc  *Document
	name string
}

func (m *Map) Set(key string, value any) error {
	m.doc.mu.Lock()
	if err := m.doc.doc.Path(m.name, key).Set(value); err != nil {
		m.doc.mu.Unlock()
		return err
	}
	m.doc.afterMutate()
	return nil
}

func (m *Map) Get(key string) (any, error) {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	v, err := m.doc.doc.Path(m.name, key).Get()
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Values returns the map contents as plain Go values.
func (m *Map) Values() (map[string]any, error) {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	v, err := m.doc.doc.Path(m.name).Get()
	if err != nil {
		return nil, err
	}
	raw, ok := v.Interface().(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return raw, nil
}

func (m *Map) Keys() []string {
	values, err := m.Values()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

func (m *Map) Len() int {
	values, err := m.Values()
	if err != nil {
		return 0
	}
	return len(values)
}
