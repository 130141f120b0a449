package crdt

import (
	"bytes"
	"reflect"
	"testing"
)

// exchange applies every replica's full state to every other replica, in
// both directions, so all pending changes propagate.
func exchange(t *testing.T, docs ...*Document) {
	t.Helper()
	for _, src := range docs {
		state := src.EncodeFullState()
		for _, dst := range docs {
			if dst != src {
				dst.ApplyUpdate(state, OriginRemote)
			}
		}
	}
}

func TestTextDeltaExchangeConverges(t *testing.T) {
	a := New("doc-1")
	b := New("doc-1")

	var deltas [][]byte
	unsubscribe := a.Subscribe(func(ev ChangeEvent) {
		if ev.Origin == OriginLocal {
			deltas = append(deltas, ev.Delta)
		}
	})
	defer unsubscribe()

	if err := a.Text("content").Insert(0, "hello"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("expected one local delta, got %d", len(deltas))
	}

	b.ApplyUpdate(deltas[0], OriginRemote)
	if got := b.Text("content").String(); got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}

	var bDeltas [][]byte
	b.Subscribe(func(ev ChangeEvent) {
		if ev.Origin == OriginLocal {
			bDeltas = append(bDeltas, ev.Delta)
		}
	})

	if err := b.Text("content").Append(" world"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	a.ApplyUpdate(bDeltas[0], OriginRemote)

	if got := a.Text("content").String(); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
}

func TestApplyUpdateIsIdempotent(t *testing.T) {
	a := New("doc-1")
	b := New("doc-1")

	if err := a.Text("content").Insert(0, "hello"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	state := a.EncodeFullState()
	b.ApplyUpdate(state, OriginRemote)
	once := b.EncodeFullState()

	b.ApplyUpdate(state, OriginRemote)
	b.ApplyUpdate(state, OriginRemote)
	twice := b.EncodeFullState()

	if !bytes.Equal(once, twice) {
		t.Error("reapplying the same update must not change state")
	}
	if got := b.Text("content").String(); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestConcurrentEditsConvergeRegardlessOfOrder(t *testing.T) {
	a := New("doc-1")
	b := New("doc-1")
	c := New("doc-1")

	if err := a.Text("content").Insert(0, "alpha"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := b.List("tasks").Push(map[string]any{"title": "write tests", "done": false}); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := c.Map("drawing").Set("paths", "M0,0 L10,10"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Deliver states in different orders, with duplicates.
	exchange(t, a, b, c)
	exchange(t, c, b, a)
	exchange(t, b, a, c)

	for _, d := range []*Document{a, b, c} {
		if got := d.Text("content").String(); got != "alpha" {
			t.Errorf("text diverged: %q", got)
		}
		if got := d.List("tasks").Len(); got != 1 {
			t.Errorf("expected 1 task, got %d", got)
		}
		paths, err := d.Map("drawing").Get("paths")
		if err != nil {
			t.Fatalf("map get failed: %v", err)
		}
		if paths != "M0,0 L10,10" {
			t.Errorf("map diverged: %v", paths)
		}
	}

	aTasks, _ := a.List("tasks").Values()
	bTasks, _ := b.List("tasks").Values()
	if !reflect.DeepEqual(aTasks, bTasks) {
		t.Errorf("task lists diverged: %v vs %v", aTasks, bTasks)
	}
}

func TestFullStateRoundTrip(t *testing.T) {
	a := New("doc-1")
	if err := a.Text("content").Insert(0, "round trip"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := a.Map("drawing").Set("paths", "M1,1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	fresh := New("doc-1")
	fresh.ApplyUpdate(a.EncodeFullState(), OriginRemote)

	if got := fresh.Text("content").String(); got != "round trip" {
		t.Errorf("expected %q, got %q", "round trip", got)
	}
	paths, err := fresh.Map("drawing").Get("paths")
	if err != nil || paths != "M1,1" {
		t.Errorf("map did not survive round trip: %v %v", paths, err)
	}

	// Merging the encoding back into the source is a no-op.
	before := a.EncodeFullState()
	a.ApplyUpdate(before, OriginRemote)
	if got := a.Text("content").String(); got != "round trip" {
		t.Errorf("self-merge changed content: %q", got)
	}
}

func TestLoadSeedsFromSnapshot(t *testing.T) {
	a := New("doc-1")
	if err := a.Text("content").Insert(0, "persisted"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	loaded := Load("doc-1", a.EncodeFullState())
	if got := loaded.Text("content").String(); got != "persisted" {
		t.Errorf("expected %q, got %q", "persisted", got)
	}
}

func TestLoadIgnoresCorruptSnapshot(t *testing.T) {
	loaded := Load("doc-1", []byte("definitely not an automerge document"))
	if got := loaded.Text("content").String(); got != "" {
		t.Errorf("expected empty replica, got %q", got)
	}
}

func TestApplyUpdateDropsMalformedPayloads(t *testing.T) {
	d := New("doc-1")
	if err := d.Text("content").Insert(0, "stable"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	before := d.EncodeFullState()

	d.ApplyUpdate(nil, OriginRemote)
	d.ApplyUpdate([]byte{}, OriginRemote)
	d.ApplyUpdate([]byte{1, 2, 3}, OriginRemote)
	d.ApplyUpdate(make([]byte, 64), OriginRemote) // all-zero placeholder
	d.ApplyUpdate([]byte("garbage garbage garbage garbage"), OriginRemote)

	if !bytes.Equal(before, d.EncodeFullState()) {
		t.Error("malformed payloads must not change state")
	}
	if got := d.Text("content").String(); got != "stable" {
		t.Errorf("expected %q, got %q", "stable", got)
	}
}

func TestLayerHandlesAreStable(t *testing.T) {
	d := New("doc-1")
	if d.Text("content") != d.Text("content") {
		t.Error("text handles for the same layer must be identical")
	}
	if d.List("tasks") != d.List("tasks") {
		t.Error("list handles for the same layer must be identical")
	}
	if d.Map("drawing") != d.Map("drawing") {
		t.Error("map handles for the same layer must be identical")
	}
	if d.Text("content") == d.Text("notes") {
		t.Error("different layers must have different handles")
	}
}

func TestTextEditing(t *testing.T) {
	d := New("doc-1")
	text := d.Text("content")

	if err := text.Insert(0, "hello world"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := text.Delete(5, 6); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := text.String(); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := text.Len(); got != 5 {
		t.Errorf("expected len 5, got %d", got)
	}
}

func TestListEditing(t *testing.T) {
	d := New("doc-1")
	list := d.List("tasks")

	if err := list.Push("first"); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := list.Push("third"); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := list.Insert(1, "second"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if got := list.Len(); got != 3 {
		t.Fatalf("expected len 3, got %d", got)
	}

	if err := list.Delete(0); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	first, err := list.Get(0)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if first != "second" {
		t.Errorf("expected %q, got %v", "second", first)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	d := New("doc-1")

	var events int
	unsubscribe := d.Subscribe(func(ChangeEvent) { events++ })

	if err := d.Text("content").Insert(0, "a"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected 1 event, got %d", events)
	}

	unsubscribe()
	unsubscribe() // double unsubscribe is safe

	if err := d.Text("content").Append("b"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if events != 1 {
		t.Errorf("unsubscribed listener still invoked: %d events", events)
	}
}
