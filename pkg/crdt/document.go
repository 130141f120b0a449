// Package crdt wraps an automerge document as the shared state of one
// collaborative document. All replicas of the same document id converge once
// they have exchanged their updates, regardless of delivery order or
// duplication.
package crdt

import (
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/rs/zerolog/log"
)

// Origin tags where an update came from. It is only used in-process to keep
// remote applies from re-triggering persistence; it is never serialized.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// ChangeEvent is delivered synchronously to subscribers after a mutation.
// Delta carries the incremental encoding of local mutations; it is empty for
// applied remote updates, which other replicas already have.
type ChangeEvent struct {
	Origin Origin
	Delta  []byte
}

// minUpdateSize is the smallest byte count an automerge chunk can occupy:
// magic, checksum, chunk type and a length varint. Anything shorter cannot
// be a real update and is dropped before it reaches the engine.
const minUpdateSize = 10

// Document is one replica of a collaborative document. Layer handles are
// cached, so repeated calls with the same name return the same handle.
type Document struct {
	id string

	mu    sync.Mutex
	doc   *automerge.Doc
	texts map[string]*Text
	lists map[string]*List
	maps  map[string]*Map

	subMu   sync.Mutex
	subs    map[int]func(ChangeEvent)
	nextSub int
	closed  bool
}

// New creates an empty replica for the given document id.
func New(documentID string) *Document {
	return &Document{
		id:    documentID,
		doc:   automerge.New(),
		texts: make(map[string]*Text),
		lists: make(map[string]*List),
		maps:  make(map[string]*Map),
		subs:  make(map[int]func(ChangeEvent)),
	}
}

// Load creates a replica seeded from a persisted snapshot. A corrupt
// snapshot is logged and ignored, leaving a fresh empty replica: a document
// whose stored content was never populated must still open.
func Load(documentID string, snapshot []byte) *Document {
	d := New(documentID)
	if len(snapshot) == 0 {
		return d
	}
	doc, err := automerge.Load(snapshot)
	if err != nil {
		log.Warn().Err(err).Str("document", documentID).
			Msg("ignoring corrupt snapshot, starting empty")
		return d
	}
	d.doc = doc
	// Advance the incremental cursor past the snapshot so the first local
	// delta does not replay the whole history.
	d.doc.SaveIncremental()
	return d
}

// ID returns the stable external document identifier.
func (d *Document) ID() string {
	return d.id
}

// Text returns the collaborative text sequence stored under layer.
func (d *Document) Text(layer string) *Text {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.texts[layer]
	if !ok {
		t = &Text{doc: d, name: layer}
		d.texts[layer] = t
	}
	return t
}

// List returns the collaborative ordered sequence stored under layer.
func (d *Document) List(layer string) *List {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lists[layer]
	if !ok {
		l = &List{doc: d, name: layer}
		d.lists[layer] = l
	}
	return l
}

// Map returns the collaborative key-value store stored under layer.
func (d *Document) Map(layer string) *Map {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.maps[layer]
	if !ok {
		m = &Map{doc: d, name: layer}
		d.maps[layer] = m
	}
	return m
}

// EncodeFullState serializes the complete replica state. Applying the result
// to any replica of the same document merges as a no-op or catch-up.
func (d *Document) EncodeFullState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Save()
}

// ApplyUpdate merges an encoded update into the replica. Malformed or
// placeholder payloads are logged and dropped; apply failures never
// propagate, a bad delta must not take down a live session.
func (d *Document) ApplyUpdate(update []byte, origin Origin) {
	if len(update) == 0 {
		return
	}
	if len(update) < minUpdateSize {
		log.Warn().Str("document", d.id).Int("size", len(update)).
			Msg("dropping update below minimum header size")
		return
	}
	if allZero(update) {
		log.Warn().Str("document", d.id).Int("size", len(update)).
			Msg("dropping all-zero placeholder update")
		return
	}

	d.mu.Lock()
	if err := d.doc.LoadIncremental(update); err != nil {
		d.mu.Unlock()
		log.Warn().Err(err).Str("document", d.id).
			Msg("dropping update rejected by engine")
		return
	}
	// Keep the applied changes out of the next local delta; the sender and
	// every other replica already have them.
	d.doc.SaveIncremental()
	d.mu.Unlock()

	d.notify(ChangeEvent{Origin: origin})
}

// Subscribe registers a change listener and returns its unsubscribe handle.
// Unsubscribing twice is safe.
func (d *Document) Subscribe(fn func(ChangeEvent)) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if d.closed {
		return func() {}
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		delete(d.subs, id)
	}
}

// Close drops all subscribers. Safe to call multiple times.
func (d *Document) Close() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.closed = true
	d.subs = make(map[int]func(ChangeEvent))
}

// afterMutate flushes the incremental delta for a completed local mutation
// and notifies subscribers. Called with d.mu held; the lock is released
// before listeners run.
func (d *Document) afterMutate() {
	delta := d.doc.SaveIncremental()
	d.mu.Unlock()
	if len(delta) == 0 {
		return
	}
	d.notify(ChangeEvent{Origin: OriginLocal, Delta: delta})
}

func (d *Document) notify(ev ChangeEvent) {
	d.subMu.Lock()
	fns := make([]func(ChangeEvent), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
