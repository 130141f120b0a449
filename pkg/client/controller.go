// Package client provides the per-document sync controller: it owns one
// CRDT replica, bridges it to the relay, tracks presence, and coordinates
// persistence without letting remote applies re-trigger saves.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"collabspace-sync-server/pkg/crdt"
	"collabspace-sync-server/pkg/protocol"
)

// SaveHandler persists an encoded document state. Injected by the API layer
// that owns storage; the controller only hands over bytes.
type SaveHandler func(ctx context.Context, documentID string, data []byte) error

// LoadHandler fetches the previously persisted state, or nil when none
// exists.
type LoadHandler func(ctx context.Context, documentID string) ([]byte, error)

// SnapshotStore is the narrow persistence bridge the controller can adapt
// into handlers. Any snapshot repository satisfies it.
type SnapshotStore interface {
	Load(ctx context.Context, documentID string) ([]byte, error)
	Save(ctx context.Context, documentID string, data []byte) error
}

// StoreHandlers adapts a SnapshotStore into load/save handlers.
func StoreHandlers(store SnapshotStore) (LoadHandler, SaveHandler) {
	return store.Load, store.Save
}

const (
	defaultSettleWindow    = 500 * time.Millisecond
	defaultMinSnapshotSize = 32

	reconnectBaseDelay = 250 * time.Millisecond
	reconnectMaxDelay  = 5 * time.Second
)

// Config configures one controller. DocumentID and UserID are required.
type Config struct {
	RelayURL   string
	DocumentID string
	UserID     string
	Name       string
	Email      string

	// SettleWindow bounds how long save triggers stay suppressed after a
	// remote update is applied.
	SettleWindow time.Duration
	// MinSnapshotSize is the smallest encoded state worth persisting.
	MinSnapshotSize int

	SaveHandler SaveHandler
	LoadHandler LoadHandler

	Dialer *websocket.Dialer
}

// controllerState models the remote-apply settle window explicitly so Close
// can cancel the scheduled transition back to synced.
type controllerState int

const (
	stateSynced controllerState = iota
	stateApplyingRemote
)

// Controller owns one document replica and its relay connection. One
// instance per open document per client; never shared across documents.
type Controller struct {
	cfg Config
	doc *crdt.Document

	presence *presenceTracker

	mu          sync.Mutex
	state       controllerState
	diverged    bool
	closed      bool
	settleTimer *time.Timer
	saveHandler SaveHandler

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool

	subMu        sync.Mutex
	changeSubs   map[int]func(crdt.ChangeEvent)
	statusSubs   map[int]func(bool)
	presenceSubs map[int]func()
	nextSub      int

	unsubscribeDoc func()
	done           chan struct{}
}

// New validates the configuration and starts the controller. The relay
// connection is established in the background with retries; failures
// surface through the status subscription, never the constructor.
func New(cfg Config) (*Controller, error) {
	if cfg.DocumentID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = defaultSettleWindow
	}
	if cfg.MinSnapshotSize <= 0 {
		cfg.MinSnapshotSize = defaultMinSnapshotSize
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	c := &Controller{
		cfg:          cfg,
		doc:          crdt.New(cfg.DocumentID),
		presence:     newPresenceTracker(),
		saveHandler:  cfg.SaveHandler,
		changeSubs:   make(map[int]func(crdt.ChangeEvent)),
		statusSubs:   make(map[int]func(bool)),
		presenceSubs: make(map[int]func()),
		done:         make(chan struct{}),
	}
	c.unsubscribeDoc = c.doc.Subscribe(c.onDocChange)

	if cfg.RelayURL != "" {
		go c.connectLoop()
	}
	return c, nil
}

// Text returns the collaborative text layer with the given name.
func (c *Controller) Text(layer string) *crdt.Text { return c.doc.Text(layer) }

// List returns the collaborative list layer with the given name.
func (c *Controller) List(layer string) *crdt.List { return c.doc.List(layer) }

// Map returns the collaborative map layer with the given name.
func (c *Controller) Map(layer string) *crdt.Map { return c.doc.Map(layer) }

// OnChange subscribes to document change events. Returns an unsubscribe
// handle; unsubscribing twice is safe.
func (c *Controller) OnChange(fn func(crdt.ChangeEvent)) func() {
	return c.subscribeChange(fn)
}

// OnStatus subscribes to connection status transitions.
func (c *Controller) OnStatus(fn func(connected bool)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.isClosed() {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.statusSubs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.statusSubs, id)
	}
}

// OnPresence subscribes to presence changes. The callback carries no
// payload; consumers re-read ConnectedUsers.
func (c *Controller) OnPresence(fn func()) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.isClosed() {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.presenceSubs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.presenceSubs, id)
	}
}

func (c *Controller) subscribeChange(fn func(crdt.ChangeEvent)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.isClosed() {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.changeSubs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.changeSubs, id)
	}
}

// ConnectedUsers returns a snapshot of all other live sessions in the room.
func (c *Controller) ConnectedUsers() []protocol.UserSession {
	return c.presence.snapshot()
}

// IsConnected reports whether the relay connection is currently up.
func (c *Controller) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// EncodeCurrentState serializes the full replica state.
func (c *Controller) EncodeCurrentState() []byte {
	return c.doc.EncodeFullState()
}

// ApplyRemoteUpdate merges a remote or persisted update. The settle window
// opens before the merge so change subscribers, which are notified
// synchronously from the apply, already see the suppressed state; a
// save-on-change subscriber must not persist what it just received.
func (c *Controller) ApplyRemoteUpdate(update []byte) {
	c.enterApplyingRemote()
	c.doc.ApplyUpdate(update, crdt.OriginRemote)
}

// LoadSnapshot merges persisted content as if it arrived from a remote
// replica. Call once after construction when prior content exists.
func (c *Controller) LoadSnapshot(snapshot []byte) {
	c.ApplyRemoteUpdate(snapshot)
}

// LoadFromDatabase pulls persisted content through the injected load
// handler. A load failure leaves the fresh empty replica in place.
func (c *Controller) LoadFromDatabase(ctx context.Context) error {
	if c.cfg.LoadHandler == nil {
		return nil
	}
	data, err := c.cfg.LoadHandler(ctx, c.cfg.DocumentID)
	if err != nil {
		log.Warn().Err(err).Str("document", c.cfg.DocumentID).Msg("load from database failed")
		return fmt.Errorf("failed to load document: %w", err)
	}
	if len(data) > 0 {
		c.LoadSnapshot(data)
	}
	return nil
}

// SetSaveHandler injects the persistence push target.
func (c *Controller) SetSaveHandler(handler SaveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveHandler = handler
}

// SyncWithDatabase pushes the encoded state through the save handler. It is
// a no-op during the settle window after a remote apply, and refuses to
// persist states too small to be real content. A redundant save that races
// the settle window is benign: the stored blob is a full state other
// replicas re-merge from.
func (c *Controller) SyncWithDatabase(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == stateApplyingRemote {
		c.mu.Unlock()
		return nil
	}
	handler := c.saveHandler
	c.mu.Unlock()

	if handler == nil {
		return ErrNoSaveHandler
	}

	data := c.doc.EncodeFullState()
	if len(data) < c.cfg.MinSnapshotSize {
		return ErrSnapshotTooSmall
	}

	if err := handler(ctx, c.cfg.DocumentID, data); err != nil {
		// Local edits are never lost to a failed persist: the replica keeps
		// its state and the next save trigger retries.
		log.Warn().Err(err).Str("document", c.cfg.DocumentID).Msg("save failed")
		return fmt.Errorf("failed to save document: %w", err)
	}

	c.mu.Lock()
	c.diverged = false
	c.mu.Unlock()
	return nil
}

// UpdateCursor broadcasts the local cursor position.
func (c *Controller) UpdateCursor(x, y float64) {
	c.sendMessage(protocol.CursorUpdate{Cursor: &protocol.Cursor{X: x, Y: y}})
}

// SetUserInfo broadcasts the local display name and email.
func (c *Controller) SetUserInfo(name, email string) {
	c.mu.Lock()
	c.cfg.Name = name
	c.cfg.Email = email
	c.mu.Unlock()
	c.sendMessage(protocol.UserInfo{Name: name, Email: email})
}

// Close tears down the relay connection, the replica, the settle timer and
// every subscription. Safe to call multiple times; a settle timer that fires
// after Close is a no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	c.mu.Unlock()

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.connMu.Unlock()

	c.unsubscribeDoc()
	c.doc.Close()

	c.subMu.Lock()
	c.changeSubs = make(map[int]func(crdt.ChangeEvent))
	c.statusSubs = make(map[int]func(bool))
	c.presenceSubs = make(map[int]func())
	c.subMu.Unlock()
}

func (c *Controller) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enterApplyingRemote opens or extends the settle window as a cancellable
// scheduled transition back to synced.
func (c *Controller) enterApplyingRemote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.state = stateApplyingRemote
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	c.settleTimer = time.AfterFunc(c.cfg.SettleWindow, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.state = stateSynced
	})
}

// onDocChange forwards local deltas to the relay and fans the event out to
// change subscribers.
func (c *Controller) onDocChange(ev crdt.ChangeEvent) {
	if ev.Origin == crdt.OriginLocal && len(ev.Delta) > 0 {
		c.mu.Lock()
		c.diverged = true
		c.mu.Unlock()
		if c.sendBinary(ev.Delta) {
			c.mu.Lock()
			c.diverged = false
			c.mu.Unlock()
		}
	}

	c.subMu.Lock()
	fns := make([]func(crdt.ChangeEvent), 0, len(c.changeSubs))
	for _, fn := range c.changeSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// connectLoop dials the relay until it succeeds, then pumps inbound frames
// until the connection drops, then retries. Reconnection policy lives here,
// not in the relay.
func (c *Controller) connectLoop() {
	delay := reconnectBaseDelay
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, err := c.dial()
		if err != nil {
			log.Warn().Err(err).Str("document", c.cfg.DocumentID).Msg("relay dial failed")
			select {
			case <-time.After(delay):
			case <-c.done:
				return
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}
		delay = reconnectBaseDelay

		// A dial that was already in flight when Close ran still completes;
		// the conn must be discarded, not installed.
		c.connMu.Lock()
		if c.isClosed() {
			c.connMu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()
		c.notifyStatus(true)

		c.announce()

		c.readLoop(conn)

		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connected = false
		c.connMu.Unlock()
		c.presence.reset()
		c.notifyStatus(false)
		c.notifyPresence()
	}
}

func (c *Controller) dial() (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s/room/%s?userId=%s",
		strings.TrimRight(c.cfg.RelayURL, "/"),
		url.PathEscape(c.cfg.DocumentID),
		url.QueryEscape(c.cfg.UserID),
	)
	conn, _, err := c.cfg.Dialer.Dial(endpoint, nil)
	return conn, err
}

// announce publishes local presence and the current full state. The state
// send lets peers that joined earlier catch up; merging it is idempotent.
func (c *Controller) announce() {
	name := c.cfg.Name
	if name == "" {
		name = fmt.Sprintf("User %s", c.cfg.UserID)
	}
	c.sendMessage(protocol.UserInfo{Name: name, Email: c.cfg.Email})
	c.sendBinary(c.doc.EncodeFullState())
}

func (c *Controller) readLoop(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			c.ApplyRemoteUpdate(data)
		case websocket.TextMessage:
			event, err := protocol.DecodeServerEvent(data)
			if err != nil {
				log.Warn().Err(err).Str("document", c.cfg.DocumentID).Msg("ignoring relay event")
				continue
			}
			if c.presence.apply(event) {
				c.notifyPresence()
			}
			// Push the full state to newcomers so a replica that joined
			// after earlier edits still converges; merging is idempotent.
			if _, ok := event.(protocol.UserJoinedEvent); ok {
				c.sendBinary(c.doc.EncodeFullState())
			}
		}
	}
}

// sendBinary pushes a CRDT delta to the relay. Returns false when there is
// no live connection; the full-state announce on reconnect covers the gap.
func (c *Controller) sendBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		log.Warn().Err(err).Str("document", c.cfg.DocumentID).Msg("delta send failed")
		return false
	}
	return true
}

func (c *Controller) sendMessage(msg protocol.ClientMessage) {
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("document", c.cfg.DocumentID).Msg("failed to encode message")
		return
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("document", c.cfg.DocumentID).Msg("message send failed")
	}
}

func (c *Controller) notifyStatus(connected bool) {
	c.subMu.Lock()
	fns := make([]func(bool), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

func (c *Controller) notifyPresence() {
	c.subMu.Lock()
	fns := make([]func(), 0, len(c.presenceSubs))
	for _, fn := range c.presenceSubs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
