package breakpoints

import (
	"context"
	"strings"

	"github.com/go-logr/logr"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// Change types carried by breakpoint_changed notifications
const (
	ChangeAdded            = "added"
	ChangeRemoved          = "removed"
	ChangeDeleted          = "deleted"
	ChangeEnabledChanged   = "enabled_changed"
	ChangeConditionChanged = "condition_changed"
)

// Remote is the outbound side used by the synchronizer
type Remote interface {
	// Start connects the remote transport if needed
	Start(ctx context.Context) error
	ShutdownTransport()
	SendToRemote(command string, payload protocol.Fields) bool
}

// HostSession is the debugging session on the host
type HostSession interface {
	ShowError(message string)
	StopDebugging() error
}

// SessionMarker records that the session was established
type SessionMarker interface {
	MarkSessionEstablished()
}

// Status is a snapshot of synchronizer state
type Status struct {
	Active         bool `json:"active"`
	TransportReady bool `json:"transportReady"`
	ReadySent      bool `json:"readySent"`
	Issued         int  `json:"issued"`
	Pending        int  `json:"pending"`
}

type pendingSync struct {
	key   Key
	force bool
}

// Synchronizer mirrors the host store to the remote agent. It is not safe
// for concurrent use; all methods must be called from the host loop.
type Synchronizer struct {
	log      logr.Logger
	store    Store
	remote   Remote
	session  HostSession
	endpoint SessionMarker

	active         bool
	transportReady bool

	issued       map[string]Key
	pending      map[string]*pendingSync
	pendingOrder []string
	lastSent     map[string]string
	overrides    map[string]bool
	sentOnce     map[string]struct{}
	processing   bool
	readySent    bool
}

func NewSynchronizer(log logr.Logger, store Store, remote Remote, session HostSession, endpoint SessionMarker) *Synchronizer {
	s := &Synchronizer{
		log:      log.WithName("breakpoints"),
		store:    store,
		remote:   remote,
		session:  session,
		endpoint: endpoint,
	}
	s.resetSessionCaches()
	return s
}

func (s *Synchronizer) Active() bool         { return s.active }
func (s *Synchronizer) TransportReady() bool { return s.transportReady }

func (s *Synchronizer) Status() Status {
	return Status{
		Active:         s.active,
		TransportReady: s.transportReady,
		ReadySent:      s.readySent,
		Issued:         len(s.issued),
		Pending:        len(s.pending),
	}
}

// SetActive starts or stops remote debugging. Activation connects the
// remote transport; on failure the transport is shut down and false is
// returned.
func (s *Synchronizer) SetActive(ctx context.Context, active bool) bool {
	if !active {
		s.Deactivate()
		return true
	}
	if s.active {
		return true
	}

	if err := s.remote.Start(ctx); err != nil {
		s.log.Error(err, "Remote transport did not start")
		s.remote.ShutdownTransport()
		return false
	}

	s.active = true
	s.resetSessionCaches()
	return true
}

// Deactivate clears the session state and shuts down the remote transport
func (s *Synchronizer) Deactivate() {
	s.resetSessionCaches()
	s.active = false
	s.transportReady = false
	s.remote.ShutdownTransport()
}

// EnterDesignMode is called when the host debugging session ends
func (s *Synchronizer) EnterDesignMode() {
	s.Deactivate()
}

// TransportConnected marks the transport ready and queues every breakpoint
// in the store for its initial send.
func (s *Synchronizer) TransportConnected() {
	s.transportReady = true
	if s.store != nil && s.active {
		for _, key := range s.store.Keys() {
			s.enqueue(key, false)
		}
	}
	s.processPendingSyncs()
}

// RemoteConnectionFailed ends the session. Failures that happen before the
// transport was ready are reported to the user unless the peer simply
// disconnected.
func (s *Synchronizer) RemoteConnectionFailed(message string) {
	hadTransport := s.transportReady
	s.Deactivate()

	if !hadTransport && !errors.IsGracefulDisconnect(message) {
		text := "Failed to connect to remote debugger."
		if strings.TrimSpace(message) != "" {
			text = "Failed to connect to remote debugger: " + message
		}
		if s.session != nil {
			s.session.ShowError(text)
		}
	}

	if s.session != nil {
		if err := s.session.StopDebugging(); err != nil {
			s.log.Error(err, "Stopping the debugging session failed")
		}
	}
}

// EngineCommandParsed reacts to commands the engine sent through the
// bridge, including the internal breakpoint_changed notification.
func (s *Synchronizer) EngineCommandParsed(command string, payload protocol.Fields) {
	if !s.active || !s.transportReady {
		return
	}

	if isTransportDisconnected(payload) {
		s.Deactivate()
		return
	}

	switch {
	case protocol.SameName(command, protocol.CommandBreakpointChanged):
		if change, ok := parseChange(payload); ok {
			s.applyEngineChange(change)
		}
	case protocol.SameName(command, protocol.CommandGetThreads):
		if !s.readySent && s.storeCount() == 0 {
			s.trySendReady()
		}
	}
}

// Set adds or replaces a host breakpoint and synchronizes it
func (s *Synchronizer) Set(bp Breakpoint) bool {
	store, ok := s.store.(MutableStore)
	if !ok || !store.Put(bp) {
		return false
	}
	key := bp.Key()
	delete(s.overrides, key.id())
	s.QueueSync(key, false)
	return true
}

// Remove deletes a host breakpoint and synchronizes the removal
func (s *Synchronizer) Remove(key Key) bool {
	store, ok := s.store.(MutableStore)
	if !ok || !store.Remove(key) {
		return false
	}
	delete(s.overrides, key.id())
	s.QueueSync(key, false)
	return true
}

// QueueSync schedules key for synchronization. force bypasses signature
// suppression; it is sticky until the key is processed.
func (s *Synchronizer) QueueSync(key Key, force bool) {
	if !key.Valid() {
		return
	}
	s.enqueue(key, force)
	s.processPendingSyncs()
}

type engineChange struct {
	key        Key
	changeType string
	enabled    *bool
	fields     protocol.Fields
}

func (s *Synchronizer) applyEngineChange(change engineChange) {
	id := change.key.id()

	switch strings.ToLower(change.changeType) {
	case ChangeRemoved, ChangeDeleted:
		delete(s.overrides, id)
		if store, ok := s.store.(MutableStore); ok {
			store.Remove(change.key)
		}
		s.QueueSync(change.key, false)

	case ChangeEnabledChanged, ChangeConditionChanged:
		delete(s.issued, id)
		delete(s.lastSent, id)
		s.adoptEngineBreakpoint(change)
		if change.enabled != nil {
			s.overrides[id] = *change.enabled
		}
		s.QueueSync(change.key, true)

	default:
		s.adoptEngineBreakpoint(change)
		if change.enabled != nil {
			s.overrides[id] = *change.enabled
		}
		s.QueueSync(change.key, false)
	}
}

// adoptEngineBreakpoint records a breakpoint the engine knows about but
// the store does not, and applies reported condition details.
func (s *Synchronizer) adoptEngineBreakpoint(change engineChange) {
	store, ok := s.store.(MutableStore)
	if !ok {
		return
	}

	bp, found := store.Lookup(change.key)
	if !found {
		bp = Breakpoint{File: change.key.File, Line: change.key.Line, Enabled: true}
	}

	updated := !found
	if v, ok := change.fields.String("condition"); ok {
		bp.Condition = v
		updated = true
	}
	if v, ok := change.fields.String("conditionType"); ok {
		bp.ConditionKind = ConditionKind(v)
		updated = true
	}
	if v, ok := change.fields.String("function"); ok {
		bp.Function = v
		updated = true
	}
	if v, ok := change.fields.Int("functionLineOffset"); ok {
		bp.FunctionLineOffset = v
		updated = true
	}

	if updated {
		store.Put(bp)
	}
}

func (s *Synchronizer) enqueue(key Key, force bool) {
	id := key.id()
	if existing, ok := s.pending[id]; ok {
		existing.force = existing.force || force
		return
	}
	s.pending[id] = &pendingSync{key: key, force: force}
	s.pendingOrder = append(s.pendingOrder, id)
}

func (s *Synchronizer) dequeue() (pendingSync, bool) {
	for len(s.pendingOrder) > 0 {
		id := s.pendingOrder[0]
		s.pendingOrder = s.pendingOrder[1:]
		if p, ok := s.pending[id]; ok {
			delete(s.pending, id)
			return *p, true
		}
	}
	return pendingSync{}, false
}

func (s *Synchronizer) processPendingSyncs() {
	if s.processing {
		return
	}
	s.processing = true
	defer func() { s.processing = false }()

	for len(s.pending) > 0 {
		if !s.active || !s.transportReady || s.store == nil {
			break
		}
		next, ok := s.dequeue()
		if !ok {
			break
		}
		s.syncBreakpoint(next.key, next.force)
	}
}

func (s *Synchronizer) syncBreakpoint(key Key, force bool) {
	if !s.transportReady {
		s.enqueue(key, force)
		return
	}

	id := key.id()
	bp, found := s.store.Lookup(key)
	if found {
		var override *bool
		if v, ok := s.overrides[id]; ok {
			override = &v
		}
		payload := Payload(bp, bp.Key(), override)
		signature := Signature(payload)
		if !force && s.lastSent[id] == signature {
			return
		}

		if !s.remote.SendToRemote(protocol.CommandSetBreakpoint, payload) {
			s.log.V(1).Info("set_breakpoint not sent", "breakpoint", key.String())
			return
		}
		s.issued[id] = bp.Key()
		s.lastSent[id] = signature
		s.log.V(1).Info("Breakpoint synchronized", "breakpoint", key.String(), "force", force)
		s.checkInitialSyncComplete(id)
		return
	}

	if issuedKey, wasIssued := s.issued[id]; wasIssued {
		delete(s.issued, id)
		delete(s.overrides, id)
		s.remote.SendToRemote(protocol.CommandRemoveBreakpoint, protocol.Fields{
			"file": issuedKey.File,
			"line": issuedKey.Line,
		})
		delete(s.lastSent, id)
		s.log.V(1).Info("Breakpoint removed", "breakpoint", key.String())
	}
}

// checkInitialSyncComplete sends ready once every stored breakpoint has
// been sent at least once.
func (s *Synchronizer) checkInitialSyncComplete(id string) {
	if s.readySent {
		return
	}
	s.sentOnce[id] = struct{}{}

	total := s.storeCount()
	if total > 0 && len(s.sentOnce) >= total {
		s.trySendReady()
	}
}

func (s *Synchronizer) trySendReady() {
	if s.readySent || !s.active || !s.transportReady {
		return
	}
	if !s.remote.SendToRemote(protocol.CommandReady, nil) {
		return
	}
	s.readySent = true
	if s.endpoint != nil {
		s.endpoint.MarkSessionEstablished()
	}
	s.log.Info("Initial breakpoints sent", "count", len(s.sentOnce))
}

func (s *Synchronizer) storeCount() int {
	if s.store == nil {
		return 0
	}
	return s.store.Count()
}

func (s *Synchronizer) resetSessionCaches() {
	s.issued = make(map[string]Key)
	s.pending = make(map[string]*pendingSync)
	s.pendingOrder = nil
	s.lastSent = make(map[string]string)
	s.overrides = make(map[string]bool)
	s.sentOnce = make(map[string]struct{})
	s.readySent = false
}

func isTransportDisconnected(payload protocol.Fields) bool {
	if payload == nil {
		return false
	}
	typ, _ := payload.String("type")
	event, _ := payload.String("event")
	return protocol.SameName(typ, protocol.TypeEvent) && protocol.SameName(event, protocol.EventTransportDisconnected)
}

func parseChange(payload protocol.Fields) (engineChange, bool) {
	if payload == nil {
		return engineChange{}, false
	}
	file, _ := payload.String("file")
	line, _ := payload.Int("line")
	key := NewKey(file, line)
	if !key.Valid() {
		return engineChange{}, false
	}

	change := engineChange{key: key, fields: payload}
	change.changeType, _ = payload.String("changeType")
	if enabled, ok := payload.Bool("enabled"); ok {
		change.enabled = &enabled
	}
	return change, true
}
