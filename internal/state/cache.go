// Package state caches the threads, frames and variables reported by the
// remote agent while the program is stopped.
//
// Variables live in a single table keyed by their remote address. A frame
// refers to its root variables by address and a variable refers to its
// children the same way, so children are always inserted before the list
// that points at them.
package state

import (
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// DefaultThreadName is used until get_threads reports a name
const DefaultThreadName = "unknown name"

// Frame is one stack frame of a thread
type Frame struct {
	ID        int
	Name      string
	File      string
	Line      int
	Variables []int64
}

// Thread is the cached state of one remote thread. Announced is true while
// the frontend holds a handle for the thread.
type Thread struct {
	ID         int
	Name       string
	Frames     []Frame
	Announced  bool
	Stopped    bool
	StopReason string
	File       string
	Line       int
}

type threadInfo struct {
	id         int
	name       string
	frames     map[int]*Frame
	frameOrder []int
	announced  bool
	stopped    bool
	stopReason string
	file       string
	line       int
}

// Cache is safe for concurrent use
type Cache struct {
	log logr.Logger

	mu        sync.RWMutex
	threads   map[int]*threadInfo
	variables map[int64]*Variable
}

func NewCache(log logr.Logger) *Cache {
	return &Cache{
		log:       log.WithName("state"),
		threads:   make(map[int]*threadInfo),
		variables: make(map[int64]*Variable),
	}
}

func (c *Cache) getOrCreate(id int) *threadInfo {
	ti, ok := c.threads[id]
	if !ok {
		ti = &threadInfo{id: id, name: DefaultThreadName, frames: make(map[int]*Frame)}
		c.threads[id] = ti
	}
	return ti
}

// --- Threads ---

// EnsureThread creates the thread if it is not known yet
func (c *Cache) EnsureThread(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(id)
}

// SetThreadName records a reported name. Empty names are ignored.
func (c *Cache) SetThreadName(id int, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ti := c.getOrCreate(id)
	if name != "" {
		ti.name = name
	}
}

func (c *Cache) RemoveThread(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threads, id)
}

// RetainThreads removes every thread whose id is not in ids and returns
// the removed ids.
func (c *Cache) RetainThreads(ids []int) []int {
	keep := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []int
	for id := range c.threads {
		if _, ok := keep[id]; !ok {
			delete(c.threads, id)
			removed = append(removed, id)
		}
	}
	sort.Ints(removed)
	return removed
}

// Announce marks that the frontend holds a handle for the thread, creating
// the thread when needed. It returns false when it was already announced.
func (c *Cache) Announce(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ti := c.getOrCreate(id)
	if ti.announced {
		return false
	}
	ti.announced = true
	return true
}

// Announced reports whether the frontend holds a handle for the thread
func (c *Cache) Announced(id int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ti, ok := c.threads[id]
	return ok && ti.announced
}

// SetStopped records a stop of the thread
func (c *Cache) SetStopped(id int, reason, file string, line int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ti := c.getOrCreate(id)
	ti.stopped = true
	ti.stopReason = reason
	ti.file = file
	ti.line = line
}

// SetContinued marks the thread running and drops its frames. It returns
// whether the thread had been announced (and is no longer) and whether the
// variable table was cleared because no thread remains announced.
func (c *Cache) SetContinued(id int) (wasAnnounced, clearedVariables bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ti := c.getOrCreate(id)
	ti.stopped = false
	ti.frames = make(map[int]*Frame)
	ti.frameOrder = nil

	wasAnnounced = ti.announced
	ti.announced = false

	for _, other := range c.threads {
		if other.announced {
			return wasAnnounced, false
		}
	}
	c.variables = make(map[int64]*Variable)
	return wasAnnounced, true
}

// MarkAllRunning clears the stopped flag of every thread
func (c *Cache) MarkAllRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ti := range c.threads {
		ti.stopped = false
	}
}

// StoppedAnnounced returns the ids of stopped threads the frontend holds a
// handle for, in ascending order.
func (c *Cache) StoppedAnnounced() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []int
	for id, ti := range c.threads {
		if ti.stopped && ti.announced {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Thread returns a copy of the thread
func (c *Cache) Thread(id int) (Thread, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ti, ok := c.threads[id]
	if !ok {
		return Thread{}, false
	}
	return ti.snapshot(), true
}

// Threads returns copies of all threads ordered by id
func (c *Cache) Threads() []Thread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Thread, 0, len(c.threads))
	for _, ti := range c.threads {
		out = append(out, ti.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ti *threadInfo) snapshot() Thread {
	t := Thread{
		ID:         ti.id,
		Name:       ti.name,
		Announced:  ti.announced,
		Stopped:    ti.stopped,
		StopReason: ti.stopReason,
		File:       ti.file,
		Line:       ti.line,
	}
	for _, fid := range ti.frameOrder {
		if f, ok := ti.frames[fid]; ok {
			fc := *f
			fc.Variables = append([]int64(nil), f.Variables...)
			t.Frames = append(t.Frames, fc)
		}
	}
	return t
}

// --- Frames ---

// UpdateFrames replaces the frames of the thread, keeping their order
func (c *Cache) UpdateFrames(threadID int, frames []Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ti := c.getOrCreate(threadID)
	ti.frames = make(map[int]*Frame, len(frames))
	ti.frameOrder = ti.frameOrder[:0]
	for i := range frames {
		f := frames[i]
		if _, dup := ti.frames[f.ID]; !dup {
			ti.frameOrder = append(ti.frameOrder, f.ID)
		}
		ti.frames[f.ID] = &f
	}
}

// Frame returns a copy of one frame
func (c *Cache) Frame(threadID, frameID int) (Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ti, ok := c.threads[threadID]
	if !ok {
		return Frame{}, false
	}
	f, ok := ti.frames[frameID]
	if !ok {
		return Frame{}, false
	}
	fc := *f
	fc.Variables = append([]int64(nil), f.Variables...)
	return fc, true
}

// SetFrameVariables replaces the root variable list of a known frame
func (c *Cache) SetFrameVariables(threadID, frameID int, addrs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.frame(threadID, frameID)
	if f == nil {
		return
	}
	f.Variables = append(f.Variables[:0], addrs...)
}

// AddFrameVariable appends addr to the frame's roots unless present
func (c *Cache) AddFrameVariable(threadID, frameID int, addr int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.frame(threadID, frameID)
	if f == nil {
		return
	}
	for _, a := range f.Variables {
		if a == addr {
			return
		}
	}
	f.Variables = append(f.Variables, addr)
}

// FrameVariables returns the frame's root addresses
func (c *Cache) FrameVariables(threadID, frameID int) ([]int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := c.frame(threadID, frameID)
	if f == nil {
		return nil, false
	}
	return append([]int64(nil), f.Variables...), true
}

func (c *Cache) frame(threadID, frameID int) *Frame {
	ti, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	return ti.frames[frameID]
}

// --- Variables ---

// StoreVariable validates obj and inserts it with all nested elements. It
// returns the node's address, or 0 when obj is invalid. Invalid children
// are skipped.
func (c *Cache) StoreVariable(obj protocol.Fields, command string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeVariable(obj, command)
}

func (c *Cache) storeVariable(obj protocol.Fields, command string) int64 {
	v, reason, ok := parseVariable(obj)
	if !ok {
		c.log.Info("Invalid variable in response", "command", command, "reason", reason)
		return 0
	}
	c.variables[v.Addr] = v

	if items, ok := obj.List("elements"); ok {
		children := make([]int64, 0, len(items))
		for _, item := range items {
			child, ok := protocol.AsFields(item)
			if !ok {
				continue
			}
			if addr := c.storeVariable(child, command); addr != 0 {
				children = append(children, addr)
			}
		}
		v.Elements = children
	}
	return v.Addr
}

// Variable returns a copy of the node at addr
func (c *Cache) Variable(addr int64) (Variable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[addr]
	if !ok {
		return Variable{}, false
	}
	return v.clone(), true
}

// Variables returns copies of the nodes at addrs, skipping unknown ones
func (c *Cache) Variables(addrs []int64) []Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Variable, 0, len(addrs))
	for _, addr := range addrs {
		if v, ok := c.variables[addr]; ok {
			out = append(out, v.clone())
		}
	}
	return out
}

// SetVariableChildren replaces the children of a known node
func (c *Cache) SetVariableChildren(addr int64, children []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variables[addr]
	if !ok {
		return
	}
	v.Elements = append(make([]int64, 0, len(children)), children...)
}

// MergeVariableChildren appends the children not already listed. A paged
// get_property response carries only the requested window.
func (c *Cache) MergeVariableChildren(addr int64, children []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variables[addr]
	if !ok {
		return
	}

	merged := make([]int64, 0, len(v.Elements)+len(children))
	seen := make(map[int64]struct{}, cap(merged))
	for _, list := range [][]int64{v.Elements, children} {
		for _, a := range list {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			merged = append(merged, a)
		}
	}
	v.Elements = merged
}

// SetVariableSize updates the declared child count of a known node
func (c *Cache) SetVariableSize(addr int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.variables[addr]; ok {
		v.Size = size
	}
}

// SetVariableValue updates the cached value after a successful edit
func (c *Cache) SetVariableValue(addr int64, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.variables[addr]
	if ok {
		v.Value = value
	}
	return ok
}

// VariableCount is the size of the address table
func (c *Cache) VariableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.variables)
}

// FindChild returns the child of parent named name
func (c *Cache) FindChild(parent int64, name string) (Variable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[parent]
	if !ok {
		return Variable{}, false
	}
	for _, addr := range v.Elements {
		if child, ok := c.variables[addr]; ok && child.Name == name {
			return child.clone(), true
		}
	}
	return Variable{}, false
}

// FindRoot returns the frame root variable named name
func (c *Cache) FindRoot(threadID, frameID int, name string) (Variable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := c.frame(threadID, frameID)
	if f == nil {
		return Variable{}, false
	}
	for _, addr := range f.Variables {
		if v, ok := c.variables[addr]; ok && v.Name == name {
			return v.clone(), true
		}
	}
	return Variable{}, false
}

// --- Resets ---

// ResetVariableTree clears every frame's root list. Nodes stay in the
// table until the next continue.
func (c *Cache) ResetVariableTree() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ti := range c.threads {
		for _, f := range ti.frames {
			f.Variables = nil
		}
	}
}

// ResetThread clears the frames of one thread
func (c *Cache) ResetThread(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ti, ok := c.threads[id]; ok {
		ti.frames = make(map[int]*Frame)
		ti.frameOrder = nil
	}
}

// ResetAll drops every thread and variable
func (c *Cache) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads = make(map[int]*threadInfo)
	c.variables = make(map[int64]*Variable)
}
