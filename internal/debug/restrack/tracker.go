// Package restrack keeps a ledger of live GPU resources so that teardown can
// detect leaks and double releases.
package restrack

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"photocrispy/internal/debug/eventbus"
)

type Kind int

const (
	KindTexture Kind = iota
	KindFramebuffer
	KindRenderbuffer
	KindProgram
	KindStorageBuffer
	KindMesh
)

func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindFramebuffer:
		return "framebuffer"
	case KindRenderbuffer:
		return "renderbuffer"
	case KindProgram:
		return "program"
	case KindStorageBuffer:
		return "storage_buffer"
	case KindMesh:
		return "mesh"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Key struct {
	Kind   Kind
	Handle uint32
}

type Resource struct {
	Key
	Bytes     int64
	Tag       string
	CreatedAt time.Time
}

type Stats struct {
	Created          int64
	Released         int64
	Active           int64
	ActiveBytes      int64
	UntrackedRelease int64
}

type Tracker struct {
	live      map[Key]Resource
	mu        sync.RWMutex
	publisher eventbus.Publisher
	enabled   atomic.Bool

	created   int64
	released  int64
	untracked int64
}

func NewTracker(publisher eventbus.Publisher) *Tracker {
	t := &Tracker{
		live:      make(map[Key]Resource),
		publisher: publisher,
	}
	t.enabled.Store(true)
	return t
}

func (t *Tracker) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Tracker) TrackCreate(kind Kind, handle uint32, bytes int64, tag string) {
	if !t.enabled.Load() {
		return
	}

	res := Resource{
		Key:       Key{Kind: kind, Handle: handle},
		Bytes:     bytes,
		Tag:       tag,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	t.live[res.Key] = res
	t.mu.Unlock()
	atomic.AddInt64(&t.created, 1)

	if t.publisher != nil {
		t.publisher.Publish(eventbus.Event{
			Kind: eventbus.KindResourceCreated,
			Data: map[string]interface{}{
				"kind":   kind.String(),
				"handle": handle,
				"bytes":  bytes,
				"tag":    tag,
			},
		})
	}
}

// TrackResize updates the byte size of a live resource.
func (t *Tracker) TrackResize(kind Kind, handle uint32, bytes int64) {
	if !t.enabled.Load() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := Key{Kind: kind, Handle: handle}
	if res, ok := t.live[key]; ok {
		res.Bytes = bytes
		t.live[key] = res
	}
}

// TrackRelease reports false when the resource was not live, which means it
// was never created or is being released a second time.
func (t *Tracker) TrackRelease(kind Kind, handle uint32) bool {
	if !t.enabled.Load() {
		return true
	}

	key := Key{Kind: kind, Handle: handle}

	t.mu.Lock()
	res, ok := t.live[key]
	if ok {
		delete(t.live, key)
	}
	t.mu.Unlock()

	if ok {
		atomic.AddInt64(&t.released, 1)
	} else {
		atomic.AddInt64(&t.untracked, 1)
	}

	if t.publisher != nil {
		ev := eventbus.Event{
			Kind: eventbus.KindResourceReleased,
			Data: map[string]interface{}{
				"kind":   kind.String(),
				"handle": handle,
			},
		}
		if ok {
			ev.Data["bytes"] = res.Bytes
			ev.Data["lifetime"] = time.Since(res.CreatedAt)
		} else {
			ev.Kind = eventbus.KindResourceUnknown
		}
		t.publisher.Publish(ev)
	}

	return ok
}

// Live returns the resources still alive, ordered by kind then handle.
func (t *Tracker) Live() []Resource {
	t.mu.RLock()
	out := make([]Resource, 0, len(t.live))
	for _, res := range t.live {
		out = append(out, res)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	active := int64(len(t.live))
	var bytes int64
	for _, res := range t.live {
		bytes += res.Bytes
	}
	t.mu.RUnlock()

	return Stats{
		Created:          atomic.LoadInt64(&t.created),
		Released:         atomic.LoadInt64(&t.released),
		Active:           active,
		ActiveBytes:      bytes,
		UntrackedRelease: atomic.LoadInt64(&t.untracked),
	}
}
