package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/pagegraph/pagegraph/internal/authz"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/schema"
	"github.com/pagegraph/pagegraph/internal/search"
)

// Renderer re-renders a matched fragment into its dispatch payload.
type Renderer interface {
	Render(ctx context.Context, fragment *graph.Entity) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, fragment *graph.Entity) (string, error)

func (f RendererFunc) Render(ctx context.Context, fragment *graph.Entity) (string, error) {
	return f(ctx, fragment)
}

// PropertyRenderer renders a fragment as the string value of one of its
// properties. The default payload source.
type PropertyRenderer struct {
	Key string
}

func (r PropertyRenderer) Render(_ context.Context, fragment *graph.Entity) (string, error) {
	return fragment.GetString(r.Key), nil
}

// Phase tracks where a commit currently is in the notification pipeline.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseCommitted
	PhaseScanning
	PhaseDispatching
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCommitted:
		return "committed"
	case PhaseScanning:
		return "scanning"
	case PhaseDispatching:
		return "dispatching"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// queueCapacity bounds the dispatch queue between the commit path and the
// dispatch worker.
const queueCapacity = 256

// Notifier observes commits and dispatches live-update messages. Scanning
// runs synchronously with the commit under a read-only elevated context;
// dispatch is decoupled through a bounded queue drained by a worker.
type Notifier struct {
	store    graph.Store
	reg      *schema.Registry
	renderer Renderer
	hub      *Hub

	queue  chan Message
	phase  atomic.Int32
	missed atomic.Uint64

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewNotifier wires a notifier over the store and hub. It does not
// subscribe or start workers; call Start.
func NewNotifier(store graph.Store, reg *schema.Registry, renderer Renderer, hub *Hub) *Notifier {
	if renderer == nil {
		renderer = PropertyRenderer{Key: "content"}
	}

	return &Notifier{
		store:    store,
		reg:      reg,
		renderer: renderer,
		hub:      hub,
		queue:    make(chan Message, queueCapacity),
	}
}

var _ graph.CommitObserver = (*Notifier)(nil)

// Start subscribes to the store and launches the dispatch worker.
func (n *Notifier) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(context.WithoutCancel(ctx))
	n.group, ctx = errgroup.WithContext(ctx)

	n.group.Go(func() error {
		return n.dispatchLoop(ctx)
	})

	n.store.Subscribe(n)

	return nil
}

// Stop drains the worker and waits for it to exit.
func (n *Notifier) Stop(_ context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}

	if n.group != nil {
		if err := n.group.Wait(); err != nil {
			return fmt.Errorf("stop notifier: %w", err)
		}
	}

	return nil
}

// Phase returns the current pipeline phase.
func (n *Notifier) Phase() Phase {
	return Phase(n.phase.Load())
}

func (n *Notifier) setPhase(ctx context.Context, p Phase) {
	n.phase.Store(int32(p))
	log.Debug(ctx, "notification phase", log.String("phase", p.String()))
}

// AfterCommit scans the change set for matched fragments and enqueues
// their messages. It never opens a write transaction; every store access
// runs under a read-only elevated context.
func (n *Notifier) AfterCommit(ctx context.Context, changes *graph.ChangeSet) {
	if changes.Empty() {
		return
	}

	n.setPhase(ctx, PhaseCommitted)
	n.setPhase(ctx, PhaseScanning)

	// The whole scan phase, rendering included, runs read-only: observers
	// must never open a write transaction while reacting to a commit.
	ctx = authz.WithElevatedRead(ctx, "fragment-scan")

	var messages []Message

	seen := make(map[string]struct{})

	for _, change := range changes.Created {
		messages = n.appendFragmentMessages(ctx, messages, seen, change, graph.MutationCreate)
	}

	for _, change := range changes.Modified {
		messages = n.appendFragmentMessages(ctx, messages, seen, change, graph.MutationModify)
	}

	// Deletes skip the fragment search; the entity is gone, observers get
	// a bare teardown.
	for _, change := range changes.Deleted {
		messages = append(messages, Message{
			Kind:       graph.MutationDelete,
			EntityID:   change.ID,
			EntityType: change.Type,
		})
	}

	n.setPhase(ctx, PhaseDispatching)

	for _, msg := range messages {
		select {
		case n.queue <- msg:
		default:
			n.missed.Add(1)
			log.Warn(ctx, "dispatch queue full, dropping message",
				log.String("entity", msg.EntityID),
				log.String("fragment", msg.FragmentID),
			)
		}
	}

	n.setPhase(ctx, PhaseDone)
}

// appendFragmentMessages finds the fragments observing the change and
// appends one message per fragment not yet matched in this commit.
func (n *Notifier) appendFragmentMessages(ctx context.Context, messages []Message, seen map[string]struct{}, change graph.Change, kind graph.MutationKind) []Message {
	fragments, err := n.matchFragments(ctx, change, kind)
	if err != nil {
		log.Error(ctx, "fragment scan failed",
			log.String("entity", change.ID),
			log.Cause(err),
		)

		return messages
	}

	for _, fragment := range fragments {
		if _, ok := seen[fragment.ID]; ok {
			continue
		}

		seen[fragment.ID] = struct{}{}

		payload, err := n.renderer.Render(ctx, fragment)
		if err != nil {
			log.Error(ctx, "fragment render failed",
				log.String("fragment", fragment.ID),
				log.Cause(err),
			)

			continue
		}

		messages = append(messages, Message{
			Kind:       kind,
			EntityID:   change.ID,
			EntityType: change.Type,
			FragmentID: fragment.ID,
			PageID:     fragment.GetString(KeyPageID),
			Payload:    payload,
		})
	}

	return messages
}

// matchFragments searches for fragments observing the changed entity. A
// fragment bound to a data key reacts only when that key was written, for
// creations and modifications alike. Keyless fragments react to creations
// of their observed type alone. Orphaned fragments without a page are
// skipped silently.
func (n *Notifier) matchFragments(ctx context.Context, change graph.Change, kind graph.MutationKind) ([]*graph.Entity, error) {
	tree := search.And(search.TypeAndSubtypes(TypeFragment))

	if kind == graph.MutationModify && len(change.Keys) > 0 {
		keys := search.Or()
		for _, key := range lo.Uniq(change.Keys) {
			keys.Add(search.Exact(KeyDataKey, key))
		}

		tree.Add(keys)
	}

	q, err := search.Compile(n.reg, tree)
	if err != nil {
		return nil, err
	}

	candidates, err := n.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	var matched []*graph.Entity

	for _, fragment := range candidates {
		if fragment.GetString(KeyPageID) == "" {
			continue
		}

		if !n.reg.IsSubtype(change.Type, fragment.GetString(KeyDataType)) {
			continue
		}

		switch key := fragment.GetString(KeyDataKey); {
		case key == "":
			if kind != graph.MutationCreate {
				continue
			}
		case !lo.Contains(change.Keys, key):
			continue
		}

		matched = append(matched, fragment)
	}

	return matched, nil
}

func (n *Notifier) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-n.queue:
			n.hub.Publish(ctx, msg)
		case <-ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case msg := <-n.queue:
					n.hub.Publish(ctx, msg)
				default:
					return nil
				}
			}
		}
	}
}
