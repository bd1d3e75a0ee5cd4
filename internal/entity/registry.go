// Package entity owns the entity forest (main device, child devices,
// services) and their twin metadata as a single dedicated actor. Per
// §9's design note, the registry is logically global state; rather
// than share it by reference, every other actor queries it through
// request/response envelopes over internal/actor.Server, grounded on
// the registration-message/twin-map handling the reubenmiller
// tedge-container-monitor reference client keeps in its own
// mutex-guarded map.
package entity

import (
	"context"
	"log/slog"
	"sort"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/topic"
)

// Kind identifies what an Entity represents.
type Kind string

const (
	KindMainDevice  Kind = "main-device"
	KindChildDevice Kind = "child-device"
	KindService     Kind = "service"
)

// Entity is one node in the device forest.
type Entity struct {
	ExternalID string
	TopicID    topic.ID
	ParentID   *topic.ID // nil for the main device
	Kind       Kind
	Type       string
	Twin       map[string]any
}

// clone returns a deep-enough copy safe to hand to callers outside
// the registry actor without risking concurrent map mutation.
func (e Entity) clone() Entity {
	twin := make(map[string]any, len(e.Twin))
	for k, v := range e.Twin {
		twin[k] = v
	}
	e.Twin = twin
	return e
}

// Register is the request to add or update an entity, typically built
// from a retained registration message (empty payload on a registered
// topic is a de-registration, handled via Deregister instead).
type Register struct {
	ExternalID string
	TopicID    topic.ID
	ParentID   *topic.ID
	Kind       Kind
	Type       string
}

// Deregister removes an entity and its twin state.
type Deregister struct {
	TopicID topic.ID
}

// TwinUpsert updates or removes one twin fragment. An empty Payload
// removes the fragment (nil map value); a non-nil Payload upserts
// it. Applying the same upsert twice is idempotent, per §8.
type TwinUpsert struct {
	TopicID  topic.ID
	Fragment string
	Payload  any // nil means "remove"
}

// reservedTwinFragments names the twin fragments that must not be
// updated via the twin channel; attempts are reported as warnings,
// not registry errors (§4.3).
var reservedTwinFragments = map[string]bool{"name": true, "type": true}

// Lookup requests the entity registered at a topic ID.
type Lookup struct {
	TopicID topic.ID
}

// LookupByExternalID requests the entity with a given external id.
type LookupByExternalID struct {
	ExternalID string
}

// LookupResult is the reply to Lookup/LookupByExternalID.
type LookupResult struct {
	Entity Entity
	Found  bool
}

// ListChildren requests every direct child of a topic ID.
type ListChildren struct {
	ParentID topic.ID
}

// ListChildrenResult is the reply to ListChildren.
type ListChildrenResult struct {
	Children []Entity
}

// command is the tagged-variant inbound message the registry actor's
// single mailbox accepts, per §9's guidance to prefer a finite tagged
// union over trait-object dynamic dispatch. Exactly one of the fields
// is non-nil/meaningful per message. Every command carries reply:
// queries receive their result on it, mutations an empty
// acknowledgement once applied.
type command struct {
	register    *Register
	deregister  *Deregister
	twinUpsert  *TwinUpsert
	lookup      *Lookup
	lookupByExt *LookupByExternalID
	listKids    *ListChildren
	reply       chan any
}

// Registry is the entity-forest actor. It must be constructed with
// New and started via Run; Seed inserts the main device before Run is
// called so it is always present once the registry starts serving
// requests, matching the invariant "the main device is always present
// after initialisation".
type Registry struct {
	logger  *slog.Logger
	mailbox *actor.Mailbox[command]

	byTopic    map[string]*Entity // keyed by topic.ID.Render()
	byExternal map[string]*Entity
	children   map[string][]string // parent topic key -> child topic keys
}

// New creates an entity registry actor with the given main-device
// identity already seeded.
func New(logger *slog.Logger, mainExternalID string, mainTopicID topic.ID) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:     logger,
		mailbox:    actor.NewMailbox[command](64),
		byTopic:    make(map[string]*Entity),
		byExternal: make(map[string]*Entity),
		children:   make(map[string][]string),
	}
	main := &Entity{
		ExternalID: mainExternalID,
		TopicID:    mainTopicID,
		Kind:       KindMainDevice,
		Type:       "thin-edge.io",
		Twin:       make(map[string]any),
	}
	r.byTopic[mainTopicID.Render()] = main
	r.byExternal[mainExternalID] = main
	return r
}

// Name implements actor.Actor.
func (r *Registry) Name() string { return "entity-registry" }

// sender returns a handle to the registry's command mailbox. Use the
// typed helper methods below rather than constructing command values
// directly — they are unexported so the registry can evolve its
// internal dispatch without breaking callers.
func (r *Registry) sender() actor.Sender[command] { return r.mailbox.Sender() }

func (r *Registry) ask(ctx context.Context, c command) any {
	c.reply = make(chan any, 1)
	if err := r.sender().Send(ctx, c); err != nil {
		return nil
	}
	select {
	case v := <-c.reply:
		return v
	case <-ctx.Done():
		return nil
	}
}

// RegisterEntity upserts an entity. It does not check that
// req.ParentID names a registered entity: the child is inserted and
// linked under that parent's topic key at once, so Children(parent)
// lists it even while the parent itself is not registered.
func (r *Registry) RegisterEntity(ctx context.Context, req Register) {
	r.ask(ctx, command{register: &req})
}

// DeregisterEntity removes an entity from the forest.
func (r *Registry) DeregisterEntity(ctx context.Context, req Deregister) {
	r.ask(ctx, command{deregister: &req})
}

// UpsertTwin applies a twin fragment change.
func (r *Registry) UpsertTwin(ctx context.Context, req TwinUpsert) {
	r.ask(ctx, command{twinUpsert: &req})
}

// LookupEntity resolves a topic ID to its entity.
func (r *Registry) LookupEntity(ctx context.Context, id topic.ID) LookupResult {
	v := r.ask(ctx, command{lookup: &Lookup{TopicID: id}})
	res, _ := v.(LookupResult)
	return res
}

// LookupEntityByExternalID resolves a cloud external id to its
// entity.
func (r *Registry) LookupEntityByExternalID(ctx context.Context, externalID string) LookupResult {
	v := r.ask(ctx, command{lookupByExt: &LookupByExternalID{ExternalID: externalID}})
	res, _ := v.(LookupResult)
	return res
}

// Children returns the direct children of a topic ID, sorted by
// external id for deterministic iteration.
func (r *Registry) Children(ctx context.Context, parent topic.ID) []Entity {
	v := r.ask(ctx, command{listKids: &ListChildren{ParentID: parent}})
	res, _ := v.(ListChildrenResult)
	return res.Children
}

// Run implements actor.Actor: it owns all registry state exclusively
// and only ever touches it from this single goroutine.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-r.mailbox.Recv():
			if !ok {
				return nil
			}
			r.handle(c)
		}
	}
}

func (r *Registry) handle(c command) {
	switch {
	case c.register != nil:
		r.handleRegister(*c.register)
		c.reply <- struct{}{}
	case c.deregister != nil:
		r.handleDeregister(*c.deregister)
		c.reply <- struct{}{}
	case c.twinUpsert != nil:
		r.handleTwinUpsert(*c.twinUpsert)
		c.reply <- struct{}{}
	case c.lookup != nil:
		c.reply <- r.handleLookup(*c.lookup)
	case c.lookupByExt != nil:
		c.reply <- r.handleLookupByExternalID(*c.lookupByExt)
	case c.listKids != nil:
		c.reply <- r.handleListChildren(*c.listKids)
	}
}

func (r *Registry) handleRegister(req Register) {
	key := req.TopicID.Render()
	e := &Entity{
		ExternalID: req.ExternalID,
		TopicID:    req.TopicID,
		ParentID:   req.ParentID,
		Kind:       req.Kind,
		Type:       req.Type,
		Twin:       make(map[string]any),
	}
	if existing, ok := r.byTopic[key]; ok {
		e.Twin = existing.Twin
	}
	r.byTopic[key] = e
	r.byExternal[req.ExternalID] = e

	if req.ParentID != nil {
		pkey := req.ParentID.Render()
		r.children[pkey] = appendUnique(r.children[pkey], key)
	}
}

func (r *Registry) handleDeregister(req Deregister) {
	key := req.TopicID.Render()
	e, ok := r.byTopic[key]
	if !ok {
		return
	}
	delete(r.byTopic, key)
	delete(r.byExternal, e.ExternalID)
	if e.ParentID != nil {
		pkey := e.ParentID.Render()
		r.children[pkey] = removeString(r.children[pkey], key)
	}
	delete(r.children, key)
}

func (r *Registry) handleTwinUpsert(req TwinUpsert) {
	if reservedTwinFragments[req.Fragment] {
		r.logger.Warn("refusing to update reserved twin fragment via twin channel",
			"fragment", req.Fragment, "topic", req.TopicID.Render())
		return
	}
	e, ok := r.byTopic[req.TopicID.Render()]
	if !ok {
		return
	}
	if req.Payload == nil {
		delete(e.Twin, req.Fragment)
		return
	}
	e.Twin[req.Fragment] = req.Payload
}

func (r *Registry) handleLookup(req Lookup) LookupResult {
	e, ok := r.byTopic[req.TopicID.Render()]
	if !ok {
		return LookupResult{}
	}
	return LookupResult{Entity: e.clone(), Found: true}
}

func (r *Registry) handleLookupByExternalID(req LookupByExternalID) LookupResult {
	e, ok := r.byExternal[req.ExternalID]
	if !ok {
		return LookupResult{}
	}
	return LookupResult{Entity: e.clone(), Found: true}
}

func (r *Registry) handleListChildren(req ListChildren) ListChildrenResult {
	keys := r.children[req.ParentID.Render()]
	out := make([]Entity, 0, len(keys))
	for _, k := range keys {
		if e, ok := r.byTopic[k]; ok {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return ListChildrenResult{Children: out}
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
