// Package router orchestrates the send and history paths: it validates
// presence, resolves shared channels, persists messages, and fans results out
// to the correct live connections.
//
// Failure containment policy: a persistence error must never prevent a live
// message from being delivered, and a history request is always answered
// (with an explicit error payload if stores fail).
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"parley/internal/chat"
	"parley/internal/identity"
	"parley/internal/ids"
	"parley/internal/metrics"
	"parley/internal/presence"
	v1 "parley/shared/contracts/chat/v1"
)

// ErrIdentityNotFound reports that a named identity does not exist in the
// store. The HTTP history endpoint maps it to 404.
var ErrIdentityNotFound = errors.New("identity_not_found")

// Router is the message orchestration core.
type Router struct {
	log        *slog.Logger
	reg        *presence.Registry
	identities identity.Store
	channels   *chat.ChannelResolver
	messages   chat.MessageStore
	metrics    *metrics.Metrics
}

// New constructs a Router over its collaborators.
func New(
	log *slog.Logger,
	reg *presence.Registry,
	identities identity.Store,
	channels *chat.ChannelResolver,
	messages chat.MessageStore,
	m *metrics.Metrics,
) *Router {
	if m == nil {
		m = metrics.New()
	}
	return &Router{
		log:        log,
		reg:        reg,
		identities: identities,
		channels:   channels,
		messages:   messages,
		metrics:    m,
	}
}

// SendPrivate runs the end-to-end send path for one private-message event.
//
// The sender is resolved from its connection handle; an unknown handle is an
// artifact of a disconnect racing an in-flight request and is dropped with a
// log, never surfaced to any client.
func (r *Router) SendPrivate(ctx context.Context, senderConnID string, p v1.PrivateMessagePayload) {
	sender, ok := r.reg.SessionByConn(senderConnID)
	if !ok {
		r.log.Warn("router.send.unknown_sender", "conn_id", senderConnID)
		r.metrics.MessagesDropped.WithLabelValues("unknown_sender").Inc()
		return
	}

	r.log.Info("router.send",
		"sender_public_id", sender.PublicID,
		"sender_display_name", sender.DisplayName,
		"target_public_id", p.TargetPublicID,
	)

	target, live := r.reg.SessionFor(p.TargetPublicID)
	if !live {
		r.sendToOfflineTarget(ctx, sender, p)
		return
	}

	// Persistence eligibility: a session without a durable id means identity
	// resolution was skipped; the live chat experience must not block on
	// storage, so deliver straight from in-memory session state.
	if sender.DurableID == 0 || target.DurableID == 0 {
		r.log.Warn("router.send.no_durable_id.delivery_only",
			"sender_public_id", sender.PublicID, "target_public_id", target.PublicID)
		r.deliver(sender, target, p.Content)
		return
	}

	channelID, err := r.channels.GetOrCreateShared(ctx, sender.DurableID, target.DurableID,
		sharedChannelName(sender.PublicID, target.PublicID))
	if err != nil {
		// Delivery takes priority over persistence durability.
		r.log.Error("router.send.channel_resolve.fail", "err", err)
		r.metrics.StoreFailures.WithLabelValues("channel_resolve").Inc()
		r.deliver(sender, target, p.Content)
		return
	}

	if err := r.messages.AppendMessage(ctx, chat.AppendMessageInput{
		ChannelID: channelID,
		SenderID:  sender.DurableID,
		Content:   p.Content,
		Now:       time.Now().UTC(),
	}); err != nil {
		r.log.Error("router.send.persist.fail", "channel_id", channelID, "err", err)
		r.metrics.StoreFailures.WithLabelValues("message_append").Inc()
	} else {
		r.metrics.MessagesPersisted.Inc()
	}

	r.deliver(sender, target, p.Content)
}

// sendToOfflineTarget persists a message whose target has no live session.
// The target durable id is not in memory, so it is resolved through the
// identity store; if that fails the send degrades to a logged drop.
func (r *Router) sendToOfflineTarget(ctx context.Context, sender presence.Session, p v1.PrivateMessagePayload) {
	if sender.DurableID == 0 {
		r.log.Warn("router.send.target_offline.no_sender_id", "target_public_id", p.TargetPublicID)
		r.metrics.MessagesDropped.WithLabelValues("target_offline").Inc()
		return
	}

	target, err := r.identities.FindByPublicID(ctx, p.TargetPublicID)
	if err != nil {
		r.log.Warn("router.send.target_offline.unresolved", "target_public_id", p.TargetPublicID, "err", err)
		if !errors.Is(err, identity.ErrNotFound) {
			r.metrics.StoreFailures.WithLabelValues("identity_lookup").Inc()
		}
		r.metrics.MessagesDropped.WithLabelValues("target_offline").Inc()
		return
	}

	channelID, err := r.channels.GetOrCreateShared(ctx, sender.DurableID, target.ID,
		sharedChannelName(sender.PublicID, target.PublicID))
	if err != nil {
		r.log.Error("router.send.target_offline.channel_resolve.fail", "err", err)
		r.metrics.StoreFailures.WithLabelValues("channel_resolve").Inc()
		r.metrics.MessagesDropped.WithLabelValues("target_offline").Inc()
		return
	}

	if err := r.messages.AppendMessage(ctx, chat.AppendMessageInput{
		ChannelID: channelID,
		SenderID:  sender.DurableID,
		Content:   p.Content,
		Now:       time.Now().UTC(),
	}); err != nil {
		r.log.Error("router.send.target_offline.persist.fail", "channel_id", channelID, "err", err)
		r.metrics.StoreFailures.WithLabelValues("message_append").Inc()
		r.metrics.MessagesDropped.WithLabelValues("target_offline").Inc()
		return
	}

	r.metrics.MessagesPersisted.Inc()
	r.log.Info("router.send.target_offline.persisted", "channel_id", channelID, "target_public_id", target.PublicID)
}

// deliver enqueues a receive-private-message envelope on the target's live
// connection, best-effort.
func (r *Router) deliver(sender, target presence.Session, content string) {
	payload, _ := json.Marshal(v1.ReceivePrivateMessagePayload{
		SenderPublicID:    sender.PublicID,
		SenderDisplayName: sender.DisplayName,
		Content:           content,
	})
	env := newEnvelope(v1.TypeReceivePrivateMessage, payload, time.Now().UTC())

	if target.Client == nil || !target.Client.Enqueue(env) {
		r.log.Warn("router.deliver.backpressure", "target_public_id", target.PublicID)
		r.metrics.MessagesDropped.WithLabelValues("backpressure").Inc()
		return
	}
	r.metrics.MessagesDelivered.Inc()
}

// FetchHistory runs the history path for one fetch-chat-history event.
// Every outcome after requester resolution is answered on the requester's
// connection; store failures become explicit error payloads with empty lists.
func (r *Router) FetchHistory(ctx context.Context, requesterConnID string, p v1.FetchChatHistoryPayload) {
	requester, ok := r.reg.SessionByConn(requesterConnID)
	if !ok {
		r.log.Warn("router.history.unknown_requester", "conn_id", requesterConnID)
		return
	}

	self, err := r.identities.FindByPublicID(ctx, requester.PublicID)
	if err != nil {
		r.historyLookupFailed(requester, "self", err)
		return
	}
	target, err := r.identities.FindByPublicID(ctx, p.TargetPublicID)
	if err != nil {
		r.historyLookupFailed(requester, "target", err)
		return
	}

	channelID, err := r.channels.FindShared(ctx, self.ID, target.ID)
	if errors.Is(err, chat.ErrNotFound) {
		// Lazy creation mirrors the send path; a channel that did not exist
		// cannot have history, so reply immediately with an empty list.
		if _, err := r.channels.CreateShared(ctx, self.ID, target.ID,
			sharedChannelName(requester.PublicID, p.TargetPublicID)); err != nil {
			r.log.Error("router.history.channel_create.fail", "err", err)
			r.metrics.StoreFailures.WithLabelValues("channel_create").Inc()
			r.replyHistory(requester, v1.ChatHistoryPayload{
				Error:    "failed to fetch chat history",
				Messages: []v1.HistoryMessage{},
			})
			return
		}
		r.replyHistory(requester, v1.ChatHistoryPayload{Messages: []v1.HistoryMessage{}})
		return
	}
	if err != nil {
		r.log.Error("router.history.channel_find.fail", "err", err)
		r.metrics.StoreFailures.WithLabelValues("channel_find").Inc()
		r.replyHistory(requester, v1.ChatHistoryPayload{
			Error:    "failed to fetch chat history",
			Messages: []v1.HistoryMessage{},
		})
		return
	}

	msgs, err := r.messages.ListByChannel(ctx, channelID)
	if err != nil {
		r.log.Error("router.history.list.fail", "channel_id", channelID, "err", err)
		r.metrics.StoreFailures.WithLabelValues("message_list").Inc()
		r.replyHistory(requester, v1.ChatHistoryPayload{
			Error:    "failed to fetch chat history",
			Messages: []v1.HistoryMessage{},
		})
		return
	}

	r.replyHistory(requester, v1.ChatHistoryPayload{
		Messages: annotateHistory(msgs, requester.PublicID),
	})
}

// HistoryBetween is the read-only query behind GET /chat-history.
// Unlike the socket path it never creates a channel: no shared channel simply
// means an empty history.
func (r *Router) HistoryBetween(ctx context.Context, userPublicID, targetPublicID string) ([]v1.HistoryMessage, error) {
	self, err := r.identities.FindByPublicID(ctx, userPublicID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	target, err := r.identities.FindByPublicID(ctx, targetPublicID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	channelID, err := r.channels.FindShared(ctx, self.ID, target.ID)
	if errors.Is(err, chat.ErrNotFound) {
		return []v1.HistoryMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs, err := r.messages.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return annotateHistory(msgs, userPublicID), nil
}

func (r *Router) historyLookupFailed(requester presence.Session, who string, err error) {
	if errors.Is(err, identity.ErrNotFound) {
		r.log.Warn("router.history.identity_missing", "which", who, "err", err)
	} else {
		r.log.Error("router.history.identity_lookup.fail", "which", who, "err", err)
		r.metrics.StoreFailures.WithLabelValues("identity_lookup").Inc()
	}
	r.replyHistory(requester, historyErrorPayload(err))
}

func (r *Router) replyHistory(requester presence.Session, p v1.ChatHistoryPayload) {
	payload, _ := json.Marshal(p)
	env := newEnvelope(v1.TypeChatHistory, payload, time.Now().UTC())

	if requester.Client == nil || !requester.Client.Enqueue(env) {
		r.log.Warn("router.history.reply.backpressure", "public_id", requester.PublicID)
	}
}

// annotateHistory maps store records to wire messages with isSelf computed
// from the requester's viewpoint.
func annotateHistory(msgs []chat.Message, requesterPublicID string) []v1.HistoryMessage {
	out := make([]v1.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, v1.HistoryMessage{
			SenderID:   m.SenderPublicID,
			SenderName: m.SenderName,
			Message:    m.Content,
			Timestamp:  m.CreatedAt,
			IsSelf:     m.SenderPublicID == requesterPublicID,
		})
	}
	return out
}

func historyErrorPayload(err error) v1.ChatHistoryPayload {
	if errors.Is(err, identity.ErrNotFound) {
		return v1.ChatHistoryPayload{
			Error:    "one or both users not found",
			Messages: []v1.HistoryMessage{},
		}
	}
	return v1.ChatHistoryPayload{
		Error:    "failed to fetch chat history",
		Messages: []v1.HistoryMessage{},
	}
}

func sharedChannelName(publicA, publicB string) string {
	return "room_" + publicA + "_" + publicB
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	id, err := ids.NewULID(ts)
	if err != nil {
		id = ids.NewRandomHex(10)
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: payload,
	}
}
