// Package modesync propagates system mode changes between herald replicas
// over Redis pub/sub. The database stays the source of truth; a message only
// tells peers to reload it.
package modesync

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"frameworks/herald/internal/controls"
	"frameworks/herald/pkg/logging"
	"frameworks/herald/pkg/redis"
)

const DefaultChannel = "herald:mode"

// Message announces a committed mode change.
type Message struct {
	Origin    string        `json:"origin"`
	Mode      controls.Mode `json:"mode"`
	Paused    bool          `json:"paused"`
	UpdatedBy string        `json:"updated_by"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Reloader re-reads the persisted mode. *controls.Controller satisfies it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Syncer publishes local changes and reloads on changes from peers.
type Syncer struct {
	pubsub   *redis.TypedPubSub[Message]
	channel  string
	instance string
	logger   logging.Logger
}

func New(client goredis.UniversalClient, channel string, logger logging.Logger) *Syncer {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Syncer{
		pubsub:   redis.NewTypedPubSub[Message](client, logger),
		channel:  channel,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// Instance identifies this replica in published messages.
func (s *Syncer) Instance() string { return s.instance }

// NotifyModeChange implements controls.Notifier.
func (s *Syncer) NotifyModeChange(ctx context.Context, st controls.State) error {
	return s.pubsub.Publish(ctx, s.channel, Message{
		Origin:    s.instance,
		Mode:      st.Mode,
		Paused:    st.Paused,
		UpdatedBy: st.UpdatedBy,
		UpdatedAt: st.UpdatedAt,
	})
}

// Run blocks until ctx is done, reloading r whenever a peer announces a
// change. ready may be nil.
func (s *Syncer) Run(ctx context.Context, r Reloader, ready func()) error {
	return s.pubsub.Subscribe(ctx, s.channel, ready, func(msg Message) {
		if msg.Origin == s.instance {
			return
		}
		entry := s.logger.WithFields(logging.Fields{
			"origin": msg.Origin,
			"mode":   msg.Mode,
			"paused": msg.Paused,
		})
		if err := r.Reload(ctx); err != nil {
			entry.WithError(err).Error("Failed to reload system mode after peer change")
			return
		}
		entry.Info("Reloaded system mode after peer change")
	})
}
