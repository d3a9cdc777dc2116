// Package events publishes match notifications and records batch status in Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/model"
)

// ChannelWatchMatched is the pub/sub channel new matches are announced on.
const ChannelWatchMatched = "EVENT_WATCH_MATCHED"

// MatchNotification is the payload published for a run that found new listings.
type MatchNotification struct {
	Type       string   `json:"type"`
	WatchID    string   `json:"watchId"`
	WatchName  string   `json:"watchName"`
	UserID     string   `json:"userId,omitempty"`
	GuestEmail string   `json:"guestEmail,omitempty"`
	ListingIDs []string `json:"listingIds"`
	Titles     []string `json:"titles"`
}

// RedisNotifier publishes MatchNotifications on ChannelWatchMatched.
type RedisNotifier struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisNotifier returns a notifier over rdb.
func NewRedisNotifier(rdb *redis.Client, log *zap.Logger) *RedisNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisNotifier{rdb: rdb, log: log}
}

// NewMatches announces listings that w matched for the first time.
func (n *RedisNotifier) NewMatches(ctx context.Context, w *model.Watch, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	event := MatchNotification{
		Type:       ChannelWatchMatched,
		WatchID:    w.ID,
		WatchName:  w.Name,
		UserID:     w.Owner.UserID,
		GuestEmail: w.Owner.GuestEmail,
		ListingIDs: make([]string, 0, len(listings)),
		Titles:     make([]string, 0, len(listings)),
	}
	for _, l := range listings {
		event.ListingIDs = append(event.ListingIDs, l.ID)
		event.Titles = append(event.Titles, l.Title)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ChannelWatchMatched, err)
	}
	if err := n.rdb.Publish(ctx, ChannelWatchMatched, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelWatchMatched, err)
	}
	n.log.Debug("published match notification",
		zap.String("watch_id", w.ID),
		zap.Int("listings", len(listings)),
	)
	return nil
}
