package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
)

const (
	presenceQueueSize = 512
	leaveWait         = 50 * time.Millisecond
	presenceTTL       = 24 * time.Hour
	drainTimeout      = 5 * time.Second
)

type presenceOp struct {
	joined bool
	roomID string
	peerID string
}

// Presence mirrors room membership into redis sets so the room directory can
// report online counts. Updates are applied asynchronously by Run.
type Presence struct {
	client *redis.Client
	ops    chan presenceOp
	log    *slog.Logger
}

func NewPresence(client *redis.Client, log *slog.Logger) *Presence {
	return &Presence{
		client: client,
		ops:    make(chan presenceOp, presenceQueueSize),
		log:    log.With(slog.String("component", "redis.presence")),
	}
}

// PeerJoined queues a join. A full queue drops it; the count is then low
// until the peer leaves.
func (p *Presence) PeerJoined(roomID, peerID string) {
	op := presenceOp{joined: true, roomID: roomID, peerID: peerID}
	select {
	case p.ops <- op:
	default:
		p.log.Warn("presence queue full, join dropped",
			slog.String("room_id", op.roomID),
			slog.String("peer_id", op.peerID),
		)
	}
}

// PeerLeft queues a leave, waiting up to leaveWait for room. A dropped leave
// leaves a stale member in the room set until the next Reset.
func (p *Presence) PeerLeft(roomID, peerID string) {
	op := presenceOp{roomID: roomID, peerID: peerID}
	select {
	case p.ops <- op:
		return
	default:
	}

	timer := time.NewTimer(leaveWait)
	defer timer.Stop()
	select {
	case p.ops <- op:
	case <-timer.C:
		p.log.Error("presence queue full, leave dropped",
			slog.String("room_id", op.roomID),
			slog.String("peer_id", op.peerID),
		)
	}
}

// Run applies queued updates until ctx is cancelled, then drains what is left.
func (p *Presence) Run(ctx context.Context) {
	opCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case op := <-p.ops:
			p.apply(opCtx, op)
		}
	}
}

func (p *Presence) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case op := <-p.ops:
			p.apply(ctx, op)
		default:
			return
		}
	}
}

func (p *Presence) apply(ctx context.Context, op presenceOp) {
	key := repository.RoomPeersKey(op.roomID)

	var err error
	if op.joined {
		_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, key, op.peerID)
			pipe.Expire(ctx, key, presenceTTL)
			return nil
		})
	} else {
		err = p.client.SRem(ctx, key, op.peerID).Err()
	}
	if err != nil {
		p.log.Error("failed to update presence",
			slog.String("room_id", op.roomID),
			slog.String("peer_id", op.peerID),
			sl.Err(err),
		)
	}
}

// OnlineCount returns the number of peers recorded in roomID.
func (p *Presence) OnlineCount(ctx context.Context, roomID string) (int, error) {
	n, err := p.client.SCard(ctx, repository.RoomPeersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count peers: %w", err)
	}
	return int(n), nil
}

// Reset removes presence sets left behind by a previous process. Peer ids do
// not survive a restart, so none of them can still be live.
func (p *Presence) Reset(ctx context.Context) error {
	iter := p.client.Scan(ctx, 0, repository.RoomPeersKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := p.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear presence: %w", err)
		}
	}
	return iter.Err()
}
