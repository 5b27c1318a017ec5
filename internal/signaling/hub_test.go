package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/p2pchat-signaling/internal/metrics"
)

const recvTimeout = 2 * time.Second

type frame map[string]any

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	h := NewHub(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func connectPeer(t *testing.T, h *Hub) *Peer {
	t.Helper()
	p := NewPeer("test", 16)
	require.True(t, h.Connect(p))
	return p
}

func sendFrame(t *testing.T, h *Hub, p *Peer, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.True(t, h.Deliver(p, data))
}

func recvFrame(t *testing.T, p *Peer) frame {
	t.Helper()
	select {
	case data, ok := <-p.Send():
		require.True(t, ok, "peer queue closed")
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(recvTimeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// expectSilence waits for the hub to drain everything queued so far and then
// asserts that none of the peers received a frame.
func expectSilence(t *testing.T, h *Hub, peers ...*Peer) {
	t.Helper()
	h.Stats()
	for _, p := range peers {
		select {
		case data := <-p.Send():
			t.Fatalf("unexpected frame: %s", data)
		default:
		}
	}
}

// joinRoom joins p to roomID and returns the assigned peer id from room-peers.
func joinRoom(t *testing.T, h *Hub, p *Peer, roomID string) (string, []any) {
	t.Helper()
	sendFrame(t, h, p, frame{"type": "join-room", "roomId": roomID})
	f := recvFrame(t, p)
	require.Equal(t, string(KindRoomPeers), f["type"])
	require.Equal(t, roomID, f["roomId"])
	peers, ok := f["peers"].([]any)
	require.True(t, ok, "peers must be a list")
	return f["peerId"].(string), peers
}

func TestTwoPeersJoinGeneral(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)

	aID, aPeers := joinRoom(t, h, a, "general")
	assert.Empty(t, aPeers)

	bID, bPeers := joinRoom(t, h, b, "general")
	assert.Equal(t, []any{aID}, bPeers)
	assert.NotEqual(t, aID, bID)

	joined := recvFrame(t, a)
	assert.Equal(t, string(KindPeerJoined), joined["type"])
	assert.Equal(t, "general", joined["roomId"])
	assert.Equal(t, bID, joined["peerId"])

	assert.Contains(t, h.MembersOf("general"), bID, "peer-joined must reference a current member")
	expectSilence(t, h, b)
}

func TestJoinIgnoresClientSuppliedPeerID(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)

	sendFrame(t, h, a, frame{"type": "join-room", "roomId": "general", "peerId": "chosen-by-client"})
	f := recvFrame(t, a)
	assert.NotEqual(t, "chosen-by-client", f["peerId"])
	assert.Equal(t, a.ID(), f["peerId"])
}

func TestSnapshotsMatchPriorLiveMembers(t *testing.T) {
	h := startHub(t)

	var live []*Peer
	liveIDs := func() []any {
		ids := make([]any, 0, len(live))
		for _, p := range live {
			ids = append(ids, p.ID())
		}
		return ids
	}

	for i := 0; i < 8; i++ {
		p := connectPeer(t, h)
		_, snapshot := joinRoom(t, h, p, "room")
		assert.ElementsMatch(t, liveIDs(), snapshot, "join %d", i)

		for _, member := range live {
			assert.Equal(t, string(KindPeerJoined), recvFrame(t, member)["type"])
		}
		live = append(live, p)

		if i%3 == 1 {
			leaving := live[0]
			live = live[1:]
			require.True(t, h.Disconnect(leaving))
			for _, member := range live {
				f := recvFrame(t, member)
				assert.Equal(t, string(KindPeerLeft), f["type"])
				assert.Equal(t, leaving.ID(), f["peerId"])
			}
		}
	}
}

func TestAllPeersLeavingRemovesRoom(t *testing.T) {
	h := startHub(t)

	peers := make([]*Peer, 5)
	for i := range peers {
		peers[i] = connectPeer(t, h)
		joinRoom(t, h, peers[i], "R")
	}
	assert.Len(t, h.MembersOf("R"), 5)

	for _, p := range peers {
		require.True(t, h.Disconnect(p))
	}

	assert.Empty(t, h.MembersOf("R"))
	assert.Equal(t, Stats{Peers: 0, Rooms: 0}, h.Stats())
}

func TestJoinThenDisconnectLeavesNoResidue(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	joinRoom(t, h, a, "x")

	require.True(t, h.Disconnect(a))
	assert.Equal(t, Stats{}, h.Stats())

	_, open := <-a.Send()
	assert.False(t, open, "queue is closed after disconnect")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "x")
	joinRoom(t, h, b, "x")
	recvFrame(t, a) // peer-joined

	require.True(t, h.Disconnect(b))
	require.True(t, h.Disconnect(b))

	left := recvFrame(t, a)
	assert.Equal(t, string(KindPeerLeft), left["type"])
	expectSilence(t, h, a)
	assert.Equal(t, []string{aID}, h.MembersOf("x"))
}

func TestFramesAfterDisconnectAreIgnored(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	joinRoom(t, h, b, "x")

	require.True(t, h.Disconnect(a))
	sendFrame(t, h, a, frame{"type": "join-room", "roomId": "x"})

	expectSilence(t, h, b)
	assert.Len(t, h.MembersOf("x"), 1)
}

func TestConcurrentJoinsSeeConsistentSnapshots(t *testing.T) {
	const n = 50
	h := startHub(t)

	peers := make([]*Peer, n)
	for i := range peers {
		// Room for room-peers plus a peer-joined from every later member.
		peers[i] = NewPeer("test", n+1)
		require.True(t, h.Connect(peers[i]))
	}

	join, err := json.Marshal(frame{"type": "join-room", "roomId": "general"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p *Peer) {
			defer wg.Done()
			assert.True(t, h.Deliver(p, join))
		}(p)
	}
	wg.Wait()

	sizes := make(map[int]bool, n)
	for _, p := range peers {
		f := recvFrame(t, p)
		require.Equal(t, string(KindRoomPeers), f["type"])
		listed, ok := f["peers"].([]any)
		require.True(t, ok)
		sizes[len(listed)] = true
	}

	for i := 0; i < n; i++ {
		assert.True(t, sizes[i], "no joiner saw %d existing peers", i)
	}
	assert.Len(t, h.MembersOf("general"), n)
}

func TestJoinIgnoresMembersItDoesNotUse(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)

	sendFrame(t, h, a, frame{"type": "join-room", "roomId": "general", "to": 7})
	f := recvFrame(t, a)
	assert.Equal(t, string(KindRoomPeers), f["type"])
	assert.Len(t, h.MembersOf("general"), 1)
}

func TestOfferWithNonStringRoomIsRelayed(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "general")
	bID, _ := joinRoom(t, h, b, "general")
	recvFrame(t, a) // peer-joined

	sendFrame(t, h, a, frame{"type": "signal-offer", "roomId": 7, "to": bID, "sdp": "v=0"})

	got := recvFrame(t, b)
	assert.Equal(t, string(KindOffer), got["type"])
	assert.Equal(t, aID, got["from"])
	assert.Equal(t, "general", got["roomId"])
}

func TestForgedFromIsRewritten(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "general")
	bID, _ := joinRoom(t, h, b, "general")
	recvFrame(t, a) // peer-joined

	sdp := map[string]any{"type": "offer", "sdp": "v=0"}
	sendFrame(t, h, a, frame{
		"type":   "signal-offer",
		"roomId": "general",
		"from":   "forged",
		"to":     bID,
		"sdp":    sdp,
	})

	got := recvFrame(t, b)
	assert.Equal(t, string(KindOffer), got["type"])
	assert.Equal(t, aID, got["from"])
	assert.Equal(t, bID, got["to"])
	assert.Equal(t, sdp, got["sdp"])
	expectSilence(t, h, a)
}

func TestAnswerAndCandidateAreRelayed(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "general")
	bID, _ := joinRoom(t, h, b, "general")
	recvFrame(t, a)

	sendFrame(t, h, b, frame{"type": "signal-answer", "to": aID, "sdp": map[string]any{"type": "answer"}})
	sendFrame(t, h, b, frame{"type": "signal-ice-candidate", "to": aID, "candidate": map[string]any{"candidate": "c1"}})
	sendFrame(t, h, b, frame{"type": "signal-ice-candidate", "to": aID, "candidate": map[string]any{"candidate": "c2"}})

	answer := recvFrame(t, a)
	assert.Equal(t, string(KindAnswer), answer["type"])
	assert.Equal(t, bID, answer["from"])

	first := recvFrame(t, a)
	second := recvFrame(t, a)
	assert.Equal(t, "c1", first["candidate"].(map[string]any)["candidate"], "send order is preserved")
	assert.Equal(t, "c2", second["candidate"].(map[string]any)["candidate"])
}

func TestCrossRoomNegotiationIsDropped(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	joinRoom(t, h, a, "x")
	bID, _ := joinRoom(t, h, b, "y")

	sendFrame(t, h, a, frame{"type": "signal-offer", "to": bID, "roomId": "y", "sdp": map[string]any{}})
	expectSilence(t, h, a, b)
}

func TestNegotiationBeforeJoinIsDropped(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	bID, _ := joinRoom(t, h, b, "x")

	sendFrame(t, h, a, frame{"type": "signal-offer", "to": bID, "sdp": map[string]any{}})
	expectSilence(t, h, a, b)
}

func TestUnknownTargetIsSilentlyDropped(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	b := connectPeer(t, h)
	joinRoom(t, h, a, "x")
	bID, _ := joinRoom(t, h, b, "x")
	recvFrame(t, a)

	require.True(t, h.Disconnect(b))
	recvFrame(t, a) // peer-left

	sendFrame(t, h, a, frame{"type": "signal-ice-candidate", "to": bID, "candidate": map[string]any{}})
	sendFrame(t, h, a, frame{"type": "signal-offer", "to": "no-such-peer", "sdp": map[string]any{}})
	expectSilence(t, h, a)
}

func TestSelfTargetIsDropped(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "x")

	sendFrame(t, h, a, frame{"type": "signal-offer", "to": aID, "sdp": map[string]any{}})
	expectSilence(t, h, a)
}

func TestMalformedFrameKeepsSessionUsable(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)

	require.True(t, h.Deliver(a, []byte(`{not json`)))
	sendFrame(t, h, a, frame{"type": "mystery"})
	sendFrame(t, h, a, frame{"type": "join-room"})
	expectSilence(t, h, a)

	id, peers := joinRoom(t, h, a, "general")
	assert.NotEmpty(t, id)
	assert.Empty(t, peers)
}

func TestSecondJoinIsRejected(t *testing.T) {
	h := startHub(t)
	a := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "x")

	sendFrame(t, h, a, frame{"type": "join-room", "roomId": "y"})
	sendFrame(t, h, a, frame{"type": "join-room", "roomId": "x"})
	expectSilence(t, h, a)

	assert.Equal(t, []string{aID}, h.MembersOf("x"))
	assert.Empty(t, h.MembersOf("y"))
	assert.Equal(t, "x", a.RoomID())
}

func TestFullQueueDoesNotBlockOtherPeers(t *testing.T) {
	h := startHub(t)
	slow := NewPeer("slow", 1)
	require.True(t, h.Connect(slow))
	fast := connectPeer(t, h)

	sendFrame(t, h, slow, frame{"type": "join-room", "roomId": "x"})
	// slow's only slot now holds room-peers; the next frames to it are dropped.
	_, _ = joinRoom(t, h, fast, "x")

	third := connectPeer(t, h)
	_, peers := joinRoom(t, h, third, "x")
	assert.Len(t, peers, 2)
	assert.Equal(t, string(KindPeerJoined), recvFrame(t, fast)["type"])

	assert.Equal(t, string(KindRoomPeers), recvFrame(t, slow)["type"])
	expectSilence(t, h, slow)
}

type recordedPresence struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedPresence) PeerJoined(roomID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "join:"+roomID+":"+peerID)
}

func (r *recordedPresence) PeerLeft(roomID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "leave:"+roomID+":"+peerID)
}

func (r *recordedPresence) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestPresenceRecorderSeesMembershipChanges(t *testing.T) {
	presence := &recordedPresence{}
	h := startHub(t, WithPresence(presence))

	a := connectPeer(t, h)
	aID, _ := joinRoom(t, h, a, "general")
	unjoined := connectPeer(t, h)
	require.True(t, h.Disconnect(unjoined))
	require.True(t, h.Disconnect(a))
	h.Stats()

	assert.Equal(t, []string{"join:general:" + aID, "leave:general:" + aID}, presence.snapshot())
}

func TestMetricsCountDrops(t *testing.T) {
	m := metrics.New()
	h := startHub(t, WithMetrics(m))

	a := connectPeer(t, h)
	require.True(t, h.Deliver(a, []byte(`nope`)))
	joinRoom(t, h, a, "x")
	sendFrame(t, h, a, frame{"type": "signal-offer", "to": "ghost", "sdp": map[string]any{}})
	h.Stats()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `signaling_dropped_total{reason="malformed"} 1`)
	assert.Contains(t, body, `signaling_dropped_total{reason="unknown_target"} 1`)
	assert.Contains(t, body, `signaling_envelopes_total{kind="join-room"} 1`)
	assert.Contains(t, body, "signaling_rooms 1")
	assert.Contains(t, body, "signaling_connections 1")
}

func TestRunStopClosesPeers(t *testing.T) {
	h := NewHub(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	a := NewPeer("a", 4)
	require.True(t, h.Connect(a))
	h.Stats()

	cancel()
	<-stopped

	_, open := <-a.Send()
	assert.False(t, open)
	assert.False(t, h.Connect(NewPeer("late", 1)))
	assert.False(t, h.Deliver(a, []byte(`{}`)))
	assert.Nil(t, h.MembersOf("x"))
}

func TestStopClosesPeersStillWaitingToConnect(t *testing.T) {
	h := NewHub(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	// The connect is buffered before the hub ever runs.
	queued := NewPeer("queued", 4)
	require.True(t, h.Connect(queued))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	select {
	case _, open := <-queued.Send():
		assert.False(t, open)
	case <-time.After(recvTimeout):
		t.Fatal("queued peer was left open")
	}
}
