package ws

import (
	"context"
	"sync"
	"time"

	"watchparty/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sendQueueSize  = 256
	forwardTimeout = 2 * time.Second
)

// Peer is one connected socket. Its send queue is closed by the hub only.
type Peer struct {
	ID     string
	UserID string
	send   chan []byte
}

func NewPeer(userID string) *Peer {
	return &Peer{ID: uuid.NewString(), UserID: userID, send: make(chan []byte, sendQueueSize)}
}

// Forwarder carries relayed events to other server instances.
type Forwarder interface {
	Forward(ctx context.Context, roomID, event string, msg []byte) error
}

type membership struct {
	room string
	peer *Peer
}

type delivery struct {
	room   string
	sender *Peer // excluded from the fanout; nil for remote events
	to     *Peer // set for a reply to one peer only
	msg    []byte
}

type Stats struct {
	Rooms int
	Peers int
}

type statsRequest struct {
	room  string
	reply chan roomStats
}

type roomStats struct {
	Stats
	online int
}

// Hub 维护房间到连接的映射。所有状态只在 run goroutine 中读写，
// 其他 goroutine 通过 channel 提交操作。
type Hub struct {
	register   chan *Peer
	unregister chan *Peer
	join       chan membership
	leave      chan membership
	deliver    chan delivery
	stats      chan statsRequest
	done       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	forwarder Forwarder

	rooms map[string]map[*Peer]struct{}
	peers map[*Peer]map[string]struct{}
}

func NewHub() *Hub {
	h := &Hub{
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		join:       make(chan membership),
		leave:      make(chan membership),
		deliver:    make(chan delivery),
		stats:      make(chan statsRequest),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		rooms:      make(map[string]map[*Peer]struct{}),
		peers:      make(map[*Peer]map[string]struct{}),
	}
	go h.run()
	return h
}

// SetForwarder must be called before the hub serves peers.
func (h *Hub) SetForwarder(f Forwarder) { h.forwarder = f }

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			for p := range h.peers {
				close(p.send)
				metrics.WsConnections.Dec()
			}
			h.peers = nil
			h.rooms = nil
			metrics.Rooms.Set(0)
			return
		case p := <-h.register:
			if _, ok := h.peers[p]; !ok {
				h.peers[p] = make(map[string]struct{})
				metrics.WsConnections.Inc()
			}
		case p := <-h.unregister:
			h.drop(p)
		case m := <-h.join:
			joined, ok := h.peers[m.peer]
			if !ok {
				// evicted or never registered
				continue
			}
			room := h.rooms[m.room]
			if room == nil {
				room = make(map[*Peer]struct{})
				h.rooms[m.room] = room
				metrics.Rooms.Inc()
			}
			room[m.peer] = struct{}{}
			joined[m.room] = struct{}{}
		case m := <-h.leave:
			h.removeFromRoom(m.room, m.peer)
			if joined, ok := h.peers[m.peer]; ok {
				delete(joined, m.room)
			}
		case d := <-h.deliver:
			if d.to != nil {
				if _, ok := h.peers[d.to]; ok {
					h.push(d.to, d.msg)
				}
				continue
			}
			for p := range h.rooms[d.room] {
				if p == d.sender {
					continue
				}
				h.push(p, d.msg)
			}
		case req := <-h.stats:
			req.reply <- roomStats{Stats: Stats{Rooms: len(h.rooms), Peers: len(h.peers)}, online: len(h.rooms[req.room])}
		}
	}
}

// push never blocks: a peer that cannot keep up is evicted.
func (h *Hub) push(p *Peer, msg []byte) {
	select {
	case p.send <- msg:
	default:
		log.Warn().Str("peer_id", p.ID).Msg("ws send queue full, evicting peer")
		metrics.PeersEvicted.Inc()
		h.drop(p)
	}
}

func (h *Hub) drop(p *Peer) {
	joined, ok := h.peers[p]
	if !ok {
		return
	}
	for room := range joined {
		h.removeFromRoom(room, p)
	}
	delete(h.peers, p)
	close(p.send)
	metrics.WsConnections.Dec()
}

func (h *Hub) removeFromRoom(roomID string, p *Peer) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(room, p)
	if len(room) == 0 {
		delete(h.rooms, roomID)
		metrics.Rooms.Dec()
	}
}

func (h *Hub) Register(p *Peer) {
	select {
	case h.register <- p:
	case <-h.done:
	}
}

// Disconnect removes p from every room and closes its send queue.
func (h *Hub) Disconnect(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Join adds p to roomID, creating the room on first join.
func (h *Hub) Join(roomID string, p *Peer) {
	select {
	case h.join <- membership{room: roomID, peer: p}:
	case <-h.done:
	}
}

func (h *Hub) Leave(roomID string, p *Peer) {
	select {
	case h.leave <- membership{room: roomID, peer: p}:
	case <-h.done:
	}
}

func (h *Hub) RelayPlay(roomID string, sender *Peer) {
	h.relay(roomID, sender, Outbound{Event: EventPlayVideo, RoomID: roomID})
}

func (h *Hub) RelayPause(roomID string, sender *Peer) {
	h.relay(roomID, sender, Outbound{Event: EventPauseVideo, RoomID: roomID})
}

func (h *Hub) RelaySeek(roomID string, sender *Peer, offset float64) {
	h.relay(roomID, sender, Outbound{Event: EventSeekVideo, RoomID: roomID, Time: &offset})
}

// relay fans out to every local peer of the room except sender, then hands
// the event to the forwarder for other instances.
func (h *Hub) relay(roomID string, sender *Peer, out Outbound) {
	msg := encode(out)
	h.submit(delivery{room: roomID, sender: sender, msg: msg})
	metrics.PlaybackEvents.WithLabelValues(out.Event, "local").Inc()
	if h.forwarder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()
	if err := h.forwarder.Forward(ctx, roomID, out.Event, msg); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Str("event", out.Event).Msg("forward playback event")
	}
}

// Deliver fans msg out to every local peer of roomID. Used for events that
// originated on another instance.
func (h *Hub) Deliver(roomID, event string, msg []byte) {
	h.submit(delivery{room: roomID, msg: msg})
	metrics.PlaybackEvents.WithLabelValues(event, "remote").Inc()
}

func (h *Hub) reply(p *Peer, msg []byte) {
	h.submit(delivery{to: p, msg: msg})
}

func (h *Hub) submit(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

func (h *Hub) query(roomID string) roomStats {
	req := statsRequest{room: roomID, reply: make(chan roomStats, 1)}
	select {
	case h.stats <- req:
	case <-h.done:
		return roomStats{}
	}
	select {
	case s := <-req.reply:
		return s
	case <-h.stopped:
		return roomStats{}
	}
}

// Online 返回房间当前的连接数。
func (h *Hub) Online(roomID string) int { return h.query(roomID).online }

func (h *Hub) Stats() Stats { return h.query("").Stats }

// Stop closes every peer's send queue and ends the hub goroutine.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	<-h.stopped
}
