// Package app holds the room session coordinator: the state machine
// that reconciles server-side room membership and the real-time media
// session into a single observable record.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/clock"
	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/dispatch"
)

// refreshFactor schedules the membership refresh at 90% of the granted
// expiry, a fixed safety margin against clock drift and network
// latency.
const refreshFactor = 0.9

// Config wires the coordinator's collaborators. All fields except
// Context are required.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Client     core.MembershipClient
	Driver     core.MediaDriver
	Clock      clock.Clock
	// DisplayName is presented to the room on join.
	DisplayName string
	// Context bounds outbound membership calls. Defaults to
	// context.Background.
	Context context.Context
}

// Coordinator owns the room session record. All mutation happens inside
// dispatched intent handlers, which the dispatcher serializes; membership
// calls and the refresh timer run on their own goroutines and feed
// results back in as new intents tagged with the session epoch.
type Coordinator struct {
	dispatcher  *dispatch.Dispatcher
	client      core.MembershipClient
	driver      core.MediaDriver
	clk         clock.Clock
	displayName string
	ctx         context.Context

	mu        sync.Mutex
	state     core.State
	listeners map[int]func(core.State)
	nextID    int

	// epoch and refreshTimer are touched only from intent handlers.
	// A bumped epoch orphans every async result still in flight.
	epoch        uint64
	refreshTimer clock.Timer
}

func New(cfg Config) *Coordinator {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	c := &Coordinator{
		dispatcher:  cfg.Dispatcher,
		client:      cfg.Client,
		driver:      cfg.Driver,
		clk:         cfg.Clock,
		displayName: cfg.DisplayName,
		ctx:         cfg.Context,
		state:       core.State{RoomState: core.StateInit},
		listeners:   make(map[int]func(core.State)),
		epoch:       1,
	}
	c.register()
	return c
}

// handleAs adapts a typed handler to the dispatcher's Action signature.
func handleAs[A dispatch.Action](f func(A)) dispatch.Handler {
	return func(a dispatch.Action) { f(a.(A)) }
}

func (c *Coordinator) register() {
	d := c.dispatcher
	d.MustRegister(dispatch.SetupWindowData{}.Name(), handleAs(c.setupWindowData))
	d.MustRegister(dispatch.FetchServerData{}.Name(), handleAs(c.fetchServerData))
	d.MustRegister(dispatch.UpdateRoomInfo{}.Name(), handleAs(c.updateRoomInfo))
	d.MustRegister(dispatch.JoinRoom{}.Name(), handleAs(c.joinRoom))
	d.MustRegister(dispatch.JoinedRoom{}.Name(), handleAs(c.joinedRoom))
	d.MustRegister(dispatch.MembershipRefreshed{}.Name(), handleAs(c.membershipRefreshed))
	d.MustRegister(dispatch.ConnectedToSDKServers{}.Name(), handleAs(c.connectedToSDKServers))
	d.MustRegister(dispatch.ConnectionFailure{}.Name(), handleAs(c.connectionFailure))
	d.MustRegister(dispatch.SetMute{}.Name(), handleAs(c.setMute))
	d.MustRegister(dispatch.RemotePeerConnected{}.Name(), handleAs(c.remotePeerConnected))
	d.MustRegister(dispatch.RemotePeerDisconnected{}.Name(), handleAs(c.remotePeerDisconnected))
	d.MustRegister(dispatch.RoomFailure{}.Name(), handleAs(c.roomFailure))
	d.MustRegister(dispatch.LeaveRoom{}.Name(), handleAs(c.leaveRoom))
	d.MustRegister(dispatch.WindowUnload{}.Name(), handleAs(c.windowUnload))
}

// Snapshot returns a read-only copy of the session record.
func (c *Coordinator) Snapshot() core.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AddListener subscribes to state replacements. Each listener receives
// a value snapshot after every mutation. The returned func removes the
// subscription.
func (c *Coordinator) AddListener(f func(core.State)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = f
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// replaceState swaps in the new record and notifies listeners with a
// copy. Listeners run outside the lock so they may call Snapshot.
func (c *Coordinator) replaceState(next core.State) {
	c.mu.Lock()
	prev := c.state.RoomState
	c.state = next
	notify := make([]func(core.State), 0, len(c.listeners))
	for _, f := range c.listeners {
		notify = append(notify, f)
	}
	c.mu.Unlock()

	if prev != next.RoomState {
		ev := log.Info().
			Str("module", "app.coordinator").
			Str("old_state", string(prev)).
			Str("new_state", string(next.RoomState))
		if next.Err != nil {
			ev = ev.Err(next.Err)
		}
		ev.Msg("room state transition")
	}
	for _, f := range notify {
		f(next)
	}
}

// stale reports whether an async result belongs to a superseded session
// attempt. Epoch zero marks a direct dispatch and is never stale.
func (c *Coordinator) stale(epoch uint64) bool {
	if epoch == 0 || epoch == c.epoch {
		return false
	}
	log.Debug().
		Str("module", "app.coordinator").
		Uint64("epoch", epoch).
		Uint64("current", c.epoch).
		Msg("dropping stale async result")
	return true
}

// scheduleRefresh arms the one-shot membership refresh at 90% of the
// granted expiry, replacing any pending timer. At most one refresh
// timer is armed per session.
func (c *Coordinator) scheduleRefresh(expiresIn time.Duration, epoch uint64) {
	c.cancelRefresh()
	delay := time.Duration(float64(expiresIn) * refreshFactor)
	c.refreshTimer = c.clk.AfterFunc(delay, func() {
		c.refreshMembership(epoch)
	})
	log.Debug().
		Str("module", "app.coordinator").
		Dur("delay", delay).
		Msg("membership refresh scheduled")
}

func (c *Coordinator) cancelRefresh() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// refreshMembership runs on the timer goroutine. It only reads a state
// snapshot and dispatches the outcome; all mutation happens back inside
// the handler queue.
func (c *Coordinator) refreshMembership(epoch uint64) {
	s := c.Snapshot()
	expires, err := c.client.Refresh(c.ctx, s.RoomToken, s.SessionToken)
	if err != nil {
		c.dispatcher.Dispatch(dispatch.RoomFailure{Err: err, Epoch: epoch})
		return
	}
	c.dispatcher.Dispatch(dispatch.MembershipRefreshed{ExpiresIn: expires, Epoch: epoch})
}

// teardown is the single exit path shared by LeaveRoom, WindowUnload
// and ConnectionFailure: disconnect media, cancel the refresh timer,
// release membership server-side if any was held, then settle into
// next. The epoch bump orphans in-flight membership calls; their
// results will arrive tagged stale and be dropped.
//
// Credentials are deliberately kept in the record, as the original
// behaved; the epoch guard makes them inert.
func (c *Coordinator) teardown(next core.State) {
	c.epoch++
	c.cancelRefresh()
	c.driver.DisconnectSession()

	s := c.Snapshot()
	if s.Joined() {
		token, session := s.RoomToken, s.SessionToken
		// Teardown often runs because ctx was cancelled; the leave
		// must still reach the server.
		ctx := context.WithoutCancel(c.ctx)
		go func() {
			// Fire-and-forget: the session is already gone locally.
			if err := c.client.Leave(ctx, token, session); err != nil {
				log.Warn().
					Str("module", "app.coordinator").
					Err(err).
					Msg("room leave failed")
			}
		}()
	}

	next.RoomToken = s.RoomToken
	next.RoomName = s.RoomName
	next.RoomOwner = s.RoomOwner
	next.RoomURL = s.RoomURL
	next.APIKey = s.APIKey
	next.SessionToken = s.SessionToken
	next.SessionID = s.SessionID
	next.ExpiresIn = s.ExpiresIn
	next.AudioMuted = s.AudioMuted
	next.VideoMuted = s.VideoMuted
	c.replaceState(next)
}
