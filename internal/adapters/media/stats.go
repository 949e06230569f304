package media

import (
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TrackStats counts what a remote track delivered. Diagnostics only;
// nothing downstream consumes the packets.
type TrackStats struct {
	Packets uint64
	Bytes   uint64
	// LastSeq is the sequence number of the newest packet seen.
	LastSeq uint16
}

type statsMap struct {
	mu     sync.Mutex
	tracks map[string]*TrackStats
}

func (m *statsMap) record(trackID string, pkt *rtp.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracks == nil {
		m.tracks = make(map[string]*TrackStats)
	}
	st, ok := m.tracks[trackID]
	if !ok {
		st = &TrackStats{}
		m.tracks[trackID] = st
	}
	st.Packets++
	st.Bytes += uint64(len(pkt.Payload))
	st.LastSeq = pkt.SequenceNumber
}

func (m *statsMap) snapshot(trackID string) (TrackStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tracks[trackID]
	if !ok {
		return TrackStats{}, false
	}
	return *st, true
}

// readLoop drains a remote track, keeping per-track counters. Exits
// when the track errors out, which also covers session close.
func (m *statsMap) readLoop(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().
				Str("module", "media.session").
				Str("track_id", track.ID()).
				Err(err).
				Msg("track read loop done")
			return
		}
		m.record(track.ID(), pkt)
	}
}
