package media

import (
	"testing"

	"github.com/pion/rtp"
)

func TestStatsRecord(t *testing.T) {
	var m statsMap

	m.record("audio", &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 10},
		Payload: make([]byte, 100),
	})
	m.record("audio", &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 11},
		Payload: make([]byte, 60),
	})
	m.record("video", &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 1},
		Payload: make([]byte, 1200),
	})

	st, ok := m.snapshot("audio")
	if !ok {
		t.Fatal("no stats for audio track")
	}
	if st.Packets != 2 || st.Bytes != 160 || st.LastSeq != 11 {
		t.Fatalf("audio stats = %+v, want {Packets:2 Bytes:160 LastSeq:11}", st)
	}

	st, ok = m.snapshot("video")
	if !ok || st.Packets != 1 {
		t.Fatalf("video stats = %+v, ok = %v", st, ok)
	}

	if _, ok := m.snapshot("ghost"); ok {
		t.Fatal("snapshot of unknown track reported ok")
	}
}
