package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowpbx/neteq/internal/neteq/codec"
	"github.com/flowpbx/neteq/internal/neteq/engine"
	neteqmetrics "github.com/flowpbx/neteq/internal/metrics"
	"github.com/flowpbx/neteq/internal/statsdb"
	"github.com/flowpbx/neteq/internal/statsdb/models"
	"github.com/google/uuid"
)

// rtpSession pairs one decoder instance with its WAV sink, keyed by SSRC.
// id is a UUID tagging the session for correlation across log lines and
// persisted snapshots, the way the teacher tags media.Session.ID.
type rtpSession struct {
	label string
	id    string
	inst  *engine.Instance
	wav   *wavWriter
}

// sessionRegistry demultiplexes incoming RTP by SSRC into per-stream decoder
// instances, mirroring the teacher's per-leg socket demux in
// internal/media/relay.go but keyed by SSRC instead of by call leg.
type sessionRegistry struct {
	cfg struct {
		sampleRate int
		networkType engine.NetworkType
		dataDir     string
	}

	mu       sync.Mutex
	sessions map[uint32]*rtpSession
}

func newSessionRegistry(sampleRate int, networkType engine.NetworkType, dataDir string) *sessionRegistry {
	r := &sessionRegistry{sessions: make(map[uint32]*rtpSession)}
	r.cfg.sampleRate = sampleRate
	r.cfg.networkType = networkType
	r.cfg.dataDir = dataDir
	return r
}

func (r *sessionRegistry) getOrCreate(ssrc uint32) (*rtpSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[ssrc]; ok {
		return s, nil
	}

	sizeHint := engine.AssignSize(r.cfg.networkType)
	inst := engine.Assign()
	if code := inst.Init(r.cfg.sampleRate); code != 0 {
		return nil, fmt.Errorf("initializing decoder for ssrc %08x: %s", ssrc, code)
	}
	if code := inst.CodecDbAdd(codec.KindPCMU, 0, codec.PCMUFuncTable(), nil, 8000); code != 0 {
		return nil, fmt.Errorf("registering pcmu: %s", code)
	}
	if code := inst.CodecDbAdd(codec.KindPCMA, 8, codec.PCMAFuncTable(), nil, 8000); code != 0 {
		return nil, fmt.Errorf("registering pcma: %s", code)
	}
	if code := inst.CodecDbAdd(codec.KindCNG, 13, codec.CNGFuncTable(), nil, 8000); code != 0 {
		return nil, fmt.Errorf("registering cng: %s", code)
	}

	label := fmt.Sprintf("ssrc-%08x", ssrc)
	wavPath := filepath.Join(r.cfg.dataDir, label+".wav")
	w, err := newWAVWriter(wavPath, r.cfg.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("opening wav sink for %s: %w", label, err)
	}

	s := &rtpSession{label: label, id: uuid.NewString(), inst: inst, wav: w}
	r.sessions[ssrc] = s
	slog.Info("new rtp session", "ssrc", label, "session_id", s.id, "wav", wavPath, "pool_size_hint", sizeHint)
	return s, nil
}

// list implements neteqmetrics.SessionLister / the stats API's session feed.
func (r *sessionRegistry) list() []neteqmetrics.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]neteqmetrics.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, neteqmetrics.Session{Label: s.label, ID: s.id, Provider: s.inst})
	}
	return out
}

// runPlayout drives RecOut for every active session on a 10ms tick,
// discarding nothing: each tick's PCM goes to that session's WAV file.
func (r *sessionRegistry) runPlayout(ctx context.Context, samplesPerCall int) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	pcm := make([]int16, samplesPerCall)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			sessions := make([]*rtpSession, 0, len(r.sessions))
			for _, s := range r.sessions {
				sessions = append(sessions, s)
			}
			r.mu.Unlock()

			for _, s := range sessions {
				if code := s.inst.RecOut(pcm); code != 0 {
					slog.Warn("recout failed", "session", s.label, "error", code)
					continue
				}
				if err := s.wav.WriteSamples(pcm); err != nil {
					slog.Error("wav write failed", "session", s.label, "error", err)
				}
			}
		}
	}
}

// snapshotAll persists one statsdb row per active session.
func (r *sessionRegistry) snapshotAll(ctx context.Context, repo statsdb.SnapshotRepository) {
	r.mu.Lock()
	sessions := make([]*rtpSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		stats := sess.inst.BufferStats()
		snap := &models.SessionSnapshot{
			SessionLabel:       sess.label,
			SessionID:          sess.id,
			PacketsBuffered:    sess.inst.NumPacketsBuffered(),
			DiscardedDuplicate: stats.DiscardedDuplicate,
			DiscardedOverflow:  stats.DiscardedOverflow,
		}
		if arr := sess.inst.ArrivalStats(); arr != nil {
			snap.CumulativeLost = arr.CumulativeLost()
			snap.FractionLost = arr.FractionLost()
			snap.JitterSamples = arr.JitterSamples()
			snap.OptimalLevelQ8 = arr.OptimalBufferLevelQ8()
		}
		if err := repo.Insert(ctx, snap); err != nil {
			slog.Error("snapshot insert failed", "session", sess.label, "error", err)
		}
	}
}

// closeAll flushes and closes every session's WAV sink.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if err := s.wav.Close(); err != nil {
			slog.Error("wav close failed", "session", s.label, "error", err)
		}
	}
}
