// Package packetbuffer implements the NetEQ packet buffer (spec.md §4.3):
// a bounded pre-allocated store of pending RTP payloads, ordered retrieval
// by RTP timestamp, duplicate detection, and an evict-oldest discard
// policy.
//
// Grounded on the teacher's bounded-queue pattern in
// internal/media/relay.go (fixed-capacity jitter queue around a ring of
// packets keyed by sequence number) generalized here to timestamp-ordered
// retrieval and byte-pool accounting per spec.md §3's slot/pool model.
package packetbuffer

import "github.com/flowpbx/neteq/internal/neteq/neteqerr"

// Packet is one RTP payload destined for the buffer.
type Packet struct {
	PayloadType uint8
	SequenceNumber uint16
	Timestamp   uint32
	SSRC        uint32
	Marker      bool
	Payload     []byte
	RCULevel    int // redundancy level, 0 for primary
}

type slot struct {
	inUse      bool
	pkt        Packet
	recvTS     int64 // host clock units, for late-arrival/age diagnostics
	poolOffset int
	poolLen    int
}

// Stats tracks discard counters. Flush does not reset these; callers
// clear them separately, matching spec.md §4.3's "Flush ... discard
// counters are NOT reset" rule.
type Stats struct {
	DiscardedDuplicate int
	DiscardedOverflow  int
	Inserted           int
}

// Buffer is the bounded, pre-allocated packet store (C3).
type Buffer struct {
	slots []slot
	pool  []byte
	used  int // bytes currently occupied in pool

	stats Stats
}

// New creates a buffer with room for maxSlots packets and poolBytes total
// payload bytes, both fixed for the buffer's lifetime.
func New(maxSlots, poolBytes int) *Buffer {
	return &Buffer{
		slots: make([]slot, maxSlots),
		pool:  make([]byte, poolBytes),
	}
}

// TimestampBefore reports whether a is semantically older than b, using
// the torus-of-diameter-2^31 signed comparison spec.md §4.3 requires for
// wraparound-safe ordering.
func TimestampBefore(a, b uint32) bool { return int32(a-b) < 0 }

func seqBefore(a, b uint16) bool { return int16(a-b) < 0 }

// Insert stores a packet, evicting the oldest-timestamp slot on overflow
// and rejecting duplicate sequence numbers. recvTS is the host clock
// timestamp at arrival, used only for diagnostics here (late-arrival
// comparisons happen in the caller, which has the current sync-buffer
// play position).
func (b *Buffer) Insert(pkt Packet, recvTS int64) neteqerr.Code {
	for i := range b.slots {
		if b.slots[i].inUse && b.slots[i].pkt.SequenceNumber == pkt.SequenceNumber {
			b.stats.DiscardedDuplicate++
			return neteqerr.InsertError
		}
	}

	need := len(pkt.Payload)
	freeSlot := -1
	for i := range b.slots {
		if !b.slots[i].inUse {
			freeSlot = i
			break
		}
	}

	for freeSlot == -1 || b.used+need > len(b.pool) {
		oldest := b.oldestIndex()
		if oldest == -1 {
			// Nothing left to evict but we still can't fit: payload alone
			// exceeds total pool capacity.
			return neteqerr.InsertError
		}
		b.evict(oldest)
		b.stats.DiscardedOverflow++
		if freeSlot == -1 {
			freeSlot = oldest
		}
	}

	off := b.packPosition()
	copy(b.pool[off:off+need], pkt.Payload)
	b.slots[freeSlot] = slot{
		inUse:      true,
		pkt:        pkt,
		recvTS:     recvTS,
		poolOffset: off,
		poolLen:    need,
	}
	b.slots[freeSlot].pkt.Payload = b.pool[off : off+need]
	b.used += need
	b.stats.Inserted++
	return 0
}

// packPosition returns the next free byte offset. Eviction compacts
// synchronously, so occupied bytes are packed contiguously from the start
// of the pool and the offset is always b.used.
func (b *Buffer) packPosition() int { return b.used }

// oldestIndex returns the in-use slot index with smallest timestamp (ties
// broken by smallest sequence number), or -1 if the buffer is empty.
func (b *Buffer) oldestIndex() int {
	best := -1
	for i := range b.slots {
		if !b.slots[i].inUse {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		a, c := b.slots[i].pkt, b.slots[best].pkt
		if TimestampBefore(a.Timestamp, c.Timestamp) ||
			(a.Timestamp == c.Timestamp && seqBefore(a.SequenceNumber, c.SequenceNumber)) {
			best = i
		}
	}
	return best
}

// evict frees slot i and compacts the pool so occupied bytes stay
// contiguous from offset 0, preserving the "no overlap, all inside pool"
// invariant without needing a free-list allocator.
func (b *Buffer) evict(i int) {
	s := b.slots[i]
	if !s.inUse {
		return
	}
	shift := s.poolLen
	copy(b.pool[s.poolOffset:], b.pool[s.poolOffset+shift:b.used])
	b.used -= shift
	for j := range b.slots {
		if b.slots[j].inUse && b.slots[j].poolOffset > s.poolOffset {
			b.slots[j].poolOffset -= shift
			b.slots[j].pkt.Payload = b.pool[b.slots[j].poolOffset : b.slots[j].poolOffset+b.slots[j].poolLen]
		}
	}
	b.slots[i] = slot{}
}

// PeekNext returns the slot index holding the smallest-timestamp packet,
// without removing it. ok is false if the buffer is empty.
func (b *Buffer) PeekNext() (idx int, ok bool) {
	idx = b.oldestIndex()
	return idx, idx != -1
}

// Peek returns the packet at idx without removing it, so a caller can
// inspect its metadata (payload type, timestamp) before deciding whether
// to consume it via Extract. The returned Payload aliases internal pool
// storage and must not be retained past the next mutating call.
func (b *Buffer) Peek(idx int) (Packet, bool) {
	if idx < 0 || idx >= len(b.slots) || !b.slots[idx].inUse {
		return Packet{}, false
	}
	return b.slots[idx].pkt, true
}

// Extract copies out and frees the packet at idx. The returned Payload is
// a copy, never aliasing internal pool storage, matching spec.md §4.3's
// "copy-out into a caller-provided destination (no pointer handoff)".
func (b *Buffer) Extract(idx int) (Packet, neteqerr.Code) {
	if idx < 0 || idx >= len(b.slots) || !b.slots[idx].inUse {
		return Packet{}, neteqerr.NonexistingPacket
	}
	s := b.slots[idx]
	out := make([]byte, len(s.pkt.Payload))
	copy(out, s.pkt.Payload)
	pkt := s.pkt
	pkt.Payload = out
	b.evict(idx)
	return pkt, 0
}

// Flush clears all slots and the pool. Discard counters survive, per
// spec.md §4.3.
func (b *Buffer) Flush() {
	for i := range b.slots {
		b.slots[i] = slot{}
	}
	b.used = 0
}

// NumPacketsBuffered reports the number of in-use slots.
func (b *Buffer) NumPacketsBuffered() int {
	n := 0
	for i := range b.slots {
		if b.slots[i].inUse {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the discard counters.
func (b *Buffer) Stats() Stats { return b.stats }

// ResetStats zeroes the discard counters; called separately from Flush.
func (b *Buffer) ResetStats() { b.stats = Stats{} }

// Capacity returns (slot count, pool bytes).
func (b *Buffer) Capacity() (slots, poolBytes int) { return len(b.slots), len(b.pool) }
