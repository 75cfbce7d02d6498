package engine

import (
	"testing"

	"github.com/flowpbx/neteq/internal/neteq/codec"
	"github.com/flowpbx/neteq/internal/neteq/dsp"
	"github.com/flowpbx/neteq/internal/neteq/neteqerr"
	"github.com/flowpbx/neteq/internal/neteq/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSamples = 160 // 20ms @ 8kHz

func newPCMUInstance(t *testing.T) *Instance {
	t.Helper()
	inst := Assign()
	require.Equal(t, neteqerr.Code(0), inst.Init(8000))
	require.Equal(t, neteqerr.Code(0), inst.CodecDbAdd(codec.KindPCMU, 0, codec.PCMUFuncTable(), nil, 8000))
	return inst
}

func pcmuFrame(v int16) []byte {
	pcm := make([]int16, frameSamples)
	for i := range pcm {
		pcm[i] = v
	}
	return codec.EncodePCMU(pcm)
}

func rtpDatagram(seq uint16, ts uint32, payload []byte) []byte {
	return rtp.Marshal(rtp.Packet{
		PayloadType:    0,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           0xCAFEBABE,
		Payload:        payload,
	})
}

// TestSteadyStreamProducesContinuousOutput feeds a steady 20ms/160-sample
// cadence and drains two 10ms/80-sample RecOut calls per packet. Each
// 160-sample G.711 frame overfills one 80-sample call, so the second call
// per packet must drain the sync buffer rather than falling through to
// concealment: every call should report NormalSpeech, with no discards.
func TestSteadyStreamProducesContinuousOutput(t *testing.T) {
	inst := newPCMUInstance(t)
	const numPackets = 50

	out := make([]int16, 80)
	for i := 0; i < numPackets; i++ {
		seq := uint16(i)
		ts := uint32(i) * frameSamples
		dg := rtpDatagram(seq, ts, pcmuFrame(int16(100+i)))
		require.Equal(t, neteqerr.Code(0), inst.RecIn(dg, ts))

		for c := 0; c < 2; c++ {
			code := inst.RecOut(out)
			require.Equal(t, neteqerr.Code(0), code, "packet %d call %d", i, c)
			assert.Len(t, out, 80)
			assert.Equal(t, dsp.OutputNormalSpeech, inst.LastOutputType(), "packet %d call %d", i, c)
		}
	}

	stats := inst.BufferStats()
	assert.Equal(t, 0, stats.DiscardedDuplicate)
}

// TestSinglePacketLossTriggersExpand drops one packet mid-stream and
// verifies arrival stats record the loss and RecOut keeps producing output
// (via concealment) rather than failing.
func TestSinglePacketLossTriggersExpand(t *testing.T) {
	inst := newPCMUInstance(t)
	out := make([]int16, 80)

	for i, seq := range []int{0, 1, 3, 4} { // seq 2 never arrives
		ts := uint32(seq) * frameSamples
		dg := rtpDatagram(uint16(seq), ts, pcmuFrame(int16(100+i)))
		require.Equal(t, neteqerr.Code(0), inst.RecIn(dg, ts))
	}

	for i := 0; i < 8; i++ {
		code := inst.RecOut(out)
		require.Equal(t, neteqerr.Code(0), code, "iteration %d", i)
	}

	require.NotNil(t, inst.ArrivalStats())
	assert.Equal(t, int32(1), inst.ArrivalStats().CumulativeLost())
}

// TestFarAheadPacketIsNotDiscardedByExpandDecision covers a packet that
// arrives far enough ahead of the expected timestamp to fall outside
// automode's one-unit merge window. The decision that results is Expand,
// whose concealment path never reads the buffered packet's payload — the
// packet must still be sitting in C3 afterward, not extracted and lost
// along with a decision that never consumed it.
func TestFarAheadPacketIsNotDiscardedByExpandDecision(t *testing.T) {
	inst := newPCMUInstance(t)
	out := make([]int16, 80)

	dg0 := rtpDatagram(0, 0, pcmuFrame(100))
	require.Equal(t, neteqerr.Code(0), inst.RecIn(dg0, 0))
	require.Equal(t, neteqerr.Code(0), inst.RecOut(out))

	// Seq 1 and 2 never arrive; seq 3 lands too far ahead for a merge.
	dg3 := rtpDatagram(3, 3*frameSamples, pcmuFrame(103))
	require.Equal(t, neteqerr.Code(0), inst.RecIn(dg3, 3*frameSamples))
	require.Equal(t, 1, inst.NumPacketsBuffered())

	require.Equal(t, neteqerr.Code(0), inst.RecOut(out))
	assert.Equal(t, 1, inst.NumPacketsBuffered())
}

// TestDuplicatePacketDiscarded re-inserts the same sequence number twice
// and verifies the packet buffer's duplicate counter advances while
// occupancy does not.
func TestDuplicatePacketDiscarded(t *testing.T) {
	inst := newPCMUInstance(t)
	dg := rtpDatagram(10, 1600, pcmuFrame(200))

	require.Equal(t, neteqerr.Code(0), inst.RecIn(dg, 1600))
	before := inst.NumPacketsBuffered()
	require.Equal(t, neteqerr.Code(0), inst.RecIn(dg, 1700))

	assert.Equal(t, before, inst.NumPacketsBuffered())
	assert.Equal(t, 1, inst.BufferStats().DiscardedDuplicate)
}

// TestBufferOverflowDiscardsOldest inserts more packets than the packet
// buffer's fixed slot count and checks the overflow counter advances instead of the
// instance failing.
func TestBufferOverflowDiscardsOldest(t *testing.T) {
	inst := Assign()
	require.Equal(t, neteqerr.Code(0), inst.Init(8000))
	require.Equal(t, neteqerr.Code(0), inst.CodecDbAdd(codec.KindPCMU, 0, codec.PCMUFuncTable(), nil, 8000))

	for i := 0; i < defaultMaxSlots+5; i++ {
		seq := uint16(i)
		ts := uint32(i) * frameSamples
		dg := rtpDatagram(seq, ts, pcmuFrame(int16(i)))
		require.Equal(t, neteqerr.Code(0), inst.RecIn(dg, ts))
	}

	assert.Greater(t, inst.BufferStats().DiscardedOverflow, 0)
	assert.LessOrEqual(t, inst.NumPacketsBuffered(), defaultMaxSlots)
}

func TestUnknownPayloadTypeIsRecorded(t *testing.T) {
	inst := newPCMUInstance(t)
	dg := rtpDatagram(1, 0, pcmuFrame(0))
	dg[1] = dg[1]&0x80 | 99 // unregistered payload type, preserve marker bit

	code := inst.RecIn(dg, 0)
	assert.Equal(t, neteqerr.UnknownPayload, code)
	assert.Equal(t, neteqerr.UnknownPayload, inst.GetErrorCode())
}

func TestGetVersionFixedLengthCopy(t *testing.T) {
	inst := Assign()
	dst := make([]byte, 11)
	require.Equal(t, neteqerr.Code(0), inst.GetVersion(dst))
	assert.Equal(t, byte(0), dst[5])

	tooSmall := make([]byte, 4)
	assert.Equal(t, neteqerr.FaultyInstruction, inst.GetVersion(tooSmall))
}

func TestFlushBuffersEmptiesQueue(t *testing.T) {
	inst := newPCMUInstance(t)
	dg := rtpDatagram(1, 0, pcmuFrame(0))
	require.Equal(t, neteqerr.Code(0), inst.RecIn(dg, 0))
	require.Equal(t, 1, inst.NumPacketsBuffered())

	inst.FlushBuffers()
	assert.Equal(t, 0, inst.NumPacketsBuffered())
}

func TestSetRoleRejectsMidSessionSwitch(t *testing.T) {
	inst := newPCMUInstance(t)
	require.Equal(t, neteqerr.Code(0), inst.SetRole(RoleMaster))
	code := inst.SetRole(RoleSlave)
	assert.Equal(t, neteqerr.IllegalMasterSlaveSwitch, code)
}

func TestRecOutMasterSlaveRequiresSlaveRole(t *testing.T) {
	inst := newPCMUInstance(t)
	out := make([]int16, 80)
	code := inst.RecOutMasterSlave(out, MSInfo{SamplesPerCall: 80})
	assert.Equal(t, neteqerr.MasterSlaveError, code)
}

func TestAssignSizeReflectsNetworkMultiplier(t *testing.T) {
	assert.Equal(t, defaultPoolBytes, AssignSize(NetworkUDPNormal))
	assert.Equal(t, defaultPoolBytes*20, AssignSize(NetworkTCPXLargeJitter))
}
