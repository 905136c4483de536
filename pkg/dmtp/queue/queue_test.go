package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetWithSeq(seq uint32) *Packet {
	return &Packet{Sequence: seq, Payload: []byte{byte(seq)}}
}

func TestOverwriteDisabledRejectsOnFull(t *testing.T) {
	q := New(3)
	for i := uint32(0); i < 3; i++ {
		require.NoError(t, q.Add(packetWithSeq(i)))
	}
	err := q.Add(packetWithSeq(99))
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 3, q.Count())
}

func TestOverwriteEnabledDropsOldest(t *testing.T) {
	q := New(3)
	q.EnableOverwrite(true)
	for i := uint32(0); i < 5; i++ {
		require.NoError(t, q.Add(packetWithSeq(i)))
	}
	assert.Equal(t, 3, q.Count())
	seq, ok := q.FirstSentSequence()
	assert.False(t, ok) // nothing marked sent yet
	_ = seq
}

func TestAcknowledgeUpToStopsAtMatch(t *testing.T) {
	q := New(5)
	for i := uint32(0); i < 5; i++ {
		require.NoError(t, q.Add(packetWithSeq(i)))
	}
	q.MarkFirstNSent(3) // sequences 0,1,2 are sent; 3,4 are not

	removed := q.AcknowledgeUpTo(1, 0xFFFFFFFF)
	assert.Equal(t, 2, removed) // deletes seq 0 and 1, stops at the match
	assert.Equal(t, 3, q.Count())

	seq, ok := q.FirstSentSequence()
	require.True(t, ok)
	assert.Equal(t, uint32(2), seq)
}

func TestAcknowledgeAllDropsEverySent(t *testing.T) {
	q := New(5)
	for i := uint32(0); i < 4; i++ {
		require.NoError(t, q.Add(packetWithSeq(i)))
	}
	q.MarkFirstNSent(4)
	removed := q.AcknowledgeUpTo(SequenceAll, 0xFFFFFFFF)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 0, q.Count())
}

func TestIteratorWalksInOrder(t *testing.T) {
	q := New(4)
	for i := uint32(0); i < 3; i++ {
		require.NoError(t, q.Add(packetWithSeq(i)))
	}
	it := q.GetIterator()
	var seen []uint32
	for it.HasNext() {
		seen = append(seen, it.GetNext().Sequence)
	}
	assert.Equal(t, []uint32{0, 1, 2}, seen)
}

func TestHighestPriority(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Add(&Packet{Priority: 1}))
	require.NoError(t, q.Add(&Packet{Priority: 3}))
	require.NoError(t, q.Add(&Packet{Priority: 2}))
	p, ok := q.HighestPriority()
	require.True(t, ok)
	assert.Equal(t, 3, p)
}
