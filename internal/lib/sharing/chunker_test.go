package sharing

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 450)

	chunks := Split(payload, 180)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 180)
	assert.Len(t, chunks[1], 180)
	assert.Len(t, chunks[2], 90)

	assert.Nil(t, Split(nil, 180), "Empty payload yields no chunks")
}

func TestAssembler_OutOfOrderArrival(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	chunks := Split(payload, 5)

	assembler, err := NewAssembler(len(chunks))
	require.NoError(t, err)

	// Deliver in shuffled order.
	order := rand.Perm(len(chunks))
	for _, i := range order {
		require.NoError(t, assembler.Add(i, chunks[i]))
	}
	require.True(t, assembler.Complete())

	out, err := assembler.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, out, "Reassembly must be byte-for-byte exact")
}

func TestAssembler_DuplicatesIgnored(t *testing.T) {
	assembler, err := NewAssembler(2)
	require.NoError(t, err)

	require.NoError(t, assembler.Add(0, []byte("aa")))
	require.NoError(t, assembler.Add(0, []byte("bb"))) // latest-value re-read
	assert.Equal(t, 1, assembler.Received())

	require.NoError(t, assembler.Add(1, []byte("cc")))
	out, err := assembler.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("aacc"), out, "First arrival wins for a given index")
}

func TestAssembler_MissingChunkFailsClosed(t *testing.T) {
	assembler, err := NewAssembler(3)
	require.NoError(t, err)

	require.NoError(t, assembler.Add(0, []byte("aa")))
	require.NoError(t, assembler.Add(2, []byte("cc")))

	assert.False(t, assembler.Complete())
	assert.Equal(t, []int{1}, assembler.Missing())

	_, err = assembler.Bytes()
	assert.ErrorIs(t, err, ErrIncompleteTransfer, "Gaps must fail, never silently truncate")
}

func TestAssembler_IndexOutOfRange(t *testing.T) {
	assembler, err := NewAssembler(2)
	require.NoError(t, err)

	assert.Error(t, assembler.Add(-1, []byte("x")))
	assert.Error(t, assembler.Add(2, []byte("x")))
}
