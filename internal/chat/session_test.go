package chat

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("alice\r\n1\n"+strings.Repeat("x", 40)+"\ntail"), 16)

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", line)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "1", line)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 16), line, "overlong line is cut at the buffer size")

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "tail", line)

	_, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestParseRoom(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "1", want: 1},
		{in: " 42 ", want: 42},
		{in: "0", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "two", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRoom(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRoom)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "a", truncate("aé", 2))
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "awaiting_name", stateAwaitingName.String())
	assert.Equal(t, "awaiting_room", stateAwaitingRoom.String())
	assert.Equal(t, "active", stateActive.String())
	assert.Equal(t, "closed", stateClosed.String())
}

func TestClient_RoomIsFixedAfterJoin(t *testing.T) {
	c := newClient(1, nil)
	assert.Equal(t, 0, c.Room())
	assert.True(t, c.setRoom(3))
	assert.False(t, c.setRoom(4))
	assert.Equal(t, 3, c.Room())
}
