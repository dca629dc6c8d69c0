package stream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/stretchr/testify/require"
)

func newStream(t *testing.T, data string) *ZipStream {
	t.Helper()
	return New(strings.NewReader(data), int64(len(data)))
}

func TestSeekSemantics(t *testing.T) {
	s := newStream(t, "0123456789abcdefghij") // 20 bytes

	pos, err := s.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(20), pos)
	require.Equal(t, s.Size(), s.Tell())

	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf, err := s.ReadN(10)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(buf))

	pos, err = s.Seek(-5, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(5), pos)

	_, err = s.Seek(-1, io.SeekStart)
	require.Error(t, err)

	_, err = s.Seek(0, 42)
	require.Error(t, err)
}

func TestReadNToEnd(t *testing.T) {
	s := newStream(t, "0123456789abcdefghij")

	_, err := s.Seek(12, io.SeekStart)
	require.NoError(t, err)

	buf, err := s.ReadN(-1)
	require.NoError(t, err)
	require.Equal(t, "cdefghij", string(buf))
	require.Equal(t, s.Size(), s.Tell())

	_, err = s.ReadN(-1)
	require.Equal(t, io.EOF, err)
}

func TestReadNClampsAtEnd(t *testing.T) {
	s := newStream(t, "abcdef")
	_, err := s.Seek(4, io.SeekStart)
	require.NoError(t, err)

	buf, err := s.ReadN(100)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf))
}

func TestReadImplementsReader(t *testing.T) {
	s := newStream(t, "abcdef")
	out, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(out))
}

func TestOpenHTTPRange(t *testing.T) {
	payload := []byte("0123456789abcdefghij")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		http.ServeContent(w, r, "export.zip", time.Now(), bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)

	header := http.Header{}
	header.Set("Authorization", "Bearer tok")
	s, err := OpenHTTPRange(context.Background(), config.New(), srv.URL, header)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), s.Size())

	_, err = s.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	buf, err := s.ReadN(-1)
	require.NoError(t, err)
	require.Equal(t, "ghij", string(buf))

	_, err = s.Seek(5, io.SeekStart)
	require.NoError(t, err)
	buf, err = s.ReadN(3)
	require.NoError(t, err)
	require.Equal(t, "567", string(buf))
}
