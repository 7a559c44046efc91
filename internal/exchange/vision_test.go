package exchange

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipWithCSV(t *testing.T, name, csv string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestVisionFetchKlines(t *testing.T) {
	// Microsecond timestamps, as archives ship since Jan 2025.
	csv := "open_time,open,high,low,close,volume\n" +
		"1750000000000000,100.0,101.0,99.0,100.5,10.0\n" +
		"1750000001000000,100.5,102.0,100.0,101.5,11.0\n" +
		"bad,row\n"

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "2025-06-18") {
			http.NotFound(w, r) // one missing day is skipped silently
			return
		}
		w.Write(zipWithCSV(t, "data.csv", csv))
	}))
	defer srv.Close()

	v := NewVisionClient(srv.URL)
	v.now = func() time.Time { return time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC) }

	klines, err := v.FetchKlines(context.Background(), "btcusdc", "1s", 2)
	require.NoError(t, err)

	// Window is days+1 .. 1 days ago: 06-17, 06-18, 06-19; 06-18 is 404.
	require.Len(t, paths, 3)
	assert.Equal(t, "/BTCUSDC/1s/BTCUSDC-1s-2025-06-17.zip", paths[0])
	assert.Equal(t, "/BTCUSDC/1s/BTCUSDC-1s-2025-06-19.zip", paths[2])

	// Two good days, two rows each; headers and bad rows dropped.
	require.Len(t, klines, 4)
	assert.Equal(t, int64(1750000000000000)/1000, klines[0].Time)
	assert.InDelta(t, 100.5, klines[0].Close, 1e-9)
	assert.InDelta(t, 11.0, klines[1].Volume, 1e-9)
}

func TestVisionMalformedArchiveContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "2025-06-17") {
			w.Write([]byte("not a zip"))
			return
		}
		w.Write(zipWithCSV(t, "d.csv", "1700000000000,1,2,0.5,1.5,3\n"))
	}))
	defer srv.Close()

	v := NewVisionClient(srv.URL)
	v.now = func() time.Time { return time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC) }

	klines, err := v.FetchKlines(context.Background(), "ETHUSDC", "1s", 2)
	require.NoError(t, err)

	// The bad day warns and is skipped; the other two days parse.
	require.Len(t, klines, 2)
	assert.Equal(t, int64(1700000000000), klines[0].Time) // already milliseconds
}

func TestParseArchiveCSVEmpty(t *testing.T) {
	assert.Empty(t, parseArchiveCSV(strings.NewReader("")))
	assert.Empty(t, parseArchiveCSV(strings.NewReader("open_time,open\nx,y\n")))
}
