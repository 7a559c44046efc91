package exchange

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// VisionClient downloads daily candle archives from the static Binance
// Vision host. Archives cover intervals the REST API does not serve (1s),
// without rate limits.
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewVisionClient builds an archive client against baseURL.
func NewVisionClient(baseURL string) *VisionClient {
	return &VisionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

// FetchKlines downloads one ZIP per UTC day covering the past days days and
// returns the parsed candles oldest first. Archives lag about a day, so the
// window starts days+1 days ago and ends yesterday. Missing days (404) are
// skipped silently; malformed archives warn and continue.
func (v *VisionClient) FetchKlines(ctx context.Context, symbol, interval string, days int) ([]Kline, error) {
	symbol = strings.ToUpper(symbol)
	var all []Kline

	today := v.now().UTC().Truncate(24 * time.Hour)
	for d := days + 1; d >= 1; d-- {
		date := today.AddDate(0, 0, -d)
		dateStr := date.Format("2006-01-02")
		url := fmt.Sprintf("%s/%s/%s/%s-%s-%s.zip", v.baseURL, symbol, interval, symbol, interval, dateStr)

		klines, err := v.fetchDay(ctx, url)
		if err != nil {
			if errors.Is(err, errArchiveMissing) {
				log.Debug().Str("symbol", symbol).Str("date", dateStr).Msg("no archive for day")
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("symbol", symbol).Str("date", dateStr).Msg("failed to process archive day")
			continue
		}
		all = append(all, klines...)
	}

	log.Info().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("days", days).
		Int("klines", len(all)).
		Msg("fetched archive klines")
	return all, nil
}

var errArchiveMissing = errors.New("archive not found")

func (v *VisionClient) fetchDay(ctx context.Context, url string) ([]Kline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errArchiveMissing
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("empty archive")
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	return parseArchiveCSV(f), nil
}

// parseArchiveCSV reads (open_time, open, high, low, close, volume, ...)
// rows, skipping headers and short rows. Timestamps above 1e15 are
// microseconds (archives from Jan 2025) and get converted to milliseconds.
func parseArchiveCSV(r io.Reader) []Kline {
	var klines []Kline
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), ",")
		if len(parts) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue // header row
		}
		if ts > 1e15 {
			ts /= 1000
		}

		vals := make([]float64, 5)
		ok := true
		for i := 1; i <= 5; i++ {
			v, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i-1] = v
		}
		if !ok {
			continue
		}

		klines = append(klines, Kline{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return klines
}
