package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// httpClient wraps http.Client with a per-request timeout.
type httpClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *httpClient {
	return &httpClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) postJSON(ctx context.Context, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

func (c *httpClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// submit posts all contribution records concurrently and counts the
// acknowledgements.
func submit(ctx context.Context, cfg *Config, client *httpClient, items [][]Contribution, stats *Stats) {
	url := cfg.BaseURL + "/contributions"

	var accepted, duplicate, failed int64

	recordChan := make(chan Contribution, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range recordChan {
				select {
				case <-ctx.Done():
					atomic.AddInt64(&failed, 1)
					continue
				default:
				}

				resp, err := client.postJSON(ctx, url, rec)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				var ack AckResponse
				data, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				_ = json.Unmarshal(data, &ack)

				switch {
				case resp.StatusCode == http.StatusAccepted:
					atomic.AddInt64(&accepted, 1)
				case resp.StatusCode == http.StatusOK && ack.Duplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	for _, records := range items {
		for _, rec := range records {
			recordChan <- rec
		}
	}
	close(recordChan)
	wg.Wait()

	stats.RecordsAccepted = int(accepted)
	stats.RecordsDuplicate = int(duplicate)
	stats.RecordsFailed = int(failed)
}
