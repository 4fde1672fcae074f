package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
)

// progressReportInterval paces the console progress line.
const progressReportInterval = time.Second

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, rawURL string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// predictURL builds the GET /predict URL for a matchup.
func predictURL(baseURL string, m featurestore.Matchup) string {
	q := url.Values{}
	q.Set("home", m.Home)
	q.Set("away", m.Away)
	q.Set("season", strconv.Itoa(m.Season))
	q.Set("week", strconv.Itoa(m.Week))
	return baseURL + "/predict?" + q.Encode()
}

// fetchPredictions requests a prediction for every matchup concurrently and
// returns the responses indexed like the input.
func fetchPredictions(ctx context.Context, config *Config, matchups []featurestore.Matchup, stats *Stats) ([]*Prediction, error) {
	log.Printf("requesting %d predictions with %d workers...", len(matchups), config.Workers)

	client := newHTTPClient(config.Timeout)
	results := make([]*Prediction, len(matchups))

	var (
		requested int64
		received  int64
		failed    int64
	)
	var lastReport time.Time

	indexChan := make(chan int, config.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddInt64(&requested, 1)
				pred, err := fetchSinglePrediction(ctx, client, config.BaseURL, matchups[idx])
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Printf("prediction failed for %s vs %s: %v",
							matchups[idx].Home, matchups[idx].Away, err)
					}
					continue
				}
				results[idx] = pred
				atomic.AddInt64(&received, 1)

				if time.Since(lastReport) >= progressReportInterval {
					lastReport = time.Now()
					log.Printf("progress: %d/%d requested (received: %d, failed: %d)",
						atomic.LoadInt64(&requested), len(matchups),
						atomic.LoadInt64(&received), atomic.LoadInt64(&failed))
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range matchups {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	stats.PredictionsRequested = int(atomic.LoadInt64(&requested))
	stats.PredictionsReceived = int(atomic.LoadInt64(&received))
	stats.PredictionsFailed = int(atomic.LoadInt64(&failed))

	log.Printf("prediction fetch completed: received %d, failed %d",
		stats.PredictionsReceived, stats.PredictionsFailed)
	return results, nil
}

// fetchSinglePrediction requests one prediction.
func fetchSinglePrediction(ctx context.Context, client *HTTPClient, baseURL string, m featurestore.Matchup) (*Prediction, error) {
	resp, err := client.Get(ctx, predictURL(baseURL, m))
	if err != nil {
		return nil, err
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var pred Prediction
	if err := json.Unmarshal(body, &pred); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return &pred, nil
}
