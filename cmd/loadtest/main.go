// Command loadtest drives a running docsearch server with a mix of uploads,
// searches and deletes and prints per-operation latency figures.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Documents   int
	SearchRatio float64
	DeleteRatio float64
}

var vocabulary = strings.Fields(`
	alpha beta gamma delta epsilon zeta theta kappa lambda sigma omega
	river mountain forest desert harbour meadow glacier canyon valley island
	engine signal packet buffer socket kernel thread cursor ledger archive
	amber cobalt crimson indigo ivory jade olive scarlet silver violet`)

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "base URL of the docsearch server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	documents := flag.Int("documents", 200, "distinct document keys to cycle through")
	searchRatio := flag.Float64("search-ratio", 0.8, "fraction of operations that are searches")
	deleteRatio := flag.Float64("delete-ratio", 0.05, "fraction of operations that are deletes")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Documents:   *documents,
		SearchRatio: *searchRatio,
		DeleteRatio: *deleteRatio,
	}
	if cfg.SearchRatio+cfg.DeleteRatio > 1 {
		fmt.Fprintln(os.Stderr, "search-ratio + delete-ratio must not exceed 1")
		os.Exit(2)
	}

	fmt.Println("=== docsearch load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Documents:   %d\n", cfg.Documents)
	fmt.Printf("Mix:         %.0f%% search, %.0f%% delete, %.0f%% upload\n",
		cfg.SearchRatio*100, cfg.DeleteRatio*100, (1-cfg.SearchRatio-cfg.DeleteRatio)*100)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	d := &driver{cfg: cfg, client: client, rec: newRecorder()}

	fmt.Print("Seeding")
	if err := d.seed(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "\nseeding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(" done")

	d.rec = newRecorder()
	d.run()
	if !d.rec.report(os.Stdout, cfg.Duration) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		os.Exit(1)
	}
}

type driver struct {
	cfg    Config
	client *http.Client
	rec    *recorder
}

// seed uploads every document once so searches have something to find.
func (d *driver) seed(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i := 0; i < d.cfg.Documents; i++ {
		rng := rand.New(rand.NewSource(int64(i)))
		g.Go(func() error {
			status, err := d.upload(ctx, docName(i), randomText(rng, 40))
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("upload of %s returned %d", docName(i), status)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *driver) run() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Duration)
	defer cancel()

	var g errgroup.Group
	for w := 0; w < d.cfg.Concurrency; w++ {
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)))
		g.Go(func() error {
			for ctx.Err() == nil {
				d.step(ctx, rng)
			}
			return nil
		})
	}

	fmt.Print("Running")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			fmt.Println(" done!")
			fmt.Println()
			return
		case <-ticker.C:
			fmt.Print(".")
		}
	}
}

func (d *driver) step(ctx context.Context, rng *rand.Rand) {
	key := docName(rng.Intn(d.cfg.Documents))
	start := time.Now()
	var (
		op     string
		status int
		err    error
	)
	switch p := rng.Float64(); {
	case p < d.cfg.SearchRatio:
		op = "search"
		q := vocabulary[rng.Intn(len(vocabulary))]
		if rng.Intn(3) == 0 {
			q += " " + vocabulary[rng.Intn(len(vocabulary))]
		}
		status, err = d.get(ctx, "/search?limit=10&q="+url.QueryEscape(q))
	case p < d.cfg.SearchRatio+d.cfg.DeleteRatio:
		op = "delete"
		status, err = d.do(ctx, http.MethodDelete, "/document/"+url.PathEscape(key), nil, "")
	default:
		op = "upload"
		status, err = d.upload(ctx, key, randomText(rng, 40))
	}
	if ctx.Err() != nil {
		// interrupted by the end of the run
		return
	}
	d.rec.record(op, time.Since(start), status, err)
}

func (d *driver) get(ctx context.Context, path string) (int, error) {
	return d.do(ctx, http.MethodGet, path, nil, "")
}

func (d *driver) upload(ctx context.Context, filename, content string) (int, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return 0, err
	}
	if _, err := io.WriteString(fw, content); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}
	return d.do(ctx, http.MethodPost, "/document", &buf, mw.FormDataContentType())
}

func (d *driver) do(ctx context.Context, method, path string, body io.Reader, contentType string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func docName(i int) string {
	return fmt.Sprintf("load-%04d.txt", i)
}

func randomText(rng *rand.Rand, words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			if i%8 == 0 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(vocabulary[rng.Intn(len(vocabulary))])
	}
	return b.String()
}
