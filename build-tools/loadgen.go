//go:build ignore

// Run: go run ./build-tools/loadgen.go -addr http://localhost:8080 -rps 200 -duration 30s -nats nats://localhost:4222

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

var sortFields = []string{"price", "priceChange24h", "volume24h", "marketCap", "liquidity", "holders", "name", "createdAt"}
var chains = []string{"SOL", "ETH", "BSC"}

type request struct {
	method string
	path   string
	body   any
}

func main() {
	var (
		addr     = flag.String("addr", "http://localhost:8080", "tokentable base url")
		rps      = flag.Int("rps", 100, "requests per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		natsURL  = flag.String("nats", "", "optional nats url to count broadcast messages")
		prefix   = flag.String("prefix", "tokens", "nats broadcast prefix")
	)
	flag.Parse()

	var views, feed atomic.Int64
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			fmt.Printf("nats connect error: %v\n", err)
			os.Exit(1)
		}
		defer nc.Close()

		_, _ = nc.Subscribe(*prefix+".view", func(*nats.Msg) { views.Add(1) })
		_, _ = nc.Subscribe(*prefix+".feed", func(*nats.Msg) { feed.Add(1) })
	}

	fmt.Printf("loadgen → addr=%s rps=%d duration=%s\n", *addr, *rps, duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 5 * time.Second}
	statuses := map[int]int{}
	var failures int

	end := time.Now().Add(*duration)

	// steady pace with a little drift
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0 // 10 ticks per second
	accum := 0.0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				code, err := send(ctx, client, *addr, randomRequest())
				if err != nil {
					failures++
					continue
				}
				statuses[code]++
			}
		}
	}

	fmt.Printf("statuses=%v failures=%d\n", statuses, failures)
	if *natsURL != "" {
		fmt.Printf("nats view=%d feed=%d\n", views.Load(), feed.Load())
	}
	fmt.Println("done")
}

func randomRequest() request {
	switch mrand.IntN(6) {
	case 0:
		return request{http.MethodPost, "/api/sort/toggle", map[string]string{"field": sortFields[mrand.IntN(len(sortFields))]}}
	case 1:
		return request{http.MethodPost, "/api/filter/chain/" + chains[mrand.IntN(len(chains))] + "/toggle", nil}
	case 2:
		return request{http.MethodPost, "/api/filter/verified/toggle", nil}
	case 3:
		return request{http.MethodPatch, "/api/filter", map[string]any{"minMarketCap": mrand.Float64() * 50_000_000}}
	case 4:
		return request{http.MethodDelete, "/api/filter", nil}
	}
	return request{http.MethodGet, "/api/tokens", nil}
}

func send(ctx context.Context, client *http.Client, addr string, r request) (int, error) {
	var body bytes.Buffer
	if r.body != nil {
		if err := json.NewEncoder(&body).Encode(r.body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, addr+r.path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
