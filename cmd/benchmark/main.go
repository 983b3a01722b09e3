package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/feeledger/internal/api"
	"github.com/punchamoorthee/feeledger/internal/domain"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	students    int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64
	fail403       uint64
	fail404       uint64
	fail429       uint64
	failOther     uint64

	// successors created across all sweep responses; with idempotent sweeps
	// this equals the number of due entries, however many workers race.
	created uint64
	skipped uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "sweep", "Workload type: sweep | read")
	flag.IntVar(&students, "students", 1000, "Seeded student count (read workload)")
}

func main() {
	flag.Parse()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is required to sign benchmark tokens")
	}
	auth := api.NewAuthenticator(secret)
	adminToken, err := auth.Issue("benchmark", domain.RoleAdmin, duration+time.Minute)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, adminToken)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, token string) {
	defer wg.Done()
	client := &http.Client{Timeout: 30 * time.Second}

	for time.Since(start) < duration {
		var req *http.Request
		switch workload {
		case "read":
			payer := fmt.Sprintf("stu-%05d", rand.Intn(students)+1)
			req, _ = http.NewRequest(http.MethodGet, targetURL+"/api/v1/payments/entries?payer_id="+payer, nil)
		default:
			req, _ = http.NewRequest(http.MethodPost, targetURL+"/api/v1/rollover/sweep", nil)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
			if workload != "read" {
				var report domain.SweepReport
				if json.NewDecoder(resp.Body).Decode(&report) == nil {
					atomic.AddUint64(&created, uint64(report.StudentPayments.Count+report.TeacherSalaries.Count))
					atomic.AddUint64(&skipped, uint64(report.StudentPayments.Skipped+report.TeacherSalaries.Skipped))
				}
			}
		case http.StatusForbidden:
			atomic.AddUint64(&fail403, 1)
		case http.StatusNotFound:
			atomic.AddUint64(&fail404, 1)
		case http.StatusTooManyRequests:
			atomic.AddUint64(&fail429, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	results := map[string]any{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_rps":    float64(total) / d.Seconds(),
		"success":           atomic.LoadUint64(&success200),
		"forbidden":         atomic.LoadUint64(&fail403),
		"not_found":         atomic.LoadUint64(&fail404),
		"rate_limited":      atomic.LoadUint64(&fail429),
		"errors":            atomic.LoadUint64(&failOther),
		"successor_created": atomic.LoadUint64(&created),
		"successor_skipped": atomic.LoadUint64(&skipped),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("write %s: %v", filename, err)
		return
	}
	defer file.Close()
	_ = json.NewEncoder(file).Encode(results)
}
