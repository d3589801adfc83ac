package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	GuidedRatio     float64 // share of bookings driven step by step instead of single-shot
	DepartmentsFile string
	Days            int
}

// Reply classes
const (
	outcomeConfirmed = iota
	outcomeFull
	outcomeError
)

type OperationMetrics struct {
	Total     int64
	Confirmed int64
	Full      int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, outcome int) {
	atomic.AddInt64(&om.Total, 1)
	switch outcome {
	case outcomeConfirmed:
		atomic.AddInt64(&om.Confirmed, 1)
	case outcomeFull:
		atomic.AddInt64(&om.Full, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	SingleShot OperationMetrics
	Guided     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	catalog *booking.Catalog
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	catalog, err := booking.LoadCatalog(cfg.DepartmentsFile)
	if err != nil {
		log.Fatalf("load departments: %v", err)
	}

	log.Printf("config: duration=%s workers=%d guided=%.2f days=%d",
		cfg.Duration, cfg.Workers, cfg.GuidedRatio, cfg.Days)

	sim := &Simulator{
		config:  cfg,
		catalog: catalog,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		GuidedRatio:     getFloat("SIM_GUIDED_RATIO", 0.2),
		DepartmentsFile: os.Getenv("DEPARTMENTS_FILE"),
		Days:            getInt("SIM_DAYS", 3),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	if cfg.GuidedRatio < 0 || cfg.GuidedRatio > 1 {
		return fmt.Errorf("SIM_GUIDED_RATIO must be within [0, 1]")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(rng.Int63()))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			person := newPerson(faker, s.catalog, s.config.Days)
			if rng.Float64() < s.config.GuidedRatio {
				s.doGuided(ctx, person)
			} else {
				s.doSingleShot(ctx, person)
			}
		}
	}
}

// person is one simulated patient with a target slot
type person struct {
	sender     string
	firstName  string
	lastName   string
	phone      string
	department string
	date       string
	hour       string
}

func newPerson(faker *gofakeit.Faker, catalog *booking.Catalog, days int) person {
	names := catalog.Names()
	dept := names[faker.Number(0, len(names)-1)]
	d, _ := catalog.Lookup(dept)
	marks := d.HourlyMarks()

	return person{
		sender:     "sim-" + uuid.NewString(),
		firstName:  faker.FirstName(),
		lastName:   faker.LastName(),
		phone:      "+91" + faker.Numerify("##########"),
		department: dept,
		date:       time.Now().AddDate(0, 0, faker.Number(1, days)).Format(booking.DateLayout),
		hour:       marks[faker.Number(0, len(marks)-1)],
	}
}

func (s *Simulator) doSingleShot(ctx context.Context, p person) {
	text := fmt.Sprintf("I am %s, phone %s, %s %s %s", p.firstName, p.phone, strings.ToLower(p.department), p.date, p.hour)

	start := time.Now()
	reply, err := s.send(ctx, p.sender, text)
	if ctx.Err() != nil {
		return
	}
	s.metrics.SingleShot.Record(time.Since(start), classify(reply, err))
}

// doGuided walks every step; latency covers the whole conversation
func (s *Simulator) doGuided(ctx context.Context, p person) {
	turns := []string{
		"register",
		p.firstName,
		p.lastName,
		"3",
		"skip",
		"skip",
		p.phone,
		p.department,
		p.date,
		p.hour,
	}

	start := time.Now()
	var reply string
	var err error
	for _, text := range turns {
		reply, err = s.send(ctx, p.sender, text)
		if err != nil {
			break
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.metrics.Guided.Record(time.Since(start), classify(reply, err))
}

func (s *Simulator) send(ctx context.Context, sender, text string) (string, error) {
	body, _ := json.Marshal(map[string]string{"sender_id": sender, "text": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func classify(reply string, err error) int {
	switch {
	case err != nil:
		return outcomeError
	case strings.Contains(reply, "Registration confirmed"):
		return outcomeConfirmed
	case strings.Contains(reply, "fully booked"):
		return outcomeFull
	default:
		return outcomeError
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Single-shot booking", &s.metrics.SingleShot)
	printOperationReport("Guided booking", &s.metrics.Guided)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	confirmed := atomic.LoadInt64(&om.Confirmed)
	full := atomic.LoadInt64(&om.Full)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Confirmed: %d (%.1f%%)\n", confirmed, float64(confirmed)/float64(total)*100)
	if full > 0 {
		fmt.Printf("  Slot full: %d (%.1f%%)\n", full, float64(full)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
