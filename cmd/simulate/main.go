package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/hospital-booking/internal/auth"
	"github.com/medisched/hospital-booking/internal/config"
	"github.com/medisched/hospital-booking/internal/db"
)

// The simulator hammers the booking endpoints concurrently over a shared
// slot pool. With the per-slot lock and the slot_id unique constraint in
// place, every contended slot must produce exactly one success and N-1
// conflicts.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
}

type DataPool struct {
	Patients     []int64
	Slots        []int64
	mu           sync.RWMutex
	appointments []int64 // appointment ids created during the run
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) TakeRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	idx := rng.Intn(len(dp.appointments))
	id := dp.appointments[idx]
	dp.appointments = append(dp.appointments[:idx], dp.appointments[idx+1:]...)
	return id, true
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeError
)

// OperationMetrics accumulates per-endpoint counts and latencies under a
// single mutex. Contention on it is negligible next to the HTTP round trip.
type OperationMetrics struct {
	mu        sync.Mutex
	counts    [3]int64
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, result outcome) {
	om.mu.Lock()
	om.counts[result]++
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

type opReport struct {
	total, success, conflict, errors int64
	avg, p50, p95, max               time.Duration
}

func (om *OperationMetrics) report() opReport {
	om.mu.Lock()
	defer om.mu.Unlock()

	r := opReport{
		success:  om.counts[outcomeSuccess],
		conflict: om.counts[outcomeConflict],
		errors:   om.counts[outcomeError],
	}
	r.total = r.success + r.conflict + r.errors
	if len(om.latencies) == 0 {
		return r
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	r.avg = sum / time.Duration(len(sorted))
	r.p50 = percentile(sorted, 50)
	r.p95 = percentile(sorted, 95)
	r.max = sorted[len(sorted)-1]
	return r
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Booking    OperationMetrics
	Cancel     OperationMetrics
	ReadByID   OperationMetrics
	ListByUser OperationMetrics
	ListSlots  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := loadSimConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.Connect(ctx, cfg.PostgresDSN, int32(cfg.Workers))
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d free slots", len(dataPool.Patients), len(dataPool.Slots))

	// The simulator authenticates like any other client, with a token
	// minted from the same signing config the server uses.
	issuer := auth.NewTokenIssuer(baseCfg.TokenSecret, baseCfg.TokenIssuer, baseCfg.TokenAudience, cfg.Duration+time.Minute)
	token, err := issuer.Issue(dataPool.Patients[0], "simulator@localhost", "admin")
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		token: token,
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig(baseCfg config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 400),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT u.id FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE r.name = 'patient'
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	// Free upcoming slots only
	rows, err = pool.Query(ctx, `
		SELECT s.id FROM slots s
		WHERE s.start_time > now()
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = s.id)
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, id)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no free slots loaded, run cmd/seed first")
	}

	return dataPool, nil
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

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByUser(ctx, rng)
				case 2:
					s.doListSlots(ctx)
				}
			}
		}
	}
}

func (s *Simulator) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	return s.client.Do(req)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.do(ctx, "POST", "/appointments", map[string]int64{
		"slot_id": slotID,
		"user_id": patientID,
	})
	latency := time.Since(start)

	result := outcomeError
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			result = outcomeSuccess
			var apptResp struct {
				ID int64 `json:"id"`
			}
			if b, _ := io.ReadAll(resp.Body); len(b) > 0 {
				if json.Unmarshal(b, &apptResp) == nil && apptResp.ID != 0 {
					s.pool.AddAppointment(apptResp.ID)
				}
			}
		case http.StatusConflict:
			result = outcomeConflict
		}
	}

	s.metrics.Booking.Record(latency, result)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.TakeRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, "DELETE", "/appointments/"+strconv.FormatInt(apptID, 10), nil)
	latency := time.Since(start)

	result := outcomeError
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNoContent {
			result = outcomeSuccess
		}
	}

	s.metrics.Cancel.Record(latency, result)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, "GET", "/appointments/"+strconv.FormatInt(apptID, 10), nil)
	latency := time.Since(start)

	result := outcomeError
	if err == nil {
		resp.Body.Close()
		// a concurrent cancel may have deleted it
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
			result = outcomeSuccess
		}
	}

	s.metrics.ReadByID.Record(latency, result)
}

func (s *Simulator) doListByUser(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.do(ctx, "GET", "/users/"+strconv.FormatInt(patientID, 10)+"/appointments", nil)
	latency := time.Since(start)

	result := outcomeError
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			result = outcomeSuccess
		}
	}

	s.metrics.ListByUser.Record(latency, result)
}

func (s *Simulator) doListSlots(ctx context.Context) {
	start := time.Now()
	resp, err := s.do(ctx, "GET", "/slots", nil)
	latency := time.Since(start)

	result := outcomeError
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			result = outcomeSuccess
		}
	}

	s.metrics.ListSlots.Record(latency, result)
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("booking", &s.metrics.Booking)
	printOp("cancel", &s.metrics.Cancel)
	printOp("read_by_id", &s.metrics.ReadByID)
	printOp("list_by_user", &s.metrics.ListByUser)
	printOp("list_slots", &s.metrics.ListSlots)
}

func printOp(name string, om *OperationMetrics) {
	r := om.report()
	if r.total == 0 {
		fmt.Printf("%-14s no operations\n", name)
		return
	}
	fmt.Printf("%-14s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s max=%s\n",
		name, r.total, r.success, r.conflict, r.errors, r.avg, r.p50, r.p95, r.max)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
