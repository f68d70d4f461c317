package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stampbook/stampbook-backend/internal/offline"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
)

const usage = `usage: stampctl <command> [flags]

commands:
  issue   grant stamps (-method qr|direct)
  redeem  redeem a reward code (-code)
  drain   replay queued operations now
  queue   list pending and dead-lettered operations
  watch   probe the API and drain whenever it comes back
`

type app struct {
	cfg     *config.OfflineConfig
	logg    *logger.Logger
	store   *db.Client
	client  *offline.Client
	queue   *offline.Queue
	monitor *offline.Monitor
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	logg := logger.New(logger.Options{ServiceName: "stampctl", Output: os.Stderr})
	cfg, err := config.LoadOffline()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := os.Args[1], os.Args[2:]
	var reg prometheus.Registerer
	metricsAddr := ""
	if command == "watch" {
		fs := flag.NewFlagSet("watch", flag.ExitOnError)
		fs.StringVar(&metricsAddr, "metrics", "", "serve queue metrics on this address")
		_ = fs.Parse(args)
		if metricsAddr != "" {
			reg = prometheus.DefaultRegisterer
		}
	}

	a, err := newApp(cfg, logg, reg)
	if err != nil {
		logg.Error(ctx, "failed to open offline queue", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			logg.Error(context.Background(), "error closing offline store", err)
		}
	}()

	switch command {
	case "issue":
		err = a.issue(ctx, args)
	case "redeem":
		err = a.redeem(ctx, args)
	case "drain":
		err = a.drain(ctx)
	case "queue":
		err = a.list(ctx)
	case "watch":
		err = a.watch(ctx, metricsAddr)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "stampctl "+command+" failed", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.OfflineConfig, logg *logger.Logger, reg prometheus.Registerer) (*app, error) {
	store, err := offline.OpenStore(offline.LocalDSN(cfg.DBPath))
	if err != nil {
		return nil, err
	}
	client, err := offline.NewClient(cfg.APIBaseURL, cfg.APIToken, offline.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	queue, err := offline.NewQueue(offline.QueueParams{
		Repo:     offline.NewRepository(store.DB()),
		Replayer: client,
		Config:   *cfg,
		Metrics:  metrics.NewOfflineQueueMetrics(reg),
		Logger:   logg,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	monitor, err := offline.NewMonitor(offline.MonitorParams{
		Probe:    client.Health,
		Queue:    queue,
		Interval: cfg.ProbeInterval,
		Logger:   logg,
		OnDrain: func(report *offline.DrainReport) {
			printJSON(report)
		},
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &app{cfg: cfg, logg: logg, store: store, client: client, queue: queue, monitor: monitor}, nil
}

// submitter probes first so anything already queued replays before the new
// call is sent.
func (a *app) submitter(ctx context.Context) (*offline.Submitter, error) {
	a.monitor.Check(ctx)
	return offline.NewSubmitter(offline.SubmitterParams{
		API:          a.client,
		Queue:        a.queue,
		Connectivity: a.monitor,
		Logger:       a.logg,
	})
}

func (a *app) issue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	method := fs.String("method", "qr", "issuance method: qr|direct")
	qr := fs.String("qr", "", "scanned QR payload (method=qr)")
	card := fs.String("card", "", "card id (method=direct)")
	customer := fs.String("customer", "", "customer id (method=direct)")
	email := fs.String("email", "", "customer email, instead of -customer (method=direct)")
	count := fs.Int("count", 0, "stamps to grant, defaults to 1")
	_ = fs.Parse(args)

	req := stamps.IssueRequest{
		Method:        *method,
		QRPayload:     *qr,
		CardID:        *card,
		CustomerID:    *customer,
		CustomerEmail: *email,
	}
	if *count > 0 {
		req.Count = count
	}

	sub, err := a.submitter(ctx)
	if err != nil {
		return err
	}
	outcome, err := sub.IssueStamps(ctx, req)
	if err != nil {
		return err
	}
	printJSON(outcome)
	return nil
}

func (a *app) redeem(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("redeem", flag.ExitOnError)
	code := fs.String("code", "", "reward code shown by the customer")
	_ = fs.Parse(args)
	if *code == "" {
		return errors.New("missing -code")
	}

	sub, err := a.submitter(ctx)
	if err != nil {
		return err
	}
	outcome, err := sub.RedeemReward(ctx, rewards.RedeemRequest{RewardCode: *code})
	if err != nil {
		return err
	}
	printJSON(outcome)
	return nil
}

func (a *app) drain(ctx context.Context) error {
	report, err := a.queue.Drain(ctx)
	if err != nil {
		return err
	}
	printJSON(report)
	return report.Failures
}

type queueListing struct {
	Pending     map[enums.OperationType]int `json:"pending"`
	DeadLetters []deadLetter                `json:"dead_letters"`
}

type deadLetter struct {
	ID        string              `json:"id"`
	Type      enums.OperationType `json:"type"`
	Attempts  int                 `json:"attempts"`
	LastError string              `json:"last_error,omitempty"`
	DeadAt    *time.Time          `json:"dead_at,omitempty"`
}

func (a *app) list(ctx context.Context) error {
	out := queueListing{Pending: map[enums.OperationType]int{}, DeadLetters: []deadLetter{}}
	for _, opType := range enums.OperationTypes() {
		ops, err := a.queue.Pending(ctx, opType)
		if err != nil {
			return err
		}
		out.Pending[opType] = len(ops)
	}
	dead, err := a.queue.DeadLetters(ctx, 50)
	if err != nil {
		return err
	}
	for _, op := range dead {
		entry := deadLetter{ID: op.ID.String(), Type: op.Type, Attempts: op.AttemptCount, DeadAt: op.DeadAt}
		if op.LastError != nil {
			entry.LastError = *op.LastError
		}
		out.DeadLetters = append(out.DeadLetters, entry)
	}
	printJSON(out)
	return nil
}

func (a *app) watch(ctx context.Context, metricsAddr string) error {
	if metricsAddr != "" {
		server := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}
	a.logg.Info(a.logg.WithField(ctx, "api", a.cfg.APIBaseURL), "stampctl.watch.start")
	return a.monitor.Run(ctx)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
