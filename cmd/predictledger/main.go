package main

import (
	"PredictLedger/internal/config"
	"PredictLedger/internal/core"
	"PredictLedger/internal/event"
	"PredictLedger/internal/ingestion"
	"PredictLedger/internal/observability"
	"PredictLedger/internal/persistence"
	"PredictLedger/internal/projection"
	"PredictLedger/internal/query"
	"PredictLedger/internal/server"
	"PredictLedger/internal/state"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	configPath := flag.String("config", "", "path to TOML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	log.Println("INFO: PredictLedger starting...")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime.Duration)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	log.Println("INFO: Postgres connected")

	if cfg.Postgres.RunMigrations {
		migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir)
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: run migrations: %v", err)
		}
		log.Println("INFO: migrations applied")
	}

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Printf("WARN: failed to load snapshot: %v", err)
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		log.Printf("INFO: loaded snapshot at sequence %d", snap.Sequence)
	} else {
		log.Println("INFO: no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// The persist channel blocks (backpressure), the projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.Core.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.Core.ProjectionChanSize)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.Core.PersistChanSize)
	publishChan := make(chan ingestion.PublishableEvent, cfg.NATS.PublishBuffer)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Deterministic core ---
	platform := state.NewPlatform(
		cfg.Platform.AdminUUID(),
		cfg.Platform.TreasuryUUID(),
		cfg.Platform.DisputeBond,
		cfg.Platform.DefaultFeeBps,
	)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	settlementCore := core.NewDeterministicCore(
		startSequence,
		platform,
		persistCoreChan,
		projectionCoreChan,
		dbChecker,
		metrics,
	)

	// --- Snapshot restore + LRU warming ---
	if snap != nil {
		coreSnap, err := snap.ToCoreState()
		if err != nil {
			log.Fatalf("FATAL: decode snapshot at sequence %d: %v", snap.Sequence, err)
		}
		settlementCore.RestoreFromSnapshot(coreSnap)
		log.Printf("INFO: restored in-memory state from snapshot at sequence %d", snap.Sequence)

		if len(snap.IdempotencyKeys) > 0 {
			log.Printf("INFO: warming LRU with %d keys from snapshot", len(snap.IdempotencyKeys))
			settlementCore.WarmLRU(snap.IdempotencyKeys)
		}
	}

	// --- Event replay ---
	replayCount, err := replayEventsFromLog(ctx, snapMgr, settlementCore, startSequence, metrics)
	if err != nil {
		log.Fatalf("FATAL: event replay failed: %v", err)
	}
	if replayCount > 0 {
		log.Printf("INFO: replayed %d events (sequence now at %d)", replayCount, settlementCore.GetSequence())
	}

	// --- State hash verification ---
	// After a restore with no newer events, the chain tip must match the snapshot.
	if snap != nil && replayCount == 0 {
		var expectedHash [32]byte
		copy(expectedHash[:], snap.StateHash)
		actualHash := settlementCore.GetStateHash()
		if expectedHash != actualHash {
			log.Fatalf("FATAL: state hash mismatch after restore: expected %x, got %x", expectedHash, actualHash)
		}
		log.Println("INFO: state hash verified after snapshot restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure outbound stream: %v", err)
	}

	rawEventChan := make(chan ingestion.RawEvent, cfg.NATS.RawBuffer)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- Typed command channel ---
	// Both the NATS parse loop and the HTTP command API feed this channel;
	// the single core loop drains it, preserving total order.
	typedEventChan := make(chan event.Event, cfg.NATS.RawBuffer)
	submitter := &channelSubmitter{ch: typedEventChan}

	// --- Services ---
	queryService := query.NewQueryService(db)
	projWorker := projection.NewProjectionWorker(db, projectionCoreChan)
	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.Core.PersistBatchSize, cfg.Core.PersistFlushTimeout.Duration, metrics)
	httpServer := server.NewServer(cfg.Server.Addr, queryService, projWorker.BetHistory(), submitter, healthChecker)

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	go func() {
		errChan <- persistWorker.Run(ctx)
	}()
	go func() {
		errChan <- projWorker.Run(ctx)
	}()
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()
	go func() {
		bridgePersistOutputs(ctx, persistCoreChan, persistWorkerChan, publishChan)
	}()
	go func() {
		runParseLoop(ctx, rawEventChan, typedEventChan)
	}()
	go func() {
		runCoreLoop(ctx, typedEventChan, settlementCore)
	}()
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		runPeriodicSnapshots(ctx, settlementCore, snapMgr, cfg.Snapshot, metrics)
	}()

	healthChecker.SetReady(true)
	log.Printf("INFO: PredictLedger ready (sequence=%d, http=%s)", settlementCore.GetSequence(), cfg.Server.Addr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	healthChecker.SetReady(false)
	cancel()

	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: http shutdown: %v", err)
	}

	close(persistWorkerChan)
	close(publishChan)

	// Final snapshot before exit so the next start replays as little as possible.
	if err := takeSnapshot(shutdownCtx, settlementCore, snapMgr, metrics); err != nil {
		log.Printf("ERROR: final snapshot failed: %v", err)
	} else {
		log.Println("INFO: final snapshot saved")
	}

	log.Println("INFO: PredictLedger shutdown complete")
}

// channelSubmitter feeds HTTP commands into the typed event channel.
type channelSubmitter struct {
	ch chan<- event.Event
}

func (cs *channelSubmitter) Submit(ctx context.Context, evt event.Event) error {
	select {
	case cs.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bridgePersistOutputs converts core output into persistence rows and hands
// applied events to the outbound publisher. The persist send blocks so
// backpressure reaches the core; the publish send drops when full.
func bridgePersistOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	publishOut chan<- ingestion.PublishableEvent,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case output, ok := <-persistIn:
			if !ok {
				return
			}

			persistOut <- persistence.BuildOutput(output.Envelope, output.Batch)

			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				MarketID:       output.Envelope.MarketID,
				Payload:        json.RawMessage(output.Envelope.Payload),
				StateHash:      output.Envelope.StateHash[:],
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				// Drop if publish channel is full
			}
		}
	}
}

// runParseLoop reads raw events from NATS, parses them into typed commands,
// and forwards them to the typed channel. Messages are acked after the
// channel send, not after core processing, so AckWait never expires during a
// slow batch and backpressure propagates naturally via channel blocking.
func runParseLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent, typedChan chan<- event.Event) {
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		prefix := sc.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = sc.EventType
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			eventType := resolveEventType(raw.Subject, subjectToType)
			if eventType == "" {
				log.Printf("WARN: unknown NATS subject: %s", raw.Subject)
				raw.AckFunc() // Ack to avoid a redelivery loop
				continue
			}

			evt, err := ingestion.ParseRawEvent(raw, eventType)
			if err != nil {
				log.Printf("WARN: parse event failed (subject=%s): %v", raw.Subject, err)
				raw.AckFunc()
				continue
			}

			select {
			case typedChan <- evt:
				raw.AckFunc()
			case <-ctx.Done():
				raw.NakFunc()
				return
			}
		}
	}
}

// resolveEventType finds the command type for a NATS subject by longest prefix match.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// runCoreLoop drains typed commands into the deterministic core.
func runCoreLoop(ctx context.Context, typedChan <-chan event.Event, settlementCore *core.DeterministicCore) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-typedChan:
			if !ok {
				return
			}

			if err := settlementCore.ProcessEvent(evt); err != nil {
				// Already acked: validation failures (dedup, gap, invariant)
				// are terminal for the command and logged, never retried.
				log.Printf("ERROR: core.ProcessEvent failed (type=%s, key=%s): %v",
					evt.EventType(), evt.IdempotencyKey(), err)
			}
		}
	}
}

// replayEventsFromLog replays persisted events starting at fromSequence.
// Used for warm restart (replay from snapshot) and cold restart (replay all).
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	settlementCore *core.DeterministicCore,
	fromSequence int64,
	metrics *observability.Metrics,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64
	start := time.Now()

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			et, err := event.EventTypeFromString(row.EventType)
			if err != nil {
				log.Printf("WARN: skip event with unknown type at seq=%d: %s", row.Sequence, row.EventType)
				continue
			}

			typedEvt, err := event.UnmarshalPayload(et, row.Payload)
			if err != nil {
				log.Printf("WARN: skip undecodable event at seq=%d type=%s: %v", row.Sequence, row.EventType, err)
				continue
			}

			if err := settlementCore.ProcessEvent(typedEvt); err != nil {
				// Duplicates and sequence gaps are expected during replay
				log.Printf("DEBUG: replay skip seq=%d: %v", row.Sequence, err)
			}

			totalReplayed++
			if metrics != nil {
				metrics.ReplayEventsTotal.Inc()
			}
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}

	return totalReplayed, nil
}

// runPeriodicSnapshots takes a snapshot whenever the sequence has advanced
// by at least the configured interval since the last one.
func runPeriodicSnapshots(
	ctx context.Context,
	settlementCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	snapCfg config.SnapshotConfig,
	metrics *observability.Metrics,
) {
	lastSnapshotSeq := settlementCore.GetSequence()
	ticker := time.NewTicker(snapCfg.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := settlementCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= snapCfg.Interval {
				if err := takeSnapshot(ctx, settlementCore, snapMgr, metrics); err != nil {
					log.Printf("WARN: periodic snapshot failed: %v", err)
				} else {
					lastSnapshotSeq = currentSeq
					log.Printf("INFO: periodic snapshot at sequence %d", currentSeq)
				}
			}
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it.
func takeSnapshot(
	ctx context.Context,
	settlementCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snapData := persistence.FromCoreState(settlementCore.CreateSnapshotState())

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Mark verified immediately: it was captured from live state.
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		log.Printf("WARN: mark snapshot verified failed: %v", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}

	return nil
}
