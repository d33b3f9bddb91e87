// Copyright 2025 Certen Protocol
//
// dragonnetd is the composition root: it loads configuration, wires up
// the level-appropriate processor (C7/C9), the broadcast processor and
// scheduler (C8, when this node originates blocks), and the HTTP
// ingress (C10), then serves until a shutdown signal arrives. Every
// node runs one level (LEVEL=1..5); the collaborators it builds depend
// on which.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/dragonchain-gen2/dragonnet/pkg/anchor"
	"github.com/dragonchain-gen2/dragonnet/pkg/authz"
	"github.com/dragonchain-gen2/dragonnet/pkg/broadcast"
	"github.com/dragonchain-gen2/dragonnet/pkg/config"
	"github.com/dragonchain-gen2/dragonnet/pkg/coord"
	"github.com/dragonchain-gen2/dragonnet/pkg/dao"
	"github.com/dragonchain-gen2/dragonnet/pkg/firestore"
	"github.com/dragonchain-gen2/dragonnet/pkg/interchain"
	"github.com/dragonchain-gen2/dragonnet/pkg/keyservice"
	"github.com/dragonchain-gen2/dragonnet/pkg/kvdb"
	"github.com/dragonchain-gen2/dragonnet/pkg/matchmaking"
	"github.com/dragonchain-gen2/dragonnet/pkg/model"
	"github.com/dragonchain-gen2/dragonnet/pkg/queue"
	"github.com/dragonchain-gen2/dragonnet/pkg/registry"
	"github.com/dragonchain-gen2/dragonnet/pkg/rpc"
	"github.com/dragonchain-gen2/dragonnet/pkg/server"
	"github.com/dragonchain-gen2/dragonnet/pkg/store"
	"github.com/dragonchain-gen2/dragonnet/pkg/txproc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load configuration:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration:", err)
	}

	logger := log.New(log.Writer(), fmt.Sprintf("[L%d] ", cfg.Level), log.LstdFlags)
	hashAlgo := model.HashAlgo(cfg.Hash)
	dcID := cfg.DragonchainName
	if dcID == "" {
		dcID = cfg.InternalID
	}

	objStore, err := buildObjectStore(cfg)
	if err != nil {
		log.Fatal("build object store:", err)
	}

	index, err := buildIndex(cfg, logger)
	if err != nil {
		log.Fatal("build search index:", err)
	}
	blockDAO := dao.NewBlockDAO(objStore, index)

	ks, err := keyservice.New(dcID, cfg.StorageLocation)
	if err != nil {
		log.Fatal("load signing key:", err)
	}
	if cfg.Level == 3 || cfg.Level == 4 {
		if err := ks.EnableAggregation(dcID); err != nil {
			log.Fatal("enable BLS aggregation:", err)
		}
	}

	// Every level authenticates inbound requests and looks up peer
	// chain facts through the coordination store, so it is dialed
	// regardless of level.
	c := coord.NewRedisCoord(fmt.Sprintf("%s:%d", cfg.RedisEndpoint, cfg.RedisPort), 0)
	keys := authz.NewKeyStore(c)
	replay := authz.NewCoordReplayCache(c)
	verifier := authz.NewVerifier(dcID, keys, replay)
	reg := registry.New(c)
	processor := broadcast.NewProcessor(c, blockDAO, broadcast.DefaultRequirements())

	mm := matchmaking.NewFake()
	poster := rpc.NewHTTPPoster()

	mux := http.NewServeMux()
	routes := server.Routes{}

	srv := server.NewServer(dcID, int(cfg.Level), verifier, processor, server.WithLogger(logger), server.WithBlockDAO(blockDAO))
	routes.InterchainAuthRegister = server.NewInterchainAuthRegisterHandler(srv, keys)

	if cfg.Level == 1 {
		// Only the block's origin chain tracks its own quorum state
		// and claim checks; L2-L5 only ever send receipts onward.
		routes.Receipt = server.NewReceiptHandler(srv)
		routes.Claim = server.NewClaimHandler(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())

	switch cfg.Level {
	case 1:
		txns := queue.New[*model.Transaction]()
		routes.Transaction = server.NewTransactionHandler(srv, txns)
		routes.Block = server.NewBlockHandler(srv)
		routes.Verifications = server.NewVerificationsHandler(srv)

		l1 := txproc.NewLevel1Processor(dcID, ks, blockDAO, processor, txns, hashAlgo)
		runTicker(ctx, logger, "l1", 5*time.Second, func(ctx context.Context) error {
			_, err := l1.ProcessOnce(ctx)
			return err
		})

		scheduler := broadcast.NewScheduler(processor, mm, poster, dcID, cfg.KeyID, cfg.SecretKey, hashAlgo)
		runTicker(ctx, logger, "broadcast-scheduler", time.Second, func(ctx context.Context) error {
			return scheduler.ProcessDue(ctx, time.Now().Unix(), 100, func(ctx context.Context, blockID string, level int) ([]byte, error) {
				return blockDAO.GetBlock(ctx, blockID)
			})
		})

	case 2:
		blocks := queue.New[txproc.InboundL1Block]()
		routes.Enqueue = server.NewEnqueueHandler(srv, blocks, nil, nil)
		sender := server.NewHTTPReceiptSender(poster, mm, dcID, cfg.KeyID, cfg.SecretKey, hashAlgo)
		l2 := txproc.NewLevel2Processor(dcID, ks, blockDAO, blocks, reg, reg, sender, hashAlgo)
		runTicker(ctx, logger, "l2", 2*time.Second, func(ctx context.Context) error {
			_, err := l2.ProcessOnce(ctx)
			return err
		})

	case 3:
		batches := queue.New[txproc.InboundL2Batch]()
		routes.Enqueue = server.NewEnqueueHandler(srv, nil, batches, nil)
		sender := server.NewHTTPReceiptSender(poster, mm, dcID, cfg.KeyID, cfg.SecretKey, hashAlgo)
		l3 := txproc.NewLevel3Processor(dcID, ks, blockDAO, batches, reg, reg, sender, hashAlgo)
		runTicker(ctx, logger, "l3", 2*time.Second, func(ctx context.Context) error {
			_, err := l3.ProcessOnce(ctx)
			return err
		})

	case 4:
		batches := queue.New[txproc.InboundL3Batch]()
		routes.Enqueue = server.NewEnqueueHandler(srv, nil, nil, batches)
		sender := server.NewHTTPReceiptSender(poster, mm, dcID, cfg.KeyID, cfg.SecretKey, hashAlgo)
		l4 := txproc.NewLevel4Processor(dcID, ks, blockDAO, batches, reg, sender, hashAlgo)
		runTicker(ctx, logger, "l4", 2*time.Second, func(ctx context.Context) error {
			_, err := l4.ProcessOnce(ctx)
			return err
		})

	case 5:
		adapter, err := buildInterchainAdapter(cfg)
		if err != nil {
			log.Fatal("build interchain adapter:", err)
		}
		engine := anchor.NewEngine(dcID, ks, blockDAO, adapter, hashAlgo,
			anchor.WithBroadcastInterval(cfg.BroadcastInterval.Duration()),
			anchor.WithFundedFlagSetter(mm))
		runTicker(ctx, logger, "l5", time.Minute, engine.Tick)
	}

	srv.RegisterRoutes(mux, routes)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
}

// runTicker runs fn every interval until ctx is cancelled, logging any
// error without stopping the loop, the scheduler.go ticker idiom
// (pkg/batch/scheduler.go).
func runTicker(ctx context.Context, logger *log.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logger.Printf("%s tick: %v", name, err)
				}
			}
		}
	}()
}

func buildObjectStore(cfg *config.Config) (store.ObjectStore, error) {
	if cfg.StorageType == "firestore" {
		ctx := context.Background()
		client, err := firestore.NewClient(ctx, &firestore.ClientConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
			Enabled:         cfg.FirestoreEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("connect firestore: %w", err)
		}
		return store.NewFirestoreStore(client), nil
	}

	dbDir := filepath.Join(cfg.StorageLocation, "kvdb")
	db, err := dbm.NewGoLevelDB("dragonnet", dbDir)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", dbDir, err)
	}
	return store.NewKVStore(kvdb.NewKVAdapter(db)), nil
}

func buildIndex(cfg *config.Config, logger *log.Logger) (*dao.Index, error) {
	if cfg.DatabaseURL == "" {
		if cfg.DatabaseRequired {
			return nil, fmt.Errorf("DATABASE_URL is required but not set")
		}
		return dao.NewIndex(nil), nil
	}
	client, err := dao.NewClient(cfg, dao.WithLogger(logger))
	if err != nil {
		if cfg.DatabaseRequired {
			return nil, fmt.Errorf("connect postgres index: %w", err)
		}
		logger.Printf("postgres index unavailable, continuing without it: %v", err)
		return dao.NewIndex(nil), nil
	}
	return dao.NewIndex(client), nil
}

func buildInterchainAdapter(cfg *config.Config) (interchain.Adapter, error) {
	network := cfg.DragonchainEndpoint
	switch {
	case cfg.NetworkRPCEndpoints["bitcoin"] != "":
		return interchain.NewBTCAdapter(cfg.NetworkRPCEndpoints["bitcoin"], "", "", cfg.InterchainPrivateKey, false)
	case cfg.NetworkRPCEndpoints["ethereum"] != "":
		return interchain.NewEVMAdapter(cfg.NetworkRPCEndpoints["ethereum"], 1, cfg.InterchainPrivateKey, "ethereum")
	case cfg.NetworkRPCEndpoints["binance"] != "":
		return interchain.NewBNBAdapter(cfg.NetworkRPCEndpoints["binance"], 56, cfg.InterchainPrivateKey)
	default:
		return nil, fmt.Errorf("LEVEL=5 requires at least one of BITCOIN_RPC_URL, ETHEREUM_RPC_URL, BINANCE_RPC_URL (network hint %q unused)", network)
	}
}
