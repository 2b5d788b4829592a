// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/blinklabs-io/chainindex/accounts"
	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/governance"
	"github.com/blinklabs-io/chainindex/ingest"
	"github.com/blinklabs-io/chainindex/internal/simulator"
	"github.com/blinklabs-io/chainindex/pparams"
	"github.com/blinklabs-io/chainindex/snapshot"
	"github.com/blinklabs-io/chainindex/store"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/chainindex/unpack"
	"github.com/blinklabs-io/chainindex/utxo"
	"github.com/blinklabs-io/chainindex/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration
type Config struct {
	Network       string `yaml:"network"`
	ReplayScript  string `yaml:"replayScript"`
	BlockStream   string `yaml:"blockStream"`
	DataDir       string `yaml:"dataDir"`
	SnapshotPath  string `yaml:"snapshotPath"`
	MetricsListen string `yaml:"metricsListen"`
	SecurityParam uint64 `yaml:"securityParam"`
	LogFile       string `yaml:"logFile"`
	LogLevel      string `yaml:"logLevel"`
}

func defaultConfig() Config {
	return Config{
		Network:       "mainnet",
		DataDir:       "./data",
		MetricsListen: ":12798",
		SecurityParam: 2160,
		LogLevel:      "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	var out = os.Stdout
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			Compress:   true,
		}
		handler = slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With(slog.String("service", "chainindex"))
	slog.SetDefault(logger)
	return logger
}

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:   "chainindex",
		Short: "Cardano chain indexer and state engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVarP(
		&configPath, "config", "c", "", "path to config file",
	)

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	logger := setupLogger(cfg)

	network := address.NetworkMainnet
	if cfg.Network != "mainnet" {
		network = address.NetworkTestnet
	}

	registry := prometheus.NewRegistry()
	messageBus := bus.New(bus.WithMetrics(registry))
	defer messageBus.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return err
	}
	chainStore, err := store.OpenChainStore(cfg.DataDir + "/chain.db")
	if err != nil {
		return err
	}
	defer chainStore.Close()
	addrStore, err := store.OpenAddressStore(cfg.DataDir + "/addresses.db")
	if err != nil {
		return err
	}
	defer addrStore.Close()

	unpacker := unpack.New(messageBus, logger, unpack.Config{
		Network:             network,
		PublishUTxODeltas:   true,
		PublishAssetDeltas:  true,
		PublishWithdrawals:  true,
		PublishCertificates: true,
		PublishGovernance:   true,
		PublishValidation:   true,
	})
	utxoModule := utxo.NewModule(messageBus, logger, cfg.SecurityParam, addrStore)
	assetsModule := utxo.NewAssetsModule(messageBus, logger, cfg.SecurityParam)
	accountsModule := accounts.NewModule(messageBus, logger, network)
	paramsModule := pparams.NewModule(messageBus, logger)
	governanceModule := governance.NewModule(messageBus, logger)
	storeModule := store.NewModule(
		messageBus, logger, chainStore, cfg.SecurityParam,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return unpacker.Run(groupCtx) })
	group.Go(func() error { return utxoModule.Run(groupCtx) })
	group.Go(func() error { return assetsModule.Run(groupCtx) })
	group.Go(func() error { return accountsModule.Run(groupCtx) })
	group.Go(func() error { return paramsModule.Run(groupCtx) })
	group.Go(func() error { return governanceModule.Run(groupCtx) })
	group.Go(func() error { return storeModule.Run(groupCtx) })

	if cfg.MetricsListen != "" {
		server := &http.Server{
			Addr: cfg.MetricsListen,
			Handler: promhttp.HandlerFor(
				registry, promhttp.HandlerOpts{},
			),
		}
		group.Go(func() error {
			<-groupCtx.Done()
			return server.Close()
		})
		group.Go(func() error {
			err := server.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})
	}

	// Seed every module from the snapshot, then unblock the pipeline
	// with the GenesisComplete message
	if cfg.SnapshotPath != "" {
		accountsState := accounts.NewState(network)
		bootstrapper := snapshot.NewBootstrapper(
			messageBus, logger, network,
			utxoModule.State(), accountsState, paramsModule,
		)
		reader, err := os.Open(cfg.SnapshotPath)
		if err != nil {
			return err
		}
		defer reader.Close()
		if err := bootstrapper.Run(groupCtx, reader); err != nil {
			return err
		}
		accountsModule.History().Commit(0, accountsState)
	} else {
		// Genesis start: publish an empty bootstrap marker
		if err := messageBus.Publish(groupCtx, types.TopicBootstrapped,
			types.GenesisCompleteMessage{
				Values: types.GenesisValues{Network: network},
			},
		); err != nil {
			return err
		}
	}

	logger.Info("chainindex started",
		slog.String("network", cfg.Network),
		slog.String("data_dir", cfg.DataDir),
	)

	// A replay script stands in for the network-facing block source; the
	// chain-sync frontend feeds ingest.Ingester the same way
	if cfg.ReplayScript != "" {
		script, err := simulator.NewFromFile(cfg.ReplayScript)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return simulator.Run(groupCtx, messageBus, script)
		})
	}

	// A block stream file replays raw era-tagged blocks through the
	// ingester, e.g. an export from a node's immutable db. Header
	// validation runs against the accounts module's pool registry; the
	// structural verifiers stand in until a deployment injects real
	// KES/VRF primitives.
	if cfg.BlockStream != "" {
		var shelley *types.ShelleyParams
		if params, err := messageBus.Request(
			groupCtx, pparams.QueryParams, nil,
		); err == nil {
			if resolved, ok := params.(types.ProtocolParams); ok {
				shelley = resolved.Shelley
			}
		}
		if shelley == nil {
			shelley = &types.ShelleyParams{
				SlotsPerKESPeriod: 129_600,
				MaxKESEvolutions:  62,
				ActiveSlotsCoeff:  types.Ratio{Num: 1, Den: 20},
			}
		}
		headerValidator := validate.NewHeaderValidator(
			validate.StructuralKesVerifier{},
			validate.StructuralVrfVerifier{},
			accountsModule.PoolVrfAndStake,
			shelley,
		)
		ingester := ingest.NewIngester(
			messageBus, logger, ingest.MainnetSlotConfig, registry,
		).WithHeaderValidator(headerValidator)
		group.Go(func() error {
			return feedBlockStream(groupCtx, ingester, cfg.BlockStream)
		})
	}
	return group.Wait()
}

// feedBlockStream reads [era u8][len u32 BE][block cbor] records and
// drives the ingester with them
func feedBlockStream(
	ctx context.Context,
	ingester *ingest.Ingester,
	path string,
) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	reader := bufio.NewReaderSize(f, 1<<20)
	var header [5]byte
	for {
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		length := binary.BigEndian.Uint32(header[1:])
		blockCbor := make([]byte, length)
		if _, err := io.ReadFull(reader, blockCbor); err != nil {
			return fmt.Errorf("truncated block stream: %w", err)
		}
		if err := ingester.RollForward(
			ctx, types.Era(header[0]), blockCbor,
		); err != nil {
			return err
		}
	}
}
