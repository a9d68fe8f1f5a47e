// Command torbobase runs the IAAP core (event bus, agent config registry,
// IAM engine, cross-node delegation) as a long-running process, bound to
// HTTP by internal/gateway — the minimal demonstrable binding named in
// SPEC_FULL.md §8.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/torbobase/core/internal/agentregistry"
	"github.com/torbobase/core/internal/config"
	"github.com/torbobase/core/internal/delegation"
	"github.com/torbobase/core/internal/eventbus"
	"github.com/torbobase/core/internal/gateway"
	"github.com/torbobase/core/internal/iam"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("torbobase exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("torbobase")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	def := config.Default()
	viper.SetDefault("data_dir", def.DataDir)
	viper.SetDefault("iam_db_name", def.IAMDBName)
	viper.SetDefault("audit_db_name", def.AuditDBName)
	viper.SetDefault("ring_buffer_capacity", def.RingBufferCapacity)
	viper.SetDefault("delegation_timeout_default_seconds", def.DelegationTimeoutDefaultSeconds)
	viper.SetDefault("delegation_capability_ttl_seconds", def.DelegationCapabilityTTLSeconds)
	viper.SetDefault("delegation_max_concurrent_inbound", def.DelegationMaxConcurrentInbound)
	viper.SetDefault("delegation_max_accepted_access_level", def.DelegationMaxAcceptedAccessLevel)
	viper.SetDefault("peer_request_timeout_seconds", def.PeerRequestTimeoutSeconds)
	viper.SetDefault("watchdog_interval_seconds", def.WatchdogIntervalSeconds)
	viper.SetDefault("log_prune_retention_days", def.LogPruneRetentionDays)
	viper.SetDefault("max_access_level", def.MaxAccessLevel)
	viper.SetDefault("node_id", def.NodeID)
	viper.SetDefault("self_host", def.SelfHost)
	viper.SetDefault("self_port", def.SelfPort)
	viper.SetDefault("gateway_port", def.GatewayPort)
	viper.SetDefault("gateway_rate_limit_rps", def.GatewayRateLimitRPS)
	viper.SetDefault("gateway_cors_origins", def.GatewayCORSOrigins)
	viper.SetDefault("gateway_jwt_secret", def.GatewayJWTSecret)
	viper.SetDefault("peer_node_ids", []string{})
	viper.SetDefault("peer_hosts", []string{})
	viper.SetDefault("peer_ports", []int{})

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if cfg.NodeID == "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "torbobase"
		}
		cfg.NodeID = hostname
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %q: %w", cfg.DataDir, err)
	}

	// ── Event Bus ────────────────────────────────────────────────────────────
	bus := eventbus.New(cfg.RingBufferCapacity, filepath.Join(cfg.DataDir, cfg.AuditDBName), logger)
	defer bus.Close() //nolint:errcheck

	// ── Agent Config Registry ────────────────────────────────────────────────
	registry := agentregistry.New(filepath.Join(cfg.DataDir, "agents"), logger)
	if err := registry.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap agent registry: %w", err)
	}

	// ── IAM Engine ───────────────────────────────────────────────────────────
	iamEngine, err := iam.Open(filepath.Join(cfg.DataDir, cfg.IAMDBName), 0, logger)
	if err != nil {
		return fmt.Errorf("open IAM engine: %w", err)
	}
	defer iamEngine.Close() //nolint:errcheck

	// ── Cross-Node Delegation ────────────────────────────────────────────────
	keys, err := delegation.LoadOrGenerateLocalKeyService(cfg.NodeID, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}

	var peers []delegation.Peer
	for i, id := range cfg.PeerNodeIDs {
		if i >= len(cfg.PeerHosts) || i >= len(cfg.PeerPorts) {
			logger.Warn("peer_node_ids entry has no matching peer_hosts/peer_ports entry, skipping", zap.String("node_id", id))
			continue
		}
		peers = append(peers, delegation.Peer{NodeID: id, Host: cfg.PeerHosts[i], Port: cfg.PeerPorts[i]})
	}

	delegationEngine := delegation.New(delegation.Config{
		DataDir:              cfg.DataDir,
		SelfHost:             cfg.SelfHost,
		SelfPort:             cfg.SelfPort,
		DefaultTimeout:       cfg.DelegationTimeoutDefault(),
		CapabilityTTL:        cfg.DelegationCapabilityTTL(),
		MaxConcurrentInbound: cfg.DelegationMaxConcurrentInbound,
		PeerRequestTimeout:   cfg.PeerRequestTimeout(),
		WatchdogInterval:     cfg.WatchdogInterval(),
	}, keys, delegation.NewStaticPeerDirectory(peers), delegation.NewInMemoryTaskSink(), bus, logger)
	delegationEngine.SetLocalCapabilities(cfg.NodeID, nil, nil)
	if err := delegationEngine.Load(); err != nil {
		return fmt.Errorf("restore delegation state: %w", err)
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go delegationEngine.RunWatchdog(watchdogCtx)

	// ── Gateway (HTTP binding) ───────────────────────────────────────────────
	secret := []byte(cfg.GatewayJWTSecret)
	if len(secret) == 0 {
		logger.Warn("gateway_jwt_secret is empty; agent bearer tokens will be signed with an empty key — set it for anything beyond local experimentation")
	}
	tokens := gateway.NewAgentTokenIssuer(secret, fmt.Sprintf("torbobase:%s", cfg.NodeID), time.Hour)

	router := gateway.NewRouter(gateway.Deps{
		Bus:          bus,
		Registry:     registry,
		IAM:          iamEngine,
		Delegation:   delegationEngine,
		Tokens:       tokens,
		Logger:       logger,
		CORSOrigins:  cfg.GatewayCORSOrigins,
		RateLimitRPS: cfg.GatewayRateLimitRPS,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GatewayPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	pruneDone := make(chan struct{})

	// ── Background: prune the IAM access log on a daily cadence ─────────────
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if n, err := iamEngine.Prune(ctx, cfg.LogPruneRetentionDays); err != nil {
					logger.Warn("access log prune failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("pruned old access log rows", zap.Int64("deleted", n))
				}
				cancel()
			case <-pruneDone:
				return
			}
		}
	}()

	go func() {
		logger.Info("torbobase HTTP listening",
			zap.String("node_id", cfg.NodeID),
			zap.Int("port", cfg.GatewayPort),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	close(pruneDone)
	logger.Info("shutting down torbobase...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("torbobase stopped")
	return nil
}
