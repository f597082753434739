package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bubbletez/x402-gateway/gateway"
)

func main() {
	_ = godotenv.Load()

	cfg, err := gateway.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := gateway.NewLogger(cfg.Stage, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	facilitator := gateway.NewFacilitatorClient(cfg.FacilitatorURL, cfg.SettleTimeout, cfg.MaxSettleResponseBytes)

	var tokens gateway.TokenMetadataReader
	if cfg.CustomProducts.Enabled {
		tokens, err = gateway.NewTokenMetadataReader(cfg.RPCURL)
		if err != nil {
			log.Fatal("failed to connect to chain rpc", zap.Error(err))
		}
	}

	server := gateway.NewServer(cfg, log, facilitator, tokens)

	log.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("network", cfg.Network),
		zap.String("pay_to", cfg.PayTo),
		zap.String("asset", cfg.Asset),
		zap.Bool("custom_products", cfg.CustomProducts.Enabled))

	if err := server.Run(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
