package main

import (
	"context"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/arcvault/yielder/internal/calculator"
	"github.com/arcvault/yielder/internal/config"
	"github.com/arcvault/yielder/internal/datafetcher"
	"github.com/arcvault/yielder/internal/engine"
	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/pricing"
	"github.com/arcvault/yielder/internal/state"
	"github.com/arcvault/yielder/internal/web"

	"github.com/ethereum/go-ethereum/ethclient"
)

// main is the entry point for the yield accounting service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Yield accounting service starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Chain Clients ---
	ethClient, err := ethclient.Dial(config.NodeRPC)
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", config.NodeRPC).Msg("Failed to connect to EVM node")
	}
	defer ethClient.Close()
	log.Info().Str("endpoint", config.NodeRPC).Msg("EVM node connected")

	poolReader, err := datafetcher.NewChainPoolReader(ethClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reward pool reader")
	}

	oracleClient, err := pricing.NewChainOracleClient(ethClient, config.RootOracleAddress, config.IncentivePricingAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create oracle client")
	}

	underlyerStats, err := datafetcher.NewHTTPUnderlyerStats(config.StatsAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create underlyer stats provider")
	}

	strategy, err := calculator.NewPlatformStrategy(config.Platform, poolReader, poolReader, poolReader)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create platform strategy")
	}

	// --- 3. Calculator Setup ---
	calc, err := calculator.New(calculator.Dependencies{
		Pools:            poolReader,
		RootOracle:       oracleClient,
		IncentivePricing: oracleClient,
		Underlyer:        underlyerStats,
		Strategy:         strategy,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create calculator")
	}

	err = calc.Initialize(calculator.InitConfig{
		AprID:           config.AprID,
		DependentAprIDs: config.DependentAprIDs,
		Rewarder:        config.RewarderAddress,
		LPToken:         config.LPTokenAddress,
		PlatformToken:   config.PlatformTokenAddress,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize calculator")
	}

	// --- Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, []web.CalculatorView{calc})
	go func() {
		log.Info().Str("port", webPort).Msg("Starting web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Engine Main Loop ---
	eng, err := engine.NewEngine(engine.Config{
		Calculators: []*calculator.Calculator{calc},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	log.Info().Str("interval", config.SnapshotCheckInterval.String()).Msg("Starting engine main loop")

	ctx := context.Background()

	// Run indefinitely
	eng.RunLoop(ctx, config.SnapshotCheckInterval)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
