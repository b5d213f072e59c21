package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AprID is the registry identifier this calculator instance reports itself under.
	AprID string
	// DependentAprIDs are the registry identifiers of calculators this one depends on.
	DependentAprIDs []string

	// RewarderAddress is the main staking rewarder contract tracked by this instance.
	RewarderAddress common.Address
	// LPTokenAddress is the proxied LP token staked in the rewarder.
	LPTokenAddress common.Address
	// PlatformTokenAddress is the platform token minted pro rata with the main reward.
	PlatformTokenAddress common.Address
	// RootOracleAddress is the root price oracle serving ETH-denominated LP prices.
	RootOracleAddress common.Address
	// IncentivePricingAddress is the dual-filter pricing contract for reward tokens.
	IncentivePricingAddress common.Address

	// Platform selects the reward-program family ("convex" or "aura"), which
	// determines the stash-token resolution and mint-amount strategies.
	Platform string

	// SnapshotCheckInterval is how often the run loop polls ShouldSnapshot.
	SnapshotCheckInterval time.Duration
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	AprID, err = getEnv("APR_ID")
	if err != nil {
		return err
	}

	if raw, exists := os.LookupEnv("DEPENDENT_APR_IDS"); exists && strings.TrimSpace(raw) != "" {
		for _, id := range strings.Split(raw, ",") {
			DependentAprIDs = append(DependentAprIDs, strings.TrimSpace(id))
		}
	}

	RewarderAddress, err = getEnvAsAddress("REWARDER_ADDRESS")
	if err != nil {
		return err
	}

	LPTokenAddress, err = getEnvAsAddress("LP_TOKEN_ADDRESS")
	if err != nil {
		return err
	}

	PlatformTokenAddress, err = getEnvAsAddress("PLATFORM_TOKEN_ADDRESS")
	if err != nil {
		return err
	}

	RootOracleAddress, err = getEnvAsAddress("ROOT_ORACLE_ADDRESS")
	if err != nil {
		return err
	}

	IncentivePricingAddress, err = getEnvAsAddress("INCENTIVE_PRICING_ADDRESS")
	if err != nil {
		return err
	}

	Platform, err = getEnv("PLATFORM")
	if err != nil {
		return err
	}
	if Platform != "convex" && Platform != "aura" {
		return errors.New("environment variable PLATFORM must be 'convex' or 'aura', got: " + Platform)
	}

	SnapshotCheckInterval, err = getEnvAsDuration("SNAPSHOT_CHECK_INTERVAL")
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("AprID", AprID).
		Str("Rewarder", RewarderAddress.Hex()).
		Str("Platform", Platform).
		Dur("SnapshotCheckInterval", SnapshotCheckInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsAddress retrieves an environment variable as a checksummed EVM address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a valid hex address, got: " + valueStr)
	}
	addr := common.HexToAddress(valueStr)
	if addr == (common.Address{}) {
		return common.Address{}, errors.New("environment variable " + key + " must not be the zero address")
	}
	return addr, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration.
func getEnvAsDuration(key string) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration (e.g. 10m), got: " + valueStr)
	}
	if value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration")
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
