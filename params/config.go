package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Input selects where orders come from. At most one of File and CSV is used;
// File wins. With neither set and SyntheticOrders zero the golden scenario
// runs.
type Input struct {
	File            string // concatenated 36-byte frames
	CSV             string // price table
	SyntheticOrders int
	SyntheticSeed   int64
	BasePrice       float64
	Symbols         []string
}

type Output struct {
	TraceFile string
	LogFile   string // empty: stdout only
	LogLevel  string
	StoreDir  string // empty: no persistence
}

type Model struct {
	WeightsFile  string // empty: built-in placeholder weights
	InferWorkers int    // <= 1: serial reference path
}

type API struct {
	Enabled bool
	Addr    string
}

type Verify struct {
	Tolerance float64
}

type Config struct {
	Input  Input
	Output Output
	Model  Model
	API    API
	Verify Verify
}

func Default() Config {
	return Config{
		Input: Input{
			SyntheticSeed: 42,
			BasePrice:     150.0,
		},
		Output: Output{
			TraceFile: "golden_trace.csv",
			LogLevel:  "info",
		},
		Model: Model{
			InferWorkers: 1,
		},
		API: API{
			Enabled: false,
			Addr:    ":8080",
		},
		Verify: Verify{
			Tolerance: 0.01,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Input.File = getEnv("INPUT_FILE", cfg.Input.File)
	cfg.Input.CSV = getEnv("INPUT_CSV", cfg.Input.CSV)
	if n := os.Getenv("SYNTHETIC_ORDERS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Input.SyntheticOrders = v
		}
	}
	if seed := os.Getenv("SYNTHETIC_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Input.SyntheticSeed = v
		}
	}
	if p := os.Getenv("SYNTHETIC_BASE_PRICE"); p != "" {
		if v, err := strconv.ParseFloat(p, 64); err == nil && v > 0 {
			cfg.Input.BasePrice = v
		}
	}
	// Example: "AAPL,MSFT,NVDA"
	if syms := os.Getenv("SYNTHETIC_SYMBOLS"); syms != "" {
		cfg.Input.Symbols = nil
		for _, s := range strings.Split(syms, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				cfg.Input.Symbols = append(cfg.Input.Symbols, s)
			}
		}
	}

	cfg.Output.TraceFile = getEnv("TRACE_FILE", cfg.Output.TraceFile)
	cfg.Output.LogFile = getEnv("LOG_FILE", cfg.Output.LogFile)
	cfg.Output.LogLevel = getEnv("LOG_LEVEL", cfg.Output.LogLevel)
	cfg.Output.StoreDir = getEnv("STORE_DIR", cfg.Output.StoreDir)

	cfg.Model.WeightsFile = getEnv("WEIGHTS_FILE", cfg.Model.WeightsFile)
	if w := os.Getenv("INFER_WORKERS"); w != "" {
		if v, err := strconv.Atoi(w); err == nil {
			cfg.Model.InferWorkers = v
		}
	}

	if enable := os.Getenv("ENABLE_API"); enable != "" {
		cfg.API.Enabled = enable == "true"
	}
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	if tol := os.Getenv("VERIFY_TOLERANCE"); tol != "" {
		if v, err := strconv.ParseFloat(tol, 64); err == nil && v >= 0 {
			cfg.Verify.Tolerance = v
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
