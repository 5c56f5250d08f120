// Package cfg loads the process-wide configuration for the buffer pool
// demo binary from the environment, following the same
// godotenv-then-envconfig pattern the rest of the ambient stack uses:
// missing required fields panic at startup, never mid-request.
package cfg

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}

// Config holds everything the demo entrypoint needs to stand up a pool: its
// size, the LRU-K history depth, where the backing data file lives, and
// which logger construction to use.
type Config struct {
	Environment Environment `split_words:"true"`

	PoolSize int    `required:"true" split_words:"true"`
	LRUK     int    `required:"true" envconfig:"LRU_K"`
	DataDir  string `required:"true" split_words:"true"`
}

// MustLoad reads a .env file (if present; defaults to ".env" in the
// working directory, or configPath if given) and the process environment
// under the BPM_ prefix, panicking on a missing required field or an
// invalid environment name. It never returns a partially-valid Config.
func MustLoad(configPath string) Config {
	var loadErr error
	if configPath != "" {
		loadErr = godotenv.Load(configPath)
	} else {
		loadErr = godotenv.Load()
	}

	if loadErr != nil {
		fmt.Println("no .env file found, using process environment")
	}

	var c Config

	envconfig.MustProcess("BPM", &c)

	if c.Environment == "" {
		c.Environment = DefaultEnv
	}

	if err := c.Environment.Validate(); err != nil {
		panic(fmt.Errorf("cfg: %w", err))
	}

	if c.PoolSize <= 0 {
		panic("cfg: BPM_POOL_SIZE must be positive")
	}

	if c.LRUK <= 0 {
		panic("cfg: BPM_LRU_K must be positive")
	}

	return c
}
