// Command loadtest replays message traffic against the ankyloGate limiters on
// a virtual clock, so runs are instant and reproducible for a given seed.
//
// Usage:
//
//	loadtest simulate --policy sliding_window --window 10s --max-requests 1
//	loadtest simulate --policy fixed_interval --min-interval 10s --pause 10s
//	loadtest burst --policy token_bucket --capacity 20 --requests 100
package main

import (
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	ankylogate "github.com/arryllopez/ankyloGate"
)

// CLI defines the command-line interface.
type CLI struct {
	Simulate SimulateCmd `cmd:"" default:"withargs" help:"Replay two series of messages from a handful of users."`
	Burst    BurstCmd    `cmd:"" help:"Fire concurrent requests from one identity at the same instant."`

	Production bool `help:"Use JSON production logging."`
}

// LimiterFlags are shared by every command.
type LimiterFlags struct {
	Policy            string        `help:"Limiting policy." enum:"sliding_window,fixed_interval,token_bucket" default:"sliding_window"`
	Window            time.Duration `help:"Sliding window length." default:"10s"`
	MaxRequests       int           `help:"Requests allowed per window." default:"1"`
	MinInterval       time.Duration `help:"Cooldown between admissions." default:"10s"`
	Capacity          int           `help:"Token bucket capacity." default:"10"`
	TokensPerInterval int           `help:"Tokens added per refill." default:"1"`
	RefillRate        time.Duration `help:"Token bucket refill interval." default:"1s"`
}

func (f LimiterFlags) config() ankylogate.Config {
	return ankylogate.Config{
		Policy:            ankylogate.Policy(f.Policy),
		Window:            f.Window,
		MaxRequests:       f.MaxRequests,
		MinInterval:       f.MinInterval,
		Capacity:          f.Capacity,
		TokensPerInterval: f.TokensPerInterval,
		RefillRate:        f.RefillRate,
	}
}

type SimulateCmd struct {
	LimiterFlags `embed:""`

	Messages int           `help:"Messages per series." default:"10"`
	Users    int           `help:"Distinct users sending messages." default:"5"`
	MinDelay time.Duration `help:"Shortest gap between messages." default:"100ms"`
	MaxDelay time.Duration `help:"Longest gap between messages." default:"1s"`
	Pause    time.Duration `help:"Virtual time between the two series." default:"4s"`
	Seed     uint64        `help:"Random seed for the message gaps." default:"1"`
}

func (c *SimulateCmd) Run(logger *zap.Logger) error {
	limiter, err := ankylogate.New(c.config())
	if err != nil {
		return err
	}

	sim := newSimulation(limiter, ankylogate.Policy(c.Policy), c.Seed, logger)
	first := sim.series(1, c.Messages, c.Users, c.MinDelay, c.MaxDelay)
	logger.Info("pausing", zap.Duration("pause", c.Pause))
	sim.clock.advance(c.Pause)
	second := sim.series(c.Messages+1, c.Messages, c.Users, c.MinDelay, c.MaxDelay)

	logger.Info("simulation complete",
		zap.Int("first_admitted", first.Admitted),
		zap.Int("first_denied", first.Denied),
		zap.Int("second_admitted", second.Admitted),
		zap.Int("second_denied", second.Denied),
		zap.Int("tracked_identities", sim.tracked()),
	)
	return nil
}

type BurstCmd struct {
	LimiterFlags `embed:""`

	Requests int    `help:"Concurrent requests to fire." default:"100"`
	Identity string `help:"Identity sending the burst." default:"C"`
}

func (c *BurstCmd) Run(logger *zap.Logger) error {
	limiter, err := ankylogate.New(c.config())
	if err != nil {
		return err
	}

	sim := newSimulation(limiter, ankylogate.Policy(c.Policy), 0, logger)
	result, err := sim.burst(c.Identity, c.Requests)
	if err != nil {
		return err
	}

	logger.Info("burst complete",
		zap.String("identity", c.Identity),
		zap.Int("requests", c.Requests),
		zap.Int("admitted", result.Admitted),
		zap.Int("denied", result.Denied),
	)
	return nil
}

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("loadtest"),
		kong.Description("ankyloGate enforcement simulator"),
		kong.UsageOnError(),
	)

	logger, err := newLogger(cli.Production)
	ctx.FatalIfErrorf(err)
	defer logger.Sync()

	ctx.FatalIfErrorf(ctx.Run(logger))
}
