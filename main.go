/*
Frozenlake solves randomly generated frozen lakes by value iteration and replays the greedy
policy, one step per tick, starting a fresh lake whenever an episode ends. Frames of the replay
are served as JSON over http and websocket; with -headless a single lake is solved and printed
to the console instead.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frozenlake/grid_world"
	"frozenlake/reinforcement"
	"frozenlake/server"
	"frozenlake/server/fastview"
	"frozenlake/session"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var (
	envErr     error
	dbg        *bool
	headless   *bool
	configPath *string
	host       *string
	port       *string
	seed       *int64
)

func init() {
	// Environment defaults for the flags below; a missing .env is fine.
	envErr = godotenv.Load()

	dbg = flag.Bool("debug", false, "debug logging, and play the fixed debug lake")
	headless = flag.Bool("headless", false, "solve one lake, print it, and exit")
	configPath = flag.String("config", "./config.yaml", "path to the training config")
	host = flag.String("host", os.Getenv("FROZENLAKE_HOST"), "The host ip")
	port = flag.String("port", envOrDefault("FROZENLAKE_PORT", "8080"), "The host port")
	seed = flag.Int64("seed", 0, "random seed; zero seeds from the clock")
}

func envOrDefault(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads and validates the training config. Debug mode pins the lake layout.
func loadConfig(path string, debug bool) (*reinforcement.TrainingConfig, error) {
	cfg, err := reinforcement.FromYaml(path)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Grid.Layout = grid_world.DebugLake
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runHeadless solves one lake and prints the lake, its policy, values, and replay.
func runHeadless(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	rng *rand.Rand,
	w io.Writer,
) error {
	sess, err := session.NewSession(ctx, cfg, rng, nil)
	if err != nil {
		return err
	}
	if sess.SolveErr != nil {
		fmt.Fprintf(w, "warning: %v\n", sess.SolveErr)
	}

	fmt.Fprintln(w, "Lake:")
	grid_world.ShowGrid(w, sess.Grid)
	fmt.Fprintln(w, "Policy:")
	reinforcement.ShowPolicy(w, sess.Grid, sess.Solution.Policy)
	reinforcement.ShowValues(w, sess.Grid, sess.Solution.Values)

	state := sess.Runner.Run(cfg.MaxSteps(sess.Grid.NumTiles()))
	fmt.Fprintf(w, "Episode %s: score %.0f in %d steps\n", state.Status, state.Score, state.Steps)
	reinforcement.ShowTrace(w, sess.Grid, sess.Runner.Trace())
	return nil
}

// runServer plays lakes forever and serves their frames until ctx is done.
func runServer(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	rng *rand.Rand,
	addr string,
) error {
	group, groupCtx := errgroup.WithContext(ctx)

	snapshots := make(chan session.Snapshot)
	srv := server.NewServer(groupCtx, addr, snapshots, fastview.DefaultOptions())

	group.Go(func() error {
		defer close(snapshots)
		return session.Play(groupCtx, cfg, rng, func(ctx context.Context, snap session.Snapshot) {
			select {
			case snapshots <- snap:
			case <-ctx.Done():
			}
		})
	})
	group.Go(func() error {
		return srv.Serve(groupCtx)
	})
	return group.Wait()
}

func runApp() error {
	cfg, err := loadConfig(*configPath, *dbg)
	if err != nil {
		return err
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	slog.Debug("seeded", "seed", *seed)
	rng := rand.New(rand.NewSource(*seed))

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCancel()

	if *headless {
		return runHeadless(appCtx, cfg, rng, os.Stdout)
	}
	return runServer(appCtx, cfg, rng, net.JoinHostPort(*host, *port))
}

func main() {
	flag.Parse()
	setupLogging(os.Stderr, *dbg)
	if envErr != nil {
		slog.Debug("no .env loaded", "err", envErr)
	}

	if err := runApp(); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}
