package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"openprotect-lab/internal/config"
	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/internal/grpc/timeline"
	"openprotect-lab/internal/sources/replay"
	"openprotect-lab/internal/sources/simulated"
	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

const (
	outputEvents = "events"
	outputInputs = "inputs"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		ticks      = flag.Int("ticks", 20, "number of ticks to run")
		seed       = flag.Int64("seed", 0, "RNG seed (overrides config when non-zero)")
		output     = flag.String("output", outputEvents, "what to print per line: events or inputs")
		replayFile = flag.String("replay", "", "replay a recorded inputs file instead of generating; stops when exhausted")
		follow     = flag.String("follow", "", "stream events from a running console's gRPC address instead of simulating")
		types      = flag.String("types", "", "with -follow, comma-separated event types to receive")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: "warn", Format: "console", Output: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if *follow != "" {
		err = followTimeline(ctx, *follow, *types, os.Stdout)
	} else {
		err = simulate(ctx, simulateOptions{
			configPath: *configPath,
			ticks:      *ticks,
			seed:       *seed,
			output:     *output,
			replayFile: *replayFile,
		}, os.Stdout, log)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

type simulateOptions struct {
	configPath string
	ticks      int
	seed       int64
	output     string
	replayFile string
}

// simulate runs the engine headless and writes one JSON object per line
func simulate(ctx context.Context, opts simulateOptions, out io.Writer, log *logger.Logger) error {
	if opts.output != outputEvents && opts.output != outputInputs {
		return fmt.Errorf("unknown output %q", opts.output)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)

	var source services.TickSource
	if opts.replayFile != "" {
		source, err = replay.Load(opts.replayFile, false, log)
		if err != nil {
			return err
		}
	} else {
		simCfg := simulated.Config{
			Seed:            cfg.Simulation.Seed,
			AlertChance:     cfg.Simulation.AlertChance,
			IntelChance:     cfg.Simulation.IntelChance,
			DirectiveChance: cfg.Simulation.DirectiveChance,
		}
		if opts.seed != 0 {
			simCfg.Seed = opts.seed
		}
		source = simulated.NewGenerator(simCfg, log)
	}

	engineOpts := cfg.Engine.EngineOptions()
	if opts.output == outputEvents {
		engineOpts.Publisher = &lineWriter{enc: enc}
	}
	engine := services.NewEngine(cfg.Engine.CoordinatorConfig(), engineOpts, log)

	if cfg.Playbooks.SeedFile != "" {
		if _, err := services.LoadPlaybooks(cfg.Playbooks.SeedFile, engine.Playbooks(), log); err != nil {
			return err
		}
	}

	for i := 0; i < opts.ticks; i++ {
		in, err := source.Next(ctx)
		if err != nil {
			return err
		}
		if in == nil {
			if opts.replayFile != "" {
				break
			}
			in = &models.TickInput{}
		}
		if opts.output == outputInputs {
			if err := enc.Encode(in); err != nil {
				return err
			}
		}
		if _, err := engine.ProcessTick(ctx, *in); err != nil {
			return err
		}
	}

	snap := engine.Snapshot()
	log.Warn().
		Uint64("ticks", snap.Ticks).
		Int("events", snap.EventCount).
		Float64("server_knowledge", snap.Knowledge.Server).
		Msg("simulation finished")
	return nil
}

// lineWriter prints every appended event as a JSON line
type lineWriter struct {
	enc *json.Encoder
}

func (w *lineWriter) PublishEvent(_ context.Context, event *models.ServerEvent) error {
	return w.enc.Encode(event)
}

// followTimeline tails a running console over its gRPC event stream
func followTimeline(ctx context.Context, addr, types string, out io.Writer) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	var sub streaming.Subscription
	for _, t := range splitTypes(types) {
		sub.Types = append(sub.Types, models.EventType(t))
	}

	stream, err := timeline.NewClient(conn).StreamEvents(ctx, timeline.StreamRequest{Subscription: sub})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for {
		e, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
}

func splitTypes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
