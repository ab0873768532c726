package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/sources"
	"openprotect-lab/pkg/logger"
)

const (
	replaySlug = "replay"

	// maxLineSize bounds one JSON line; raw_data payloads stay well below it
	maxLineSize = 1 << 20
)

// Source replays recorded tick inputs, one JSON object per line. Once the
// recording is exhausted every further tick is quiet unless Loop is set.
type Source struct {
	*sources.BaseSource
	loop   bool
	logger *logger.Logger

	mu     sync.Mutex
	inputs []models.TickInput
	pos    int
}

// Load reads a recording from path
func Load(path string, loop bool, log *logger.Logger) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	return New(f, loop, log)
}

// New reads a recording from r
func New(r io.Reader, loop bool, log *logger.Logger) (*Source, error) {
	log = log.WithComponent("replay-source")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var inputs []models.TickInput
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var in models.TickInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		inputs = append(inputs, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read replay: %w", err)
	}

	log.Info().Int("ticks", len(inputs)).Bool("loop", loop).Msg("loaded replay")

	return &Source{
		BaseSource: sources.NewBaseSource(replaySlug, "Recorded Tick Replay"),
		loop:       loop,
		logger:     log,
		inputs:     inputs,
	}, nil
}

// Next returns the next recorded input
func (s *Source) Next(ctx context.Context) (*models.TickInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.inputs) == 0 {
		return nil, nil
	}
	if s.pos >= len(s.inputs) {
		if !s.loop {
			return nil, nil
		}
		s.logger.Debug().Msg("replay exhausted, starting over")
		s.pos = 0
	}

	in := s.inputs[s.pos]
	s.pos++
	return &in, nil
}

// Remaining returns how many recorded ticks are left in the current pass
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs) - s.pos
}
