// Package candidates reads candidate passphrases from a line-oriented stream.
//
// The stream is typically the output of a wordlist generator such as crunch,
// which announces how many lines it is about to produce. The Source recognizes
// that announcement and exposes it as an estimated total.
package candidates

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrSourceRead wraps I/O failures of the underlying stream.
var ErrSourceRead = errors.New("failed to read candidates")

const (
	// amountHint opens a generator summary block.
	amountHint = "will now generate the following amount of data"
	// linesHint carries the line count, e.g. "Crunch will now generate the following number of lines: 9".
	linesHint = "will now generate the following number of lines"

	countSeparator = ":"
	countParts     = 2
)

// Source yields one candidate per input line.
// Next, DetectTotal and Produce must not be called concurrently.
type Source struct {
	reader    *bufio.Reader
	closer    io.Closer
	closeOnce sync.Once
	lines     atomic.Uint64
}

// NewSource wraps r. When r is also an [io.Closer], Interrupt closes it.
func NewSource(r io.Reader) *Source {
	src := &Source{reader: bufio.NewReader(r)}

	if closer, ok := r.(io.Closer); ok {
		src.closer = closer
	}

	return src
}

// Lines returns the number of lines read so far. Safe for concurrent use.
func (s *Source) Lines() uint64 {
	return s.lines.Load()
}

// Next blocks until the next line is available. It returns ok=false at end of
// stream. Line terminators ("\n", "\r\n") are stripped.
func (s *Source) Next() (string, bool, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", false, fmt.Errorf("%w: %w", ErrSourceRead, err)
		}

		if line == "" {
			return "", false, nil
		}
	}

	s.lines.Add(1)

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	return line, true, nil
}

// DetectTotal inspects the first line for a generator summary block.
//
// When first opens a summary block, the lines up to and including the line
// count are consumed and hint is true. total is the announced count, or nil
// if the count line is missing or malformed; in both cases reading resumes
// with ordinary candidates. When first is not a hint, nothing is consumed.
func (s *Source) DetectTotal(first string) (total *big.Int, hint bool, err error) {
	if !strings.Contains(first, amountHint) {
		return nil, false, nil
	}

	for {
		line, ok, nextErr := s.Next()
		if nextErr != nil {
			return nil, true, nextErr
		}

		if !ok {
			return nil, true, nil
		}

		if !strings.Contains(line, linesHint) {
			continue
		}

		return parseCount(line), true, nil
	}
}

func parseCount(line string) *big.Int {
	parts := strings.Split(line, countSeparator)
	if len(parts) != countParts {
		return nil
	}

	count, ok := new(big.Int).SetString(strings.TrimSpace(parts[1]), 10)
	if !ok || count.Sign() < 0 {
		return nil
	}

	return count
}

// Produce submits every remaining line until end of stream.
// It returns nil at end of stream or once ctx is cancelled; read and submit
// failures are returned otherwise.
func (s *Source) Produce(ctx context.Context, submit func(candidate string) error) error {
	for ctx.Err() == nil {
		line, ok, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		if !ok {
			return nil
		}

		err = submit(line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("submit candidate: %w", err)
		}
	}

	return nil
}

// Interrupt abandons a blocking read by closing the underlying reader, if it
// can be closed. Safe to call more than once and from any goroutine.
func (s *Source) Interrupt() {
	if s.closer == nil {
		return
	}

	s.closeOnce.Do(func() {
		_ = s.closer.Close()
	})
}
