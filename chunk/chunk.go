// Package chunk splits normalized document text into fixed-size overlapping
// windows for embedding, and deduplicates chunks by exact content.
//
// Windows are measured in runes, advance by size−overlap, and the final
// window may be shorter. Window geometry is validated once at construction:
// an overlap equal to or larger than the size would never advance.
package chunk

import (
	"errors"
	"fmt"
	"iter"
)

// ErrBadWindow is returned for window geometry that cannot terminate or
// yields empty windows. Callers treat this as a startup failure; no source
// is ingested with a bad geometry.
var ErrBadWindow = errors.New("chunk: overlap must be non-negative and smaller than size")

// Options configures window geometry.
type Options struct {
	// Size is the window length in runes. Default: 1000.
	Size int `yaml:"size"`
	// Overlap is how many runes consecutive windows share. Default: 200.
	Overlap int `yaml:"overlap"`
}

func (o *Options) defaults() {
	if o.Size == 0 {
		o.Size = 1000
	}
	if o.Overlap == 0 && o.Size > 200 {
		o.Overlap = 200
	}
}

// Validate reports ErrBadWindow for geometry that would loop forever or
// produce nothing.
func (o Options) Validate() error {
	if o.Size <= 0 || o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w (size=%d overlap=%d)", ErrBadWindow, o.Size, o.Overlap)
	}
	return nil
}

// Chunk is one window of a source's text.
type Chunk struct {
	Source  string // source name the window came from
	Content string
}

// Splitter produces windows with a validated geometry.
type Splitter struct {
	opts Options
}

// New applies defaults to opts and validates them.
func New(opts Options) (*Splitter, error) {
	opts.defaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{opts: opts}, nil
}

// Options returns the effective geometry after defaults.
func (s *Splitter) Options() Options { return s.opts }

// Windows returns a lazy sequence of text windows. The sequence is finite,
// restartable, and yields nothing for empty text. Text shorter than the
// window size yields exactly one window containing the whole text.
func (s *Splitter) Windows(text string) iter.Seq[string] {
	size, stride := s.opts.Size, s.opts.Size-s.opts.Overlap
	return func(yield func(string) bool) {
		runes := []rune(text)
		for start := 0; start < len(runes); start += stride {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}
			if !yield(string(runes[start:end])) {
				return
			}
		}
	}
}

// Split materializes the windows of one source's text.
func (s *Splitter) Split(source, text string) []Chunk {
	var chunks []Chunk
	for w := range s.Windows(text) {
		chunks = append(chunks, Chunk{Source: source, Content: w})
	}
	return chunks
}

// Dedupe removes chunks whose content was already seen, keeping
// first-occurrence order. A later duplicate updates the kept chunk's
// source, so the most recent provenance wins without moving the chunk.
func Dedupe(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	seen := make(map[string]int, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if i, ok := seen[c.Content]; ok {
			out[i].Source = c.Source
			continue
		}
		seen[c.Content] = len(out)
		out = append(out, c)
	}
	return out
}
