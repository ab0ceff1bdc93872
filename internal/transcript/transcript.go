package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"podforge/internal/services"
)

// Word is one timestamped token from the external transcription service.
type Word struct {
	Text       string  `json:"text"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	SpeakerID  string  `json:"speaker_id"`
	Confidence float64 `json:"confidence"`
}

// Transcript is an immutable, validated word sequence.
type Transcript struct {
	words []Word
}

// New validates words and returns a Transcript holding a private copy.
// Start times must be non-decreasing, every word must end at or after it
// starts, and words from the same speaker must not overlap.
func New(words []Word) (*Transcript, error) {
	copied := make([]Word, len(words))
	copy(copied, words)

	lastEnd := make(map[string]int64)
	for i, word := range copied {
		if word.StartMS < 0 {
			return nil, invalid(i, "negative start_ms %d", word.StartMS)
		}
		if word.EndMS < word.StartMS {
			return nil, invalid(i, "end_ms %d before start_ms %d", word.EndMS, word.StartMS)
		}
		if i > 0 && word.StartMS < copied[i-1].StartMS {
			return nil, invalid(i, "start_ms %d before previous start %d", word.StartMS, copied[i-1].StartMS)
		}
		if end, ok := lastEnd[word.SpeakerID]; ok && word.StartMS < end {
			return nil, invalid(i, "overlaps previous word from speaker %q", word.SpeakerID)
		}
		lastEnd[word.SpeakerID] = word.EndMS
	}
	return &Transcript{words: copied}, nil
}

func invalid(index int, format string, args ...any) error {
	msg := fmt.Sprintf("word %d: %s", index, fmt.Sprintf(format, args...))
	return services.Wrap(services.ErrValidation, "transcript", "validate", msg, nil)
}

// Len returns the number of words.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.words)
}

// Word returns the word at index i.
func (t *Transcript) Word(i int) Word {
	return t.words[i]
}

// Words returns a copy of the word list.
func (t *Transcript) Words() []Word {
	if t == nil {
		return nil
	}
	out := make([]Word, len(t.words))
	copy(out, t.words)
	return out
}

// DurationMS returns the latest word end, which approximates the spoken length
// of the recording.
func (t *Transcript) DurationMS() int64 {
	var maxEnd int64
	for _, w := range t.words {
		if w.EndMS > maxEnd {
			maxEnd = w.EndMS
		}
	}
	return maxEnd
}

// Text joins the words between [from, to) with single spaces.
func (t *Transcript) Text(from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(t.words) {
		to = len(t.words)
	}
	if from >= to {
		return ""
	}
	parts := make([]string, 0, to-from)
	for _, w := range t.words[from:to] {
		parts = append(parts, strings.TrimSpace(w.Text))
	}
	return strings.Join(parts, " ")
}

type document struct {
	Words []Word `json:"words"`
}

// Decode parses a transcript document. Both {"words": [...]} and a bare
// word array are accepted.
func Decode(r io.Reader) (*Transcript, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	var words []Word
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &words); err != nil {
			return nil, services.Wrap(services.ErrValidation, "transcript", "decode", "malformed word array", err)
		}
	} else {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, services.Wrap(services.ErrValidation, "transcript", "decode", "malformed document", err)
		}
		words = doc.Words
	}
	return New(words)
}

// LoadFile decodes the transcript stored at path.
func LoadFile(path string) (*Transcript, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()
	return Decode(file)
}
