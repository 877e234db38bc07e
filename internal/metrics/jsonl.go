package metrics

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"goal2goal/internal/model"
)

// JSONLSink appends one JSON object per sample to a file.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	w := bufio.NewWriter(file)
	return &JSONLSink{file: file, w: w, enc: json.NewEncoder(w)}, nil
}

func (s *JSONLSink) Scalar(_ context.Context, tag string, step int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enc.Encode(model.MetricSample{Tag: tag, Step: step, Value: value})
}

func (s *JSONLSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Flush()
}

func (s *JSONLSink) Close() error {
	if err := s.Flush(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
