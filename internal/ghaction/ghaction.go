package ghaction

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const outputDelimiter = "ghadelimiter_deploy_verifier"

// Sink writes GitHub Actions workflow commands and step outputs.
type Sink struct {
	out        io.Writer
	outputPath string
}

// New returns a sink that writes workflow commands to out and step outputs to
// the file at outputPath. An empty outputPath disables outputs.
func New(out io.Writer, outputPath string) *Sink {
	return &Sink{out: out, outputPath: outputPath}
}

// Error emits an ::error:: command so the runner marks the step as failed.
func (s *Sink) Error(message string) error {
	_, err := fmt.Fprintf(s.out, "::error::%s\n", escapeData(message))
	return err
}

// Errors emits one ::error:: command per message.
func (s *Sink) Errors(messages []string) error {
	for _, msg := range messages {
		if err := s.Error(msg); err != nil {
			return err
		}
	}
	return nil
}

// SetOutputs appends step outputs to $GITHUB_OUTPUT in key order.
func (s *Sink) SetOutputs(outputs map[string]string) error {
	if s.outputPath == "" || len(outputs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(outputs))
	for key := range outputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		value := outputs[key]
		if strings.ContainsAny(value, "\r\n") {
			fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", key, outputDelimiter, value, outputDelimiter)
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", key, value)
	}

	f, err := os.OpenFile(s.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open github output: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write github output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close github output: %w", err)
	}
	return nil
}

func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}
