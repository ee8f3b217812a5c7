package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/helixir/research-answer-service/internal/domain"
)

// consolePrinter renders pipeline events for a terminal. Answer tokens go
// to out as they arrive and progress lines go to status.
type consolePrinter struct {
	out    io.Writer
	status io.Writer

	streamed bool
}

func newConsolePrinter(out, status io.Writer) *consolePrinter {
	return &consolePrinter{out: out, status: status}
}

// Emit implements pipeline.Emitter.
func (p *consolePrinter) Emit(_ context.Context, event domain.Event) error {
	switch event.Status {
	case domain.EventStageUpdate:
		p.statusf("[%s] %s", event.Stage, event.Message)
	case domain.EventSubstageUpdate, domain.EventPapersFinding:
		p.statusf("  %s", event.Message)
	case domain.EventToken:
		// Analysis output is intermediate.
		if !isAnswerStage(event.Stage) {
			return nil
		}
		if _, err := io.WriteString(p.out, event.Token); err != nil {
			return domain.NewStreamTransportError(err)
		}
		p.streamed = p.streamed || event.Token != ""
	case domain.EventError:
		p.statusf("error: %s", event.Error)
	}
	return nil
}

// finish prints whatever the token stream did not cover: the answer when
// nothing streamed, the note and the reference list.
func (p *consolePrinter) finish(result *domain.Result) error {
	var b strings.Builder
	if !p.streamed {
		b.WriteString(result.Answer)
	}
	b.WriteString("\n")

	if result.Note != "" {
		fmt.Fprintf(&b, "\nNote: %s\n", result.Note)
	}

	if len(result.Citations) > 0 {
		b.WriteString("\nReferences\n")
		for _, c := range result.Citations {
			fmt.Fprintf(&b, "[%s] %s", c.CitationKey, c.Title)
			if c.Year != "" && c.Year != domain.YearUnknown {
				fmt.Fprintf(&b, " (%s)", c.Year)
			}
			if c.Link != "" {
				fmt.Fprintf(&b, " %s", c.Link)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(p.out, b.String())
	return err
}

func isAnswerStage(stage domain.Stage) bool {
	return stage == domain.StageGeneratingDirect || stage == domain.StageGeneratingCited
}

func (p *consolePrinter) statusf(format string, args ...any) {
	fmt.Fprintf(p.status, format+"\n", args...)
}

func writeResultJSON(w io.Writer, result *domain.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
