package structuring

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

// Invoker runs the end-of-conversation pipeline: discard check, model
// structuring, degraded fallback.
type Invoker struct {
	client Client
	policy DiscardPolicy
	logger *log.Logger
}

// NewInvoker wires an invoker. A nil client means every summary is built
// locally (degraded).
func NewInvoker(client Client, policy DiscardPolicy, logger *log.Logger) *Invoker {
	if logger == nil {
		logger = log.Default()
	}
	return &Invoker{client: client, policy: policy, logger: logger}
}

// Structure never returns an error: trivial transcripts come back Discarded,
// model failures come back Degraded with a locally built summary. The session
// outcome must not depend on the model being up.
func (inv *Invoker) Structure(ctx context.Context, req StructureRequest) Result {
	plain := req.plainText()
	if inv.policy.ShouldDiscard(plain) {
		return Result{Discarded: true}
	}

	if inv.client == nil {
		return Result{Summary: heuristicSummary(plain, req.StartedAt), Degraded: true}
	}

	summary, err := inv.client.GetTranscriptStructure(ctx, req)
	if err != nil {
		inv.logger.Warn("structuring: model failed, using local summary", "err", err)
		return Result{Summary: heuristicSummary(plain, req.StartedAt), Degraded: true}
	}

	s := *summary
	backfill(&s, req)
	return Result{Summary: s}
}

// backfill replaces empty model fields with heuristic values so a saved
// conversation always has a title, overview, emoji and category.
func backfill(s *Summary, req StructureRequest) {
	fb := heuristicSummary(req.plainText(), req.StartedAt)
	if strings.TrimSpace(s.Title) == "" {
		s.Title = fb.Title
	}
	if strings.TrimSpace(s.Overview) == "" {
		s.Overview = fb.Overview
	}
	if s.Emoji == "" {
		s.Emoji = fb.Emoji
	}
	if s.Category == "" {
		s.Category = fb.Category
	}
}
