package quarantine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rampart-ai/rampart/internal/llm"
)

const mainNudge = "Your previous reply did not follow the required format. Reply with exactly a QUESTION: line and an OPTIONS: line, or the single word DONE."

func answerNudge(maxIndex int) string {
	return fmt.Sprintf("Your previous reply was not a valid choice. Reply with a single integer between 0 and %d and nothing else.", maxIndex)
}

// noExchangesSummary is returned when not a single round completed, rather
// than asking the summary model to describe an empty transcript.
const noExchangesSummary = "No information could be safely extracted from the tool result."

// CoordinatorConfig wires the two model roles. ResultByteCap bounds the raw
// data placed into the quarantined prompt; zero means DefaultResultByteCap.
type CoordinatorConfig struct {
	Main          llm.Client
	Quarantined   llm.Client
	ResultByteCap int
}

// Coordinator runs the bounded question/answer protocol for one tool call
// at a time. It holds no per-call state; each Run builds its own session.
type Coordinator struct {
	main        llm.Client
	quarantined llm.Client
	resultCap   int
	logger      *zap.Logger
}

func NewCoordinator(cfg CoordinatorConfig, logger *zap.Logger) *Coordinator {
	resultCap := cfg.ResultByteCap
	if resultCap <= 0 {
		resultCap = DefaultResultByteCap
	}
	return &Coordinator{
		main:        cfg.Main,
		quarantined: cfg.Quarantined,
		resultCap:   resultCap,
		logger:      logger,
	}
}

// session is the per-call protocol state, discarded when Run returns.
type session struct {
	cfg        Config
	request    string
	data       string
	transcript []exchange
}

// Run drives the protocol and returns the summary standing in for the raw
// result, plus the number of completed exchanges. On cancellation it aborts
// between rounds and returns the context error unwrapped inside; no partial
// summary is produced.
func (c *Coordinator) Run(ctx context.Context, cfg Config, originalUserRequest, toolResult string) (string, int, error) {
	maxRounds := cfg.MaxRounds
	if maxRounds < 1 {
		maxRounds = DefaultMaxRounds
	}
	s := &session{
		cfg:     cfg,
		request: originalUserRequest,
		data:    truncateBytes(toolResult, c.resultCap),
	}

	start := time.Now()
	for round := 0; round < maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", len(s.transcript), fmt.Errorf("quarantine aborted: %w", err)
		}

		turn, err := c.nextMainTurn(ctx, s)
		if err != nil {
			return "", len(s.transcript), err
		}
		if turn == nil {
			// Unparsable even after the nudge. The round is spent; the
			// loop bound still guarantees we reach summarization.
			continue
		}
		if turn.done {
			break
		}

		answer, err := c.askQuarantined(ctx, s, turn)
		if err != nil {
			return "", len(s.transcript), err
		}
		s.transcript = append(s.transcript, exchange{question: turn.question, options: turn.options, answer: answer})
	}

	if err := ctx.Err(); err != nil {
		return "", len(s.transcript), fmt.Errorf("quarantine aborted: %w", err)
	}
	if len(s.transcript) == 0 {
		return noExchangesSummary, 0, nil
	}

	summary, err := c.summarize(ctx, s)
	if err != nil {
		return "", len(s.transcript), err
	}
	c.logger.Debug("quarantine completed",
		zap.String("org_id", cfg.OrgID),
		zap.Int("rounds", len(s.transcript)),
		zap.Int("summary_bytes", len(summary)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return summary, len(s.transcript), nil
}

// nextMainTurn asks the main model for its next move, re-asking once on a
// malformed reply. A nil turn with nil error means the round is forfeit.
func (c *Coordinator) nextMainTurn(ctx context.Context, s *session) (*mainTurn, error) {
	prompt := buildMainPrompt(s)

	reply, err := c.main.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("main model: %w", err)
	}
	turn, perr := parseMainReply(reply)
	if perr == nil {
		return turn, nil
	}

	c.logger.Warn("main reply violated protocol, re-asking once", zap.Error(perr))
	reply, err = c.main.Complete(ctx, prompt+"\n\n"+mainNudge)
	if err != nil {
		return nil, fmt.Errorf("main model: %w", err)
	}
	turn, perr = parseMainReply(reply)
	if perr != nil {
		c.logger.Warn("main reply violated protocol twice, forfeiting round", zap.Error(perr))
		return nil, nil
	}
	return turn, nil
}

// askQuarantined puts one question to the quarantined model. A malformed
// answer gets one nudge retry; a second violation forces the last option,
// which the protocol reserves for "other/none".
func (c *Coordinator) askQuarantined(ctx context.Context, s *session, turn *mainTurn) (int, error) {
	maxIndex := turn.maxIndex()
	prompt := renderTemplate(s.cfg.QuarantinedPrompt, map[string]string{
		"toolResultData": s.data,
		"question":       turn.question,
		"options":        formatOptionsBlock(turn.options),
		"maxIndex":       strconv.Itoa(maxIndex),
	})

	reply, err := c.quarantined.Complete(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("quarantined model: %w", err)
	}
	idx, perr := parseAnswer(reply, maxIndex)
	if perr == nil {
		return idx, nil
	}

	c.logger.Warn("quarantined answer violated protocol, re-asking once", zap.Error(perr))
	reply, err = c.quarantined.Complete(ctx, prompt+"\n\n"+answerNudge(maxIndex))
	if err != nil {
		return 0, fmt.Errorf("quarantined model: %w", err)
	}
	idx, perr = parseAnswer(reply, maxIndex)
	if perr != nil {
		c.logger.Warn("quarantined answer violated protocol twice, forcing last option", zap.Error(perr))
		return maxIndex, nil
	}
	return idx, nil
}

func (c *Coordinator) summarize(ctx context.Context, s *session) (string, error) {
	prompt := renderTemplate(s.cfg.SummaryPrompt, map[string]string{
		"qaText": qaText(s.transcript),
	})
	summary, err := c.main.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summary model: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// buildMainPrompt renders the main template plus the transcript so far.
// Everything in it is either operator template text, the user's own
// request, or text the main model authored itself.
func buildMainPrompt(s *session) string {
	base := renderTemplate(s.cfg.MainPrompt, map[string]string{
		"originalUserRequest": s.request,
	})
	if len(s.transcript) == 0 {
		return base
	}
	return base + "\n\nExchanges so far:\n" + qaText(s.transcript) +
		"\n\nReply with your next QUESTION and OPTIONS, or DONE."
}
