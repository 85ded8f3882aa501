package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"moltfarm/internal/netclient"
	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

// UnsolvableChallengeError reports that the oracle never produced a parsable
// numeric answer.
type UnsolvableChallengeError struct {
	Attempts  int
	LastReply string
}

func (e *UnsolvableChallengeError) Error() string {
	return fmt.Sprintf("oracle produced no numeric answer after %d attempts (last reply: %q)", e.Attempts, e.LastReply)
}

const systemInstruction = `You solve obfuscated arithmetic word problems. Rules:
- Number words map to digits: one..ninety, hundred.
- "sum" or "total" means add. "loses" or "minus" means subtract.
- "times" means multiply. "divided" or "per" means divide.
- "percent" means apply the percentage formula (x percent of y = x/100*y).
- Ignore filler words and decorative characters.
Respond with EXACTLY one decimal number with two fractional digits, e.g. 47.00. No other text.`

const correctiveInstruction = systemInstruction + `
Your previous reply was not a bare number. Reply with ONLY the number, formatted with exactly two decimal places. Nothing else.`

// oracleAttempts is the total number of oracle round-trips before giving up.
const oracleAttempts = 2

// Solver obtains validated numeric answers from an LLM oracle. It is a pure
// request/response adapter; every call is independent.
type Solver struct {
	client *netclient.Client
	cfg    types.LLMConf
}

func New(client *netclient.Client, cfg types.LLMConf) *Solver {
	return &Solver{client: client, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Solve normalizes the challenge text, asks the oracle and validates the
// reply. A malformed reply triggers one corrective retry with slightly
// perturbed sampling before failing with UnsolvableChallengeError.
func (s *Solver) Solve(ctx context.Context, ch types.Challenge) (string, error) {
	l := logger.WithComponent("Solver")
	normalized := Normalize(ch.Text)
	l.Debug().Str("normalized", normalized).Msg("Normalized challenge text.")

	userPrompt := fmt.Sprintf("Raw challenge:\n%s\n\nCleaned challenge:\n%s", ch.Text, normalized)

	var lastReply string
	for attempt := 0; attempt < oracleAttempts; attempt++ {
		instruction := systemInstruction
		temperature := 0.0
		if attempt > 0 {
			instruction = correctiveInstruction
			temperature = 0.3
		}

		reply, err := s.ask(ctx, instruction, userPrompt, temperature)
		if err != nil {
			return "", fmt.Errorf("oracle call failed: %w", err)
		}
		lastReply = reply

		answer, ok := CoerceAnswer(reply)
		if ok {
			return answer, nil
		}
		l.Warn().Int("attempt", attempt+1).Str("reply", reply).Msg("Oracle reply had no numeric token, retrying with corrective instruction.")
	}

	return "", &UnsolvableChallengeError{Attempts: oracleAttempts, LastReply: lastReply}
}

func (s *Solver) ask(ctx context.Context, instruction, userPrompt string, temperature float64) (string, error) {
	body := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   32,
		Temperature: temperature,
	}

	resp, err := s.client.Do(ctx, netclient.Request{
		Method: "POST",
		URL:    s.cfg.Endpoint + "/v1/chat/completions",
		Headers: map[string]string{
			"Authorization": "Bearer " + s.cfg.APIKey,
		},
		JSONBody: body,
		Timeout:  time.Duration(s.cfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("oracle response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

var (
	decimalRe = regexp.MustCompile(`-?\d+\.\d+`)
	integerRe = regexp.MustCompile(`-?\d+`)
)

// CoerceAnswer extracts a two-decimal answer from an oracle reply. Priority:
// a decimal with exactly two fractional digits, then any decimal coerced to
// two digits, then a bare integer. Returns false when no numeric token is
// present.
func CoerceAnswer(reply string) (string, bool) {
	decimals := decimalRe.FindAllString(reply, -1)
	for _, d := range decimals {
		if dot := strings.IndexByte(d, '.'); len(d)-dot-1 == 2 {
			return d, true
		}
	}
	if len(decimals) > 0 {
		f, err := strconv.ParseFloat(decimals[0], 64)
		if err == nil {
			return strconv.FormatFloat(f, 'f', 2, 64), true
		}
	}
	if n := integerRe.FindString(reply); n != "" {
		return n + ".00", true
	}
	return "", false
}
