package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"moltfarm/internal/platform"
	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

// mintProtocol is the inscription protocol tag embedded in every payload.
const mintProtocol = "molt-20"

// PlatformClient is the gateway surface the scheduler drives.
type PlatformClient interface {
	CheckStatus(ctx context.Context, bot *types.Bot, botIndex int) (*platform.StatusResult, error)
	CreatePost(ctx context.Context, bot *types.Bot, botIndex int, title, content string) (*platform.CreatePostResult, error)
	SubmitVerification(ctx context.Context, bot *types.Bot, botIndex int, code, answer string) (*platform.VerifyResult, error)
}

// ChallengeSolver resolves a verification challenge to a numeric answer.
type ChallengeSolver interface {
	Solve(ctx context.Context, ch types.Challenge) (string, error)
}

// StatusStore is the durable per-bot state the scheduler reads and mutates.
type StatusStore interface {
	Get(name string) *types.BotStatus
	Save() error
}

// StatusBroadcaster receives a notification after each processed bot. The
// web hub implements it; a nil broadcaster disables notifications.
type StatusBroadcaster interface {
	BroadcastStatusUpdate()
}

// Scheduler is the per-bot mint state machine. One logical tick partitions
// all bots into Ready and Cooling sets and processes the Ready ones strictly
// sequentially, persisting status after every bot so a crash mid-batch loses
// at most one bot's progress.
type Scheduler struct {
	bots    []*types.Bot
	gateway PlatformClient
	solver  ChallengeSolver
	store   StatusStore
	cfg     types.MintConf
	hub     StatusBroadcaster

	now func() time.Time
}

func New(bots []*types.Bot, gateway PlatformClient, solver ChallengeSolver, store StatusStore, cfg types.MintConf, hub StatusBroadcaster) *Scheduler {
	return &Scheduler{
		bots:    bots,
		gateway: gateway,
		solver:  solver,
		store:   store,
		cfg:     cfg,
		hub:     hub,
		now:     time.Now,
	}
}

func (s *Scheduler) cooldown() time.Duration {
	return time.Duration(s.cfg.DefaultCooldownMinutes) * time.Minute
}

// Run loops forever, sleeping adaptively between ticks: until the nearest
// bot's eligibility time, clamped to [tick floor, tick interval] so a bot
// kept perpetually ready by a non-advancing failure cannot busy-loop us.
func (s *Scheduler) Run(ctx context.Context) error {
	l := logger.WithComponent("Scheduler")
	l.Info().Int("bots", len(s.bots)).Msg("Auto-mint scheduler starting.")

	for {
		s.Tick(ctx)
		if ctx.Err() != nil {
			l.Info().Msg("Scheduler stopping.")
			return ctx.Err()
		}

		sleep := s.nextSleep()
		l.Debug().Str("sleep", sleep.String()).Msg("Tick finished.")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.Info().Msg("Scheduler stopping.")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick partitions the bots by readiness and processes every ready bot. When
// nothing is ready it emits a single progress line instead of touching the
// network.
func (s *Scheduler) Tick(ctx context.Context) {
	l := logger.WithComponent("Scheduler")
	now := s.now()

	var ready []int
	minWait := time.Duration(-1)
	for i, bot := range s.bots {
		wait := s.timeUntilEligible(s.store.Get(bot.Name), now)
		if wait <= 0 {
			ready = append(ready, i)
			continue
		}
		if minWait < 0 || wait < minWait {
			minWait = wait
		}
	}

	if len(ready) == 0 {
		if minWait >= 0 {
			l.Info().Str("next_in", minWait.Round(time.Second).String()).Msg("All bots cooling down, waiting.")
		}
		return
	}

	l.Info().Int("ready", len(ready)).Int("total", len(s.bots)).Msg("Processing ready bots.")
	for _, i := range ready {
		if ctx.Err() != nil {
			return
		}
		s.processBot(ctx, i, s.bots[i])
		if err := s.store.Save(); err != nil {
			bl := logger.WithBot(s.bots[i].Name)
			bl.Error().Err(err).Msg("Failed to persist status.")
		}
		if s.hub != nil {
			s.hub.BroadcastStatusUpdate()
		}
	}
}

// timeUntilEligible computes how long until a bot may mint again.
// NextMintAt, when set, is authoritative; otherwise the default cooldown is
// counted from the last attempt; a bot with no recorded attempt is eligible
// immediately.
func (s *Scheduler) timeUntilEligible(st *types.BotStatus, now time.Time) time.Duration {
	if st.NextMintAt != nil {
		if d := st.NextMintAt.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	if st.LastMintAttempt != nil {
		if d := s.cooldown() - now.Sub(*st.LastMintAttempt); d > 0 {
			return d
		}
	}
	return 0
}

// nextSleep picks the adaptive inter-tick sleep.
func (s *Scheduler) nextSleep() time.Duration {
	interval := time.Duration(s.cfg.TickIntervalSeconds) * time.Second
	floor := time.Duration(s.cfg.TickFloorSeconds) * time.Second

	now := s.now()
	sleep := interval
	for _, bot := range s.bots {
		if wait := s.timeUntilEligible(s.store.Get(bot.Name), now); wait > 0 && wait < sleep {
			sleep = wait
		}
	}
	if sleep < floor {
		sleep = floor
	}
	return sleep
}

// processBot drives one mint attempt. Every error is handled here and
// logged with the bot's identity; nothing propagates far enough to abort the
// tick for the remaining bots.
func (s *Scheduler) processBot(ctx context.Context, botIndex int, bot *types.Bot) {
	l := logger.WithBot(bot.Name)
	st := s.store.Get(bot.Name)
	now := s.now()

	status, err := s.gateway.CheckStatus(ctx, bot, botIndex)
	if err != nil {
		// Skip this attempt; the bot stays ready for the next tick.
		l.Warn().Err(err).Msg("Status check failed, skipping attempt.")
		return
	}
	st.LastStatusCheck = &now
	st.Claimed = status.Claimed()

	if !st.Claimed {
		// Not an error and not a cooldown: the attempt is deferred.
		l.Info().Str("status", status.Status).Msg("Bot is not claimed yet, deferring mint.")
		return
	}

	traceID := uuid.NewString()[:8]
	title := fmt.Sprintf("mint %s %s [%s]", s.cfg.Ticker, s.cfg.Amount, traceID)
	content := s.encodePayload(types.MintPayload{
		Protocol:  mintProtocol,
		Operation: "mint",
		Ticker:    s.cfg.Ticker,
		Amount:    s.cfg.Amount,
	})

	post, err := s.gateway.CreatePost(ctx, bot, botIndex, title, content)
	if err != nil {
		// All proxy-rotated retries failed; timing state is untouched so
		// the bot is retried at the next readiness check.
		l.Error().Err(err).Msg("Mint post failed at transport level.")
		st.LastPostResult = "network_error"
		return
	}

	switch {
	case post.OK():
		s.handleMintAccepted(ctx, botIndex, bot, st, post, now, l)

	case post.StatusCode == 429:
		// Server-driven reschedule overrides the default cooldown.
		delay := post.RetryDelay()
		next := now.Add(delay)
		st.NextMintAt = &next
		st.LastPostResult = fmt.Sprintf("rate_limited_%ds", int(delay.Seconds()))
		ev := l.Warn().Int("retry_after_s", int(delay.Seconds()))
		if post.Hint != "" {
			ev = ev.Str("hint", post.Hint)
		}
		ev.Msg("Rate limited, rescheduled by server.")

	default:
		// Transient platform failure: record it, do not advance timing.
		st.LastPostResult = fmt.Sprintf("post_rejected_%d", post.StatusCode)
		l.Error().Int("status_code", post.StatusCode).Str("error", post.Error).Msg("Mint post rejected.")
	}
}

// handleMintAccepted finishes a 2xx mint: verification round-trip when
// demanded, then rescheduling from the server hint or the default cooldown.
func (s *Scheduler) handleMintAccepted(ctx context.Context, botIndex int, bot *types.Bot, st *types.BotStatus, post *platform.CreatePostResult, now time.Time, l zerolog.Logger) {
	st.LastMintAttempt = &now

	verified := true
	contentID := ""
	if post.VerificationRequired && post.Verification != nil {
		contentID, verified = s.resolveChallenge(ctx, botIndex, bot, *post.Verification, l)
	}

	// The mint stays "posted" whether or not verification succeeded.
	if verified {
		st.LastPostResult = "mint_ok"
		switch {
		case post.Post != nil && post.Post.ID != "":
			st.PostIDs = append(st.PostIDs, post.Post.ID)
		case contentID != "":
			st.PostIDs = append(st.PostIDs, contentID)
		}
	} else {
		st.LastPostResult = "mint_ok_unverified"
	}

	var next time.Time
	if post.NextMintInSeconds != nil {
		next = now.Add(time.Duration(*post.NextMintInSeconds) * time.Second)
	} else {
		next = now.Add(s.cooldown())
	}
	st.NextMintAt = &next

	l.Info().Str("result", st.LastPostResult).Str("next_mint_at", next.UTC().Format(time.RFC3339)).Msg("Mint posted.")
}

// resolveChallenge runs the deobfuscate/oracle/verify pipeline for one
// challenge. It returns the verified content id (when the platform sends
// one) and whether the post ended up verified.
func (s *Scheduler) resolveChallenge(ctx context.Context, botIndex int, bot *types.Bot, ch types.Challenge, l zerolog.Logger) (string, bool) {
	answer, err := s.solver.Solve(ctx, ch)
	if err != nil {
		l.Warn().Err(err).Msg("Challenge could not be solved, post stays unverified.")
		return "", false
	}

	vr, err := s.gateway.SubmitVerification(ctx, bot, botIndex, ch.Code, answer)
	if err != nil {
		l.Warn().Err(err).Msg("Verification submission failed, post stays unverified.")
		return "", false
	}
	if !vr.Success {
		l.Warn().Int("status_code", vr.StatusCode).Str("error", vr.Error).Msg("Platform rejected the challenge answer.")
		return "", false
	}

	l.Info().Str("answer", answer).Msg("Challenge verified.")
	return vr.ContentID, true
}

func (s *Scheduler) encodePayload(p types.MintPayload) string {
	raw, _ := json.Marshal(p)
	return string(raw)
}
