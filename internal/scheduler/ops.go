package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

// LinkWallets posts a wallet-link inscription for every claimed bot. One
// bot's failure does not stop the rest; status is persisted after each bot.
func (s *Scheduler) LinkWallets(ctx context.Context, wallet string) error {
	if wallet == "" {
		return fmt.Errorf("no wallet configured")
	}

	for i, bot := range s.bots {
		if err := ctx.Err(); err != nil {
			return err
		}
		l := logger.WithBot(bot.Name)
		st := s.store.Get(bot.Name)

		if st.WalletLinked {
			l.Info().Msg("Wallet already linked, skipping.")
			continue
		}

		status, err := s.gateway.CheckStatus(ctx, bot, i)
		if err != nil {
			l.Warn().Err(err).Msg("Status check failed, skipping link.")
			continue
		}
		if !status.Claimed() {
			l.Info().Str("status", status.Status).Msg("Bot is not claimed yet, skipping link.")
			continue
		}

		title := fmt.Sprintf("link wallet [%s]", uuid.NewString()[:8])
		content := s.encodePayload(types.MintPayload{
			Protocol:  mintProtocol,
			Operation: "link",
			Wallet:    wallet,
		})

		post, err := s.gateway.CreatePost(ctx, bot, i, title, content)
		if err != nil {
			l.Error().Err(err).Msg("Wallet link post failed at transport level.")
			continue
		}
		if !post.OK() {
			l.Error().Int("status_code", post.StatusCode).Str("error", post.Error).Msg("Wallet link rejected.")
			continue
		}

		st.WalletLinked = true
		st.LastPostResult = "link_ok"
		if err := s.store.Save(); err != nil {
			l.Error().Err(err).Msg("Failed to persist status.")
		}
		l.Info().Msg("Wallet linked.")
	}
	return nil
}

// Transfer posts a one-shot transfer inscription from the bot at
// senderIndex to a recipient.
func (s *Scheduler) Transfer(ctx context.Context, senderIndex int, recipient, ticker, amount string) error {
	if senderIndex < 0 || senderIndex >= len(s.bots) {
		return fmt.Errorf("sender index %d out of range (have %d accounts)", senderIndex, len(s.bots))
	}
	bot := s.bots[senderIndex]
	l := logger.WithBot(bot.Name)

	status, err := s.gateway.CheckStatus(ctx, bot, senderIndex)
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	if !status.Claimed() {
		return fmt.Errorf("bot %q is not claimed", bot.Name)
	}

	title := fmt.Sprintf("transfer %s %s [%s]", ticker, amount, uuid.NewString()[:8])
	content := s.encodePayload(types.MintPayload{
		Protocol:  mintProtocol,
		Operation: "transfer",
		Ticker:    ticker,
		Amount:    amount,
		To:        recipient,
	})

	post, err := s.gateway.CreatePost(ctx, bot, senderIndex, title, content)
	if err != nil {
		return fmt.Errorf("transfer post failed: %w", err)
	}
	if !post.OK() {
		return fmt.Errorf("transfer rejected (http %d): %s", post.StatusCode, post.Error)
	}

	st := s.store.Get(bot.Name)
	st.LastPostResult = "transfer_ok"
	if post.Post != nil && post.Post.ID != "" {
		st.PostIDs = append(st.PostIDs, post.Post.ID)
	}
	if err := s.store.Save(); err != nil {
		l.Error().Err(err).Msg("Failed to persist status.")
	}
	l.Info().Str("to", recipient).Str("ticker", ticker).Str("amount", amount).Msg("Transfer posted.")
	return nil
}
