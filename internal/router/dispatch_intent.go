package router

import (
	"context"
	"encoding/json"
	"strings"

	"Superio-Chain/internal/intent"
	"Superio-Chain/pkg/logger"
)

const defaultSendToken = "ETH"

func (r *Router) handleSend(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args sendArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	token := strings.TrimSpace(args.Token)
	if token == "" {
		token = defaultSendToken
	}
	send, err := intent.BuildSepoliaSend(token, args.Amount.or(0), args.ToAddress)
	if err != nil {
		logger.FromContext(ctx, r.log).Info("转账参数无效", "error", err)
		reply.Response = intent.SendGuidance
		return nil
	}
	applySend(reply, send)
	return nil
}

func (r *Router) handleSwap(ctx context.Context, _ Request, raw json.RawMessage, reply *Reply) error {
	var args swapArgs
	if err := decodeArgs(raw, &args); err != nil {
		return err
	}
	swap, err := intent.BuildSwap(ctx, args.FromToken, args.ToToken, args.FromAmount.or(0), r.rater)
	if err != nil {
		logger.FromContext(ctx, r.log).Info("兑换参数无效", "error", err)
		reply.Response = intent.SwapGuidance
		return nil
	}
	applySwap(reply, swap)
	return nil
}

func applySend(reply *Reply, send *intent.SendIntent) {
	ui := send.UI()
	reply.Response = send.Reply()
	reply.SendUI = &ui
}

func applySwap(reply *Reply, swap *intent.SwapIntent) {
	ui := swap.UI()
	reply.Response = swap.Reply()
	reply.SwapUI = &ui
}
