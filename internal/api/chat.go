package api

import (
	"net/http"
	"strings"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/history"
	"Superio-Chain/internal/router"
	"Superio-Chain/internal/storage/mysql"
	"Superio-Chain/pkg/logger"
)

// handleChat 把消息交给路由器，并为已识别的钱包保存上下文。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		writeError(w, http.StatusServiceUnavailable, "router not initialized")
		return
	}
	var req router.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx, s.log)
	tracked := s.deps.History != nil && history.Tracked(req.UserID)
	if tracked {
		if req.Context == "" {
			req.Context = s.deps.History.Context(ctx, req.UserID)
		}
		if err := s.deps.History.RecordUser(ctx, req.UserID, req.Message); err != nil {
			log.Warn("保存用户消息失败", "wallet", req.UserID, "error", err)
		}
	}

	reply := s.deps.Router.Handle(ctx, req)

	if tracked {
		if err := s.deps.History.RecordAssistant(ctx, req.UserID, reply.Response, replyMetadata(reply)); err != nil {
			log.Warn("保存助手回复失败", "wallet", req.UserID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, reply)
}

// replyMetadata 挑出回复中值得随历史保存的结构化字段。
func replyMetadata(reply *router.Reply) map[string]any {
	meta := map[string]any{"tools_used": reply.ToolsUsed}
	if reply.SendUI != nil {
		meta["send_ui"] = reply.SendUI
	}
	if reply.SwapUI != nil {
		meta["swap_ui"] = reply.SwapUI
	}
	if len(reply.YieldPools) > 0 {
		meta["yield_pools"] = reply.YieldPools
	}
	if reply.ChartURL != "" {
		meta["chart_url"] = reply.ChartURL
	}
	if len(reply.TransactionInfo) > 0 {
		meta["transaction_info"] = reply.TransactionInfo
	}
	if reply.AddressInfo != nil {
		meta["address_info"] = reply.AddressInfo
	}
	return meta
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "chat history disabled")
		return
	}
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet_address"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet_address is required")
		return
	}
	conv, err := s.deps.History.Conversation(r.Context(), wallet)
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type chatMessageRequest struct {
	WalletAddress string         `json:"wallet_address"`
	Role          string         `json:"role"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "chat history disabled")
		return
	}
	var req chatMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "wallet_address and content are required")
		return
	}
	count, err := s.deps.History.Append(r.Context(), req.WalletAddress, mysql.Message{
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message_count": count})
}

type chatSummaryRequest struct {
	WalletAddress string `json:"wallet_address"`
	Summary       string `json:"summary"`
}

func (s *Server) handleChatSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "chat history disabled")
		return
	}
	var req chatSummaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" || strings.TrimSpace(req.Summary) == "" {
		writeError(w, http.StatusBadRequest, "wallet_address and summary are required")
		return
	}
	if err := s.deps.History.UpdateSummary(r.Context(), req.WalletAddress, strings.TrimSpace(req.Summary)); err != nil {
		s.storageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) storageError(w http.ResponseWriter, r *http.Request, err error) {
	if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.FromContext(r.Context(), s.log).Error("聊天记录操作失败", "error", err)
	writeError(w, http.StatusInternalServerError, "chat history unavailable")
}
