package handler

import (
	"net/http"

	"propvest/pkg/logger"
)

// LiveFeed upgrades a request to the admin event stream.
type LiveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, userID int64) error
}

type FeedHandler struct {
	feed   LiveFeed
	logger logger.Logger
}

func NewFeedHandler(feed LiveFeed, log logger.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: log}
}

func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	// On failure the upgrader has already written the HTTP error.
	if err := h.feed.Serve(w, r, userID); err != nil {
		h.logger.Warn("Live feed upgrade failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
