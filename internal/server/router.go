package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/agent"
	"github.com/lumen-collab/coderoom/internal/room"
	"github.com/lumen-collab/coderoom/internal/session"
	"github.com/lumen-collab/coderoom/internal/version"
)

var errMissingAgent = errors.New("agent dependency required")

// Dependencies wires the control surface to the running agent.
type Dependencies struct {
	Agent  *agent.Agent
	Logger *zap.Logger
}

// NewHTTPHandler builds the local control API an editor frontend talks to.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Agent == nil {
		return nil, errMissingAgent
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{agent: deps.Agent, logger: logger}

	router.GET("/status", handler.handleStatus)
	router.GET("/presence", handler.handlePresence)

	router.POST("/rooms", handler.handleCreateRoom)
	router.POST("/rooms/enter", handler.handleEnterRoom)
	router.POST("/rooms/leave", handler.handleLeaveRoom)

	router.GET("/buffer", handler.handleGetBuffer)
	router.PUT("/buffer", handler.handlePutBuffer)

	router.GET("/snapshots", handler.handleListSnapshots)
	router.POST("/snapshots", handler.handleCreateSnapshot)

	router.POST("/version/view", handler.handleViewSnapshot)
	router.POST("/version/live", handler.handleViewLive)
	router.POST("/panel/open", handler.handleOpenPanel)
	router.POST("/panel/close", handler.handleClosePanel)

	router.GET("/snapshots/:snapshotId/comments", handler.handleListComments)
	router.POST("/snapshots/:snapshotId/comments", handler.handleCreateComment)
	router.PATCH("/snapshots/:snapshotId/comments/:commentId", handler.handleUpdateComment)
	router.DELETE("/snapshots/:snapshotId/comments/:commentId", handler.handleDeleteComment)
	router.POST("/snapshots/:snapshotId/comments/:commentId/resolve", handler.handleResolveComment)

	router.POST("/snapshots/:snapshotId/votes", handler.handleCastVote)
	router.GET("/snapshots/:snapshotId/votes", handler.handleTally)

	return router, nil
}

type httpHandler struct {
	agent  *agent.Agent
	logger *zap.Logger
}

type enterRoomPayload struct {
	UUID     string `json:"uuid"`
	Password string `json:"password"`
}

type createRoomPayload struct {
	Title    string `json:"title"`
	Password string `json:"password"`
}

type bufferPayload struct {
	Code string `json:"code"`
}

type createSnapshotPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type viewPayload struct {
	SnapshotID int64 `json:"snapshotId"`
}

type commentPayload struct {
	Content         string `json:"content"`
	ParentCommentID int64  `json:"parentCommentId"`
}

type resolvePayload struct {
	Solved bool `json:"solved"`
}

type votePayload struct {
	VoteType string `json:"voteType"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	mode, viewedSnapshotID := h.agent.VersionMode()
	status := gin.H{
		"connection":     h.agent.ConnectionState().String(),
		"mode":           mode.String(),
		"panelOpen":      h.agent.PanelOpen(),
		"editable":       mode == version.ModeLive,
		"room":           nil,
		"viewedSnapshot": nil,
	}
	if sessionInfo, bound := h.agent.Session(); bound {
		status["room"] = gin.H{
			"roomId": sessionInfo.RoomID,
			"uuid":   sessionInfo.UUID,
			"title":  sessionInfo.Title,
		}
	}
	if mode == version.ModeViewing {
		status["viewedSnapshot"] = viewedSnapshotID
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handlePresence(c *gin.Context) {
	presence := h.agent.Presence()
	users := presence.Users
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"userCount": presence.UserCount,
		"users":     users,
	})
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	var payload createRoomPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title required"})
		return
	}
	sessionInfo, sharedURL, err := h.agent.CreateRoom(c.Request.Context(), payload.Title, payload.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"roomId":    sessionInfo.RoomID,
		"uuid":      sessionInfo.UUID,
		"title":     sessionInfo.Title,
		"sharedUrl": sharedURL,
	})
}

func (h *httpHandler) handleEnterRoom(c *gin.Context) {
	var payload enterRoomPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.UUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uuid required"})
		return
	}
	sessionInfo, err := h.agent.EnterRoom(c.Request.Context(), payload.UUID, payload.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId": sessionInfo.RoomID,
		"uuid":   sessionInfo.UUID,
		"title":  sessionInfo.Title,
	})
}

func (h *httpHandler) handleLeaveRoom(c *gin.Context) {
	h.agent.LeaveRoom()
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetBuffer(c *gin.Context) {
	mode, _ := h.agent.VersionMode()
	c.JSON(http.StatusOK, gin.H{
		"code":     h.agent.Buffer(),
		"editable": mode == version.ModeLive,
	})
}

func (h *httpHandler) handlePutBuffer(c *gin.Context) {
	var payload bufferPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.agent.UpdateCode(payload.Code); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListSnapshots(c *gin.Context) {
	snapshots := h.agent.Snapshots()
	out := make([]gin.H, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, snapshotJSON(snapshot))
	}
	c.JSON(http.StatusOK, out)
}

func (h *httpHandler) handleCreateSnapshot(c *gin.Context) {
	var payload createSnapshotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	snapshot, err := h.agent.CreateSnapshot(c.Request.Context(), payload.Title, payload.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snapshotJSON(snapshot))
}

func (h *httpHandler) handleViewSnapshot(c *gin.Context) {
	var payload viewPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.SnapshotID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshotId required"})
		return
	}
	if err := h.agent.ViewSnapshot(payload.SnapshotID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleViewLive(c *gin.Context) {
	if err := h.agent.ViewLive(); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleOpenPanel(c *gin.Context) {
	if err := h.agent.OpenPanel(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClosePanel(c *gin.Context) {
	h.agent.ClosePanel()
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	roots, err := h.agent.Comments(snapshotID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(roots))
	for _, comment := range roots {
		out = append(out, commentJSON(comment))
	}
	c.JSON(http.StatusOK, out)
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	var payload commentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	comment, err := h.agent.AddComment(c.Request.Context(), snapshotID, payload.Content, payload.ParentCommentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commentJSON(comment))
}

func (h *httpHandler) handleUpdateComment(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	commentID, ok := h.commentID(c)
	if !ok {
		return
	}
	var payload commentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	comment, err := h.agent.EditComment(c.Request.Context(), snapshotID, commentID, payload.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commentJSON(comment))
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	commentID, ok := h.commentID(c)
	if !ok {
		return
	}
	if err := h.agent.DeleteComment(c.Request.Context(), snapshotID, commentID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleResolveComment(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	commentID, ok := h.commentID(c)
	if !ok {
		return
	}
	var payload resolvePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.agent.ResolveComment(c.Request.Context(), snapshotID, commentID, payload.Solved); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	var payload votePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	voteType, err := room.ParseVoteType(payload.VoteType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown vote type"})
		return
	}
	if err := h.agent.CastVote(c.Request.Context(), snapshotID, voteType); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTally(c *gin.Context) {
	snapshotID, ok := h.snapshotID(c)
	if !ok {
		return
	}
	tally, err := h.agent.Tally(c.Request.Context(), snapshotID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positive": tally[room.VotePositive],
		"neutral":  tally[room.VoteNeutral],
		"negative": tally[room.VoteNegative],
		"total":    tally.Total(),
	})
}

func (h *httpHandler) snapshotID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("snapshotId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot id"})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) commentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("commentId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, room.ErrInvalidRoomUUID), errors.Is(err, room.ErrInvalidSnapshotID),
		errors.Is(err, agent.ErrEmptySnapshotTitle), errors.Is(err, agent.ErrEmptyCommentContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotAuthorized), errors.Is(err, session.ErrEnterRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, version.ErrUnknownSnapshot):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, agent.ErrNoActiveRoom), errors.Is(err, agent.ErrReadOnlyBuffer),
		errors.Is(err, agent.ErrAlreadyVoted), errors.Is(err, version.ErrNotViewing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("control request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
	}
}

func snapshotJSON(snapshot room.Snapshot) gin.H {
	return gin.H{
		"snapshotId":  snapshot.ID,
		"title":       snapshot.Title,
		"description": snapshot.Description,
		"code":        snapshot.Code,
		"createdAt":   snapshot.CreatedAt,
	}
}

func commentJSON(comment room.Comment) gin.H {
	replies := make([]gin.H, 0, len(comment.Replies))
	for _, reply := range comment.Replies {
		replies = append(replies, commentJSON(reply))
	}
	return gin.H{
		"commentId":       comment.CommentID,
		"parentCommentId": comment.ParentCommentID,
		"content":         comment.Content,
		"solved":          comment.Solved,
		"createdAt":       comment.CreatedAt,
		"updatedAt":       comment.UpdatedAt,
		"replies":         replies,
	}
}
