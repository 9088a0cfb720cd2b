package transport

import (
	"net/http"
	"strconv"

	"github.com/ds124wfegd/dealslot/internal/service"
	"github.com/ds124wfegd/dealslot/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

type WaitlistHandler struct {
	waitlistService service.WaitlistService
}

func NewWaitlistHandler(waitlistService service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlistService: waitlistService}
}

// JoinWaitlistRequest представляет запрос на вступление в очередь
type JoinWaitlistRequest struct {
	AutoClaim bool `json:"auto_claim"`
}

func offerIDParam(c *gin.Context) (int64, bool) {
	offerID, err := strconv.ParseInt(c.Param("offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offer id", Reason: "invalid_input"})
		return 0, false
	}
	return offerID, true
}

// Join ставит текущего пользователя в хвост очереди оффера
func (h *WaitlistHandler) Join(c *gin.Context) {
	offerID, ok := offerIDParam(c)
	if !ok {
		return
	}

	var req JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)

	position, err := h.waitlistService.Join(c.Request.Context(), offerID, userID, req.AutoClaim)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "joined waitlist",
		Data:    gin.H{"offer_id": offerID, "position": position},
	})
}

// Leave убирает текущего пользователя из очереди
func (h *WaitlistHandler) Leave(c *gin.Context) {
	offerID, ok := offerIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)

	if err := h.waitlistService.Leave(c.Request.Context(), offerID, userID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "left waitlist",
	})
}

// GetMyEntry возвращает запись текущего пользователя в очереди
func (h *WaitlistHandler) GetMyEntry(c *gin.Context) {
	offerID, ok := offerIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt64(middleware.UserIDKey)

	entry, err := h.waitlistService.GetEntry(c.Request.Context(), offerID, userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// GetQueue возвращает всю очередь оффера (для персонала)
func (h *WaitlistHandler) GetQueue(c *gin.Context) {
	offerID, ok := offerIDParam(c)
	if !ok {
		return
	}

	entries, err := h.waitlistService.GetQueue(c.Request.Context(), offerID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
