package transport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ds124wfegd/dealslot/internal/entity"
	"github.com/ds124wfegd/dealslot/internal/service"
	"github.com/ds124wfegd/dealslot/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

type ClaimHandler struct {
	reservationService service.ReservationService
	redemptionService  service.RedemptionService
	sweeperService     service.SweeperService
}

func NewClaimHandler(
	reservationService service.ReservationService,
	redemptionService service.RedemptionService,
	sweeperService service.SweeperService,
) *ClaimHandler {
	return &ClaimHandler{
		reservationService: reservationService,
		redemptionService:  redemptionService,
		sweeperService:     sweeperService,
	}
}

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

// RedeemRequest carries the staff-entered credential.
type RedeemRequest struct {
	Credential string `json:"credential" binding:"required,min=6,max=64"`
}

// statusForError maps the engine's error taxonomy to HTTP statuses so the
// staff UI can tell "not found", "already used" and "no longer valid" apart.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrOfferNotFound),
		errors.Is(err, entity.ErrSlotNotFound),
		errors.Is(err, entity.ErrClaimNotFound),
		errors.Is(err, entity.ErrWaitlistEntryNotFound),
		errors.Is(err, entity.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entity.ErrSoldOut):
		return http.StatusConflict, "sold_out"
	case errors.Is(err, entity.ErrPerUserLimit),
		errors.Is(err, entity.ErrCooldownActive),
		errors.Is(err, entity.ErrGlobalLimit):
		return http.StatusTooManyRequests, "limit_exceeded"
	case errors.Is(err, entity.ErrClaimAlreadyTerminal):
		return http.StatusConflict, "already_redeemed"
	case errors.Is(err, entity.ErrClaimExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, entity.ErrInvalidCredential):
		return http.StatusBadRequest, "invalid_credential"
	case errors.Is(err, entity.ErrAlreadyWaiting):
		return http.StatusConflict, "already_waiting"
	case errors.Is(err, entity.ErrOfferInactive),
		errors.Is(err, entity.ErrSlotNotLive):
		return http.StatusConflict, "not_available"
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, reason := statusForError(err)
	c.JSON(status, ErrorResponse{Error: err.Error(), Reason: reason})
}

// ReserveClaim резервирует единицу инвентаря для текущего пользователя
func (h *ClaimHandler) ReserveClaim(c *gin.Context) {
	var req service.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	req.UserID = c.GetInt64(middleware.UserIDKey)

	result, err := h.reservationService.Reserve(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if result.Waitlisted {
		c.JSON(http.StatusAccepted, SuccessResponse{
			Success: true,
			Message: "offer sold out, added to waitlist",
			Data:    result,
		})
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "claim reserved",
		Data:    result.Claim,
	})
}

// GetClaim возвращает заявку по ID
func (h *ClaimHandler) GetClaim(c *gin.Context) {
	claimID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid claim id", Reason: "invalid_input"})
		return
	}

	details, err := h.reservationService.GetClaimDetails(c.Request.Context(), claimID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	// Заявки видны только владельцу и персоналу
	userID := c.GetInt64(middleware.UserIDKey)
	role := entity.UserRole(c.GetString(middleware.UserRoleKey))
	if details.Claim.UserID != userID && !role.CanRedeem() {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your claim", Reason: "forbidden"})
		return
	}

	c.JSON(http.StatusOK, details)
}

// GetMyClaims возвращает заявки текущего пользователя
func (h *ClaimHandler) GetMyClaims(c *gin.Context) {
	userID := c.GetInt64(middleware.UserIDKey)

	claims, err := h.reservationService.GetUserClaims(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, claims)
}

// RedeemClaim погашает заявку по коду или QR токену
func (h *ClaimHandler) RedeemClaim(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	staffID := c.GetInt64(middleware.UserIDKey)

	claim, err := h.redemptionService.Redeem(c.Request.Context(), req.Credential, staffID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "claim redeemed",
		Data:    claim,
	})
}

// SweepNow запускает внеочередной проход свипера
func (h *ClaimHandler) SweepNow(c *gin.Context) {
	result, err := h.sweeperService.SweepExpired(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "sweep completed",
		Data:    result,
	})
}
