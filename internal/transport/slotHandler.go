package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ds124wfegd/dealslot/internal/service"
	"github.com/gin-gonic/gin"
)

type SlotHandler struct {
	slotService service.SlotService
}

func NewSlotHandler(slotService service.SlotService) *SlotHandler {
	return &SlotHandler{slotService: slotService}
}

// CreateSlot создает новый слот
func (h *SlotHandler) CreateSlot(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	slot, err := h.slotService.CreateSlot(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "slot created",
		Data:    slot,
	})
}

// CreateBulkSlots разворачивает шаблон повторения в набор слотов
func (h *SlotHandler) CreateBulkSlots(c *gin.Context) {
	var req service.BulkSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	slots, err := h.slotService.CreateBulkSlots(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "slots created",
		Data:    gin.H{"count": len(slots), "slots": slots},
	})
}

// GetSlot возвращает слот с вычисленным состоянием
func (h *SlotHandler) GetSlot(c *gin.Context) {
	slotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid slot id", Reason: "invalid_input"})
		return
	}

	view, err := h.slotService.GetSlot(c.Request.Context(), slotID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetOfferSlots возвращает все слоты оффера
func (h *SlotHandler) GetOfferSlots(c *gin.Context) {
	offerID, ok := offerIDParam(c)
	if !ok {
		return
	}

	views, err := h.slotService.GetOfferSlots(c.Request.Context(), offerID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, views)
}

// DeleteSlot удаляет слот без активных заявок
func (h *SlotHandler) DeleteSlot(c *gin.Context) {
	slotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid slot id", Reason: "invalid_input"})
		return
	}

	if err := h.slotService.DeleteSlot(c.Request.Context(), slotID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "slot deleted",
	})
}

// TickDrip запускает внеочередной drip релиз: для одного слота или всех
func (h *SlotHandler) TickDrip(c *gin.Context) {
	var req struct {
		SlotID int64 `json:"slot_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	now := time.Now()

	var released int
	var err error
	if req.SlotID > 0 {
		released, err = h.slotService.TickDrip(c.Request.Context(), req.SlotID, now)
	} else {
		released, err = h.slotService.TickAllDrip(c.Request.Context(), now)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "drip tick completed",
		Data:    gin.H{"units_released": released},
	})
}
