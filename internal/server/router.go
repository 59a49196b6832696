package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/booking"
	"github.com/JedersonYago/ReservaDeRestaurante-sub001/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// requesterHeader carries the opaque requester identity. Authenticating it
// is the job of the out-of-scope request layer in front of this service.
const requesterHeader = "X-Requester-ID"

var errMissingBookingService = errors.New("booking service dependency required")

// Dependencies lists what the HTTP handler needs.
type Dependencies struct {
	BookingService *booking.Service
	Logger         *zap.Logger
	CORSOrigins    []string
}

// NewHTTPHandler builds the gin router exposing the reservation engine.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.BookingService == nil {
		return nil, errMissingBookingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", requesterHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		bookingService: deps.BookingService,
		logger:         logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/reservations", handler.handleBook)
	router.GET("/reservations", handler.handleListReservations)
	router.POST("/reservations/:id/cancel", handler.handleCancel)
	router.POST("/reservations/:id/confirm", handler.handleConfirm)
	router.POST("/reservations/:id/hide", handler.handleHide)

	router.POST("/tables", handler.handleCreateTable)
	router.GET("/tables", handler.handleListTables)
	router.PUT("/tables/:id/status", handler.handleSetTableStatus)
	router.PUT("/tables/:id/availability", handler.handleSetAvailability)
	router.GET("/tables/:id/slots", handler.handleAvailableSlots)

	router.GET("/settings", handler.handleGetSettings)
	router.PUT("/settings", handler.handleUpdateSettings)

	return router, nil
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, route).Observe(time.Since(started).Seconds())
	}
}

type httpHandler struct {
	bookingService *booking.Service
	logger         *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type reservationPayload struct {
	ID          string `json:"id"`
	TableID     string `json:"table_id"`
	RequesterID string `json:"requester_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	Hidden      bool   `json:"hidden"`
	Details     string `json:"details,omitempty"`
	CreatedAtS  int64  `json:"created_at_s"`
	UpdatedAtS  int64  `json:"updated_at_s"`
}

func reservationResponse(record booking.Reservation) reservationPayload {
	return reservationPayload{
		ID:          record.ID,
		TableID:     record.TableID,
		RequesterID: record.RequesterID,
		Date:        record.SlotDate,
		Time:        record.SlotTime,
		Status:      record.Status,
		Hidden:      record.Hidden,
		Details:     record.Details,
		CreatedAtS:  record.CreatedAtSeconds,
		UpdatedAtS:  record.UpdatedAtSeconds,
	}
}

type bookRequestPayload struct {
	TableID string `json:"table_id"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Details string `json:"details"`
}

func (h *httpHandler) handleBook(c *gin.Context) {
	requesterID, ok := h.requester(c)
	if !ok {
		return
	}

	var request bookRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tableID, err := booking.NewTableID(request.TableID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_id"})
		return
	}
	date, err := booking.NewSlotDate(request.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	slotTime, err := booking.NewClockTime(request.Time)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_time"})
		return
	}

	reservation, err := h.bookingService.Book(c.Request.Context(), booking.BookRequest{
		TableID:     tableID,
		Date:        date,
		Time:        slotTime,
		RequesterID: requesterID,
		Details:     request.Details,
	})
	if err != nil {
		if booking.IsKind(err, booking.KindConflict) {
			metrics.BookingConflicts.Inc()
		}
		h.writeError(c, err)
		return
	}

	metrics.ReservationsCreated.Inc()
	c.JSON(http.StatusCreated, reservationResponse(reservation))
}

func (h *httpHandler) handleListReservations(c *gin.Context) {
	requesterID, ok := h.requester(c)
	if !ok {
		return
	}

	records, err := h.bookingService.ListForRequester(c.Request.Context(), requesterID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]reservationPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, reservationResponse(record))
	}
	c.JSON(http.StatusOK, gin.H{"reservations": payload})
}

func (h *httpHandler) handleCancel(c *gin.Context) {
	requesterID, ok := h.requester(c)
	if !ok {
		return
	}
	reservationID, err := booking.NewReservationID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reservation_id"})
		return
	}

	reservation, err := h.bookingService.Cancel(c.Request.Context(), reservationID, requesterID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse(reservation))
}

func (h *httpHandler) handleConfirm(c *gin.Context) {
	reservationID, err := booking.NewReservationID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reservation_id"})
		return
	}

	reservation, err := h.bookingService.Confirm(c.Request.Context(), reservationID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationResponse(reservation))
}

func (h *httpHandler) handleHide(c *gin.Context) {
	requesterID, ok := h.requester(c)
	if !ok {
		return
	}
	reservationID, err := booking.NewReservationID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reservation_id"})
		return
	}

	if err := h.bookingService.Hide(c.Request.Context(), reservationID, requesterID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden": true})
}

type tablePayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
	Status     string `json:"status"`
	CreatedAtS int64  `json:"created_at_s"`
}

func tableResponse(record booking.Table) tablePayload {
	return tablePayload{
		ID:         record.ID,
		Name:       record.Name,
		Capacity:   record.Capacity,
		Status:     record.Status,
		CreatedAtS: record.CreatedAtSeconds,
	}
}

type createTablePayload struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

func (h *httpHandler) handleCreateTable(c *gin.Context) {
	var request createTablePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	table, err := h.bookingService.CreateTable(c.Request.Context(), booking.CreateTableInput{
		Name:     request.Name,
		Capacity: request.Capacity,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tableResponse(table))
}

func (h *httpHandler) handleListTables(c *gin.Context) {
	records, err := h.bookingService.ListTables(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]tablePayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, tableResponse(record))
	}
	c.JSON(http.StatusOK, gin.H{"tables": payload})
}

type tableStatusPayload struct {
	Status string `json:"status"`
}

func (h *httpHandler) handleSetTableStatus(c *gin.Context) {
	tableID, err := booking.NewTableID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_id"})
		return
	}
	var request tableStatusPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	table, err := h.bookingService.SetTableStatus(c.Request.Context(), tableID, booking.TableStatus(request.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tableResponse(table))
}

type availabilityPayload struct {
	Blocks []availabilityBlockPayload `json:"blocks"`
}

type availabilityBlockPayload struct {
	Date  string             `json:"date"`
	Times []timeRangePayload `json:"times"`
}

type timeRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *httpHandler) handleSetAvailability(c *gin.Context) {
	tableID, err := booking.NewTableID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_id"})
		return
	}
	var request availabilityPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	blocks := make([]booking.BlockInput, 0, len(request.Blocks))
	for _, blockPayload := range request.Blocks {
		date, err := booking.NewSlotDate(blockPayload.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
			return
		}
		times := make([]booking.TimeRange, 0, len(blockPayload.Times))
		for _, rangePayload := range blockPayload.Times {
			start, err := booking.NewClockTime(rangePayload.Start)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_time"})
				return
			}
			end, err := booking.NewClockTime(rangePayload.End)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_time"})
				return
			}
			times = append(times, booking.TimeRange{Start: start, End: end})
		}
		blocks = append(blocks, booking.BlockInput{Date: date, Times: times})
	}

	if err := h.bookingService.SetAvailability(c.Request.Context(), tableID, blocks); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *httpHandler) handleAvailableSlots(c *gin.Context) {
	tableID, err := booking.NewTableID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_id"})
		return
	}
	date, err := booking.NewSlotDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	slots, err := h.bookingService.AvailableSlots(c.Request.Context(), tableID, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := make([]string, 0, len(slots))
	for _, slot := range slots {
		payload = append(payload, slot.String())
	}
	c.JSON(http.StatusOK, gin.H{"date": date.String(), "slots": payload})
}

type settingsPayload struct {
	OpeningTime          string `json:"opening_time"`
	ClosingTime          string `json:"closing_time"`
	HoursEnabled         bool   `json:"hours_enabled"`
	ConfirmationDelayMin int    `json:"confirmation_delay_min"`
	DelayEnabled         bool   `json:"delay_enabled"`
	QuotaCount           int    `json:"quota_count"`
	QuotaWindowHours     int    `json:"quota_window_hours"`
	QuotaEnabled         bool   `json:"quota_enabled"`
	Version              int64  `json:"version,omitempty"`
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	settings, err := h.bookingService.GetSettings(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsPayload{
		OpeningTime:          settings.OpeningTime,
		ClosingTime:          settings.ClosingTime,
		HoursEnabled:         settings.HoursEnabled,
		ConfirmationDelayMin: settings.ConfirmationDelayMin,
		DelayEnabled:         settings.DelayEnabled,
		QuotaCount:           settings.QuotaCount,
		QuotaWindowHours:     settings.QuotaWindowHours,
		QuotaEnabled:         settings.QuotaEnabled,
		Version:              settings.Version,
	})
}

func (h *httpHandler) handleUpdateSettings(c *gin.Context) {
	var request settingsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	opening, err := booking.NewClockTime(request.OpeningTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_time"})
		return
	}
	closing, err := booking.NewClockTime(request.ClosingTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_time"})
		return
	}

	settings, err := h.bookingService.UpdateSettings(c.Request.Context(), booking.SettingsInput{
		OpeningTime:          opening,
		ClosingTime:          closing,
		HoursEnabled:         request.HoursEnabled,
		ConfirmationDelayMin: request.ConfirmationDelayMin,
		DelayEnabled:         request.DelayEnabled,
		QuotaCount:           request.QuotaCount,
		QuotaWindowHours:     request.QuotaWindowHours,
		QuotaEnabled:         request.QuotaEnabled,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": settings.Version})
}

func (h *httpHandler) requester(c *gin.Context) (booking.RequesterID, bool) {
	requesterID, err := booking.NewRequesterID(c.GetHeader(requesterHeader))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_requester"})
		return "", false
	}
	return requesterID, true
}

// writeError maps the booking error taxonomy onto HTTP statuses. Internal
// failures are logged with their operation code; the rest are the caller's
// problem and logged at debug only.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	var serviceErr *booking.ServiceError
	code := "internal"
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	status := http.StatusInternalServerError
	switch booking.KindOf(err) {
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindConflict:
		status = http.StatusConflict
	case booking.KindValidation:
		status = http.StatusBadRequest
	case booking.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	case booking.KindForbidden:
		status = http.StatusForbidden
	case booking.KindConfigMissing:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("code", code))
	}
	c.JSON(status, gin.H{"error": code})
}
