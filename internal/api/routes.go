package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/reactoryard/internal/importer"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/pkt"
)

// maxImportBytes caps the size of an uploaded import file.
const maxImportBytes = 32 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// registerRoutes sets up all routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	eng := opts.Engine

	router.GET("/healthz", handleHealth(eng))
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.GET("/reactors", handleReactorBoard(eng))
	api.GET("/summary", handleSummary(eng))
	api.GET("/events", handleSSE(eng))
	if opts.Importer != nil {
		api.POST("/import", handleImport(opts.Importer, opts.Location))
	}

	tx := api.Group("/transactions")
	tx.POST("", handleCreate(eng))
	tx.GET("", handleList(eng))
	tx.GET("/:id", handleGet(eng))
	tx.GET("/:id/history", handleHistory(eng))
	tx.POST("/:id/start", handleTransition(eng, func(c *gin.Context, id uint) (*models.PktTransaction, error) {
		return eng.Start(c.Request.Context(), id)
	}))
	tx.POST("/:id/complete-production", handleCompleteProduction(eng))
	tx.POST("/:id/start-washing", handleStartWashing(eng))
	tx.POST("/:id/complete-washing", handleTransition(eng, func(c *gin.Context, id uint) (*models.PktTransaction, error) {
		return eng.CompleteWashing(c.Request.Context(), id)
	}))
	tx.POST("/:id/finish", handleTransition(eng, func(c *gin.Context, id uint) (*models.PktTransaction, error) {
		return eng.Finish(c.Request.Context(), id)
	}))
	tx.POST("/:id/cancel", handleCancel(eng))
}

func handleHealth(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := eng.Store().DB(c.Request.Context()).DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleReactorBoard(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := ReactorBoard(eng.Store().DB(c.Request.Context()))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleSummary(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := StatusCounts(eng.Store().DB(c.Request.Context()))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}

type createRequest struct {
	ReactorID     uint   `json:"reactor_id"`
	ProductID     uint   `json:"product_id"`
	WorkOrderNo   string `json:"work_order_no"`
	LotNo         string `json:"lot_no"`
	DelayReasonID *uint  `json:"delay_reason_id"`
	Description   string `json:"description"`
}

func handleCreate(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		t, err := eng.Create(c.Request.Context(), pkt.CreateOpts{
			ReactorID:     req.ReactorID,
			ProductID:     req.ProductID,
			WorkOrderNo:   req.WorkOrderNo,
			LotNo:         req.LotNo,
			DelayReasonID: req.DelayReasonID,
			Description:   req.Description,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toView(t))
	}
}

func handleList(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			f   pkt.ListFilters
			err error
		)
		if f.ReactorID, err = queryUint(c, "reactor_id"); err != nil {
			badRequest(c, err)
			return
		}
		if f.ProductID, err = queryUint(c, "product_id"); err != nil {
			badRequest(c, err)
			return
		}
		limit, err := queryUint(c, "limit")
		if err != nil {
			badRequest(c, err)
			return
		}
		f.Limit = int(limit)
		f.Status = models.Status(c.Query("status"))
		f.WorkOrderNo = c.Query("work_order_no")
		f.ActiveOnly = c.Query("active") == "true"

		list, err := eng.List(c.Request.Context(), f)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]transactionView, len(list))
		for i := range list {
			out[i] = toView(&list[i])
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleGet(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		t, err := eng.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toView(t))
	}
}

func handleHistory(eng *pkt.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		events, err := eng.History(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]eventView, len(events))
		for i, ev := range events {
			out[i] = toEventView(ev)
		}
		c.JSON(http.StatusOK, out)
	}
}

// handleTransition wraps an operation that takes only the transaction id.
func handleTransition(eng *pkt.Engine, op func(c *gin.Context, id uint) (*models.PktTransaction, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		t, err := op(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toView(t))
	}
}

type completeProductionRequest struct {
	DelayReasonID *uint  `json:"delay_reason_id"`
	DelayDuration string `json:"delay_duration"`
}

func handleCompleteProduction(eng *pkt.Engine) gin.HandlerFunc {
	return handleTransition(eng, func(c *gin.Context, id uint) (*models.PktTransaction, error) {
		var req completeProductionRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			return nil, err
		}
		opts := pkt.CompleteProductionOpts{DelayReasonID: req.DelayReasonID}
		if req.DelayDuration != "" {
			d, err := time.ParseDuration(req.DelayDuration)
			if err != nil {
				return nil, invalidField("delay_duration", err)
			}
			opts.DelayDuration = &d
		}
		return eng.CompleteProduction(c.Request.Context(), id, opts)
	})
}

type startWashingRequest struct {
	CausticAmountKg float64 `json:"caustic_amount_kg"`
}

func handleStartWashing(eng *pkt.Engine) gin.HandlerFunc {
	return handleTransition(eng, func(c *gin.Context, id uint) (*models.PktTransaction, error) {
		var req startWashingRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			return nil, err
		}
		return eng.StartWashing(c.Request.Context(), id, req.CausticAmountKg)
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func handleCancel(eng *pkt.Engine) gin.HandlerFunc {
	return handleTransition(eng, func(c *gin.Context, id uint) (*models.PktTransaction, error) {
		var req cancelRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			return nil, err
		}
		return eng.Cancel(c.Request.Context(), id, req.Reason)
	})
}

// handleImport accepts a CSV body, or an XLSX workbook when the content
// type says so. The optional "sheet" query picks the worksheet.
func handleImport(im *importer.Importer, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

		var (
			rows []importer.Row
			err  error
		)
		if isXLSX(c) {
			rows, err = importer.ReadXLSX(body, c.Query("sheet"), loc)
		} else {
			rows, err = importer.ReadCSV(body, loc)
		}
		if err != nil {
			badRequest(c, err)
			return
		}

		res := im.ImportRows(c.Request.Context(), rows)
		c.JSON(http.StatusOK, res)
	}
}

func isXLSX(c *gin.Context) bool {
	if c.Query("format") == "xlsx" {
		return true
	}
	return strings.HasPrefix(c.ContentType(), xlsxContentType)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id " + strconv.Quote(c.Param("id")), "kind": "bad_request"})
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, key string) (uint, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, invalidField(key, err)
	}
	return uint(n), nil
}

// bindOptionalJSON decodes the body into dst when one is present.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		return invalidField("body", err)
	}
	return nil
}
