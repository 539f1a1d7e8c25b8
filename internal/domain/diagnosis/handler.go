package diagnosis

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cardiorisk/cardiorisk/internal/platform/mlapi"
	"github.com/cardiorisk/cardiorisk/pkg/pagination"
)

const mlDownDetails = "Please ensure the ML-API server is running on port 5000"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/diagnosis")

	g.POST("/predict", h.Predict)
	g.POST("/batch-predict", h.BatchPredict)
	g.POST("/save", h.Save)

	g.GET("", h.List)
	g.GET("/history", h.History)
	g.GET("/history/:patientName", h.History)
	g.GET("/latest/:patientId", h.Latest)
	g.GET("/latest/name/:patientName", h.LatestByName)
	g.GET("/:id", h.Get)
	g.DELETE("/delete/:id", h.Delete)

	g.GET("/models", h.Models)
	g.GET("/models/comparison", h.ModelComparison)
	g.GET("/model-metrics/:modelName", h.ModelMetrics)
	g.GET("/ensemble-metrics", h.EnsembleMetrics)
	g.GET("/ml-health", h.MLHealth)
}

// mlError maps an ML client failure onto the response the frontend expects.
func mlError(err error, fallback string) error {
	var se *mlapi.StatusError
	switch {
	case errors.As(err, &se):
		return echo.NewHTTPError(se.StatusCode, map[string]interface{}{
			"error":      "ML prediction failed",
			"details":    se.Message,
			"mlApiError": true,
		})
	case errors.Is(err, mlapi.ErrServiceDown):
		return echo.NewHTTPError(http.StatusServiceUnavailable, map[string]interface{}{
			"error":       "ML service unavailable",
			"details":     mlDownDetails,
			"serviceDown": true,
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]interface{}{
			"error":   fallback,
			"details": err.Error(),
		})
	}
}

func (h *Handler) Predict(c echo.Context) error {
	var req PredictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Predict(c.Request().Context(), req)
	if errors.Is(err, ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return mlError(err, "Diagnosis failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) BatchPredict(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.BatchPredict(c.Request().Context(), req)
	if errors.Is(err, ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return mlError(err, "Batch prediction failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Save(c echo.Context) error {
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.svc.Save(c.Request().Context(), &d)
	if errors.Is(err, ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save diagnosis")
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":     true,
		"message":     "Diagnosis saved successfully",
		"diagnosisId": d.ID,
		"diagnosis":   d,
	})
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list diagnoses")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// History lists diagnoses for one patient, selected by ?patientId= or by
// the :patientName path segment.
func (h *Handler) History(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{PatientID: c.QueryParam("patientId"), PatientName: c.Param("patientName")}
	items, total, err := h.svc.ListByPatient(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch diagnosis history")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Diagnosis not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch diagnosis")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "diagnosis": d})
}

func (h *Handler) Latest(c echo.Context) error {
	d, err := h.svc.LatestByPatient(c.Request().Context(), c.Param("patientId"))
	return h.latestResponse(c, d, err)
}

func (h *Handler) LatestByName(c echo.Context) error {
	d, err := h.svc.LatestByPatientName(c.Request().Context(), c.Param("patientName"))
	return h.latestResponse(c, d, err)
}

func (h *Handler) latestResponse(c echo.Context, d *Diagnosis, err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "No diagnosis found for this patient")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch latest diagnosis")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "diagnosis": d})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	err = h.svc.Delete(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Diagnosis not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete diagnosis")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Deleted successfully along with related chat history.",
	})
}

func (h *Handler) Models(c echo.Context) error {
	raw, err := h.svc.Models(c.Request().Context())
	if err != nil {
		return mlError(err, "Failed to fetch models")
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *Handler) ModelComparison(c echo.Context) error {
	raw, err := h.svc.ModelComparison(c.Request().Context())
	if err != nil {
		return mlError(err, "Failed to fetch model comparison")
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *Handler) ModelMetrics(c echo.Context) error {
	raw, err := h.svc.ModelMetrics(c.Request().Context(), c.Param("modelName"))
	var se *mlapi.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return echo.NewHTTPError(http.StatusNotFound, map[string]interface{}{
			"error":   "Model not found",
			"details": se.Body,
		})
	}
	if err != nil {
		return mlError(err, "Failed to fetch model metrics")
	}
	return c.JSONBlob(http.StatusOK, raw)
}

func (h *Handler) EnsembleMetrics(c echo.Context) error {
	m, err := h.svc.EnsembleMetrics(c.Request().Context())
	if err != nil {
		return mlError(err, "Failed to fetch ensemble metrics")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) MLHealth(c echo.Context) error {
	raw, err := h.svc.MLHealth(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"mlApiStatus": "unhealthy",
			"error":       err.Error(),
			"suggestion":  "Please ensure ML-API server is running on port 5000",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"mlApiStatus": "healthy",
		"mlApiData":   raw,
	})
}
