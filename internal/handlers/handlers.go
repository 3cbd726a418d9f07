package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/sheharfix-ml/internal/pipeline"
	"github.com/Brownie44l1/sheharfix-ml/internal/store"
)

// uploadFields are the multipart field names accepted for the image, in
// lookup order.
var uploadFields = []string{"file", "image"}

type Classifier interface {
	Classify(ctx context.Context, raw []byte) pipeline.Result
}

type Handler struct {
	classifier     Classifier
	store          store.Store
	maxUploadBytes int64
	log            *zap.Logger
}

func NewHandler(classifier Classifier, s store.Store, maxUploadBytes int64, log *zap.Logger) *Handler {
	return &Handler{
		classifier:     classifier,
		store:          s,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/favicon.ico", h.Favicon)
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.GET("/prediction/latest", h.Latest)
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "SheharFix ML Server is running."})
}

func (h *Handler) Favicon(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Predict classifies an uploaded image. Pipeline failures are reported as
// {"error": ...} with status 200; only a malformed upload gets a 4xx.
func (h *Handler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	header, err := formFile(c)
	if err != nil {
		h.log.Warn("Rejected upload", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	raw, err := readUpload(header)
	if err != nil {
		h.log.Warn("Failed to read upload", zap.String("filename", header.Filename), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	h.log.Debug("Received file",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	res := h.classifier.Classify(c.Request.Context(), raw)
	if !res.OK() {
		c.JSON(http.StatusOK, gin.H{"error": res.Failure.Error()})
		return
	}

	c.JSON(http.StatusOK, res.Prediction)
}

// Latest returns the persisted single-slot prediction.
func (h *Handler) Latest(c *gin.Context) {
	p, err := h.store.Load(c.Request.Context())
	if errors.Is(err, store.ErrNoResult) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("Failed to load latest prediction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load latest prediction"})
		return
	}

	c.JSON(http.StatusOK, p)
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	var lastErr error
	for _, field := range uploadFields {
		header, err := c.FormFile(field)
		if err == nil {
			return header, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no image file provided, use the 'file' form field: %w", lastErr)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return io.ReadAll(f)
}
