package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"eventhub-backend/internal/models"
	"eventhub-backend/internal/services"
	"eventhub-backend/internal/utils"
)

const defaultListingLimit = 20

// ListingHandlers serves catalog browsing and vendor listing management
type ListingHandlers struct {
	catalog     *services.CatalogService
	log         *zap.Logger
	maxFileSize int64
}

// NewListingHandlers creates a new listing handlers instance
func NewListingHandlers(catalog *services.CatalogService, log *zap.Logger, maxFileSize int64) *ListingHandlers {
	return &ListingHandlers{catalog: catalog, log: log, maxFileSize: maxFileSize}
}

// parsePriceQuery reads an optional decimal query parameter
func parsePriceQuery(c *gin.Context, key string, verrs *utils.ValidationErrors) *decimal.Decimal {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		verrs.Add(key, "must be a number")
		return nil
	}
	if value.IsNegative() {
		verrs.Add(key, "must not be negative")
		return nil
	}
	return &value
}

// ListListings browses active listings with filters and paging
func (h *ListingHandlers) ListListings(c *gin.Context) {
	var filter models.ListingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		failValidation(c, utils.FromBindingError(err))
		return
	}

	if filter.Limit == 0 {
		filter.Limit = defaultListingLimit
	}

	var verrs utils.ValidationErrors
	filter.MinPrice = parsePriceQuery(c, "minPrice", &verrs)
	filter.MaxPrice = parsePriceQuery(c, "maxPrice", &verrs)
	if len(verrs) > 0 {
		failValidation(c, verrs)
		return
	}

	listings, total, err := h.catalog.ListListings(c.Request.Context(), filter)
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    listings,
		"meta": gin.H{
			"total":  total,
			"limit":  filter.Limit,
			"offset": filter.Offset,
		},
	})
}

// GetListing returns one listing
func (h *ListingHandlers) GetListing(c *gin.Context) {
	listing, err := h.catalog.GetListing(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	respond(c, http.StatusOK, listing)
}

// GetCategories returns categories with their active listing counts
func (h *ListingHandlers) GetCategories(c *gin.Context) {
	counts, err := h.catalog.CategoryCounts(c.Request.Context())
	if err != nil {
		handleError(c, h.log, err, "Category not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": counts})
}

// CreateListing adds a listing owned by the calling vendor
func (h *ListingHandlers) CreateListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var in models.ListingInput
	if !bindJSON(c, &in) {
		return
	}
	listing, err := h.catalog.CreateListing(c.Request.Context(), userID, in)
	if err != nil {
		handleError(c, h.log, err, "Vendor profile not found")
		return
	}
	respondMessage(c, http.StatusCreated, "Listing created", listing)
}

// UpdateListing edits a listing the caller owns
func (h *ListingHandlers) UpdateListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var in models.ListingInput
	if !bindJSON(c, &in) {
		return
	}
	listing, err := h.catalog.UpdateListing(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	respondMessage(c, http.StatusOK, "Listing updated", listing)
}

// DeleteListing removes a listing the caller owns
func (h *ListingHandlers) DeleteListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.catalog.DeleteListing(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	respondMessage(c, http.StatusOK, "Listing deleted", nil)
}

// UploadMedia accepts a multipart "file" and attaches it to the listing
func (h *ListingHandlers) UploadMedia(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		failValidation(c, utils.ValidationErrors{{Field: "file", Message: "is required"}})
		return
	}
	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		fail(c, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	file, err := header.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	listing, err := h.catalog.UploadListingMedia(c.Request.Context(), userID, c.Param("id"), header.Filename, contentType, data)
	if err != nil {
		handleError(c, h.log, err, "Listing not found")
		return
	}
	respondMessage(c, http.StatusCreated, "Media uploaded", listing)
}

// GetVendorListings returns every listing the caller owns, active or not
func (h *ListingHandlers) GetVendorListings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listings, err := h.catalog.ListVendorListings(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.log, err, "Vendor profile not found")
		return
	}
	respond(c, http.StatusOK, listings)
}
