package handlers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/4xmen/wasteless/internal/apperr"
	"github.com/4xmen/wasteless/internal/listings"
	"github.com/4xmen/wasteless/internal/models"
)

type FoodHandler struct {
	listings *listings.Service
}

func NewFoodHandler(listingSvc *listings.Service) *FoodHandler {
	return &FoodHandler{listings: listingSvc}
}

// coordinatesField accepts coordinates as a JSON object, or as a JSON
// encoded string when sent in a multipart form.
type coordinatesField struct {
	value *models.Coordinates
}

func (f *coordinatesField) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		return f.UnmarshalParam(encoded)
	}
	if string(data) == "null" {
		f.value = nil
		return nil
	}
	var c models.Coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		return apperr.InvalidRequest("coordinates must be an object with latitude and longitude")
	}
	f.value = &c
	return nil
}

// UnmarshalParam implements binding.BindUnmarshaler for form fields.
func (f *coordinatesField) UnmarshalParam(param string) error {
	if strings.TrimSpace(param) == "" {
		f.value = nil
		return nil
	}
	var c models.Coordinates
	if err := json.Unmarshal([]byte(param), &c); err != nil {
		return apperr.InvalidRequest("coordinates must be an object with latitude and longitude")
	}
	f.value = &c
	return nil
}

// foodRequest is shared by create and update. Absent fields stay nil so an
// update only touches what was sent.
type foodRequest struct {
	Name        *string          `json:"name" form:"name"`
	Description *string          `json:"description" form:"description"`
	Category    *string          `json:"category" form:"category"`
	Condition   *string          `json:"condition" form:"condition"`
	ExpiryDate  *string          `json:"expiryDate" form:"expiryDate"`
	Location    *string          `json:"location" form:"location"`
	Quantity    *string          `json:"quantity" form:"quantity"`
	ImageURL    *string          `json:"imageUrl" form:"imageUrl"`
	IsAvailable *bool            `json:"isAvailable" form:"isAvailable"`
	Coordinates coordinatesField `json:"coordinates" form:"coordinates"`
}

type listQuery struct {
	Category      string `form:"category"`
	Location      string `form:"location"`
	Search        string `form:"search"`
	MinExpiryDate string `form:"minExpiryDate"`
	MaxExpiryDate string `form:"maxExpiryDate"`
	SortBy        string `form:"sortBy"`
	SortOrder     string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
	Page          int    `form:"page" binding:"omitempty,min=1,max=1000000"`
	Limit         int    `form:"limit" binding:"omitempty,min=1"`
}

type mineQuery struct {
	IsAvailable *bool  `form:"isAvailable"`
	SortBy      string `form:"sortBy"`
	SortOrder   string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
	Page        int    `form:"page" binding:"omitempty,min=1,max=1000000"`
	Limit       int    `form:"limit" binding:"omitempty,min=1"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

const errBodyTooLarge = "request body too large"

// bindFood reads a JSON or multipart body and the optional image file.
func bindFood(c *gin.Context) (*foodRequest, *multipart.FileHeader, error) {
	var req foodRequest
	if err := c.ShouldBind(&req); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, nil, appErr
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, apperr.InvalidRequest(errBodyTooLarge)
		}
		return nil, nil, bindError(err)
	}

	if c.ContentType() != binding.MIMEMultipartPOSTForm {
		return &req, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInvalidRequest, "invalid multipart form", err)
	}
	files := form.File["image"]
	switch len(files) {
	case 0:
		return &req, nil, nil
	case 1:
		return &req, files[0], nil
	default:
		return nil, nil, apperr.InvalidRequest("only one image can be uploaded")
	}
}

func (h *FoodHandler) Create(c *gin.Context) {
	req, image, err := bindFood(c)
	if err != nil {
		respondError(c, err)
		return
	}

	in := listings.Input{
		Name:        deref(req.Name),
		Description: deref(req.Description),
		Category:    deref(req.Category),
		Condition:   deref(req.Condition),
		Location:    deref(req.Location),
		Quantity:    deref(req.Quantity),
		ImageURL:    deref(req.ImageURL),
		Coordinates: req.Coordinates.value,
	}
	if expiry := deref(req.ExpiryDate); expiry != "" {
		if in.ExpiryDate, err = parseDate("expiryDate", expiry); err != nil {
			respondError(c, err)
			return
		}
	}

	post, err := h.listings.Create(c.Request.Context(), currentUserID(c), in, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// List applies the public visibility rule when the caller is anonymous.
func (h *FoodHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}

	minExpiry, err := parseOptionalDate("minExpiryDate", q.MinExpiryDate)
	if err != nil {
		respondError(c, err)
		return
	}
	maxExpiry, err := parseOptionalDate("maxExpiryDate", q.MaxExpiryDate)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.listings.List(c.Request.Context(), currentUserID(c), listings.Filter{
		Category:  q.Category,
		Location:  q.Location,
		Search:    q.Search,
		MinExpiry: minExpiry,
		MaxExpiry: maxExpiry,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
		Page:      q.Page,
		Limit:     q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *FoodHandler) Get(c *gin.Context) {
	post, err := h.listings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *FoodHandler) Update(c *gin.Context) {
	req, image, err := bindFood(c)
	if err != nil {
		respondError(c, err)
		return
	}

	patch := listings.Patch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		Location:    req.Location,
		Quantity:    req.Quantity,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
		Coordinates: req.Coordinates.value,
	}
	if req.ExpiryDate != nil {
		expiry, err := parseDate("expiryDate", *req.ExpiryDate)
		if err != nil {
			respondError(c, err)
			return
		}
		patch.ExpiryDate = &expiry
	}

	post, err := h.listings.Update(c.Request.Context(), currentUserID(c), c.Param("id"), patch, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *FoodHandler) Delete(c *gin.Context) {
	if err := h.listings.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Food post removed"})
}

func (h *FoodHandler) ByUser(c *gin.Context) {
	posts, err := h.listings.ByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *FoodHandler) Mine(c *gin.Context) {
	var q mineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}

	page, err := h.listings.Mine(c.Request.Context(), currentUserID(c), listings.MineFilter{
		IsAvailable: q.IsAvailable,
		SortBy:      q.SortBy,
		SortOrder:   q.SortOrder,
		Page:        q.Page,
		Limit:       q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *FoodHandler) Categories(c *gin.Context) {
	categories, err := h.listings.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}
