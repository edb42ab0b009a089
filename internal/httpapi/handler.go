package httpapi

import (
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"geoattend/internal/apperr"
	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/course"
	"geoattend/internal/identity"
)

// Handler serves the attendance API.
type Handler struct {
	auth        *auth.Service
	identities  *identity.Service
	courses     *course.Service
	windows     *attendance.Manager
	coordinator *attendance.Coordinator
}

// New creates a handler.
func New(authSvc *auth.Service, identities *identity.Service, courses *course.Service, windows *attendance.Manager, coordinator *attendance.Coordinator) *Handler {
	return &Handler{auth: authSvc, identities: identities, courses: courses, windows: windows, coordinator: coordinator}
}

var registerTagNames sync.Once

// useJSONFieldNames makes validation errors report json field names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(f reflect.StructField) string {
				name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
				if name == "-" || name == "" {
					return f.Name
				}
				return name
			})
		}
	})
}

func mustRef(c *gin.Context) (identity.Ref, auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		writeError(c, apperr.New(apperr.InvalidCredentials, "not authenticated"))
		return identity.Ref{}, auth.Claims{}, false
	}
	ref, err := claims.Ref()
	if err != nil {
		writeError(c, apperr.New(apperr.InvalidCredentials, "invalid token"))
		return identity.Ref{}, auth.Claims{}, false
	}
	return ref, claims, true
}

// ---------- Auth ----------

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=student lecturer"`
	DeviceID string `json:"device_id" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.auth.Login(c.Request.Context(), auth.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Role:     identity.Role(req.Role),
		DeviceID: req.DeviceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity": res.Identity,
		"role":     res.Identity.Role,
		"tokens":   res.Tokens,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	if claims, ok := auth.ClaimsFrom(c); ok {
		if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type onboardRequest struct {
	IndexNumber string `json:"index_number" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (h *Handler) Onboard(c *gin.Context) {
	var req onboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	st, err := h.identities.Onboard(c.Request.Context(), req.IndexNumber, req.NewPassword)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (h *Handler) Me(c *gin.Context) {
	_, claims, ok := mustRef(c)
	if !ok {
		return
	}
	id, err := h.auth.Me(c.Request.Context(), claims)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": id, "role": id.Role, "device_id": claims.DeviceID})
}

// ---------- Courses ----------

func (h *Handler) ListCourses(c *gin.Context) {
	var (
		out []course.Course
		err error
	)
	if c.Query("mine") == "true" {
		ref, _, ok := mustRef(c)
		if !ok {
			return
		}
		// Student and lecturer ids come from separate sequences.
		if ref.Role != identity.RoleLecturer {
			writeError(c, apperr.New(apperr.Forbidden, "only lecturers own courses"))
			return
		}
		out, err = h.courses.ForLecturer(c.Request.Context(), ref.ID)
	} else {
		out, err = h.courses.List(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": out})
}

type createCourseRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateCourse(c *gin.Context) {
	ref, _, ok := mustRef(c)
	if !ok {
		return
	}
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	created, err := h.courses.Create(c.Request.Context(), ref.ID, req.Code, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ---------- Windows ----------

type openWindowRequest struct {
	CourseID     int64    `json:"course_id" binding:"required,gt=0"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	RadiusMeters int      `json:"radius_meters" binding:"required,gt=0"`
}

func (h *Handler) OpenWindow(c *gin.Context) {
	var req openWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	w, err := h.windows.Open(c.Request.Context(), attendance.OpenWindow{
		CourseID:     req.CourseID,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		RadiusMeters: req.RadiusMeters,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) StopWindow(c *gin.Context) {
	w, err := h.windows.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) ListActiveWindows(c *gin.Context) {
	out, err := h.windows.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": out})
}

func (h *Handler) WindowRecords(c *gin.Context) {
	out, err := h.windows.Records(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

// ---------- Attendance ----------

type markRequest struct {
	WindowID string   `json:"window_id" binding:"required"`
	Lat      *float64 `json:"lat" binding:"required"`
	Lng      *float64 `json:"lng" binding:"required"`
	DeviceID string   `json:"device_id" binding:"required"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	ref, _, ok := mustRef(c)
	if !ok {
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	rec, err := h.coordinator.Mark(c.Request.Context(), attendance.MarkRequest{
		WindowID: req.WindowID,
		Identity: ref,
		DeviceID: req.DeviceID,
		Lat:      *req.Lat,
		Lng:      *req.Lng,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) History(c *gin.Context) {
	ref, _, ok := mustRef(c)
	if !ok {
		return
	}
	out, err := h.coordinator.History(c.Request.Context(), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

// ---------- Students ----------

type importRequest struct {
	Students []identity.StudentImport `json:"students" binding:"required,dive"`
}

func (h *Handler) ImportStudents(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.identities.ImportStudents(c.Request.Context(), req.Students))
}
