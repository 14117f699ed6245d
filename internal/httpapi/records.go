package httpapi

import (
	"net/http"
	"strconv"

	"github.com/AdolfoEscobar473/hospital/internal/records"

	"github.com/gin-gonic/gin"
)

// RecordHandlers serves one contributor-tier module.
type RecordHandlers struct {
	Module string
	H      Handlers
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

func (rh RecordHandlers) List(c *gin.Context) {
	list, err := rh.H.Records.List(c.Request.Context(), rh.Module, records.ListFilter{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (rh RecordHandlers) Create(c *gin.Context) {
	var in records.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, err)
		return
	}
	r, err := rh.H.Records.Create(c.Request.Context(), rh.Module, actorID(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (rh RecordHandlers) Get(c *gin.Context) {
	r, err := rh.H.Records.Get(c.Request.Context(), rh.Module, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (rh RecordHandlers) Update(c *gin.Context) {
	var in records.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, err)
		return
	}
	r, err := rh.H.Records.Update(c.Request.Context(), rh.Module, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (rh RecordHandlers) Delete(c *gin.Context) {
	if err := rh.H.Records.Delete(c.Request.Context(), rh.Module, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (rh RecordHandlers) Approve(c *gin.Context) {
	r, err := rh.H.Records.Approve(c.Request.Context(), rh.Module, c.Param("id"), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (rh RecordHandlers) Statistics(c *gin.Context) {
	st, err := rh.H.Reports.ModuleStatistics(c.Request.Context(), rh.Module)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) DashboardSummary(c *gin.Context) {
	sum, err := h.Reports.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
