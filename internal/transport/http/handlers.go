// Package transporthttp serves the crash catalog over HTTP.
package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"example.com/crashview/internal/catalog"
	"example.com/crashview/internal/config"
	spg "example.com/crashview/internal/storage/postgres"
)

type Catalog interface {
	List(ctx context.Context) ([]catalog.Entry, error)
	Detail(ctx context.Context, id string) (*catalog.Detail, error)
}

// Index is the optional crash index backing readiness and stats.
type Index interface {
	Ready(ctx context.Context) error
	QueryTotals(ctx context.Context, signature *string, from, to int64) (spg.StatsTotals, error)
	QueryBucketsDaily(ctx context.Context, signature *string, from, to int64) ([]spg.StatsBucket, error)
}

type ServerDeps struct {
	Cfg     config.Config
	Catalog Catalog
	// DB is nil when no index is configured.
	DB  Index
	Now func() time.Time
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(c *gin.Context) {
	if d.DB != nil {
		if err := d.DB.Ready(c.Request.Context()); err != nil {
			WriteProblem(c, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// --- Crashes ---

func (d *ServerDeps) HandleListCrashes(c *gin.Context) {
	entries, err := d.Catalog.List(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list crashes")
		WriteProblem(c, http.StatusInternalServerError, "list failed", "crash directory could not be read", nil)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (d *ServerDeps) HandleGetCrash(c *gin.Context) {
	id := c.Param("id")
	detail, err := d.Catalog.Detail(c.Request.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		WriteProblem(c, http.StatusNotFound, "not found", "no crash report with id "+strconv.Quote(id), nil)
		return
	case err != nil:
		log.WithError(err).WithField("id", id).Error("crash detail")
		WriteProblem(c, http.StatusInternalServerError, "detail failed", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// --- Stats ---

type statsResp struct {
	Totals  spg.StatsTotals   `json:"totals"`
	Buckets []spg.StatsBucket `json:"buckets,omitempty"`
}

const defaultWindowSeconds = int64(7 * 24 * 60 * 60) // last 7 days default
const maxWindowSeconds = int64(90 * 24 * 60 * 60)    // cap at 90 days (guardrail)

// parseWindow resolves the optional from/to epoch-second bounds.
func parseWindow(fromStr, toStr string, now int64) (from, to int64, field string, err error) {
	switch {
	case fromStr == "" && toStr == "":
		from, to = now-defaultWindowSeconds, now
	case fromStr != "" && toStr == "":
		if from, err = strconv.ParseInt(fromStr, 10, 64); err != nil {
			return 0, 0, "from", err
		}
		to = now
	case fromStr == "" && toStr != "":
		if to, err = strconv.ParseInt(toStr, 10, 64); err != nil {
			return 0, 0, "to", err
		}
		from = to - defaultWindowSeconds
	default:
		if from, err = strconv.ParseInt(fromStr, 10, 64); err != nil {
			return 0, 0, "from", err
		}
		if to, err = strconv.ParseInt(toStr, 10, 64); err != nil {
			return 0, 0, "to", err
		}
	}
	// guardrail: cap excessively large ranges
	if to-from > maxWindowSeconds {
		from = to - maxWindowSeconds
	}
	return from, to, "", nil
}

func (d *ServerDeps) HandleGetStats(c *gin.Context) {
	from, to, field, err := parseWindow(c.Query("from"), c.Query("to"), d.Now().Unix())
	if err != nil {
		WriteProblem(c, http.StatusBadRequest, "invalid parameters", field+" must be epoch seconds", nil)
		return
	}
	if from > to {
		WriteProblem(c, http.StatusBadRequest, "invalid parameters", "from must not be after to", nil)
		return
	}
	groupBy := c.Query("group_by")
	if groupBy != "" && groupBy != "day" {
		WriteProblem(c, http.StatusBadRequest, "invalid parameters", "group_by must be day", nil)
		return
	}

	// optional filter
	var sigPtr *string
	if sig := strings.TrimSpace(c.Query("signature")); sig != "" {
		sigPtr = &sig
	}

	ctx := c.Request.Context()
	var resp statsResp
	resp.Totals, err = d.DB.QueryTotals(ctx, sigPtr, from, to)
	if err != nil {
		WriteProblem(c, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	if groupBy == "day" {
		resp.Buckets, err = d.DB.QueryBucketsDaily(ctx, sigPtr, from, to)
		if err != nil {
			WriteProblem(c, http.StatusInternalServerError, "query error", err.Error(), nil)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// --- Router ---

func (d *ServerDeps) Router() *gin.Engine {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	r.GET("/healthz", d.HandleHealthz)
	r.GET("/readyz", d.HandleReadyz)

	api := r.Group("/", APIKeyAuth(d.Cfg.APIKeys))
	api.GET("/crashes", d.HandleListCrashes)
	api.GET("/crash/:id", RateLimitPerMinute(d.Cfg.RateLimitDetailPerMin, d.Now), d.HandleGetCrash)
	if d.DB != nil {
		api.GET("/crashes/stats", d.HandleGetStats)
	}

	r.NoRoute(func(c *gin.Context) {
		WriteProblem(c, http.StatusNotFound, "not found", "no route for "+c.Request.URL.Path, nil)
	})
	return r
}
