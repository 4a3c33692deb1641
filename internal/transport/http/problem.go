package transporthttp

import (
	"github.com/gin-gonic/gin"
)

const problemContentType = "application/problem+json"

type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// WriteProblem aborts the request with an RFC 7807 problem body.
func WriteProblem(c *gin.Context, status int, title, detail string, errs map[string][]string) {
	// gin keeps a Content-Type that is already set
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(status, Problem{
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request.URL.Path,
		Errors:   errs,
	})
}
