package healthpage

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

//go:embed templates/health.html
var templates embed.FS

const (
	templateName = "health.html"

	// LoadParam carries the page load id across refreshes.
	LoadParam = "load"
)

// Template parses the embedded page template.
func Template() *template.Template {
	return template.Must(template.ParseFS(templates, "templates/"+templateName))
}

type StatusResponse struct {
	Status string `json:"status"`
}

type Handler struct {
	loads     *Loads
	configVar string
}

// NewHandler serves pages from loads. configVar is named in the help line.
func NewHandler(loads *Loads, configVar string) *Handler {
	return &Handler{loads: loads, configVar: configVar}
}

// RefreshURL is the address a pending page reloads itself from.
func RefreshURL(id string) string {
	return "/?" + url.Values{LoadParam: {id}}.Encode()
}

// Index renders a page load. A request without a live load id is a new page
// load: it gets a fresh page, which is mounted after its first render. A
// request carrying a live id re-renders that page without mounting it again.
func (h *Handler) Index(c *gin.Context) {
	if id := c.Query(LoadParam); id != "" {
		if page, ok := h.loads.Get(id); ok {
			h.render(c, id, page)
			return
		}
	}

	id, page := h.loads.Open()
	h.render(c, id, page)
	page.Mount()
}

func (h *Handler) render(c *gin.Context, id string, page *Page) {
	// Settled first: a check finishing between the two reads must not leave
	// the sentinel on screen without a refresh.
	pending := !page.Settled()
	status := page.Status()

	c.HTML(http.StatusOK, templateName, gin.H{
		"Status":     status,
		"Pending":    pending,
		"RefreshURL": RefreshURL(id),
		"ConfigVar":  h.configVar,
	})
}

// Status returns the displayed value of one page load as JSON.
func (h *Handler) Status(c *gin.Context) {
	page, ok := h.loads.Get(c.Query(LoadParam))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown page load"})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: page.Status()})
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(Template())
	r.GET("/", h.Index)
	r.GET("/status", h.Status)
}
