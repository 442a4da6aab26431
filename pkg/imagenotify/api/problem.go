package api

import (
	"net/http"

	"github.com/go-chi/render"
)

const problemTitle = "An error occurred while processing your request."

// Problem is an RFC 7807 problem details body
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// problem reports a service failure. Callers only see the error text; no
// error kind is mapped to a distinct status.
func (h *ImageHandler) problem(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, r, http.StatusInternalServerError, problemTitle, err.Error())
}

func (h *ImageHandler) badRequest(w http.ResponseWriter, r *http.Request, title string, err error) {
	h.logger.Warn(title, "err", err)
	writeProblem(w, r, http.StatusBadRequest, title, err.Error())
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	render.Status(r, status)
	render.JSON(w, r, Problem{
		Type:   "https://tools.ietf.org/html/rfc9110#section-15.6.1",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
