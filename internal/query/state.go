// Package query holds the list filters a user last applied to a view, so
// that coming back to a list shows the same page and filters.
package query

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/aldoetobex/assignment-portal/internal/stage"
	"github.com/aldoetobex/assignment-portal/pkg/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
	maxSearch       = 100
)

// State is the filter set of one list view.
type State struct {
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Stage    models.Stage `json:"stage,omitempty"`
	Search   string       `json:"search,omitempty"`
}

// Default is the state of a view nobody has touched.
func Default() State {
	return State{Page: 1, PageSize: DefaultPageSize}
}

// Normalize clamps the state to what a list can serve.
func (s State) Normalize() State {
	if s.Page < 1 {
		s.Page = 1
	}
	if s.PageSize < 1 || s.PageSize > MaxPageSize {
		s.PageSize = DefaultPageSize
	}
	if s.Stage != "" && !stage.Known(s.Stage) {
		s.Stage = ""
	}
	s.Search = strings.TrimSpace(s.Search)
	if r := []rune(s.Search); len(r) > maxSearch {
		s.Search = string(r[:maxSearch])
	}
	return s
}

// FromRequest merges the query string over the remembered state. A changed
// filter without an explicit page sends the user back to page 1. Strings are
// copied out of the request, so the result may outlive the handler.
func FromRequest(c *fiber.Ctx, remembered State) State {
	s := remembered
	explicitPage := false

	if v := c.Query("page"); v != "" {
		s.Page, _ = strconv.Atoi(v)
		explicitPage = true
	}
	if v := c.Query("pageSize"); v != "" {
		s.PageSize, _ = strconv.Atoi(v)
	}
	if c.Context().QueryArgs().Has("stage") {
		s.Stage = models.Stage(strings.TrimSpace(utils.CopyString(c.Query("stage"))))
	}
	if c.Context().QueryArgs().Has("search") {
		s.Search = utils.CopyString(c.Query("search"))
	}

	s = s.Normalize()
	if !explicitPage && (s.Stage != remembered.Stage || s.Search != remembered.Search) {
		s.Page = 1
	}
	return s
}
