package models

import "github.com/dmitrijs2005/keycatalog/internal/ident"

// KeyFilter is a conjunction of optional predicates over keys.
type KeyFilter struct {
	Prefix    ident.Prefix
	Desc      string
	Status    *Status
	SlotIndex *int
	LineID    string
}

// Pagination describes one page of a result set. Pages are 1-indexed.
type Pagination struct {
	TotalDocs   int  `json:"totalDocs"`
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	NextPage    *int `json:"nextPage"`
	PrevPage    *int `json:"prevPage"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
	TotalPages  int  `json:"totalPages"`
}

// NewPagination computes page metadata for total matching documents.
func NewPagination(total, limit, page int) Pagination {
	p := Pagination{TotalDocs: total, Limit: limit, Page: page}
	if limit > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	p.HasNextPage = p.TotalPages > page
	p.HasPrevPage = page > 1
	if p.HasNextPage {
		next := page + 1
		p.NextPage = &next
	}
	if p.HasPrevPage {
		prev := page - 1
		p.PrevPage = &prev
	}
	return p
}

// Offset is the number of rows preceding the page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// KeyPage is one page of keys.
type KeyPage struct {
	Items      []Key      `json:"data"`
	Pagination Pagination `json:"metadata"`
}

// LinePage is one page of lines.
type LinePage struct {
	Items      []Line     `json:"data"`
	Pagination Pagination `json:"metadata"`
}

// StatusStats aggregates slot statuses over a filtered set of keys.
type StatusStats struct {
	Histogram    [StatusCount]int `json:"histogram"`
	SuccessCount int              `json:"success"`
	TotalCount   int              `json:"total"`
	SuccessRate  float64          `json:"percentage"`
}
