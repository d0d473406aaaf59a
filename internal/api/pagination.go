package api

import (
	"net/url"
	"strconv"

	"contacts-api/internal/models"
	"contacts-api/internal/repository"
	apimodels "contacts-api/pkg/models"
)

const linksOnEachSide = 3

// paginate wraps a repository page in the pagination envelope. Links keep the
// request's other query parameters and only vary "page".
func paginate(page repository.Page, base *url.URL) apimodels.Paginated[models.Contact] {
	lastPage := int((page.Total + int64(page.PageSize) - 1) / int64(page.PageSize))
	if lastPage < 1 {
		lastPage = 1
	}

	pageURL := func(n int) string {
		u := *base
		q := u.Query()
		q.Set("page", strconv.Itoa(n))
		u.RawQuery = q.Encode()
		return u.String()
	}
	optional := func(n int) *string {
		if n < 1 || n > lastPage {
			return nil
		}
		s := pageURL(n)
		return &s
	}

	path := *base
	path.RawQuery = ""

	out := apimodels.Paginated[models.Contact]{
		CurrentPage:  page.Page,
		Data:         page.Contacts,
		FirstPageURL: pageURL(1),
		LastPage:     lastPage,
		LastPageURL:  pageURL(lastPage),
		NextPageURL:  optional(page.Page + 1),
		Path:         path.String(),
		PerPage:      page.PageSize,
		PrevPageURL:  optional(page.Page - 1),
		Total:        page.Total,
	}
	if out.Data == nil {
		out.Data = []models.Contact{}
	}

	if n := len(page.Contacts); n > 0 {
		from := (page.Page-1)*page.PageSize + 1
		to := from + n - 1
		out.From, out.To = &from, &to
	}

	out.Links = pageLinks(page.Page, lastPage, optional)
	return out
}

func pageLinks(current, last int, urlFor func(int) *string) []apimodels.PageLink {
	links := []apimodels.PageLink{{URL: urlFor(current - 1), Label: "&laquo; Previous"}}

	start, end := current-linksOnEachSide, current+linksOnEachSide
	if start < 1 {
		start = 1
	}
	if end > last {
		end = last
	}

	if start > 1 {
		links = append(links, apimodels.PageLink{URL: urlFor(1), Label: "1"})
		if start > 2 {
			links = append(links, apimodels.PageLink{Label: "..."})
		}
	}
	for n := start; n <= end; n++ {
		links = append(links, apimodels.PageLink{URL: urlFor(n), Label: strconv.Itoa(n), Active: n == current})
	}
	if end < last {
		if end < last-1 {
			links = append(links, apimodels.PageLink{Label: "..."})
		}
		links = append(links, apimodels.PageLink{URL: urlFor(last), Label: strconv.Itoa(last)})
	}

	return append(links, apimodels.PageLink{URL: urlFor(current + 1), Label: "Next &raquo;"})
}
