package services

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"foreclosure-auction-scraper/internal/models"
)

// ErrSectionNotFound is returned when the page has no heading matching the
// configured section text, usually because the county redesigned the page
var ErrSectionNotFound = errors.New("foreclosure sales section not found")

// ParseAuctionLinks finds the h2 whose text contains heading and returns every
// link in the list that follows it. Relative hrefs are resolved against
// pageURL and duplicate targets are dropped.
func ParseAuctionLinks(r io.Reader, pageURL, heading string) ([]models.ListingLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	want := strings.ToLower(strings.TrimSpace(heading))
	section := doc.Find("h2").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(s.Text()), want)
	}).First()
	if section.Length() == 0 {
		return nil, fmt.Errorf("%w: no h2 containing %q", ErrSectionNotFound, heading)
	}

	list := section.NextAllFiltered("ul").First()
	if list.Length() == 0 {
		// Some CMS themes wrap the list in a div
		list = section.Next().Find("ul").First()
	}
	if list.Length() == 0 {
		return nil, fmt.Errorf("%w: no list after heading %q", ErrSectionNotFound, heading)
	}

	var links []models.ListingLink
	seen := make(map[string]bool)

	list.Find("li a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || href == "" {
			return
		}

		target := base.ResolveReference(ref).String()
		if seen[target] {
			return
		}
		seen[target] = true

		link := models.ListingLink{
			Text: strings.Join(strings.Fields(a.Text()), " "),
			URL:  target,
		}
		if year, month, err := models.ParseListingMonth(link.Text); err == nil {
			link.Year = year
			link.Month = month
			link.Parsed = true
		}
		links = append(links, link)
	})

	return links, nil
}

// FilterFutureLinks keeps links whose month is strictly after the month of
// now. Past, current and unparseable links are returned as skipped.
func FilterFutureLinks(links []models.ListingLink, now time.Time) (future, skipped []models.ListingLink) {
	for _, link := range links {
		if link.Parsed && models.IsFutureMonth(link.Year, link.Month, now) {
			future = append(future, link)
		} else {
			skipped = append(skipped, link)
		}
	}
	return future, skipped
}

// FindMonthLink returns the parsed link for year/month, if the page lists it
func FindMonthLink(links []models.ListingLink, year, month int) (models.ListingLink, bool) {
	for _, link := range links {
		if link.Parsed && link.Year == year && link.Month == month {
			return link, true
		}
	}
	return models.ListingLink{}, false
}
