package automator

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/domain/session"
)

// MaxContentSize bounds page HTML parsed by miniapp.extract.
const MaxContentSize = 10 * 1024 * 1024

var sanitizer = bluemonday.UGCPolicy()

type extracted struct {
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
	Attr string `json:"attr,omitempty"`
}

// extract reads elements from the current page HTML without touching the
// live DOM. Exactly one of selector or xpath is required.
func (p *Provider) extract(ctx context.Context, sess *session.Session, args map[string]interface{}) (interface{}, error) {
	page, err := pageOf(sess)
	if err != nil {
		return nil, err
	}

	selector := optString(args, "selector", "")
	xpath := optString(args, "xpath", "")
	if (selector == "") == (xpath == "") {
		return nil, fmt.Errorf("exactly one of selector or xpath is required")
	}

	limit := optInt(args, "limit", DefaultQueryLimit)
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	attr := optString(args, "attr", "")
	withHTML := optBool(args, "html", false)

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	if len(content) > MaxContentSize {
		return nil, fmt.Errorf("page content exceeds maximum size of %d bytes", MaxContentSize)
	}

	var items []extracted
	if selector != "" {
		items, err = extractCSS(content, selector, attr, withHTML, limit)
	} else {
		items, err = extractXPath(content, xpath, attr, withHTML, limit)
	}
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"count":    len(items),
		"elements": items,
	}, nil
}

func extractCSS(content, selector, attr string, withHTML bool, limit int) ([]extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	items := []extracted{}
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(items) >= limit {
			return false
		}
		item := extracted{Text: strings.TrimSpace(s.Text())}
		if attr != "" {
			item.Attr, _ = s.Attr(attr)
		}
		if withHTML {
			h, _ := goquery.OuterHtml(s)
			item.HTML = sanitizer.Sanitize(h)
		}
		items = append(items, item)
		return true
	})
	return items, nil
}

func extractXPath(content, expr, attr string, withHTML bool, limit int) ([]extracted, error) {
	doc, err := htmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}

	items := make([]extracted, 0, len(nodes))
	for _, node := range nodes {
		item := extracted{Text: strings.TrimSpace(htmlquery.InnerText(node))}
		if attr != "" {
			item.Attr = htmlquery.SelectAttr(node, attr)
		}
		if withHTML {
			item.HTML = sanitizer.Sanitize(htmlquery.OutputHTML(node, true))
		}
		items = append(items, item)
	}
	return items, nil
}
