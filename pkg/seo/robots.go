package seo

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/cennso/sitegen/pkg/utils"
)

// RobotsTxt returns the robots.txt content. sitemapURL is added as a Sitemap
// directive when non-empty.
func (g *Generator) RobotsTxt(sitemapURL string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "User-agent: %s\n", g.cfg.Robots.UserAgent)
	if len(g.cfg.Robots.Disallow) == 0 {
		buf.WriteString("Allow: /\n")
	}
	for _, path := range g.cfg.Robots.Disallow {
		fmt.Fprintf(&buf, "Disallow: %s\n", path)
	}
	if sitemapURL != "" {
		fmt.Fprintf(&buf, "\nSitemap: %s\n", sitemapURL)
	}
	return buf.Bytes()
}

// VerifyRobots parses robots and checks that every URL is crawlable by userAgent.
// It returns the blocked URLs, with an error wrapping ErrRobotsBlocked when there are any.
func VerifyRobots(robots []byte, userAgent string, urls []string) ([]string, error) {
	data, err := robotstxt.FromBytes(robots)
	if err != nil {
		return nil, fmt.Errorf("%w: robots.txt: %v", utils.ErrParsing, err)
	}

	var blocked []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: sitemap URL '%s': %v", utils.ErrParsing, raw, err)
		}
		if !data.TestAgent(u.RequestURI(), userAgent) {
			blocked = append(blocked, raw)
		}
	}
	if len(blocked) > 0 {
		return blocked, fmt.Errorf("%w: %d sitemap URL(s) disallowed for '%s': %s",
			utils.ErrRobotsBlocked, len(blocked), userAgent, strings.Join(blocked, ", "))
	}
	return nil, nil
}
