package ingest

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"adflow/internal/types"
)

const (
	maxMainText    = 5000
	maxImages      = 20
	maxSocialLinks = 10
	maxAddressHint = 200
)

var (
	emailRe   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe   = regexp.MustCompile(`(?:\+7|8)[\s\-]?\(?\d{3}\)?[\s\-]?\d{3}[\s\-]?\d{2}[\s\-]?\d{2}`)
	addressRe = regexp.MustCompile(`(?i)адрес|address`)

	socialDomains = []string{"vk.com", "t.me", "telegram", "instagram", "facebook", "youtube"}
)

func (f *Fetcher) fetchWebsite(ctx context.Context, u *url.URL) (*types.SiteSummary, error) {
	doc, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return f.extractSite(doc, u), nil
}

func (f *Fetcher) extractSite(doc *html.Node, u *url.URL) *types.SiteSummary {
	stripBoilerplate(doc)
	site := &types.SiteSummary{}

	if t := find(doc, isElement(atom.Title)); t != nil {
		site.Title = text(t)
	}
	if m := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "name"), "description")
	}); m != nil {
		site.MetaDescription = strings.TrimSpace(attr(m, "content"))
	}
	if h := find(doc, isElement(atom.H1)); h != nil {
		site.H1 = text(h)
	}

	main := mainContent(doc)
	plain := truncateRunes(text(main), maxMainText)
	site.MainText = truncateRunes(f.markdown(main, u, plain), maxMainText)
	site.Images = images(doc, u)
	site.ContactInfo = contacts(doc, plain)
	site.SocialLinks = socialLinks(doc, u)
	site.DetectedLanguage = detectLanguage(plain)
	return site
}

// mainContent picks the first common content container, else the body.
func mainContent(doc *html.Node) *html.Node {
	candidates := []func(*html.Node) bool{
		isElement(atom.Main),
		isElement(atom.Article),
		func(n *html.Node) bool { return n.Type == html.ElementNode && attr(n, "role") == "main" },
		withClass("content"),
		func(n *html.Node) bool { return n.Type == html.ElementNode && attr(n, "id") == "content" },
	}
	for _, pred := range candidates {
		if n := find(doc, pred); n != nil {
			return n
		}
	}
	if body := find(doc, isElement(atom.Body)); body != nil {
		return body
	}
	return doc
}

// markdown sanitizes the subtree and renders it as markdown; plain text is
// the fallback when conversion yields nothing.
func (f *Fetcher) markdown(n *html.Node, u *url.URL, fallback string) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return fallback
	}
	clean := f.policy.SanitizeBytes(buf.Bytes())
	md, err := f.md.ConvertString(string(clean), converter.WithDomain(u.Scheme+"://"+u.Host))
	if err != nil || strings.TrimSpace(md) == "" {
		return fallback
	}
	return strings.TrimSpace(md)
}

func images(doc *html.Node, base *url.URL) []string {
	var out []string
	seen := map[string]bool{}
	for _, img := range findAll(doc, isElement(atom.Img), 0) {
		if len(out) >= maxImages {
			break
		}
		abs := resolve(base, attr(img, "src"))
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}

func socialLinks(doc *html.Node, base *url.URL) []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range findAll(doc, isElement(atom.A), 0) {
		href := resolve(base, attr(a, "href"))
		if href == "" || seen[href] {
			continue
		}
		for _, d := range socialDomains {
			if strings.Contains(href, d) {
				seen[href] = true
				out = append(out, href)
				break
			}
		}
		if len(out) >= maxSocialLinks {
			break
		}
	}
	return out
}

func contacts(doc *html.Node, plain string) map[string]string {
	out := map[string]string{}
	if m := emailRe.FindString(plain); m != "" {
		out["email"] = m
	} else if a := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.A && strings.HasPrefix(strings.ToLower(attr(n, "href")), "mailto:")
	}); a != nil {
		out["email"] = strings.TrimPrefix(strings.TrimPrefix(attr(a, "href"), "mailto:"), "MAILTO:")
	}
	if m := phoneRe.FindString(plain); m != "" {
		out["phone"] = strings.TrimSpace(m)
	}
	if n := find(doc, func(n *html.Node) bool { return n.Type == html.TextNode && addressRe.MatchString(n.Data) }); n != nil && n.Parent != nil {
		out["address_hint"] = truncateRunes(text(n.Parent), maxAddressHint)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// resolve returns an absolute http(s) URL for ref, or "".
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#") {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// detectLanguage compares Cyrillic and Latin letter counts.
func detectLanguage(s string) string {
	cyr, lat := 0, 0
	for _, r := range s {
		switch {
		case (r >= 'а' && r <= 'я') || (r >= 'А' && r <= 'Я') || r == 'ё' || r == 'Ё':
			cyr++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			lat++
		}
	}
	if cyr > lat {
		return "ru"
	}
	return "en"
}
