package fbref

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// PositionSource names where a position code was read from.
type PositionSource string

const (
	SourceScouting PositionSource = "scouting" // similar-players filter label
	SourceBio      PositionSource = "bio"      // "Position:" line of the profile
	SourceRoster   PositionSource = "roster"   // league stats table
)

var DefaultPositionPrecedence = []PositionSource{SourceScouting, SourceBio, SourceRoster}

var ErrNoPosition = errors.New("fbref: no position found")

// ParsePositionPrecedence reads a comma separated list such as
// "bio,scouting,roster".
func ParsePositionPrecedence(csv string) ([]PositionSource, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return DefaultPositionPrecedence, nil
	}
	out := []PositionSource{}
	for _, tok := range strings.Split(csv, ",") {
		s := PositionSource(strings.ToLower(strings.TrimSpace(tok)))
		switch s {
		case SourceScouting, SourceBio, SourceRoster:
			out = append(out, s)
		case "":
		default:
			return nil, fmt.Errorf("unknown position source %q", tok)
		}
	}
	if len(out) == 0 {
		return DefaultPositionPrecedence, nil
	}
	return out, nil
}

// ScoutingPosition reads the active filter of the similar-players panel and
// drops its trailing character ("Midfielders" -> "Midfielder").
func ScoutingPosition(doc *goquery.Document) string {
	sel := doc.Find(`div[id*="similar"] .filter div.current`).First()
	if sel.Length() == 0 {
		sel = doc.Find(`div.filter.switcher div.current`).First()
	}
	label := cleanText(sel.Text())
	if label == "" {
		return ""
	}
	_, size := utf8.DecodeLastRuneInString(label)
	return strings.TrimSpace(label[:len(label)-size])
}

// BioPosition parses the "Position:" field of the profile header.
// "FW-MF (AM-WM, right)" -> "FW", "DF" -> "DF".
func BioPosition(doc *goquery.Document) string {
	var field string
	doc.Find("#meta p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		txt := cleanText(p.Text())
		_, after, ok := strings.Cut(txt, "Position:")
		if !ok {
			return true
		}
		after, _, _ = strings.Cut(after, "▪")
		field = strings.TrimSpace(after)
		return false
	})
	return parseBioPosition(field)
}

func parseBioPosition(field string) string {
	if field == "" {
		return ""
	}
	if before, _, ok := strings.Cut(field, "("); ok {
		before, _, _ = strings.Cut(before, "-")
		return strings.TrimSpace(before)
	}
	if len(field) < 2 {
		return field
	}
	return field[:2]
}

// ResolvePosition walks the precedence list and returns the first source that
// yields a code. doc may be nil when only the roster value is wanted.
func ResolvePosition(doc *goquery.Document, rosterPos string, precedence []PositionSource) (string, PositionSource, error) {
	if len(precedence) == 0 {
		precedence = DefaultPositionPrecedence
	}
	for _, src := range precedence {
		var pos string
		switch src {
		case SourceScouting:
			if doc != nil {
				pos = ScoutingPosition(doc)
			}
		case SourceBio:
			if doc != nil {
				pos = BioPosition(doc)
			}
		case SourceRoster:
			pos = strings.TrimSpace(rosterPos)
		}
		if pos != "" {
			return pos, src, nil
		}
	}
	return "", "", ErrNoPosition
}

// Resolver fetches profile pages to resolve positions.
type Resolver struct {
	Fetcher    Fetcher
	Precedence []PositionSource
}

func (r *Resolver) needsPage() bool {
	prec := r.Precedence
	if len(prec) == 0 {
		prec = DefaultPositionPrecedence
	}
	for _, s := range prec {
		if s != SourceRoster {
			return true
		}
	}
	return false
}

// Resolve returns the position of p. The profile page is fetched only when
// a page-backed source precedes a usable roster value.
func (r *Resolver) Resolve(ctx context.Context, p PlayerProfile) (string, PositionSource, error) {
	prec := r.Precedence
	if len(prec) == 0 {
		prec = DefaultPositionPrecedence
	}
	if prec[0] == SourceRoster && p.Pos != "" {
		return p.Pos, SourceRoster, nil
	}
	if !r.needsPage() || p.URL == "" {
		return ResolvePosition(nil, p.Pos, prec)
	}
	html, err := r.Fetcher.Fetch(ctx, p.URL)
	if err != nil {
		return "", "", fmt.Errorf("fetch profile %s: %w", p.PlayerID, err)
	}
	doc, err := ParseDocument(html)
	if err != nil {
		return "", "", err
	}
	return ResolvePosition(doc, p.Pos, prec)
}
