package subline

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alnah/go-bisub/internal/issue"
	"github.com/alnah/go-bisub/internal/lang"
	"github.com/alnah/go-bisub/internal/timefmt"
)

// fenceRe matches one fenced code block, optionally language-tagged.
// Unclosed fences deliberately do not match; their content is then swept by
// the bare-tag scan instead.
var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)```")

// intRe finds the first integer inside a number tag's value.
var intRe = regexp.MustCompile(`\d+`)

// tagPattern holds the compiled matchers for one tag name. Matching is
// case-insensitive and allows stray whitespace inside the angle brackets.
type tagPattern struct {
	name      string
	open      *regexp.Regexp
	closeFind *regexp.Regexp // closer anywhere
	closeAt   *regexp.Regexp // closer at the start of the remainder
}

func compileTag(name string) tagPattern {
	quoted := regexp.QuoteMeta(name)
	return tagPattern{
		name:      name,
		open:      regexp.MustCompile(`(?i)<\s*` + quoted + `\s*>`),
		closeFind: regexp.MustCompile(`(?i)</\s*` + quoted + `\s*>`),
		closeAt:   regexp.MustCompile(`(?i)^</\s*` + quoted + `\s*>`),
	}
}

// Tag aliases, canonical name first. Models drift toward the shorter forms.
var (
	sublineTag = compileTag("subline")
	numberTags = []tagPattern{compileTag("original_number"), compileTag("number"), compileTag("id")}
	lineTags   = []tagPattern{compileTag("original_line"), compileTag("line")}
	timingTags = []tagPattern{compileTag("original_timing"), compileTag("timing")}

	englishTags = []tagPattern{
		compileTag("better_english_translation"),
		compileTag("english_translation"),
		compileTag("english"),
	}
)

// parser carries per-response state.
type parser struct {
	response   string
	targetKey  string
	targetTags []tagPattern
	part       int
	c          *issue.Collector
}

// rawBlock is one candidate subline span before field extraction. Offsets
// are byte positions in the full response, used for line numbers in issues.
type rawBlock struct {
	body       string
	offset     int // position of the opening tag
	bodyStart  int // position of the body
	terminated bool
}

// Parse extracts subtitle entries from one model response. It never fails:
// anything irrecoverable becomes an issue on c and parsing moves on.
// Entries are deduplicated by id (first occurrence wins) and returned in
// numeric id order.
func Parse(response string, target lang.Language, part int, c *issue.Collector) []Entry {
	p := &parser{
		response:  response,
		targetKey: target.Tag(),
		targetTags: []tagPattern{
			compileTag(target.Tag() + "_translation"),
			compileTag(target.Tag()),
		},
		part: part,
		c:    c,
	}

	var entries []Entry

	// Fenced blocks first; their spans are excluded from the bare scan.
	fences := fenceRe.FindAllStringSubmatchIndex(response, -1)
	fenceSpans := make([][2]int, 0, len(fences))
	for _, m := range fences {
		fenceSpans = append(fenceSpans, [2]int{m[0], m[1]})
		inner := response[m[2]:m[3]]
		blocks := p.sublineBlocks(inner, m[2])
		if len(blocks) == 0 {
			p.warn(issue.MarkdownBlockEmptyOrInvalid, "", m[0],
				"fenced block contains no subline entries", inner)
			continue
		}
		for _, b := range blocks {
			if e, ok := p.parseBlock(b, SourceFencedBlock); ok {
				entries = append(entries, e)
			}
		}
	}

	// Bare blocks that escaped the fence.
	for _, b := range p.sublineBlocks(response, 0) {
		if insideAny(fenceSpans, b.offset) {
			continue
		}
		if e, ok := p.parseBlock(b, SourceBareTag); ok {
			entries = append(entries, e)
		}
	}

	// Last resort: no subline structure at all, but numbered tags exist.
	if len(entries) == 0 && !sublineTag.open.MatchString(response) {
		entries = p.fallbackEntries()
	}

	return p.finish(entries)
}

// sublineBlocks scans text for <subline> blocks. An unterminated block runs
// to the next opener or to the end of text and is flagged when parsed.
func (p *parser) sublineBlocks(text string, base int) []rawBlock {
	var blocks []rawBlock
	pos := 0
	for {
		m := sublineTag.open.FindStringIndex(text[pos:])
		if m == nil {
			break
		}
		openStart, openEnd := pos+m[0], pos+m[1]
		rest := text[openEnd:]

		closeLoc := sublineTag.closeFind.FindStringIndex(rest)
		nextLoc := sublineTag.open.FindStringIndex(rest)

		b := rawBlock{offset: base + openStart, bodyStart: base + openEnd, terminated: true}
		switch {
		case closeLoc != nil && (nextLoc == nil || closeLoc[0] < nextLoc[0]):
			b.body = rest[:closeLoc[0]]
			pos = openEnd + closeLoc[1]
		case nextLoc != nil:
			b.body = rest[:nextLoc[0]]
			b.terminated = false
			pos = openEnd + nextLoc[0]
		default:
			b.body = rest
			b.terminated = false
			pos = len(text)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// parseBlock extracts one entry from a subline body. Blocks without a
// usable id are dropped with an error issue; everything else degrades to
// warnings.
func (p *parser) parseBlock(b rawBlock, source SourceFormat) (Entry, bool) {
	if !b.terminated {
		p.warn(issue.MalformedTag, "", b.offset,
			"subline block is not closed; took content up to the next block", b.body)
	}

	idRaw, idFound := p.extractFirst(b, "", numberTags)
	id, idOK := normalizeID(idRaw)
	if !idFound || !idOK {
		p.errorIssue(issue.NumberNotFound, "", b.offset,
			"no subtitle number in block; entry dropped", b.body)
		return Entry{}, false
	}

	e := Entry{
		OriginalID:   id,
		SourceChunk:  p.part,
		SourceFormat: source,
		Translations: map[string]*string{},
	}

	if line, ok := p.extractFirst(b, id, lineTags); ok {
		e.OriginalLine = line
	}

	if timing, ok := p.extractFirst(b, id, timingTags); ok {
		e.Timing = timing
		start, end, err := timefmt.SplitRange(timing)
		switch {
		case err != nil:
			p.warn(issue.InvalidTimingFormat, id, b.offset,
				fmt.Sprintf("unparseable timing %q; entry kept without times", timing), b.body)
		case end <= start:
			p.warn(issue.InvalidTimingValue, id, b.offset,
				fmt.Sprintf("timing %q ends before it starts; entry kept without times", timing), b.body)
		default:
			e.StartSec, e.EndSec = &start, &end
		}
	}

	english, englishOK := p.extractFirst(b, id, englishTags)
	targetVal, targetOK := p.extractFirst(b, id, p.targetTags)
	e.Translations[EnglishKey] = nil
	e.Translations[p.targetKey] = nil
	if englishOK {
		e.Translations[EnglishKey] = &english
	}
	if targetOK {
		e.Translations[p.targetKey] = &targetVal
	}

	switch {
	case !englishOK && !targetOK:
		p.warn(issue.TextNotFound, id, b.offset, "block carries no translation text", b.body)
	case !targetOK:
		p.warn(issue.MissingTag, id, b.offset, "no target language translation in block", b.body)
	case !englishOK:
		p.warn(issue.MissingTag, id, b.offset, "no english translation in block", b.body)
	}

	return e, true
}

// extractFirst returns the value of the first alias present in the block.
// The value runs from the opening tag to the next "</" whatever it closes;
// a mismatched or missing closer is reported but the content is kept.
func (p *parser) extractFirst(b rawBlock, id string, tags []tagPattern) (string, bool) {
	for _, tag := range tags {
		loc := tag.open.FindStringIndex(b.body)
		if loc == nil {
			continue
		}
		rest := b.body[loc[1]:]

		idx := strings.Index(rest, "</")
		if idx < 0 {
			p.warn(issue.MalformedTag, id, b.bodyStart+loc[0],
				fmt.Sprintf("<%s> has no closing tag; took the rest of the block", tag.name), rest)
			return strings.TrimSpace(rest), true
		}
		value := rest[:idx]
		if !tag.closeAt.MatchString(rest[idx:]) {
			p.warn(issue.MalformedTag, id, b.bodyStart+loc[0],
				fmt.Sprintf("<%s> closed by a different tag; value kept", tag.name), rest[idx:])
		}
		return strings.TrimSpace(value), true
	}
	return "", false
}

// fallbackEntries recovers entries from bare numbered tags when the
// response has no subline structure at all. Each pseudo-block runs from one
// number tag to the next.
func (p *parser) fallbackEntries() []Entry {
	numberTag := numberTags[0]
	locs := numberTag.open.FindAllStringIndex(p.response, -1)
	if len(locs) == 0 {
		return nil
	}
	p.warn(issue.AmbiguousStructure, "", locs[0][0],
		"no subline blocks found; recovering entries from bare numbered tags", p.response)

	var entries []Entry
	for i, loc := range locs {
		end := len(p.response)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		b := rawBlock{
			body:       p.response[loc[0]:end],
			offset:     loc[0],
			bodyStart:  loc[0],
			terminated: true,
		}
		if e, ok := p.parseBlock(b, SourceRegexFallback); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// finish deduplicates by id and sorts numerically.
func (p *parser) finish(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.OriginalID] {
			p.warn(issue.DuplicateID, e.OriginalID, -1,
				"duplicate subtitle id; first occurrence kept", "")
			continue
		}
		seen[e.OriginalID] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IDNum() < out[j].IDNum() })
	return out
}

func (p *parser) warn(kind issue.Kind, id string, offset int, msg, context string) {
	p.add(issue.SeverityWarning, kind, id, offset, msg, context)
}

func (p *parser) errorIssue(kind issue.Kind, id string, offset int, msg, context string) {
	p.add(issue.SeverityError, kind, id, offset, msg, context)
}

func (p *parser) add(sev issue.Severity, kind issue.Kind, id string, offset int, msg, context string) {
	iss := issue.Issue{
		Kind:       kind,
		Severity:   sev,
		Message:    msg,
		Part:       p.part,
		SubtitleID: id,
	}
	if offset >= 0 && offset <= len(p.response) {
		iss.Line = 1 + strings.Count(p.response[:offset], "\n")
	}
	if context != "" {
		iss.Context = issue.Snippet(context)
	}
	p.c.Add(iss)
}

// normalizeID extracts the first integer from a number tag's value.
func normalizeID(s string) (string, bool) {
	m := intRe.FindString(s)
	if m == "" {
		return "", false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return "", false
	}
	return strconv.Itoa(n), true
}

// insideAny reports whether pos falls inside one of the spans.
func insideAny(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}
