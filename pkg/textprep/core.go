package textprep

import (
	"regexp"
	"strings"
)

// ElisionMarker separates the kept head and tail when the middle of a text
// is dropped.
const ElisionMarker = "\n\n[... content omitted ...]\n\n"

// coreHeadings are the regions ExtractCore keeps, in paper order.
var coreHeadings = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*(?:\d+[\.\s]*)?abstract\b.*$`),
	regexp.MustCompile(`(?im)^\s*(?:\d+[\.\s]*)?introduction\b.*$`),
	regexp.MustCompile(`(?im)^\s*(?:\d+[\.\s]*)?(?:related works?|background)\b.*$`),
	regexp.MustCompile(`(?im)^\s*(?:\d+[\.\s]*)?(?:methodolog(?:y|ies)|methods?|(?:proposed )?approach|model|framework)\b.*$`),
}

// anyHeading marks where a region ends: the next recognizable section head.
var anyHeading = regexp.MustCompile(`(?im)^\s*(?:\d+[\.\s]*)?(?:abstract|introduction|related works?|background|methodolog(?:y|ies)|methods?|(?:proposed )?approach|model|framework|experiments?|evaluation|results|discussion|conclusions?|references|acknowledg\w*|appendix)\b.*$`)

// ExtractCore pulls the title block, abstract, introduction, related work,
// and methodology regions out of a paper, capped at charLimit characters.
// When heading detection finds less than 30% of the input, the plain head of
// the input is returned instead.
func ExtractCore(content string, charLimit int) string {
	if charLimit <= 0 {
		charLimit = 30000
	}

	var regions []string
	matchedChars := 0

	// Title and authors: everything before the first recognized heading.
	if loc := anyHeading.FindStringIndex(content); loc != nil && loc[0] > 0 {
		head := content[:loc[0]]
		if len(head) > 2000 {
			head = head[:2000]
		}
		regions = append(regions, strings.TrimSpace(head))
		matchedChars += len(head)
	}

	for _, re := range coreHeadings {
		loc := re.FindStringIndex(content)
		if loc == nil {
			continue
		}
		rest := content[loc[1]:]
		end := len(rest)
		if next := anyHeading.FindStringIndex(rest); next != nil {
			end = next[0]
		}
		region := content[loc[0] : loc[1]+end]
		regions = append(regions, strings.TrimSpace(region))
		matchedChars += len(region)
	}

	if matchedChars < len(content)*30/100 {
		return truncateHead(content, charLimit)
	}
	return truncateHead(strings.Join(regions, "\n\n"), charLimit)
}

// SmartFilter is the last-resort cap applied before analysis begins. Content
// over 100k characters gets whitespace collapsed and page numbers dropped;
// if still over 50k, only a 20k head and 20k tail survive.
func SmartFilter(content string) string {
	if len(content) <= 100000 {
		return content
	}

	content = hSpaceRe.ReplaceAllString(content, " ")
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if pageNumberRe.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	content = strings.Join(kept, "\n")

	if len(content) > 50000 {
		runes := []rune(content)
		content = string(runes[:20000]) + ElisionMarker + string(runes[len(runes)-20000:])
	}
	return content
}

func truncateHead(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
