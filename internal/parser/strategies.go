package parser

import (
	"github.com/PuerkitoBio/goquery"

	"medicrawl/internal/types"
)

// A phaseStrategy inspects the main content container and returns whatever
// fields it could extract, empty when the layout it targets is absent.
// Each extraction phase holds an ordered list of these; they are stateless
// and independently testable, and the first one to yield data wins.
type phaseStrategy func(container *goquery.Selection) map[types.Field]string

// --- Profile phase: label/value attribute pairs ---

var profileStrategies = []phaseStrategy{
	profileFromWrap,
	profileFromTmp,
	profileFromAlternates,
}

// profileFromWrap handles the grouped definition-list layout
// (div.profile_wrap containing one or more <dl> blocks).
func profileFromWrap(container *goquery.Selection) map[types.Field]string {
	wrap := container.Find("div.profile_wrap").First()
	if wrap.Length() == 0 {
		return nil
	}
	out := map[types.Field]string{}
	wrap.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		collectPairs(dl.Find("dt"), dl.Find("dd"), out)
	})
	return out
}

// profileFromTmp handles the flat definition-list layout (div.tmp_profile
// with parallel dt/dd children).
func profileFromTmp(container *goquery.Selection) map[types.Field]string {
	profile := container.Find("div.tmp_profile").First()
	if profile.Length() == 0 {
		return nil
	}
	out := map[types.Field]string{}
	collectPairs(profile.Find("dt"), profile.Find("dd"), out)
	return out
}

// profileFromAlternates handles older revisions where profile data lives
// in a generic container with alternating dt/dd elements.
func profileFromAlternates(container *goquery.Selection) map[types.Field]string {
	out := map[types.Field]string{}
	for _, sel := range []string{"div.profile_info", "div#profile_section"} {
		alt := container.Find(sel).First()
		if alt.Length() == 0 {
			continue
		}
		items := alt.Find("dt, dd")
		for i := 0; i+1 < items.Length(); i += 2 {
			label := CleanText(items.Eq(i).Text())
			value := CleanText(items.Eq(i + 1).Text())
			if field, ok := matchLabel(profileLabels, label); ok && value != "" {
				if _, exists := out[field]; !exists {
					out[field] = value
				}
			}
		}
	}
	return out
}

// collectPairs zips parallel dt/dd selections into the output map,
// matching labels by substring containment. First matching label wins.
func collectPairs(dts, dds *goquery.Selection, out map[types.Field]string) {
	n := dts.Length()
	if dds.Length() < n {
		n = dds.Length()
	}
	for i := 0; i < n; i++ {
		label := CleanText(dts.Eq(i).Text())
		value := CleanText(dds.Eq(i).Text())
		if field, ok := matchLabel(profileLabels, label); ok && value != "" {
			if _, exists := out[field]; !exists {
				out[field] = value
			}
		}
	}
}

// --- Section phase: free-text sections keyed by heading ---

var sectionStrategies = []phaseStrategy{
	sectionsFromDiv,
	sectionsFromAlternates,
}

// contentSelectors is the per-section chain for locating section body text.
var contentSelectors = []string{"div.content", "p.txt", "div.txt", "p.content", "div.desc"}

// sectionsFromDiv handles the standard layout: div.section blocks with an
// h3 heading and one of several content wrappers.
func sectionsFromDiv(container *goquery.Selection) map[types.Field]string {
	out := map[types.Field]string{}
	container.Find("div.section").Each(func(_ int, section *goquery.Selection) {
		heading := CleanText(section.Find("h3").First().Text())
		if heading == "" {
			return
		}
		field, ok := matchLabel(sectionHeadings, heading)
		if !ok {
			return
		}
		if _, exists := out[field]; exists {
			return
		}
		if body := firstContent(section); body != "" {
			out[field] = body
		}
	})
	return out
}

// sectionsFromAlternates tries the superseded section layouts, each with
// its own heading level.
func sectionsFromAlternates(container *goquery.Selection) map[types.Field]string {
	layouts := []struct {
		selector string
		heading  string
	}{
		{"div.section_content", "h4"},
		{"div.detail_section", "h3"},
		{"div.medicine_info", "h2"},
	}

	out := map[types.Field]string{}
	for _, layout := range layouts {
		container.Find(layout.selector).Each(func(_ int, section *goquery.Selection) {
			heading := CleanText(section.Find(layout.heading).First().Text())
			if heading == "" {
				return
			}
			field, ok := matchLabel(sectionHeadings, heading)
			if !ok {
				return
			}
			if _, exists := out[field]; exists {
				return
			}
			if body := firstContent(section); body != "" {
				out[field] = body
			}
		})
	}
	return out
}

// firstContent returns the section body from the first matching content
// selector, empty if none matched.
func firstContent(section *goquery.Selection) string {
	for _, sel := range contentSelectors {
		if body := section.Find(sel).First(); body.Length() > 0 {
			if text := CleanText(body.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// --- Image phase ---

var imageStrategies = []phaseStrategy{
	imageFromTyped,
	imageFromBox,
	imageFromAnyInContainer,
}

// imageFromTyped handles the typed image class used by current revisions.
func imageFromTyped(container *goquery.Selection) map[types.Field]string {
	return imageSrc(container.Find("img.type_img").First())
}

// imageFromBox handles wrapping-div layouts from older revisions.
func imageFromBox(container *goquery.Selection) map[types.Field]string {
	for _, sel := range []string{"div.img_box img", "img.medicine_img", "div#medicine_image_section img"} {
		if out := imageSrc(container.Find(sel).First()); out != nil {
			return out
		}
	}
	return nil
}

// imageFromAnyInContainer is the last resort: any image inside the
// content container.
func imageFromAnyInContainer(container *goquery.Selection) map[types.Field]string {
	return imageSrc(container.Find("img").First())
}

func imageSrc(img *goquery.Selection) map[types.Field]string {
	if img.Length() == 0 {
		return nil
	}
	src, ok := img.Attr("src")
	if !ok || src == "" {
		return nil
	}
	return map[types.Field]string{types.FieldImageURL: src}
}
