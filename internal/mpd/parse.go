package mpd

import (
	"encoding/xml"
	"fmt"
	"math"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
)

// xmlMPD mirrors the subset of the DASH schema this player understands:
// SegmentTemplate with either a SegmentTimeline or a flat duration
// attribute, ISO-8601 durations, and the default-namespace-stripped form
// produced by stripDefaultNamespace below.
type xmlMPD struct {
	XMLName                   xml.Name      `xml:"MPD"`
	Type                      string        `xml:"type,attr"`
	MediaPresentationDuration string        `xml:"mediaPresentationDuration,attr"`
	MaxSegmentDuration        string        `xml:"maxSegmentDuration,attr"`
	MinBufferTime             string        `xml:"minBufferTime,attr"`
	MinimumUpdatePeriod       string        `xml:"minimumUpdatePeriod,attr"`
	Periods                   []xmlPeriod   `xml:"Period"`
}

type xmlPeriod struct {
	Sets []xmlAdaptationSet `xml:"AdaptationSet"`
}

type xmlAdaptationSet struct {
	ID              string                `xml:"id,attr"`
	ContentType     string                `xml:"contentType,attr"`
	FrameRate       string                `xml:"frameRate,attr"`
	Par             string                `xml:"par,attr"`
	MaxWidth        int                   `xml:"maxWidth,attr"`
	MaxHeight       int                   `xml:"maxHeight,attr"`
	SegmentTemplate *xmlSegmentTemplate   `xml:"SegmentTemplate"`
	Representations []xmlRepresentation   `xml:"Representation"`
}

type xmlRepresentation struct {
	ID              string              `xml:"id,attr"`
	Bandwidth       int                 `xml:"bandwidth,attr"`
	MimeType        string              `xml:"mimeType,attr"`
	Codecs          string              `xml:"codecs,attr"`
	Width           int                 `xml:"width,attr"`
	Height          int                 `xml:"height,attr"`
	SegmentTemplate *xmlSegmentTemplate `xml:"SegmentTemplate"`
}

type xmlSegmentTemplate struct {
	Initialization string           `xml:"initialization,attr"`
	Media          string           `xml:"media,attr"`
	Timescale      int              `xml:"timescale,attr"`
	StartNumber    int              `xml:"startNumber,attr"`
	Duration       int64            `xml:"duration,attr"`
	Timeline       *xmlSegTimeline  `xml:"SegmentTimeline"`
}

type xmlSegTimeline struct {
	S []xmlS `xml:"S"`
}

type xmlS struct {
	T  *uint64 `xml:"t,attr"`
	D  uint64  `xml:"d,attr"`
	R  int     `xml:"r,attr"`
}

var defaultNamespaceRe = regexp.MustCompile(`xmlns="[^"]*"`)

// stripDefaultNamespace removes every default xmlns declaration so that
// unqualified xml struct tags match, per spec.md §4.1.
func stripDefaultNamespace(content []byte) []byte {
	return defaultNamespaceRe.ReplaceAll(content, nil)
}

var iso8601Re = regexp.MustCompile(`^PT(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// ParseISO8601Duration parses a "PT[nH][nM][nS]" duration string into
// seconds. An empty or unrecognized string yields zero, matching the
// original implementation's permissive behavior.
func ParseISO8601Duration(s string) float64 {
	if s == "" {
		return 0
	}
	m := iso8601Re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var h, min, sec float64
	if m[1] != "" {
		h, _ = strconv.ParseFloat(m[1], 64)
	}
	if m[2] != "" {
		min, _ = strconv.ParseFloat(m[2], 64)
	}
	if m[3] != "" {
		sec, _ = strconv.ParseFloat(m[3], 64)
	}
	return h*3600 + min*60 + sec
}

// numberPlaceholderRe rewrites "$Number%05d$" into "%05d" so it can be
// formatted directly with fmt.Sprintf, per spec.md §4.1.
var numberPlaceholderRe = regexp.MustCompile(`\$Number(%0?\d*d)\$`)

// Parse parses an MPD document fetched from url (used to resolve the base
// URL and relative segment paths).
func Parse(content []byte, url string) (*MPD, error) {
	stripped := stripDefaultNamespace(content)

	var raw xmlMPD
	if err := xml.Unmarshal(stripped, &raw); err != nil {
		return nil, apperr.NewMPDParseError(fmt.Errorf("unmarshal MPD XML: %w", err))
	}

	if raw.Type != "static" && raw.Type != "dynamic" {
		return nil, apperr.NewMPDParseError(fmt.Errorf("unsupported MPD type %q", raw.Type))
	}
	if len(raw.Periods) == 0 {
		return nil, apperr.NewMPDParseError(fmt.Errorf("MPD has no Period element"))
	}

	baseURL := path.Dir(url) + "/"
	if i := strings.LastIndex(url, "/"); i >= 0 {
		baseURL = url[:i+1]
	}
	mediaPresentationDuration := ParseISO8601Duration(raw.MediaPresentationDuration)

	out := &MPD{
		URL:                       url,
		Type:                      raw.Type,
		MediaPresentationDuration: mediaPresentationDuration,
		MaxSegmentDuration:        ParseISO8601Duration(raw.MaxSegmentDuration),
		MinBufferTime:             ParseISO8601Duration(raw.MinBufferTime),
		MinimumUpdatePeriod:       ParseISO8601Duration(raw.MinimumUpdatePeriod),
		AdaptationSets:            make(map[int]*AdaptationSet),
	}

	period := raw.Periods[0]
	for idx, asXML := range period.Sets {
		contentType := strings.ToLower(asXML.ContentType)
		if contentType == "" {
			contentType = "video"
		}
		if contentType != "video" && contentType != "audio" {
			continue
		}

		id := idx
		if asXML.ID != "" {
			if parsed, err := strconv.Atoi(asXML.ID); err == nil {
				id = parsed
			}
		}

		as := &AdaptationSet{
			ID:              id,
			ContentType:     contentType,
			FrameRate:       asXML.FrameRate,
			PAR:             asXML.Par,
			MaxWidth:        asXML.MaxWidth,
			MaxHeight:       asXML.MaxHeight,
			Representations: make(map[int]*Representation),
		}

		for _, repXML := range asXML.Representations {
			tmpl := repXML.SegmentTemplate
			if tmpl == nil {
				tmpl = asXML.SegmentTemplate
			}
			if tmpl == nil {
				return nil, apperr.NewMPDParseError(fmt.Errorf("representation %s: no SegmentTemplate", repXML.ID))
			}

			rep, err := parseRepresentation(repXML, id, baseURL, tmpl, mediaPresentationDuration)
			if err != nil {
				return nil, err
			}
			as.Representations[rep.ID] = rep
		}

		out.AdaptationSets[as.ID] = as
	}

	return out, nil
}

func parseRepresentation(repXML xmlRepresentation, asID int, baseURL string, tmpl *xmlSegmentTemplate, mpdDuration float64) (*Representation, error) {
	reprID, err := strconv.Atoi(repXML.ID)
	if err != nil {
		return nil, apperr.NewMPDParseError(fmt.Errorf("representation id %q is not numeric: %w", repXML.ID, err))
	}

	initialization := substitutePlaceholders(tmpl.Initialization, repXML.ID, 0)
	initURL := baseURL + initialization

	rep := &Representation{
		ID:             reprID,
		Bandwidth:      repXML.Bandwidth,
		MimeType:       repXML.MimeType,
		Codecs:         repXML.Codecs,
		Width:          repXML.Width,
		Height:         repXML.Height,
		Initialization: initURL,
		Segments:       make(map[int]*Segment),
	}

	if tmpl.Timescale <= 0 {
		return nil, apperr.NewMPDParseError(fmt.Errorf("representation %d: non-positive timescale", reprID))
	}
	timescale := float64(tmpl.Timescale)

	if tmpl.Timeline != nil {
		number := tmpl.StartNumber
		if number == 0 {
			number = 1
		}
		var startTime uint64
		for _, s := range tmpl.Timeline.S {
			if s.T != nil {
				startTime = *s.T
			}
			repeats := s.R + 1
			for i := 0; i < repeats; i++ {
				url := baseURL + substitutePlaceholders(tmpl.Media, repXML.ID, number)
				rep.Segments[number] = &Segment{
					URL:       url,
					InitURL:   initURL,
					Duration:  float64(s.D) / timescale,
					StartTime: float64(startTime) / timescale,
					ASID:      asID,
					ReprID:    reprID,
				}
				number++
				startTime += s.D
			}
		}
	} else {
		if tmpl.Duration <= 0 {
			return nil, apperr.NewMPDParseError(fmt.Errorf("representation %d: SegmentTemplate has neither SegmentTimeline nor duration", reprID))
		}
		segDuration := float64(tmpl.Duration) / timescale
		numSegments := int(math.Ceil((mpdDuration * timescale) / float64(tmpl.Duration)))
		number := tmpl.StartNumber
		if number == 0 {
			number = 1
		}
		startTime := 0.0
		for i := 0; i < numSegments; i++ {
			url := baseURL + substitutePlaceholders(tmpl.Media, repXML.ID, number)
			rep.Segments[number] = &Segment{
				URL:       url,
				InitURL:   initURL,
				Duration:  segDuration,
				StartTime: startTime,
				ASID:      asID,
				ReprID:    reprID,
			}
			number++
			startTime += segDuration
		}
	}

	return rep, nil
}

// substitutePlaceholders resolves $RepresentationID$ and $Number$ (with an
// optional printf width, e.g. $Number%05d$) against a single segment number.
func substitutePlaceholders(template, representationID string, number int) string {
	out := strings.ReplaceAll(template, "$RepresentationID$", representationID)

	if numberPlaceholderRe.MatchString(out) {
		out = numberPlaceholderRe.ReplaceAllStringFunc(out, func(m string) string {
			format := numberPlaceholderRe.FindStringSubmatch(m)[1]
			return fmt.Sprintf(format, number)
		})
		return out
	}

	return strings.ReplaceAll(out, "$Number$", strconv.Itoa(number))
}
