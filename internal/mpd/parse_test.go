package mpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timelineMPD = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT30S" maxSegmentDuration="PT4S" minBufferTime="PT2S">
  <Period>
    <AdaptationSet contentType="video">
      <Representation id="0" bandwidth="500000" mimeType="video/mp4" width="640" height="360">
        <SegmentTemplate initialization="init-$RepresentationID$.m4s" media="chunk-$RepresentationID$-$Number%05d$.m4s" timescale="1000" startNumber="1">
          <SegmentTimeline>
            <S t="0" d="4000" r="1"/>
            <S d="2000"/>
          </SegmentTimeline>
        </SegmentTemplate>
      </Representation>
      <Representation id="1" bandwidth="1000000" mimeType="video/mp4" width="1280" height="720">
        <SegmentTemplate initialization="init-$RepresentationID$.m4s" media="chunk-$RepresentationID$-$Number%05d$.m4s" timescale="1000" startNumber="1">
          <SegmentTimeline>
            <S t="0" d="4000" r="1"/>
            <S d="2000"/>
          </SegmentTimeline>
        </SegmentTemplate>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

const flatDurationMPD = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10S">
  <Period>
    <AdaptationSet contentType="audio">
      <Representation id="0" bandwidth="128000" mimeType="audio/mp4">
        <SegmentTemplate initialization="init.m4s" media="chunk-$Number$.m4s" timescale="1" startNumber="1" duration="2"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestParseSegmentTimeline(t *testing.T) {
	m, err := Parse([]byte(timelineMPD), "http://example.com/stream/manifest.mpd")
	require.NoError(t, err)

	assert.False(t, m.IsDynamic())
	assert.InDelta(t, 30, m.MediaPresentationDuration, 0.001)

	as, ok := m.AdaptationSets[0]
	require.True(t, ok)
	assert.Equal(t, "video", as.ContentType)
	require.Len(t, as.Representations, 2)

	rep := as.Representations[0]
	require.Len(t, rep.Segments, 3)

	seg1 := rep.Segments[1]
	assert.Equal(t, "http://example.com/stream/chunk-0-00001.m4s", seg1.URL)
	assert.InDelta(t, 0, seg1.StartTime, 0.001)
	assert.InDelta(t, 4, seg1.Duration, 0.001)

	seg2 := rep.Segments[2]
	assert.InDelta(t, 4, seg2.StartTime, 0.001)
	assert.InDelta(t, 4, seg2.Duration, 0.001)

	seg3 := rep.Segments[3]
	assert.InDelta(t, 8, seg3.StartTime, 0.001)
	assert.InDelta(t, 2, seg3.Duration, 0.001)

	first, last, ok := rep.SegmentIDRange()
	require.True(t, ok)
	assert.Equal(t, 1, first)
	assert.Equal(t, 3, last)
}

func TestParseFlatDurationSegmentCount(t *testing.T) {
	m, err := Parse([]byte(flatDurationMPD), "http://example.com/stream/manifest.mpd")
	require.NoError(t, err)

	as := m.AdaptationSets[0]
	rep := as.Representations[0]

	// ceil(10 * 1 / 2) == 5 segments, GPAC-style flat-duration numbering.
	assert.Len(t, rep.Segments, 5)
	assert.Equal(t, "http://example.com/stream/chunk-1.m4s", rep.Segments[1].URL)
	assert.InDelta(t, 2, rep.Segments[1].Duration, 0.001)
	assert.InDelta(t, 8, rep.Segments[5].StartTime, 0.001)
}

func TestParseRejectsMissingSegmentTemplate(t *testing.T) {
	const bad = `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT10S">
  <Period>
    <AdaptationSet contentType="video">
      <Representation id="0" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`
	_, err := Parse([]byte(bad), "http://example.com/manifest.mpd")
	require.Error(t, err)
}

func TestParseISO8601Duration(t *testing.T) {
	cases := map[string]float64{
		"PT30S":     30,
		"PT1M30S":   90,
		"PT1H":      3600,
		"PT1H2M3S":  3723,
		"":          0,
		"bogus":     0,
	}
	for in, want := range cases {
		assert.InDelta(t, want, ParseISO8601Duration(in), 0.001, in)
	}
}

func TestSubstitutePlaceholdersNoSpuriousFormatVerbs(t *testing.T) {
	out := substitutePlaceholders("chunk-$RepresentationID$-$Number%05d$.m4s", "7", 42)
	assert.Equal(t, "chunk-7-00042.m4s", out)

	out = substitutePlaceholders("chunk-$Number$.m4s", "7", 42)
	assert.Equal(t, "chunk-42.m4s", out)
}
