package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/abr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/buffer"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/model"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelectRange(t *testing.T) {
	cases := []struct {
		in        string
		lo, hi    int
		wantAll   bool
	}{
		{"", 0, 0, true},
		{"-", 0, 0, true},
		{"0-1", 0, 1, false},
		{"2-", 2, int(^uint(0) >> 1), false},
		{"-2", 0, 2, false},
		{"3", 3, 3, false},
	}
	for _, c := range cases {
		lo, hi, all := parseSelectRange(c.in)
		assert.Equal(t, c.wantAll, all, c.in)
		if !all {
			assert.Equal(t, c.lo, lo, c.in)
			assert.Equal(t, c.hi, hi, c.in)
		}
	}
}

func repWithRange(id, first, last int) *mpd.Representation {
	rep := &mpd.Representation{ID: id, Segments: make(map[int]*mpd.Segment)}
	for i := first; i <= last; i++ {
		rep.Segments[i] = &mpd.Segment{ReprID: id}
	}
	return rep
}

func TestSegmentRangeAcross(t *testing.T) {
	sets := map[int]*mpd.AdaptationSet{
		0: {ID: 0, Representations: map[int]*mpd.Representation{0: repWithRange(0, 1, 5)}},
		1: {ID: 1, Representations: map[int]*mpd.Representation{0: repWithRange(0, 3, 10)}},
	}
	first, last, ok := segmentRangeAcross(sets)
	require.True(t, ok)
	assert.Equal(t, 1, first)
	assert.Equal(t, 10, last)
}

func TestSegmentRangeAcrossEmpty(t *testing.T) {
	_, _, ok := segmentRangeAcross(map[int]*mpd.AdaptationSet{})
	assert.False(t, ok)
}

// fakeTransport completes every download synchronously and successfully.
type fakeTransport struct {
	transport.Broadcaster
}

func (f *fakeTransport) Download(ctx context.Context, req transport.Request) error {
	f.Start(req.URL)
	f.Bytes(10, req.URL, 10, 10, nil)
	f.End(10, req.URL)
	return nil
}

func (f *fakeTransport) WaitComplete(ctx context.Context, url string) (transport.Result, error) {
	return transport.Result{Outcome: transport.OutcomeComplete, Bytes: make([]byte, 10), TotalSize: 10}, nil
}

func (f *fakeTransport) Stop(url string) error    { return nil }
func (f *fakeTransport) DropURL(url string) error { return nil }
func (f *fakeTransport) Close() error             { return nil }

type fakeBandwidth struct{}

func (fakeBandwidth) SegmentGroupComplete() {}
func (fakeBandwidth) Stats(url string) (model.DownloadStats, bool) {
	return model.DownloadStats{TotalBytes: 10, ReceivedBytes: 10}, true
}
func (fakeBandwidth) BandwidthEstimate() float64 { return 1_000_000 }

func oneSegmentMPD() *mpd.MPD {
	rep := &mpd.Representation{ID: 0, Bandwidth: 500_000, Initialization: "http://x/init.m4s", Segments: map[int]*mpd.Segment{
		1: {URL: "http://x/seg1.m4s", InitURL: "http://x/init.m4s", Duration: 2, StartTime: 0, ASID: 0, ReprID: 0},
	}}
	as := &mpd.AdaptationSet{ID: 0, ContentType: "video", Representations: map[int]*mpd.Representation{0: rep}}
	return &mpd.MPD{Type: "static", AdaptationSets: map[int]*mpd.AdaptationSet{0: as}}
}

type staticProvider struct{ m *mpd.MPD }

func (p *staticProvider) Current() *mpd.MPD { return p.m }
func (p *staticProvider) Refresh(ctx context.Context) (*mpd.MPD, error) { return p.m, nil }

func TestRunEndsAtSegmentRangeExhaustion(t *testing.T) {
	m := oneSegmentMPD()
	prov := &staticProvider{m: m}
	bufMgr := buffer.New(nil)
	tm := &fakeTransport{}
	bwRec := fakeBandwidth{}
	abrCtl := abr.Build(abr.KindFixed, abr.Deps{FixedQuality: 0})

	s := New(Config{MaxBufferDuration: 100, UpdateInterval: 0.001, TimeFactor: 0}, prov, abrCtl, tm, bufMgr, bwRec, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsEnd())
	assert.InDelta(t, 2, bufMgr.Level(), 0.001)
}
