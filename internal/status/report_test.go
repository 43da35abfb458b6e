package status

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/ledger"
)

type fakeMirror []string

func (f fakeMirror) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for _, n := range f {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeHistory map[string]ledger.Event

func (f fakeHistory) Latest(ctx context.Context, participant, session string) (map[string]ledger.Event, error) {
	out := map[string]ledger.Event{}
	for k, e := range f {
		if e.Participant == participant && e.Session == session {
			out[k] = e
		}
	}
	return out, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func newCollector(t *testing.T) (*Collector, bids.Key) {
	t.Helper()
	root := t.TempDir()
	layout := bids.Layout{BIDS: filepath.Join(root, "bids"), Results: filepath.Join(root, "results")}
	s := bids.Subject{Participant: "sub-001", Session: "ses-01"}
	t2, _ := bids.ParseContrast("T2w")
	key := bids.NewKey(s, t2, bids.RawImage)
	touch(t, layout.Raw(key))
	touch(t, layout.Working(key))
	touch(t, layout.Working(key.As(bids.SpinalCordSegmentation)))
	touch(t, layout.Verified(key.As(bids.SpinalCordSegmentation)))
	touch(t, layout.Working(key.As(bids.DiscLabels)))
	// not a visit folder
	touch(t, filepath.Join(layout.BIDS, "participants.tsv"))
	touch(t, layout.Raw(bids.NewKey(bids.Subject{Participant: "sub-002", Session: "ses-01"}, t2, bids.RawImage)))

	return &Collector{
		Layout: layout,
		Mirror: fakeMirror{"sub-001/ses-01/anat/sub-001_ses-01_T2w_label-SC_seg.nii.gz"},
		History: fakeHistory{"T2w/spinal_cord_segmentation": {
			Participant: "sub-001", Session: "ses-01", Outcome: "computed",
			RecordedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}},
	}, key
}

func TestCollect(t *testing.T) {
	c, key := newCollector(t)
	r, err := c.Collect(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Visits) != 2 {
		t.Fatalf("found %d visits, want 2", len(r.Visits))
	}
	v := r.Visits[0]
	if v.Subject != key.Subject || len(v.Entries) != 3 {
		t.Fatalf("visit = %+v", v)
	}
	raw, seg, discs := v.Entries[0], v.Entries[1], v.Entries[2]
	if !raw.Raw || !raw.Working || raw.Verified {
		t.Errorf("raw entry = %+v", raw)
	}
	if !seg.Working || !seg.Verified || !seg.Mirrored || seg.Last.Outcome != "computed" {
		t.Errorf("segmentation entry = %+v", seg)
	}
	if !discs.Working || discs.Verified || discs.Mirrored {
		t.Errorf("disc label entry = %+v", discs)
	}
	if got := r.Summary(); got != "2 visits, 1 of 4 derived artifacts verified" {
		t.Errorf("Summary() = %q", got)
	}

	one, err := c.Collect(context.Background(), "sub-002")
	if err != nil {
		t.Fatal(err)
	}
	if len(one.Visits) != 1 || one.Visits[0].Subject.Participant != "sub-002" {
		t.Errorf("Collect(sub-002) = %+v", one.Visits)
	}
}

func TestWriteTable(t *testing.T) {
	c, _ := newCollector(t)
	r, err := c.Collect(context.Background(), "sub-001")
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	r.WriteTable(&out)
	for _, want := range []string{"spinal_cord_segmentation", "disc_labels", "computed", "1 visits"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("table misses %q:\n%s", want, out.String())
		}
	}
}

func TestTUITree(t *testing.T) {
	c, key := newCollector(t)
	r, err := c.Collect(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	ui := NewTUI(r, c.Layout, "white")
	participants := ui.tree.GetRoot().GetChildren()
	if len(participants) != 2 {
		t.Fatalf("tree has %d participants, want 2", len(participants))
	}
	sessions := participants[0].GetChildren()
	if len(sessions) != 1 || sessions[0].GetText() != "ses-01" {
		t.Fatalf("sessions = %v", sessions)
	}
	contrasts := sessions[0].GetChildren()
	if len(contrasts) != 1 || len(contrasts[0].GetChildren()) != 3 {
		t.Fatalf("contrast node = %v", contrasts)
	}
	seg := r.Visits[0].Entries[1]
	text := ui.describe(seg)
	if !strings.Contains(text, c.Layout.Verified(key.As(bids.SpinalCordSegmentation))) || !strings.Contains(text, "computed") {
		t.Errorf("describe() =\n%s", text)
	}
	if color(seg) != color(r.Visits[0].Entries[0]) {
		t.Errorf("verified and present raw entries should share a color")
	}
}
