package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/status"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func connect(t *testing.T) (*mcp.ClientSession, bids.Layout) {
	t.Helper()
	root := t.TempDir()
	layout := bids.Layout{BIDS: filepath.Join(root, "bids"), Results: filepath.Join(root, "results")}
	s := bids.Subject{Participant: "sub-001", Session: "ses-01"}
	c, _ := bids.ParseContrast("acq-sag_T2w")
	key := bids.NewKey(s, c, bids.RawImage)
	touch(t, layout.Raw(key))
	touch(t, layout.Verified(key.As(bids.DiscLabels)))
	if _, err := bids.UpsertParticipant(layout.Participants(), bids.Participant{ParticipantID: "sub-001", SessionID: "ses-01", SourceID: "dir_20231010"}); err != nil {
		t.Fatal(err)
	}

	logger, _ := logtest.NewNullLogger()
	srv := New(&status.Collector{Layout: layout}, "test", logger)
	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(ctx, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ss.Close() })
	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs, layout
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func TestArtifactStatusTool(t *testing.T) {
	cs, _ := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "artifacts/status",
		Arguments: map[string]any{"participant": "sub-001", "session": "ses-01"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", text(t, res))
	}
	var got statusResult
	if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Artifacts) != 3 {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}
	if !got.Artifacts[0].Raw || got.Artifacts[0].Artifact != "raw_image" {
		t.Errorf("raw image = %+v", got.Artifacts[0])
	}
	if !got.Artifacts[2].Verified || got.Artifacts[2].Contrast != "acq-sag_T2w" {
		t.Errorf("disc labels = %+v", got.Artifacts[2])
	}
}

func TestArtifactStatusUnknownVisit(t *testing.T) {
	cs, _ := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "artifacts/status",
		Arguments: map[string]any{"participant": "sub-404", "session": "ses-01"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "no artifacts found") {
		t.Errorf("result = %+v", res)
	}
}

func TestParticipantsTool(t *testing.T) {
	cs, _ := connect(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "participants/list"})
	if err != nil {
		t.Fatal(err)
	}
	var got participantsResult
	if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	want := participantRow{ParticipantID: "sub-001", SessionID: "ses-01", SourceID: "dir_20231010", Age: "n/a", Sex: "n/a"}
	if len(got.Participants) != 1 || got.Participants[0] != want {
		t.Errorf("participants = %+v", got.Participants)
	}
}

func TestEmbeddedResources(t *testing.T) {
	cs, _ := connect(t)
	for uri, want := range map[string]string{
		"embedded:info":         "'sci' tool server",
		"embedded:participants": "sub-001\tses-01\tdir_20231010",
	} {
		res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: uri})
		if err != nil {
			t.Fatalf("ReadResource(%s) = %v", uri, err)
		}
		if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, want) {
			t.Errorf("%s = %+v", uri, res.Contents)
		}
	}
}
