// Package mcpserver gives MCP clients read access to the artifact store: the
// state of every artifact of a visit and the participant registry.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/status"
)

const info = "This is the 'sci' tool server. 'sci' converts spinal cord MRI to BIDS, segments the spinal cord, labels the vertebral discs and keeps the human verified results for reuse."

// Server answers MCP requests from a status collector.
type Server struct {
	collector *status.Collector
	server    *mcp.Server
	log       log.FieldLogger
}

// New registers the tools and resources.
func New(c *status.Collector, version string, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Server{collector: c, log: logger}
	s.server = mcp.NewServer(&mcp.Implementation{Name: "sci", Version: version}, &mcp.ServerOptions{
		Instructions: "Read only access to the spinal cord processing results. Use artifacts/status to see which artifacts of a visit are verified.",
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "artifacts/status",
		Description: "Report the raw image, spinal cord segmentation and disc labels of one visit: present in the BIDS folder, in the working folder, in the verified store and in the mirror.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"participant": {Type: "string", Description: "participant id, e.g. sub-001", Pattern: "^sub-[A-Za-z0-9]+$"},
				"session":     {Type: "string", Description: "session id, e.g. ses-01", Pattern: "^ses-[A-Za-z0-9]+$"},
			},
			Required: []string{"participant", "session"},
		},
	}, s.artifactStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "participants/list",
		Description: "List the rows of participants.tsv.",
	}, s.listParticipants)

	s.server.AddResource(&mcp.Resource{
		Name:     "info",
		MIMEType: "text/plain",
		URI:      "embedded:info",
	}, s.embeddedResource)
	s.server.AddResource(&mcp.Resource{
		Name:     "participants",
		MIMEType: "text/tab-separated-values",
		URI:      "embedded:participants",
	}, s.embeddedResource)
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcp.Server { return s.server }

// Serve answers on stdin/stdout, or on addr with the streamable HTTP
// transport when addr is set.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		s.log.Info("Starting MCP server using stdin/stdout")
		t := &mcp.LoggingTransport{Transport: &mcp.StdioTransport{}, Writer: os.Stderr}
		return s.server.Run(ctx, t)
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	s.log.Infof("MCP handler listening at %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusArgs struct {
	Participant string `json:"participant"`
	Session     string `json:"session"`
}

// ArtifactState is the state of one artifact of a visit.
type ArtifactState struct {
	Contrast    string `json:"contrast" jsonschema:"the BIDS contrast label"`
	Artifact    string `json:"artifact" jsonschema:"raw_image, spinal_cord_segmentation or disc_labels"`
	Raw         bool   `json:"raw" jsonschema:"the converted image is in the BIDS folder"`
	Working     bool   `json:"working" jsonschema:"a working copy exists"`
	Verified    bool   `json:"verified" jsonschema:"a human verified copy exists"`
	Mirrored    bool   `json:"mirrored" jsonschema:"the verified copy is in the remote mirror"`
	LastOutcome string `json:"last_outcome,omitempty" jsonschema:"reused, computed or corrected"`
	RecordedAt  string `json:"recorded_at,omitempty" jsonschema:"time of the last resolution"`
}

type statusResult struct {
	Participant string          `json:"participant"`
	Session     string          `json:"session"`
	Artifacts   []ArtifactState `json:"artifacts"`
}

func (s *Server) artifactStatus(ctx context.Context, req *mcp.CallToolRequest, args statusArgs) (*mcp.CallToolResult, *statusResult, error) {
	subject := bids.Subject{Participant: args.Participant, Session: args.Session}
	if err := subject.Validate(); err != nil {
		return nil, nil, err
	}
	v, err := s.collector.Visit(ctx, subject)
	if err != nil {
		return nil, nil, err
	}
	if len(v.Entries) == 0 {
		return nil, nil, fmt.Errorf("no artifacts found for %s", subject)
	}
	res := &statusResult{Participant: subject.Participant, Session: subject.Session, Artifacts: []ArtifactState{}}
	for _, e := range v.Entries {
		a := ArtifactState{
			Contrast: e.Key.Contrast.String(),
			Artifact: e.Key.Kind.String(),
			Raw:      e.Raw,
			Working:  e.Working,
			Verified: e.Verified,
			Mirrored: e.Mirrored,
		}
		if e.Last.Outcome != "" {
			a.LastOutcome = e.Last.Outcome
			a.RecordedAt = e.Last.RecordedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		res.Artifacts = append(res.Artifacts, a)
	}
	return nil, res, nil
}

type participantRow struct {
	ParticipantID string `json:"participant_id"`
	SessionID     string `json:"ses_id"`
	SourceID      string `json:"source_id"`
	Age           string `json:"age"`
	Sex           string `json:"sex"`
}

type participantsResult struct {
	Participants []participantRow `json:"participants"`
}

func (s *Server) listParticipants(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, *participantsResult, error) {
	rows, err := bids.ReadParticipants(s.collector.Layout.Participants())
	if err != nil {
		return nil, nil, err
	}
	res := &participantsResult{Participants: []participantRow{}}
	for _, p := range rows {
		res.Participants = append(res.Participants, participantRow(p))
	}
	return nil, res, nil
}

func (s *Server) embeddedResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	u, err := url.Parse(req.Params.URI)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "embedded" {
		return nil, fmt.Errorf("wrong scheme: %q", u.Scheme)
	}
	var text, mime string
	switch u.Opaque {
	case "info":
		text, mime = info, "text/plain"
	case "participants":
		rows, err := bids.ReadParticipants(s.collector.Layout.Participants())
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		b.WriteString("participant_id\tses_id\tsource_id\tage\tsex\n")
		for _, p := range rows {
			fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\n", p.ParticipantID, p.SessionID, p.SourceID, p.Age, p.Sex)
		}
		text, mime = b.String(), "text/tab-separated-values"
	default:
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, MIMEType: mime, Text: text},
		},
	}, nil
}
