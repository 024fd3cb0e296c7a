package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

const roadmapURI = "milestone://roadmap"

// SchemaVersion is the version of the tool schemas (semver).
const SchemaVersion = "1.0.0"

type roadmapResource struct {
	SchemaVersion string           `json:"schema_version"`
	ServerVersion string           `json:"server_version"`
	Revision      uint64           `json:"revision"`
	State         string           `json:"state"`
	Stats         roadmap.Stats    `json:"stats"`
	Tasks         roadmap.Snapshot `json:"tasks"`
}

func (s *Server) registerRoadmapResource() {
	s.mcpServer.Resource(roadmapURI).
		Name(roadmapURI).
		Description("The current roadmap snapshot with derived progress").
		MimeType("application/json").
		Handler(func(_ context.Context, _ string, _ map[string]string) (*mcplib.ResourceContent, error) {
			return s.readRoadmap()
		})
}

func (s *Server) readRoadmap() (*mcplib.ResourceContent, error) {
	view := s.controller.View()
	data, err := json.Marshal(roadmapResource{
		SchemaVersion: SchemaVersion,
		ServerVersion: Version,
		Revision:      view.Revision,
		State:         string(view.State),
		Stats:         view.Stats,
		Tasks:         view.Snapshot,
	})
	if err != nil {
		return nil, err
	}
	return &mcplib.ResourceContent{
		URI:      roadmapURI,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
