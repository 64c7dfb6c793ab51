package gateway

import "net/http"

// handleManifest implements GET /mcp/manifest: serves the static tool
// manifest IDE agents use to discover this server over the Model
// Context Protocol.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Manifest)
}
