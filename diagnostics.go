package container

import (
	"strings"

	"github.com/artem-zyryanov/simple-container/internal/graph"
)

// renderConstructionLog formats a service's resolution tree into the
// human-readable text every thrown resolution error carries, per the
// spec's construction-log design.
func renderConstructionLog(service *ContainerService) string {
	var buf strings.Builder
	_ = graph.NewVisualizer().WriteText(&buf, service.constructionNode())
	return buf.String()
}
