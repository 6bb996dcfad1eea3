package interchange

import (
	"fmt"
	"html/template"
	"io"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

type htmlNode struct {
	ID    string            `json:"id"`
	Label string            `json:"label"`
	Type  common.EntityType `json:"type"`
}

type htmlLink struct {
	Source string                  `json:"source"`
	Target string                  `json:"target"`
	Type   common.RelationshipType `json:"type"`
	Weight float64                 `json:"weight"`
}

type htmlData struct {
	Nodes []htmlNode `json:"nodes"`
	Links []htmlLink `json:"links"`
}

var htmlTemplate = template.Must(template.New("graph").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://d3js.org/d3.v7.min.js"></script>
<style>
body { margin: 0; font-family: sans-serif; }
svg { width: 100vw; height: 100vh; }
.link { stroke: #999; stroke-opacity: 0.6; }
.node text { font-size: 10px; pointer-events: none; }
</style>
</head>
<body>
<svg></svg>
<script>
const graph = {{.Data}};
const svg = d3.select("svg");
const width = window.innerWidth, height = window.innerHeight;
const color = d3.scaleOrdinal(d3.schemeTableau10);
const simulation = d3.forceSimulation(graph.nodes)
  .force("link", d3.forceLink(graph.links).id(d => d.id).distance(80))
  .force("charge", d3.forceManyBody().strength(-200))
  .force("center", d3.forceCenter(width / 2, height / 2));
const link = svg.append("g").selectAll("line").data(graph.links).join("line")
  .attr("class", "link")
  .attr("stroke-width", d => 1 + 3 * d.weight);
link.append("title").text(d => d.type);
const node = svg.append("g").selectAll("g").data(graph.nodes).join("g").attr("class", "node");
node.append("circle").attr("r", 6).attr("fill", d => color(d.type));
node.append("text").attr("x", 8).attr("y", 3).text(d => d.label);
node.append("title").text(d => d.type);
node.call(d3.drag()
  .on("start", (e, d) => { if (!e.active) simulation.alphaTarget(0.3).restart(); d.fx = d.x; d.fy = d.y; })
  .on("drag", (e, d) => { d.fx = e.x; d.fy = e.y; })
  .on("end", (e, d) => { if (!e.active) simulation.alphaTarget(0); d.fx = null; d.fy = null; }));
simulation.on("tick", () => {
  link.attr("x1", d => d.source.x).attr("y1", d => d.source.y)
    .attr("x2", d => d.target.x).attr("y2", d => d.target.y);
  node.attr("transform", d => "translate(" + d.x + "," + d.y + ")");
});
</script>
</body>
</html>
`))

// WriteHTML writes a self-contained force-directed D3 view of g. Links to
// nodes that are not part of g are dropped.
func WriteHTML(w io.Writer, g *Graph) error {
	g = normalized(g)
	data := htmlData{Nodes: make([]htmlNode, 0, len(g.Entities)), Links: []htmlLink{}}
	known := make(map[string]struct{}, len(g.Entities))
	for _, e := range g.Entities {
		label := e.NormalizedValue
		if label == "" {
			label = e.Text
		}
		data.Nodes = append(data.Nodes, htmlNode{ID: e.ID, Label: label, Type: e.Type})
		known[e.ID] = struct{}{}
	}
	for _, r := range g.Relationships {
		_, okS := known[r.SourceID]
		_, okT := known[r.TargetID]
		if !okS || !okT {
			continue
		}
		data.Links = append(data.Links, htmlLink{Source: r.SourceID, Target: r.TargetID, Type: r.Type, Weight: r.Strength})
	}

	err := htmlTemplate.Execute(w, struct {
		Title string
		Data  htmlData
	}{Title: "Knowledge graph", Data: data})
	if err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}
