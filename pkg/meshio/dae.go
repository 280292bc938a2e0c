package meshio

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/meshforge/pkg/kernel"
)

// COLLADA 1.4.1 document subset: one geometry, one node.
type daeDocument struct {
	XMLName xml.Name         `xml:"COLLADA"`
	NS      string           `xml:"xmlns,attr"`
	Version string           `xml:"version,attr"`
	Asset   daeAsset         `xml:"asset"`
	Geoms   []daeGeometry    `xml:"library_geometries>geometry"`
	Scenes  []daeVisualScene `xml:"library_visual_scenes>visual_scene"`
	Scene   daeScene         `xml:"scene"`
}

type daeAsset struct {
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
	UpAxis   string `xml:"up_axis"`
}

type daeGeometry struct {
	ID   string  `xml:"id,attr"`
	Name string  `xml:"name,attr"`
	Mesh daeMesh `xml:"mesh"`
}

type daeMesh struct {
	Sources   []daeSource  `xml:"source"`
	Vertices  daeVertices  `xml:"vertices"`
	Triangles daeTriangles `xml:"triangles"`
}

type daeSource struct {
	ID         string        `xml:"id,attr"`
	FloatArray daeFloatArray `xml:"float_array"`
	Accessor   daeAccessor   `xml:"technique_common>accessor"`
}

type daeFloatArray struct {
	ID    string `xml:"id,attr"`
	Count int    `xml:"count,attr"`
	Data  string `xml:",chardata"`
}

type daeAccessor struct {
	Source string     `xml:"source,attr"`
	Count  int        `xml:"count,attr"`
	Stride int        `xml:"stride,attr"`
	Params []daeParam `xml:"param"`
}

type daeParam struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type daeVertices struct {
	ID    string     `xml:"id,attr"`
	Input []daeInput `xml:"input"`
}

type daeInput struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   *int   `xml:"offset,attr,omitempty"`
	Set      *int   `xml:"set,attr,omitempty"`
}

type daeTriangles struct {
	Count int        `xml:"count,attr"`
	Input []daeInput `xml:"input"`
	P     string     `xml:"p"`
}

type daeVisualScene struct {
	ID   string  `xml:"id,attr"`
	Node daeNode `xml:"node"`
}

type daeNode struct {
	ID       string              `xml:"id,attr"`
	Name     string              `xml:"name,attr"`
	Instance daeInstanceGeometry `xml:"instance_geometry"`
}

type daeInstanceGeometry struct {
	URL string `xml:"url,attr"`
}

type daeScene struct {
	Instance daeInstanceVisualScene `xml:"instance_visual_scene"`
}

type daeInstanceVisualScene struct {
	URL string `xml:"url,attr"`
}

func daeFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}

func daeSourceOf(id string, vals []float64, names ...string) daeSource {
	params := make([]daeParam, len(names))
	for i, n := range names {
		params[i] = daeParam{Name: n, Type: "float"}
	}
	return daeSource{
		ID:         id,
		FloatArray: daeFloatArray{ID: id + "-array", Count: len(vals), Data: daeFloats(vals)},
		Accessor: daeAccessor{
			Source: "#" + id + "-array",
			Count:  len(vals) / len(names),
			Stride: len(names),
			Params: params,
		},
	}
}

// encodeDAE writes a COLLADA 1.4.1 document.
func encodeDAE(path string, m *kernel.Mesh) error {
	name := m.Name
	if name == "" {
		name = "mesh"
	}
	pos := make([]float64, 0, len(m.Vertices)*3)
	for _, v := range m.Vertices {
		pos = append(pos, v[0], v[1], v[2])
	}
	zero := 0
	mesh := daeMesh{
		Sources:  []daeSource{daeSourceOf("positions", pos, "X", "Y", "Z")},
		Vertices: daeVertices{ID: "vertices", Input: []daeInput{{Semantic: "POSITION", Source: "#positions"}}},
		Triangles: daeTriangles{
			Count: len(m.Faces),
			Input: []daeInput{{Semantic: "VERTEX", Source: "#vertices", Offset: &zero}},
		},
	}
	if m.HasUV() {
		uv := make([]float64, 0, len(m.UV)*2)
		for _, t := range m.UV {
			uv = append(uv, t[0], t[1])
		}
		mesh.Sources = append(mesh.Sources, daeSourceOf("uv", uv, "S", "T"))
		mesh.Triangles.Input = append(mesh.Triangles.Input,
			daeInput{Semantic: "TEXCOORD", Source: "#uv", Offset: &zero, Set: &zero})
	}
	var p strings.Builder
	for i, f := range m.Faces {
		if i > 0 {
			p.WriteByte(' ')
		}
		p.WriteString(strconv.Itoa(f[0]) + " " + strconv.Itoa(f[1]) + " " + strconv.Itoa(f[2]))
	}
	mesh.Triangles.P = p.String()

	now := time.Now().UTC().Format(time.RFC3339)
	doc := daeDocument{
		NS:      "http://www.collada.org/2005/11/COLLADASchema",
		Version: "1.4.1",
		Asset:   daeAsset{Created: now, Modified: now, UpAxis: "Y_UP"},
		Geoms:   []daeGeometry{{ID: "geometry", Name: name, Mesh: mesh}},
		Scenes: []daeVisualScene{{
			ID:   "scene",
			Node: daeNode{ID: "node", Name: name, Instance: daeInstanceGeometry{URL: "#geometry"}},
		}},
		Scene: daeScene{Instance: daeInstanceVisualScene{URL: "#scene"}},
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(xml.Header); err != nil {
		f.Close()
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
