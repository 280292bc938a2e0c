package meshio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Format is a mesh file format, named by its usual extension.
type Format string

const (
	GLB      Format = "glb"
	GLTF     Format = "gltf"
	OBJ      Format = "obj"
	PLY      Format = "ply"
	STL      Format = "stl"
	ThreeMF  Format = "3mf"
	Collada  Format = "dae"
	sniffLen        = 512
)

// ExportFormats lists the formats Export can write.
var ExportFormats = []Format{GLB, OBJ, PLY, STL, ThreeMF, Collada}

// LoadFormats lists the formats Load can read.
var LoadFormats = []Format{GLB, GLTF, OBJ, PLY, STL, ThreeMF}

// Mesh types unknown to filetype's built-in matchers.
var (
	glbType      = filetype.NewType("glb", "model/gltf-binary")
	plyType      = filetype.NewType("ply", "model/ply")
	stlASCIIType = filetype.NewType("stl", "model/stl")
)

func init() {
	filetype.AddMatcher(glbType, func(buf []byte) bool {
		return bytes.HasPrefix(buf, []byte("glTF"))
	})
	filetype.AddMatcher(plyType, func(buf []byte) bool {
		return bytes.HasPrefix(buf, []byte("ply\n")) || bytes.HasPrefix(buf, []byte("ply\r\n"))
	})
	filetype.AddMatcher(stlASCIIType, func(buf []byte) bool {
		return bytes.HasPrefix(bytes.TrimLeft(buf, " \t\r\n"), []byte("solid"))
	})
}

// ParseFormat resolves a format name or extension, with or without a
// leading dot, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	switch f {
	case GLB, GLTF, OBJ, PLY, STL, ThreeMF, Collada:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// detect returns the format of the file at path, by extension first and
// by content otherwise.
func detect(path string) (Format, error) {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return sniff(head[:n])
}

// sniff identifies a mesh format from the first bytes of a file.
func sniff(head []byte) (Format, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == types.Unknown {
		return "", fmt.Errorf("%w: unrecognized content", ErrUnsupportedFormat)
	}
	switch kind.Extension {
	case "zip":
		// 3MF is an OPC zip package.
		return ThreeMF, nil
	case glbType.Extension, plyType.Extension, stlASCIIType.Extension:
		return Format(kind.Extension), nil
	}
	return "", fmt.Errorf("%w: %s content", ErrUnsupportedFormat, kind.MIME.Value)
}
