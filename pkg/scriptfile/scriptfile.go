// Package scriptfile stores compiled scripts as canonical CBOR. Equal
// scripts always encode to equal bytes, so artifacts can be compared and
// cached by digest.
package scriptfile

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"cscript/pkg/bytecode"
	"cscript/pkg/compiler"
)

// FormatVersion is bumped whenever the encoded layout changes.
const FormatVersion = 1

// Ext is the file extension of artifacts.
const Ext = ".o"

var ErrVersion = errors.New("scriptfile: unsupported format version")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("scriptfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type Fixup struct {
	Offset int   `cbor:"1,keyasint"`
	Type   uint8 `cbor:"2,keyasint"`
}

type Function struct {
	Name      string `cbor:"1,keyasint"`
	Offset    int    `cbor:"2,keyasint"`
	NumParams int    `cbor:"3,keyasint"`
	Variadic  bool   `cbor:"4,keyasint,omitempty"`
}

type Export struct {
	Name      string `cbor:"1,keyasint"`
	Offset    int    `cbor:"2,keyasint"`
	Function  bool   `cbor:"3,keyasint,omitempty"`
	NumParams int    `cbor:"4,keyasint,omitempty"`
}

type Member struct {
	Name      string `cbor:"1,keyasint"`
	Offset    int    `cbor:"2,keyasint"`
	Size      int    `cbor:"3,keyasint"`
	IsPointer bool   `cbor:"4,keyasint,omitempty"`
	IsImport  bool   `cbor:"5,keyasint,omitempty"`
}

type Struct struct {
	Name    string   `cbor:"1,keyasint"`
	Size    int      `cbor:"2,keyasint"`
	Managed bool     `cbor:"3,keyasint,omitempty"`
	Parent  string   `cbor:"4,keyasint,omitempty"`
	Members []Member `cbor:"5,keyasint,omitempty"`
}

// Artifact is the loadable form of a compiled script.
type Artifact struct {
	Version    int        `cbor:"1,keyasint"`
	Name       string     `cbor:"2,keyasint"`
	Code       []int32    `cbor:"3,keyasint"`
	Strings    []byte     `cbor:"4,keyasint,omitempty"`
	Fixups     []Fixup    `cbor:"5,keyasint,omitempty"`
	Imports    []string   `cbor:"6,keyasint,omitempty"`
	Exports    []Export   `cbor:"7,keyasint,omitempty"`
	Functions  []Function `cbor:"8,keyasint,omitempty"`
	Structs    []Struct   `cbor:"9,keyasint,omitempty"`
	Globals    []Member   `cbor:"10,keyasint,omitempty"`
	GlobalData []byte     `cbor:"11,keyasint,omitempty"`
	// SourceDigest identifies the source text the artifact was built from.
	SourceDigest [32]byte `cbor:"12,keyasint"`
}

func members(in []compiler.MemberLayout) []Member {
	if len(in) == 0 {
		return nil
	}
	out := make([]Member, len(in))
	for i, m := range in {
		out[i] = Member{Name: m.Name, Offset: m.Offset, Size: m.Size, IsPointer: m.IsPointer, IsImport: m.IsImport}
	}
	return out
}

// FromScript flattens cs into an artifact. digest is recorded as is.
func FromScript(cs *compiler.CompiledScript, digest [32]byte) *Artifact {
	a := &Artifact{
		Version:      FormatVersion,
		Name:         cs.Name,
		Code:         append([]int32(nil), cs.Code...),
		Strings:      append([]byte(nil), cs.Strings...),
		Imports:      append([]string(nil), cs.Imports...),
		Globals:      members(cs.GlobalLayout()),
		GlobalData:   cs.GlobalDataBytes(),
		SourceDigest: digest,
	}
	for _, f := range cs.Fixups {
		a.Fixups = append(a.Fixups, Fixup{Offset: f.Offset, Type: uint8(f.Type)})
	}
	for _, e := range cs.Exports {
		a.Exports = append(a.Exports, Export{Name: e.Name, Offset: e.Offset, Function: e.Function, NumParams: e.NumParams})
	}
	for _, f := range cs.FunctionTable() {
		a.Functions = append(a.Functions, Function{Name: f.Name, Offset: f.Offset, NumParams: f.NumParams, Variadic: f.Variadic})
	}
	for _, s := range cs.StructTable() {
		a.Structs = append(a.Structs, Struct{Name: s.Name, Size: s.Size, Managed: s.Managed, Parent: s.Parent, Members: members(s.Members)})
	}
	return a
}

// Digest hashes the texts a unit was compiled from, in order.
func Digest(texts ...string) [32]byte {
	h := sha256.New()
	for _, t := range texts {
		fmt.Fprintf(h, "%d:", len(t))
		h.Write([]byte(t))
	}
	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

// Validate checks that every table entry points inside the artifact.
func (a *Artifact) Validate() error {
	if a.Version != FormatVersion {
		return fmt.Errorf("%w %d", ErrVersion, a.Version)
	}
	for _, f := range a.Fixups {
		t := bytecode.FixupType(f.Type)
		if !t.Valid() {
			return fmt.Errorf("scriptfile: unknown fixup type %d", f.Type)
		}
		limit := len(a.Code)
		if t == bytecode.FixupDataData {
			limit = len(a.GlobalData)
		}
		if f.Offset < 0 || f.Offset >= limit {
			return fmt.Errorf("scriptfile: %s fixup at %d out of range", t, f.Offset)
		}
	}
	for _, f := range a.Functions {
		if f.Offset < 0 || f.Offset >= len(a.Code) {
			return fmt.Errorf("scriptfile: function %s at %d outside code", f.Name, f.Offset)
		}
	}
	for _, e := range a.Exports {
		limit := len(a.GlobalData)
		if e.Function {
			limit = len(a.Code)
		}
		if e.Offset < 0 || e.Offset >= limit {
			return fmt.Errorf("scriptfile: export %s at %d out of range", e.Name, e.Offset)
		}
	}
	return nil
}

// Marshal serializes an Artifact to canonical CBOR bytes.
func Marshal(a *Artifact) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// Unmarshal deserializes and validates an Artifact.
func Unmarshal(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("scriptfile: unmarshal artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
